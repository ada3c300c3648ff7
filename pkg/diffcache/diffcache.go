// Package diffcache memoizes, per project, the set of paths a commit touched
// relative to a comparison tree.
package diffcache

import (
	"context"
	"slices"
	"sync"

	"github.com/odvcencio/notesync/pkg/object"
)

// Key identifies one cached diff: the paths that differ between Commit's
// tree and the Against tree.
type Key struct {
	Project string
	Commit  object.Hash
	Against object.Hash
}

// Store is a CommitDiffCache backend. Load reports ok=false on a miss.
// Saved path sets are sorted; implementations keep them in order.
type Store interface {
	Load(ctx context.Context, key Key) (paths []string, ok bool, err error)
	Save(ctx context.Context, key Key, paths []string) error
	Purge(ctx context.Context, project string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key][]string
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key][]string)}
}

func (m *Memory) Load(_ context.Context, key Key) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(paths), true, nil
}

func (m *Memory) Save(_ context.Context, key Key, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = sortedCopy(paths)
	return nil
}

func (m *Memory) Purge(_ context.Context, project string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if k.Project == project {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func sortedCopy(paths []string) []string {
	out := slices.Clone(paths)
	if out == nil {
		out = []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
