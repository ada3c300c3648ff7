package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/object"
)

// GCSummary reports what a GC pass found.
type GCSummary struct {
	Reachable int
	Pruned    []object.Hash // sorted
}

// GC removes loose objects that nothing references. Roots are every ref,
// HEAD, MERGE_HEAD, every hash recorded in a reflog, and every blob in the
// index including conflict sides. With dryRun nothing is deleted.
func (r *Repo) GC(dryRun bool) (*GCSummary, error) {
	roots, err := r.gcRoots()
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}

	reachable := make(map[object.Hash]bool)
	var stack []object.Hash
	for _, h := range roots {
		if r.Store.Has(h) && !reachable[h] {
			reachable[h] = true
			stack = append(stack, h)
		}
	}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		typ, _, err := r.Store.Read(h)
		if err != nil {
			return nil, fmt.Errorf("gc: %w", classifyObjectError(h, err))
		}
		var next []object.Hash
		switch typ {
		case object.TypeCommit:
			c, err := r.ReadCommit(h)
			if err != nil {
				return nil, fmt.Errorf("gc: %w", err)
			}
			next = append(next, c.TreeHash)
			next = append(next, c.Parents...)
		case object.TypeTree:
			t, err := r.ReadTree(h)
			if err != nil {
				return nil, fmt.Errorf("gc: %w", err)
			}
			for _, e := range t.Entries {
				next = append(next, e.Target())
			}
		}
		for _, n := range next {
			if n != "" && !reachable[n] {
				reachable[n] = true
				stack = append(stack, n)
			}
		}
	}

	all, err := r.Store.List()
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}
	summary := &GCSummary{Reachable: len(reachable)}
	for _, h := range all {
		if reachable[h] {
			continue
		}
		summary.Pruned = append(summary.Pruned, h)
		if dryRun {
			continue
		}
		if err := r.Store.Remove(h); err != nil {
			return nil, fmt.Errorf("gc: %w", err)
		}
	}
	sort.Slice(summary.Pruned, func(i, j int) bool { return summary.Pruned[i] < summary.Pruned[j] })
	r.Logger().Debug("gc finished",
		zap.Int("reachable", summary.Reachable), zap.Int("pruned", len(summary.Pruned)), zap.Bool("dry_run", dryRun))
	return summary, nil
}

func (r *Repo) gcRoots() ([]object.Hash, error) {
	var roots []object.Hash

	refs, err := r.ListRefs("")
	if err != nil {
		return nil, err
	}
	for _, h := range refs {
		roots = append(roots, h)
	}
	if h, err := r.ResolveRef("HEAD"); err == nil {
		roots = append(roots, h)
	}
	if h, err := r.readMergeHead(); err == nil {
		roots = append(roots, h)
	}

	idx, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}
	for _, e := range idx.Entries {
		roots = append(roots, e.BlobHash)
		for _, side := range []*IndexSide{e.Base, e.Ours, e.Theirs} {
			if side != nil {
				roots = append(roots, side.BlobHash)
			}
		}
	}

	logs := filepath.Join(r.MetaDir, "logs")
	err = filepath.WalkDir(logs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(logs, path)
		if err != nil {
			return err
		}
		entries, err := r.ReadReflog(filepath.ToSlash(rel), 0)
		if err != nil {
			return err
		}
		for _, e := range entries {
			roots = append(roots, e.OldHash, e.NewHash)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return filterHashes(roots), nil
}

func filterHashes(in []object.Hash) []object.Hash {
	out := in[:0]
	for _, h := range in {
		if h == "" || h == zeroHash || strings.HasPrefix(string(h), symrefPrefix) {
			continue
		}
		out = append(out, h)
	}
	return out
}
