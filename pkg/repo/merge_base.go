package repo

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/odvcencio/notesync/pkg/object"
)

// commitGraph caches parsed commits, generation numbers and merge-base
// answers for one repository. Generation is 1 for a root commit and
// 1 + max(parent generations) otherwise.
type commitGraph struct {
	store *object.Store

	mu          sync.RWMutex
	commits     map[object.Hash]*object.CommitObj
	generations map[object.Hash]uint64
	bases       map[basePair]object.Hash
}

type basePair struct{ left, right object.Hash }

func newCommitGraph(store *object.Store) *commitGraph {
	return &commitGraph{
		store:       store,
		commits:     make(map[object.Hash]*object.CommitObj),
		generations: make(map[object.Hash]uint64),
		bases:       make(map[basePair]object.Hash),
	}
}

func orderedPair(a, b object.Hash) basePair {
	if a <= b {
		return basePair{left: a, right: b}
	}
	return basePair{left: b, right: a}
}

func (g *commitGraph) commit(h object.Hash) (*object.CommitObj, error) {
	g.mu.RLock()
	c, ok := g.commits[h]
	g.mu.RUnlock()
	if ok {
		return c, nil
	}
	c, err := g.store.ReadCommit(h)
	if err != nil {
		return nil, classifyObjectError(h, err)
	}
	g.mu.Lock()
	g.commits[h] = c
	g.mu.Unlock()
	return c, nil
}

func (g *commitGraph) cachedGeneration(h object.Hash) (uint64, bool) {
	g.mu.RLock()
	gen, ok := g.generations[h]
	g.mu.RUnlock()
	return gen, ok
}

// generation computes h's generation with an explicit stack so long linear
// histories do not grow the goroutine stack.
func (g *commitGraph) generation(h object.Hash) (uint64, error) {
	if gen, ok := g.cachedGeneration(h); ok {
		return gen, nil
	}
	stack := []object.Hash{h}
	expanded := map[object.Hash]bool{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		if _, ok := g.cachedGeneration(cur); ok {
			stack = stack[:len(stack)-1]
			continue
		}
		c, err := g.commit(cur)
		if err != nil {
			return 0, err
		}
		if !expanded[cur] {
			expanded[cur] = true
			pending := false
			for _, p := range c.Parents {
				if _, ok := g.cachedGeneration(p); ok {
					continue
				}
				if expanded[p] {
					return 0, fmt.Errorf("commit graph cycle at %s", p.Short())
				}
				stack = append(stack, p)
				pending = true
			}
			if pending {
				continue
			}
		}
		var maxParent uint64
		for _, p := range c.Parents {
			pg, ok := g.cachedGeneration(p)
			if !ok {
				return 0, fmt.Errorf("commit graph cycle at %s", p.Short())
			}
			maxParent = max(maxParent, pg)
		}
		g.mu.Lock()
		g.generations[cur] = maxParent + 1
		g.mu.Unlock()
		stack = stack[:len(stack)-1]
	}
	gen, _ := g.cachedGeneration(h)
	return gen, nil
}

type graphItem struct {
	hash       object.Hash
	generation uint64
}

// graphHeap pops the highest generation first, ties broken by hash.
type graphHeap []graphItem

func (h graphHeap) Len() int { return len(h) }
func (h graphHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].hash < h[j].hash
	}
	return h[i].generation > h[j].generation
}
func (h graphHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *graphHeap) Push(x any)   { *h = append(*h, x.(graphItem)) }
func (h *graphHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}

// isAncestor reports whether ancestor is reachable from descendant. Commits
// whose generation drops below the ancestor's are not expanded.
func (g *commitGraph) isAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	ga, err := g.generation(ancestor)
	if err != nil {
		return false, err
	}
	gd, err := g.generation(descendant)
	if err != nil {
		return false, err
	}
	if ga >= gd {
		return false, nil
	}

	seen := map[object.Hash]bool{descendant: true}
	queue := graphHeap{{hash: descendant, generation: gd}}
	for queue.Len() > 0 {
		item := heap.Pop(&queue).(graphItem)
		if item.hash == ancestor {
			return true, nil
		}
		if item.generation <= ga {
			continue
		}
		c, err := g.commit(item.hash)
		if err != nil {
			return false, err
		}
		for _, p := range c.Parents {
			if seen[p] {
				continue
			}
			seen[p] = true
			pg, err := g.generation(p)
			if err != nil {
				return false, err
			}
			if pg < ga {
				continue
			}
			heap.Push(&queue, graphItem{hash: p, generation: pg})
		}
	}
	return false, nil
}

// mergeBase returns the common ancestor of a and b with the highest
// generation, or "" when the histories are unrelated. A common ancestor of
// maximal generation is never an ancestor of another common ancestor.
func (g *commitGraph) mergeBase(a, b object.Hash) (object.Hash, error) {
	if a == b {
		return a, nil
	}
	key := orderedPair(a, b)
	g.mu.RLock()
	cached, ok := g.bases[key]
	g.mu.RUnlock()
	if ok {
		return cached, nil
	}

	base, err := g.searchMergeBase(a, b)
	if err != nil {
		return "", err
	}
	g.mu.Lock()
	g.bases[key] = base
	g.mu.Unlock()
	return base, nil
}

func (g *commitGraph) searchMergeBase(a, b object.Hash) (object.Hash, error) {
	if ok, err := g.isAncestor(a, b); err != nil || ok {
		if ok {
			return a, nil
		}
		return "", err
	}
	if ok, err := g.isAncestor(b, a); err != nil || ok {
		if ok {
			return b, nil
		}
		return "", err
	}

	const (
		fromA = 1 << iota
		fromB
	)
	paint := map[object.Hash]int{}
	var queue graphHeap
	// Paint reaches a commit only from higher generations, so every paint a
	// commit will receive is present by the time it is popped.
	push := func(h object.Hash, side int) error {
		if paint[h]&side != 0 {
			return nil
		}
		queued := paint[h] != 0
		paint[h] |= side
		if queued {
			return nil
		}
		gen, err := g.generation(h)
		if err != nil {
			return err
		}
		heap.Push(&queue, graphItem{hash: h, generation: gen})
		return nil
	}
	if err := push(a, fromA); err != nil {
		return "", err
	}
	if err := push(b, fromB); err != nil {
		return "", err
	}

	for queue.Len() > 0 {
		item := heap.Pop(&queue).(graphItem)
		side := paint[item.hash]
		if side == fromA|fromB {
			return item.hash, nil
		}
		c, err := g.commit(item.hash)
		if err != nil {
			return "", err
		}
		for _, p := range c.Parents {
			if err := push(p, side); err != nil {
				return "", err
			}
		}
	}
	return "", nil
}

// FindMergeBase returns the best common ancestor of a and b, or "" when they
// share no history.
func (r *Repo) FindMergeBase(a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", nil
	}
	base, err := r.getGraph().mergeBase(a, b)
	if err != nil {
		return "", fmt.Errorf("find merge base: %w", err)
	}
	return base, nil
}

// IsAncestor reports whether ancestor is reachable from descendant
// (inclusive).
func (r *Repo) IsAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" || descendant == "" {
		return false, nil
	}
	ok, err := r.getGraph().isAncestor(ancestor, descendant)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	return ok, nil
}
