package repo

import (
	"container/heap"
	"io"

	"github.com/odvcencio/notesync/pkg/object"
)

// CommitWalker yields commits reachable from a start commit in topological
// order, children before parents. Among commits whose children are all
// emitted, the most recent committer time goes first.
type CommitWalker struct {
	repo  *Repo
	queue walkQueue
	seen  map[object.Hash]bool
	err   error
}

type walkItem struct {
	hash       object.Hash
	commit     *object.CommitObj
	generation uint64
}

// walkQueue orders by generation, then committer time, then hash.
// A child's generation always exceeds its parents', so popping the highest
// generation first never emits a parent before a child.
type walkQueue []walkItem

func (q walkQueue) Len() int { return len(q) }
func (q walkQueue) Less(i, j int) bool {
	if q[i].generation != q[j].generation {
		return q[i].generation > q[j].generation
	}
	ti, tj := q[i].commit.Committer.When, q[j].commit.Committer.When
	if ti != tj {
		return ti > tj
	}
	return q[i].hash < q[j].hash
}
func (q walkQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *walkQueue) Push(x any)   { *q = append(*q, x.(walkItem)) }
func (q *walkQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

// WalkCommits starts a walk at start. An empty start yields nothing.
func (r *Repo) WalkCommits(start object.Hash) *CommitWalker {
	w := &CommitWalker{repo: r, seen: map[object.Hash]bool{}}
	if start != "" {
		w.err = w.push(start)
	}
	return w
}

func (w *CommitWalker) push(h object.Hash) error {
	if w.seen[h] {
		return nil
	}
	w.seen[h] = true
	g := w.repo.getGraph()
	c, err := g.commit(h)
	if err != nil {
		return err
	}
	gen, err := g.generation(h)
	if err != nil {
		return err
	}
	heap.Push(&w.queue, walkItem{hash: h, commit: c, generation: gen})
	return nil
}

// Next returns the next commit, or io.EOF when the walk is exhausted.
func (w *CommitWalker) Next() (object.Hash, *object.CommitObj, error) {
	if w.err != nil {
		return "", nil, w.err
	}
	if w.queue.Len() == 0 {
		return "", nil, io.EOF
	}
	item := heap.Pop(&w.queue).(walkItem)
	for _, p := range item.commit.Parents {
		if err := w.push(p); err != nil {
			w.err = err
			break
		}
	}
	return item.hash, item.commit, nil
}
