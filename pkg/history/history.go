// Package history iterates the commits that changed a single path.
//
// The iterator walks the commit graph newest first and compares each commit
// with the one walked before it (the baseline). A commit is reported only
// once the walk has moved one commit past it and confirmed that the path
// differs between the two. Every walked commit costs one tree diff, which
// the treediff.Engine memoizes.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/object"
	"github.com/odvcencio/notesync/pkg/repo"
	"github.com/odvcencio/notesync/pkg/treediff"
)

// Source is the part of a repository the iterator reads.
type Source interface {
	ResolveRef(name string) (object.Hash, error)
	WalkCommits(start object.Hash) *repo.CommitWalker
	PathExists(tree object.Hash, path string) (bool, error)
}

// Option configures an Iterator.
type Option func(*Iterator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(it *Iterator) {
		if l != nil {
			it.logger = l
		}
	}
}

// WithProgress reports each walked commit as a PhaseWalk progress with an
// unknown total.
func WithProgress(fn repo.ProgressFunc) Option {
	return func(it *Iterator) { it.progress = fn }
}

type visited struct {
	hash    object.Hash
	tree    object.Hash
	hasPath bool
}

// Iterator yields the commits that touched a path. It is single-pass and
// not safe for concurrent use; Reset starts over.
type Iterator struct {
	src      Source
	engine   *treediff.Engine
	path     string
	start    object.Hash
	logger   *zap.Logger
	progress repo.ProgressFunc

	walker          *repo.CommitWalker
	previousVisited *visited
	lastFetched     *visited
	current         object.Hash
	exhausted       bool
	walked          int
}

// New returns an iterator over the history of path starting at start. An
// empty start means HEAD at the first call to Next; an unborn HEAD has no
// history.
func New(src Source, engine *treediff.Engine, path string, start object.Hash, opts ...Option) *Iterator {
	it := &Iterator{
		src:    src,
		engine: engine,
		path:   strings.Trim(path, "/"),
		start:  start,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(it)
	}
	return it
}

// Path returns the path being followed.
func (it *Iterator) Path() string { return it.path }

// Next returns the next commit that touched the path, newest first. The
// bool is false once the history is exhausted.
func (it *Iterator) Next(ctx context.Context) (object.Hash, bool, error) {
	if it.exhausted {
		it.current = ""
		return "", false, nil
	}
	if it.walker == nil {
		if err := it.begin(); err != nil {
			return "", false, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		h, c, err := it.walker.Next()
		if errors.Is(err, io.EOF) {
			it.exhausted = true
			if it.previousVisited != nil && it.previousVisited.hasPath {
				return it.emit(it.previousVisited.hash), true, nil
			}
			it.current = ""
			return "", false, nil
		}
		if err != nil {
			return "", false, fmt.Errorf("history %s: %w", it.path, err)
		}
		it.walked++
		if it.progress != nil {
			it.progress(repo.Progress{Phase: repo.PhaseWalk, Current: it.walked})
		}

		hasPath, err := it.src.PathExists(c.TreeHash, it.path)
		if err != nil {
			return "", false, fmt.Errorf("history %s: %w", it.path, err)
		}
		cur := &visited{hash: h, tree: c.TreeHash, hasPath: hasPath}
		it.lastFetched = cur

		baseline := it.previousVisited
		it.previousVisited = cur
		if baseline == nil {
			continue
		}
		// Commits lacking the path still diff against the baseline so
		// deletions and creations are seen.
		touched, err := it.engine.PathTouched(ctx, it.path, baseline.hash, cur.tree)
		if err != nil {
			return "", false, fmt.Errorf("history %s: %w", it.path, err)
		}
		if touched {
			return it.emit(baseline.hash), true, nil
		}
	}
}

func (it *Iterator) begin() error {
	if it.path == "" {
		return fmt.Errorf("history: %w", repo.ErrInvalidSpec)
	}
	start := it.start
	if start == "" {
		h, err := it.src.ResolveRef("HEAD")
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("history: %w", err)
		}
		start = h
	}
	it.walker = it.src.WalkCommits(start)
	return nil
}

func (it *Iterator) emit(h object.Hash) object.Hash {
	it.current = h
	it.logger.Debug("history match",
		zap.String("path", it.path), zap.String("commit", h.Short()), zap.Int("walked", it.walked))
	return h
}

// IsCreationCommit reports whether the commit last returned by Next
// introduced the path: the commit walked after it lacks the path, or no
// commit follows it.
func (it *Iterator) IsCreationCommit() bool {
	if it.current == "" {
		return false
	}
	if it.exhausted {
		return true
	}
	return it.lastFetched != nil && !it.lastFetched.hasPath
}

// Reset rewinds the iterator to its starting commit.
func (it *Iterator) Reset() {
	it.walker = nil
	it.previousVisited = nil
	it.lastFetched = nil
	it.current = ""
	it.exhausted = false
	it.walked = 0
}

// Walk restarts the iterator and returns every matching commit, newest
// first. It is equivalent to calling Next until it reports false.
func (it *Iterator) Walk(ctx context.Context) ([]object.Hash, error) {
	it.Reset()
	var out []object.Hash
	for {
		h, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, h)
	}
}
