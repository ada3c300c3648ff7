package treediff

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/diffcache"
	"github.com/odvcencio/notesync/pkg/object"
)

// Reader reads the commits and trees the engine diffs.
type Reader interface {
	TreeReader
	ReadCommit(h object.Hash) (*object.CommitObj, error)
}

// Engine answers path-membership questions about commits, memoizing each
// commit's touched set in a diffcache.Store.
type Engine struct {
	reader  Reader
	cache   diffcache.Store
	project string
	opts    Options
	logger  *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger cache failures are reported to.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDiffOptions sets the options used for the underlying tree diffs.
func WithDiffOptions(opts Options) EngineOption {
	return func(e *Engine) { e.opts = opts }
}

// NewEngine returns an engine reading through reader and caching under
// project. A nil cache uses a private in-memory store.
func NewEngine(reader Reader, cache diffcache.Store, project string, opts ...EngineOption) *Engine {
	if cache == nil {
		cache = diffcache.NewMemory()
	}
	e := &Engine{
		reader:  reader,
		cache:   cache,
		project: project,
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Project returns the cache namespace of the engine.
func (e *Engine) Project() string { return e.project }

// Diff compares two trees with the engine's options.
func (e *Engine) Diff(a, b object.Hash) ([]Entry, error) {
	return DiffTrees(e.reader, a, b, e.opts)
}

// TouchedPaths returns the sorted set of paths that differ between commit's
// tree and the against tree. The empty against hash is the empty tree.
// Results come from the cache when present; a computed set is saved back,
// and a failing cache only costs a recomputation.
func (e *Engine) TouchedPaths(ctx context.Context, commit, against object.Hash) ([]string, error) {
	key := diffcache.Key{Project: e.project, Commit: commit, Against: against}
	paths, ok, err := e.cache.Load(ctx, key)
	if err != nil {
		e.logger.Warn("diff cache load failed",
			zap.String("commit", string(commit)), zap.String("against", string(against)), zap.Error(err))
	} else if ok {
		return paths, nil
	}

	c, err := e.reader.ReadCommit(commit)
	if err != nil {
		return nil, fmt.Errorf("touched paths: %w", err)
	}
	entries, err := DiffTrees(e.reader, against, c.TreeHash, e.opts)
	if err != nil {
		return nil, fmt.Errorf("touched paths %s: %w", commit.Short(), err)
	}
	paths = TouchedPaths(entries)
	if paths == nil {
		paths = []string{}
	}

	if err := e.cache.Save(ctx, key, paths); err != nil {
		e.logger.Warn("diff cache save failed",
			zap.String("commit", string(commit)), zap.String("against", string(against)), zap.Error(err))
	}
	return paths, nil
}

// PathTouched reports whether path differs between commitID's tree and
// comparisonTree. A directory counts as touched when anything beneath it
// changed.
func (e *Engine) PathTouched(ctx context.Context, path string, commitID, comparisonTree object.Hash) (bool, error) {
	paths, err := e.TouchedPaths(ctx, commitID, comparisonTree)
	if err != nil {
		return false, err
	}
	return ContainsPath(paths, path), nil
}

// Purge drops every cached set of the engine's project.
func (e *Engine) Purge(ctx context.Context) error {
	return e.cache.Purge(ctx, e.project)
}
