package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/object"
)

// MetaDirName is the name of the repository metadata directory.
const MetaDirName = ".notesync"

// Repo is an opened notesync repository. A Repo is not safe for concurrent
// mutation; callers serialize merges, checkouts and history walks per repo.
type Repo struct {
	RootDir string        // working directory root
	MetaDir string        // .notesync/ directory
	Store   *object.Store // content-addressed object store

	logger *zap.Logger

	graphOnce sync.Once
	graph     *commitGraph
}

func newRepo(root, meta string) *Repo {
	return &Repo{
		RootDir: root,
		MetaDir: meta,
		Store:   object.NewStore(meta),
		logger:  zap.NewNop(),
	}
}

// Init creates a new repository at path. It creates the .notesync/
// directory structure: HEAD, objects/, refs/heads/, refs/tags/ and
// logs/. Returns ErrAlreadyExists if a repository is already there.
func Init(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("init: abs path: %w", err)
	}
	meta := filepath.Join(abs, MetaDirName)
	if _, err := os.Stat(meta); err == nil {
		return nil, fmt.Errorf("init: %w: repository at %s", ErrAlreadyExists, meta)
	}

	dirs := []string{
		filepath.Join(meta, "objects"),
		filepath.Join(meta, "refs", "heads"),
		filepath.Join(meta, "refs", "tags"),
		filepath.Join(meta, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	if err := os.WriteFile(filepath.Join(meta, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}
	return newRepo(abs, meta), nil
}

// Open searches upward from path for a .notesync/ directory and opens the
// repository.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		meta := filepath.Join(cur, MetaDirName)
		info, err := os.Stat(meta)
		if err == nil && info.IsDir() {
			return newRepo(cur, meta), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: %w: not a notesync repository (or any parent up to /)", ErrNotFound)
		}
		cur = parent
	}
}

// SetLogger replaces the repository logger. A nil logger disables logging.
func (r *Repo) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	r.logger = l
}

// Logger returns the repository logger.
func (r *Repo) Logger() *zap.Logger {
	if r.logger == nil {
		return zap.NewNop()
	}
	return r.logger
}

// ReadCommit reads a commit through the repository's store.
func (r *Repo) ReadCommit(h object.Hash) (*object.CommitObj, error) {
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return nil, classifyObjectError(h, err)
	}
	return c, nil
}

// ReadTree reads a tree through the repository's store. The empty hash
// reads as the empty tree.
func (r *Repo) ReadTree(h object.Hash) (*object.TreeObj, error) {
	if h == "" {
		return &object.TreeObj{}, nil
	}
	t, err := r.Store.ReadTree(h)
	if err != nil {
		return nil, classifyObjectError(h, err)
	}
	return t, nil
}

func (r *Repo) getGraph() *commitGraph {
	r.graphOnce.Do(func() {
		r.graph = newCommitGraph(r.Store)
	})
	return r.graph
}
