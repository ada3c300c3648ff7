package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/notesync/pkg/object"
)

// IndexSide is one stage of a conflicted path: the version in the merge
// base, in ours or in theirs.
type IndexSide struct {
	BlobHash object.Hash `json:"blob_hash"`
	Mode     string      `json:"mode,omitempty"`
}

// IndexEntry records the staged state of a single path. A conflicted entry
// keeps the three sides; its BlobHash holds the working-copy rendition with
// conflict markers.
type IndexEntry struct {
	Path     string      `json:"path"`
	BlobHash object.Hash `json:"blob_hash"`
	Mode     string      `json:"mode,omitempty"`
	ModTime  int64       `json:"mod_time,omitempty"`
	Size     int64       `json:"size,omitempty"`

	Conflict bool       `json:"conflict,omitempty"`
	Base     *IndexSide `json:"base,omitempty"`
	Ours     *IndexSide `json:"ours,omitempty"`
	Theirs   *IndexSide `json:"theirs,omitempty"`
}

// Index is the staging area: the tree the next commit will record.
type Index struct {
	Entries map[string]*IndexEntry `json:"entries"`
}

// Conflict describes one unresolved path. A nil side means the path does
// not exist on that side.
type Conflict struct {
	Path   string
	Base   *IndexSide
	Ours   *IndexSide
	Theirs *IndexSide
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Entries: make(map[string]*IndexEntry)}
}

// Set stages blob at path with mode, clearing any conflict on it.
func (idx *Index) Set(path string, blob object.Hash, mode string) {
	idx.Entries[path] = &IndexEntry{Path: path, BlobHash: blob, Mode: normalizeFileMode(mode)}
}

// Remove drops path from the index.
func (idx *Index) Remove(path string) {
	delete(idx.Entries, path)
}

// Paths returns the staged paths in sorted order.
func (idx *Index) Paths() []string {
	paths := make([]string, 0, len(idx.Entries))
	for p := range idx.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Conflicts lists unresolved paths sorted by path.
func (idx *Index) Conflicts() []Conflict {
	var out []Conflict
	for _, p := range idx.Paths() {
		e := idx.Entries[p]
		if !e.Conflict {
			continue
		}
		out = append(out, Conflict{Path: p, Base: e.Base, Ours: e.Ours, Theirs: e.Theirs})
	}
	return out
}

// HasConflicts reports whether any entry is unresolved.
func (idx *Index) HasConflicts() bool {
	for _, e := range idx.Entries {
		if e.Conflict {
			return true
		}
	}
	return false
}

// Resolve replaces the conflicted entry at path with side. A nil side
// removes the path.
func (idx *Index) Resolve(path string, side *IndexSide) {
	if side == nil {
		idx.Remove(path)
		return
	}
	idx.Set(path, side.BlobHash, side.Mode)
}

func (r *Repo) indexPath() string {
	return filepath.Join(r.MetaDir, "index")
}

// ReadIndex loads .notesync/index. A missing file is an empty index.
func (r *Repo) ReadIndex() (*Index, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewIndex(), nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("read index: unmarshal: %w", err)
	}
	if idx.Entries == nil {
		idx.Entries = make(map[string]*IndexEntry)
	}
	return &idx, nil
}

// WriteIndex atomically writes .notesync/index.
func (r *Repo) WriteIndex(idx *Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("write index: marshal: %w", err)
	}
	if err := r.writeMetaFile("index", data); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Add stages the given files or directories. Directories are walked;
// ignored paths are skipped. A tracked path that no longer exists on disk is
// removed from the index. Staging a conflicted path marks it resolved.
func (r *Repo) Add(paths []string) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	ic, err := NewIgnoreChecker(r.RootDir)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return fmt.Errorf("add: resolve path %q: %w", p, err)
		}
		abs := filepath.Join(r.RootDir, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if errors.Is(err, fs.ErrNotExist) {
			removed := r.unstageMissing(idx, rel)
			if !removed {
				return fmt.Errorf("add: %w", notFound(rel))
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", rel, err)
		}

		if !info.IsDir() {
			if ic.IsIgnored(rel) {
				continue
			}
			if err := r.stageFile(idx, rel, info); err != nil {
				return fmt.Errorf("add: %w", err)
			}
			continue
		}

		r.unstageMissing(idx, rel)
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			sub, err := filepath.Rel(r.RootDir, path)
			if err != nil {
				return err
			}
			sub = filepath.ToSlash(sub)
			if sub == "." {
				return nil
			}
			if ic.IsIgnored(sub) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return r.stageFile(idx, sub, fi)
		})
		if err != nil {
			return fmt.Errorf("add: walk %q: %w", rel, err)
		}
	}

	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

func (r *Repo) stageFile(idx *Index, rel string, info os.FileInfo) error {
	content, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("read %q: %w", rel, err)
	}
	blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
	if err != nil {
		return fmt.Errorf("write blob %q: %w", rel, err)
	}
	idx.Entries[rel] = &IndexEntry{
		Path:     rel,
		BlobHash: blobHash,
		Mode:     treeModeOf(info),
		ModTime:  info.ModTime().UnixNano(),
		Size:     info.Size(),
	}
	return nil
}

// unstageMissing drops index entries at or below rel whose files are gone.
func (r *Repo) unstageMissing(idx *Index, rel string) bool {
	removed := false
	for p := range idx.Entries {
		if p != rel && (rel != "." && !strings.HasPrefix(p, rel+"/")) {
			continue
		}
		if _, err := os.Lstat(filepath.Join(r.RootDir, filepath.FromSlash(p))); errors.Is(err, fs.ErrNotExist) {
			delete(idx.Entries, p)
			removed = true
		}
	}
	return removed
}

// repoRelPath converts a path (absolute, or relative to the working
// directory) into a slash-separated path relative to the repository root.
// A relative path outside the repository is taken as already repo-relative.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", invalidSpec(p, "path is outside the repository")
		}
		return filepath.ToSlash(rel), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	rel, err := filepath.Rel(r.RootDir, filepath.Join(cwd, p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	return filepath.ToSlash(rel), nil
}
