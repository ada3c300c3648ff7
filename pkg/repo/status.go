package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/odvcencio/notesync/pkg/object"
	"github.com/odvcencio/notesync/pkg/treediff"
)

// StatusEntry records the status of a single path. Staged compares the
// index against HEAD, Worktree compares the working tree against the index.
type StatusEntry struct {
	Path        string
	RenamedFrom string // set when Staged is treediff.Renamed
	Staged      treediff.Kind
	Worktree    treediff.Kind
}

const racyCleanWindow = 2 * time.Second

// Status compares HEAD, the index and the working tree. Paths that are
// unmodified everywhere are omitted; the result is sorted by path.
func (r *Repo) Status() ([]StatusEntry, error) {
	idx, err := r.currentIndex()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	headTree, err := r.headTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	headFiles, err := r.FlattenTree(headTree)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	head := indexByPath(headFiles)

	work, err := r.worktreeFiles()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	result := make(map[string]*StatusEntry)
	get := func(p string) *StatusEntry {
		if e, ok := result[p]; ok {
			return e
		}
		e := &StatusEntry{Path: p}
		result[p] = e
		return e
	}

	refresh := false
	for p, info := range work {
		ie, tracked := idx.Entries[p]
		switch {
		case !tracked:
			e := get(p)
			e.Staged, e.Worktree = treediff.Untracked, treediff.Untracked
		case ie.Conflict:
			get(p).Worktree = treediff.Conflicted
		default:
			changed, touched, err := r.worktreeDiffers(ie, info)
			if err != nil {
				return nil, fmt.Errorf("status: %w", err)
			}
			refresh = refresh || touched
			if changed {
				get(p).Worktree = treediff.Modified
			}
		}
	}
	for p, ie := range idx.Entries {
		if _, ok := work[p]; ok {
			continue
		}
		if ie.Conflict {
			get(p).Worktree = treediff.Conflicted
		} else {
			get(p).Worktree = treediff.Deleted
		}
	}

	var added, removed []string
	for p, ie := range idx.Entries {
		h, inHead := head[p]
		switch {
		case ie.Conflict:
			get(p).Staged = treediff.Conflicted
		case !inHead:
			added = append(added, p)
		case h.BlobHash != ie.BlobHash || h.Mode != normalizeFileMode(ie.Mode):
			get(p).Staged = treediff.Modified
		}
	}
	for p := range head {
		if _, ok := idx.Entries[p]; !ok {
			removed = append(removed, p)
		}
	}
	renamedFrom := pairStagedRenames(idx, head, added, removed)
	renamedOld := make(map[string]bool, len(renamedFrom))
	for newPath, oldPath := range renamedFrom {
		e := get(newPath)
		e.Staged, e.RenamedFrom = treediff.Renamed, oldPath
		renamedOld[oldPath] = true
	}
	for _, p := range added {
		if _, ok := renamedFrom[p]; !ok {
			get(p).Staged = treediff.Added
		}
	}
	for _, p := range removed {
		if !renamedOld[p] {
			get(p).Staged = treediff.Deleted
		}
	}

	if refresh {
		if err := r.WriteIndex(idx); err != nil {
			return nil, fmt.Errorf("status: refresh index: %w", err)
		}
	}

	entries := make([]StatusEntry, 0, len(result))
	for _, e := range result {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// currentIndex is the index file, or the HEAD tree as an index when no
// index has been written yet.
func (r *Repo) currentIndex() (*Index, error) {
	if _, err := os.Stat(r.indexPath()); err == nil {
		return r.ReadIndex()
	}
	headTree, err := r.headTree()
	if err != nil {
		return nil, err
	}
	return r.IndexFromTree(headTree)
}

// worktreeFiles lists regular files in the working tree that are not
// ignored, keyed by repo-relative path.
func (r *Repo) worktreeFiles() (map[string]os.FileInfo, error) {
	ic, err := NewIgnoreChecker(r.RootDir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]os.FileInfo)
	err = filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.IsIgnored(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files[rel] = info
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk working tree: %w", err)
	}
	return files, nil
}

// worktreeDiffers reports whether the file on disk differs from its index
// entry. Matching size and mtime skip the read unless the mtime is too
// recent to trust. touched is true when the entry's stat data was refreshed.
func (r *Repo) worktreeDiffers(ie *IndexEntry, info os.FileInfo) (changed, touched bool, err error) {
	mode := treeModeOf(info)
	if mode != normalizeFileMode(ie.Mode) {
		return true, false, nil
	}
	if statMatches(ie, info) {
		return false, false, nil
	}
	data, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(ie.Path)))
	if err != nil {
		return false, false, fmt.Errorf("read %q: %w", ie.Path, err)
	}
	if object.HashObject(object.TypeBlob, data) != ie.BlobHash {
		return true, false, nil
	}
	if ie.ModTime != info.ModTime().UnixNano() || ie.Size != info.Size() {
		ie.ModTime = info.ModTime().UnixNano()
		ie.Size = info.Size()
		return false, true, nil
	}
	return false, false, nil
}

func statMatches(ie *IndexEntry, info os.FileInfo) bool {
	if ie.ModTime == 0 || ie.Size != info.Size() {
		return false
	}
	mt := info.ModTime()
	if time.Since(mt) < racyCleanWindow || mt.Nanosecond() == 0 {
		return false
	}
	return ie.ModTime == mt.UnixNano()
}

// pairStagedRenames matches added and removed paths with identical content
// and mode, in path order. It returns new path -> old path.
func pairStagedRenames(idx *Index, head map[string]TreeFileEntry, added, removed []string) map[string]string {
	sort.Strings(added)
	sort.Strings(removed)
	byKey := make(map[IndexSide][]string)
	for _, p := range removed {
		k := IndexSide{BlobHash: head[p].BlobHash, Mode: head[p].Mode}
		byKey[k] = append(byKey[k], p)
	}
	pairs := make(map[string]string)
	for _, p := range added {
		ie := idx.Entries[p]
		k := IndexSide{BlobHash: ie.BlobHash, Mode: normalizeFileMode(ie.Mode)}
		if cands := byKey[k]; len(cands) > 0 {
			pairs[p] = cands[0]
			byKey[k] = cands[1:]
		}
	}
	return pairs
}

// IsClean reports whether Status has nothing to show besides untracked
// files.
func IsClean(entries []StatusEntry) bool {
	for _, e := range entries {
		if e.Staged != treediff.Untracked && (e.Staged != treediff.Unmodified || e.Worktree != treediff.Unmodified) {
			return false
		}
	}
	return true
}
