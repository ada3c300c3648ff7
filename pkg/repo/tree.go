package repo

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/notesync/pkg/object"
)

// TreeFileEntry is a single file in a flattened tree.
type TreeFileEntry struct {
	Path     string
	BlobHash object.Hash
	Mode     string
}

type treeNode struct {
	files map[string]*IndexEntry
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{files: map[string]*IndexEntry{}, dirs: map[string]*treeNode{}}
}

// WriteTreeFromIndex writes the hierarchy of tree objects described by idx
// and returns the root tree hash. An index with unresolved conflicts is
// ErrUnmergedIndex.
func (r *Repo) WriteTreeFromIndex(idx *Index) (object.Hash, error) {
	if idx.HasConflicts() {
		return "", fmt.Errorf("write tree: %w", ErrUnmergedIndex)
	}
	root := newTreeNode()
	for p, e := range idx.Entries {
		parts := strings.Split(p, "/")
		node := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := node.dirs[dir]
			if !ok {
				child = newTreeNode()
				node.dirs[dir] = child
			}
			node = child
		}
		node.files[parts[len(parts)-1]] = e
	}
	return r.writeTreeNode(root, "")
}

func (r *Repo) writeTreeNode(node *treeNode, prefix string) (object.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(node.files)+len(node.dirs))
	for name, e := range node.files {
		if _, clash := node.dirs[name]; clash {
			return "", fmt.Errorf("write tree: %w", invalidSpec(path.Join(prefix, name), "path is both a file and a directory"))
		}
		entries = append(entries, object.TreeEntry{
			Name:     name,
			Mode:     normalizeFileMode(e.Mode),
			BlobHash: e.BlobHash,
		})
	}
	for name, child := range node.dirs {
		sub, err := r.writeTreeNode(child, path.Join(prefix, name))
		if err != nil {
			return "", err
		}
		entries = append(entries, object.TreeEntry{
			Name:        name,
			IsDir:       true,
			Mode:        object.TreeModeDir,
			SubtreeHash: sub,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	h, err := r.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, classifyObjectError("", err))
	}
	return h, nil
}

// FlattenTree returns every file below tree h with its full slash-separated
// path. The empty hash is the empty tree.
func (r *Repo) FlattenTree(h object.Hash) ([]TreeFileEntry, error) {
	var out []TreeFileEntry
	if err := r.flattenTreeRec(h, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) flattenTreeRec(h object.Hash, prefix string, out *[]TreeFileEntry) error {
	t, err := r.ReadTree(h)
	if err != nil {
		return fmt.Errorf("flatten tree: %w", err)
	}
	for _, e := range t.Entries {
		full := path.Join(prefix, e.Name)
		if e.IsDir {
			if err := r.flattenTreeRec(e.SubtreeHash, full, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, TreeFileEntry{Path: full, BlobHash: e.BlobHash, Mode: normalizeFileMode(e.Mode)})
	}
	return nil
}

// IndexFromTree builds an index whose entries mirror tree h.
func (r *Repo) IndexFromTree(h object.Hash) (*Index, error) {
	files, err := r.FlattenTree(h)
	if err != nil {
		return nil, err
	}
	idx := NewIndex()
	for _, f := range files {
		idx.Set(f.Path, f.BlobHash, f.Mode)
	}
	return idx, nil
}

// EntryAtPath looks up relPath inside tree h. Directories are returned as
// well as files; a missing path reports false.
func (r *Repo) EntryAtPath(h object.Hash, relPath string) (object.TreeEntry, bool, error) {
	relPath = strings.Trim(relPath, "/")
	if relPath == "" {
		return object.TreeEntry{Name: "", IsDir: true, Mode: object.TreeModeDir, SubtreeHash: h}, h != "", nil
	}
	parts := strings.Split(relPath, "/")
	current := h
	for i, part := range parts {
		t, err := r.ReadTree(current)
		if err != nil {
			return object.TreeEntry{}, false, fmt.Errorf("entry at %q: %w", relPath, err)
		}
		idx := sort.Search(len(t.Entries), func(k int) bool { return t.Entries[k].Name >= part })
		if idx == len(t.Entries) || t.Entries[idx].Name != part {
			return object.TreeEntry{}, false, nil
		}
		entry := t.Entries[idx]
		if i == len(parts)-1 {
			return entry, true, nil
		}
		if !entry.IsDir {
			return object.TreeEntry{}, false, nil
		}
		current = entry.SubtreeHash
	}
	return object.TreeEntry{}, false, nil
}

// PathExists reports whether relPath names a file or directory in tree h.
func (r *Repo) PathExists(h object.Hash, relPath string) (bool, error) {
	_, ok, err := r.EntryAtPath(h, relPath)
	return ok, err
}

func indexByPath(entries []TreeFileEntry) map[string]TreeFileEntry {
	m := make(map[string]TreeFileEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

// treeModeOf maps working-tree permission bits to a tree mode. Only the
// executable bit is tracked.
func treeModeOf(info os.FileInfo) string {
	if info.Mode().Perm()&0o111 != 0 {
		return object.TreeModeExecutable
	}
	return object.TreeModeFile
}

func normalizeFileMode(mode string) string {
	if mode == object.TreeModeExecutable {
		return mode
	}
	return object.TreeModeFile
}

func permForMode(mode string) os.FileMode {
	if mode == object.TreeModeExecutable {
		return 0o755
	}
	return 0o644
}
