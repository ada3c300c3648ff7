package treediff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/odvcencio/notesync/pkg/object"
)

// Kind classifies what happened to a path between two trees.
type Kind int

const (
	Unmodified  Kind = iota // path is identical on both sides
	Added                   // path exists only in the new tree
	Deleted                 // path exists only in the old tree
	Modified                // content or mode changed
	Renamed                 // content moved to a new path
	Copied                  // content duplicated to a new path
	Ignored                 // matched by an ignore rule
	Untracked               // present in the working tree only
	TypeChanged             // flipped between file and directory
	Unreadable              // could not be read
	Conflicted              // unresolved merge conflict
)

var kindNames = [...]string{
	Unmodified:  "unmodified",
	Added:       "added",
	Deleted:     "deleted",
	Modified:    "modified",
	Renamed:     "renamed",
	Copied:      "copied",
	Ignored:     "ignored",
	Untracked:   "untracked",
	TypeChanged: "typechanged",
	Unreadable:  "unreadable",
	Conflicted:  "conflicted",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Letter is the single-character status code used in short listings.
func (k Kind) Letter() string {
	switch k {
	case Added:
		return "A"
	case Deleted:
		return "D"
	case Modified:
		return "M"
	case Renamed:
		return "R"
	case Copied:
		return "C"
	case Ignored:
		return "!"
	case Untracked:
		return "?"
	case TypeChanged:
		return "T"
	case Unreadable:
		return "X"
	case Conflicted:
		return "U"
	}
	return " "
}

// Entry is one changed path. Added entries have only NewPath, Deleted
// entries only OldPath; every other kind carries both.
type Entry struct {
	OldPath string
	NewPath string
	Kind    Kind
	OldHash object.Hash
	NewHash object.Hash
	OldMode string
	NewMode string
}

// Path returns the path the entry is known by after the change.
func (e Entry) Path() string {
	if e.NewPath != "" {
		return e.NewPath
	}
	return e.OldPath
}

// TreeReader reads tree objects. The empty hash must read as an empty tree.
type TreeReader interface {
	ReadTree(h object.Hash) (*object.TreeObj, error)
}

// Options tune DiffTrees.
type Options struct {
	// DetectRenames pairs a deleted and an added path with identical content
	// and mode into one Renamed entry.
	DetectRenames bool
	// DetectCopies reports an added path whose content exists unchanged in
	// the old tree as Copied.
	DetectCopies bool
	// IncludeUnmodified lists unchanged files too.
	IncludeUnmodified bool
}

// DiffTrees compares the trees a and b and returns the changed paths sorted
// by path. Subtrees with identical hashes are skipped without being read.
func DiffTrees(reader TreeReader, a, b object.Hash, opts Options) ([]Entry, error) {
	var out []Entry
	if a != b || opts.IncludeUnmodified {
		if err := diffTree(reader, a, b, "", opts, &out); err != nil {
			return nil, err
		}
	}
	if opts.DetectRenames {
		out = pairRenames(out)
	}
	if opts.DetectCopies {
		var err error
		out, err = markCopies(reader, a, out)
		if err != nil {
			return nil, err
		}
	}
	sortEntries(out)
	return out, nil
}

func diffTree(reader TreeReader, a, b object.Hash, prefix string, opts Options, out *[]Entry) error {
	if a == b && !opts.IncludeUnmodified {
		return nil
	}
	left, err := readTree(reader, a)
	if err != nil {
		return err
	}
	right, err := readTree(reader, b)
	if err != nil {
		return err
	}

	i, j := 0, 0
	for i < len(left) || j < len(right) {
		switch {
		case j >= len(right) || (i < len(left) && left[i].Name < right[j].Name):
			if err := emitSide(reader, left[i], prefix, Deleted, out); err != nil {
				return err
			}
			i++
		case i >= len(left) || left[i].Name > right[j].Name:
			if err := emitSide(reader, right[j], prefix, Added, out); err != nil {
				return err
			}
			j++
		default:
			if err := diffEntry(reader, left[i], right[j], prefix, opts, out); err != nil {
				return err
			}
			i++
			j++
		}
	}
	return nil
}

func diffEntry(reader TreeReader, l, r object.TreeEntry, prefix string, opts Options, out *[]Entry) error {
	path := joinPath(prefix, l.Name)
	switch {
	case l.IsDir && r.IsDir:
		return diffTree(reader, l.SubtreeHash, r.SubtreeHash, path, opts, out)
	case l.IsDir != r.IsDir:
		*out = append(*out, Entry{
			OldPath: path, NewPath: path, Kind: TypeChanged,
			OldHash: l.Target(), NewHash: r.Target(),
			OldMode: entryMode(l), NewMode: entryMode(r),
		})
		// The files beneath the directory side appear or vanish with it.
		if l.IsDir {
			return emitSubtree(reader, l.SubtreeHash, path, Deleted, out)
		}
		return emitSubtree(reader, r.SubtreeHash, path, Added, out)
	case l.BlobHash != r.BlobHash || entryMode(l) != entryMode(r):
		*out = append(*out, Entry{
			OldPath: path, NewPath: path, Kind: Modified,
			OldHash: l.BlobHash, NewHash: r.BlobHash,
			OldMode: entryMode(l), NewMode: entryMode(r),
		})
	case opts.IncludeUnmodified:
		*out = append(*out, Entry{
			OldPath: path, NewPath: path, Kind: Unmodified,
			OldHash: l.BlobHash, NewHash: r.BlobHash,
			OldMode: entryMode(l), NewMode: entryMode(r),
		})
	}
	return nil
}

func emitSide(reader TreeReader, e object.TreeEntry, prefix string, kind Kind, out *[]Entry) error {
	path := joinPath(prefix, e.Name)
	if e.IsDir {
		return emitSubtree(reader, e.SubtreeHash, path, kind, out)
	}
	*out = append(*out, sideEntry(path, e.BlobHash, entryMode(e), kind))
	return nil
}

func emitSubtree(reader TreeReader, h object.Hash, prefix string, kind Kind, out *[]Entry) error {
	entries, err := readTree(reader, h)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := emitSide(reader, e, prefix, kind, out); err != nil {
			return err
		}
	}
	return nil
}

func sideEntry(path string, h object.Hash, mode string, kind Kind) Entry {
	if kind == Deleted {
		return Entry{OldPath: path, Kind: Deleted, OldHash: h, OldMode: mode}
	}
	return Entry{NewPath: path, Kind: kind, NewHash: h, NewMode: mode}
}

func readTree(reader TreeReader, h object.Hash) ([]object.TreeEntry, error) {
	if h == "" {
		return nil, nil
	}
	t, err := reader.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", h.Short(), err)
	}
	entries := append([]object.TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func entryMode(e object.TreeEntry) string {
	if e.IsDir {
		return object.TreeModeDir
	}
	if e.Mode == "" {
		return object.TreeModeFile
	}
	return e.Mode
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

type contentKey struct {
	hash object.Hash
	mode string
}

// pairRenames folds Deleted/Added pairs with the same blob and mode into
// Renamed entries. Candidates are matched in path order.
func pairRenames(entries []Entry) []Entry {
	deleted := map[contentKey][]int{}
	for i, e := range entries {
		if e.Kind == Deleted {
			k := contentKey{e.OldHash, e.OldMode}
			deleted[k] = append(deleted[k], i)
		}
	}
	if len(deleted) == 0 {
		return entries
	}
	for k := range deleted {
		sort.Slice(deleted[k], func(a, b int) bool {
			return entries[deleted[k][a]].OldPath < entries[deleted[k][b]].OldPath
		})
	}

	consumed := map[int]bool{}
	added := lo.Filter(lo.Range(len(entries)), func(i int, _ int) bool { return entries[i].Kind == Added })
	sort.Slice(added, func(a, b int) bool { return entries[added[a]].NewPath < entries[added[b]].NewPath })
	for _, ai := range added {
		k := contentKey{entries[ai].NewHash, entries[ai].NewMode}
		cands := deleted[k]
		if len(cands) == 0 {
			continue
		}
		di := cands[0]
		deleted[k] = cands[1:]
		consumed[di] = true
		entries[ai] = Entry{
			OldPath: entries[di].OldPath, NewPath: entries[ai].NewPath, Kind: Renamed,
			OldHash: entries[di].OldHash, NewHash: entries[ai].NewHash,
			OldMode: entries[di].OldMode, NewMode: entries[ai].NewMode,
		}
	}
	return lo.Reject(entries, func(_ Entry, i int) bool { return consumed[i] })
}

// markCopies turns Added entries whose blob exists in the old tree into
// Copied entries sourced from the first such path.
func markCopies(reader TreeReader, old object.Hash, entries []Entry) ([]Entry, error) {
	if !lo.ContainsBy(entries, func(e Entry) bool { return e.Kind == Added }) {
		return entries, nil
	}
	var files []Entry
	if err := emitSubtree(reader, old, "", Deleted, &files); err != nil {
		return nil, err
	}
	sources := map[contentKey]string{}
	for _, f := range files {
		k := contentKey{f.OldHash, f.OldMode}
		if _, ok := sources[k]; !ok {
			sources[k] = f.OldPath
		}
	}
	for i, e := range entries {
		if e.Kind != Added {
			continue
		}
		if src, ok := sources[contentKey{e.NewHash, e.NewMode}]; ok {
			entries[i].Kind = Copied
			entries[i].OldPath = src
			entries[i].OldHash = e.NewHash
			entries[i].OldMode = e.NewMode
		}
	}
	return entries, nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Path(), entries[j].Path()
		if pi != pj {
			return pi < pj
		}
		return entries[i].Kind < entries[j].Kind
	})
}

// TouchedPaths returns every path named by entries, old and new, sorted and
// de-duplicated. Unmodified entries are skipped, as is the source of a copy.
func TouchedPaths(entries []Entry) []string {
	var paths []string
	for _, e := range entries {
		if e.Kind == Unmodified {
			continue
		}
		if e.OldPath != "" && e.Kind != Copied {
			paths = append(paths, e.OldPath)
		}
		if e.NewPath != "" {
			paths = append(paths, e.NewPath)
		}
	}
	paths = lo.Uniq(paths)
	sort.Strings(paths)
	return paths
}

// ContainsPath reports whether path is in the sorted set touched, either
// exactly or as an ancestor directory of a member.
func ContainsPath(touched []string, path string) bool {
	path = strings.Trim(path, "/")
	if path == "" {
		return len(touched) > 0
	}
	i := sort.SearchStrings(touched, path)
	if i < len(touched) && touched[i] == path {
		return true
	}
	// "dir/" sorts before every "dir/..." member.
	dir := path + "/"
	j := sort.SearchStrings(touched, dir)
	return j < len(touched) && strings.HasPrefix(touched[j], dir)
}
