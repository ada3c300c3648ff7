package repo

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/odvcencio/notesync/pkg/object"
	"github.com/odvcencio/notesync/pkg/textmerge"
)

// MergeTreesOptions configures MergeTrees.
type MergeTreesOptions struct {
	Labels   textmerge.Labels
	Progress ProgressFunc
}

// MergeTrees three-way merges ours and theirs against base (any may be "",
// the empty tree) into a new index. Paths changed on one side only take that
// side. Paths changed on both sides are merged line by line; what cannot be
// merged becomes a conflicted entry whose blob carries conflict markers.
// Deleting a path on one side while modifying it on the other is always a
// conflict.
func (r *Repo) MergeTrees(ours, theirs, base object.Hash, opts MergeTreesOptions) (*Index, error) {
	sides := make([]map[string]TreeFileEntry, 3)
	for i, h := range []object.Hash{base, ours, theirs} {
		files, err := r.FlattenTree(h)
		if err != nil {
			return nil, fmt.Errorf("merge trees: %w", err)
		}
		sides[i] = indexByPath(files)
	}
	baseMap, oursMap, theirsMap := sides[0], sides[1], sides[2]

	all := make(map[string]struct{}, len(oursMap)+len(theirsMap))
	for _, m := range sides {
		for p := range m {
			all[p] = struct{}{}
		}
	}
	paths := make([]string, 0, len(all))
	for p := range all {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	idx := NewIndex()
	for i, p := range paths {
		b, o, t := sideOf(baseMap, p), sideOf(oursMap, p), sideOf(theirsMap, p)
		if err := r.mergePath(idx, p, b, o, t, opts.Labels); err != nil {
			return nil, fmt.Errorf("merge trees: %q: %w", p, err)
		}
		opts.Progress.report(PhaseMerge, i+1, len(paths))
	}
	return idx, nil
}

func sideOf(m map[string]TreeFileEntry, path string) *IndexSide {
	e, ok := m[path]
	if !ok {
		return nil
	}
	return &IndexSide{BlobHash: e.BlobHash, Mode: e.Mode}
}

func sameSide(a, b *IndexSide) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.BlobHash == b.BlobHash && a.Mode == b.Mode
}

func (r *Repo) mergePath(idx *Index, path string, base, ours, theirs *IndexSide, labels textmerge.Labels) error {
	switch {
	case sameSide(ours, theirs):
		idx.Resolve(path, ours)
		return nil
	case sameSide(ours, base):
		idx.Resolve(path, theirs)
		return nil
	case sameSide(theirs, base):
		idx.Resolve(path, ours)
		return nil
	}

	if ours == nil || theirs == nil {
		return r.stageConflict(idx, path, base, ours, theirs, labels)
	}

	// Same content, different modes: keep content, take the side that
	// changed the mode.
	mode := ours.Mode
	if base != nil && ours.Mode == base.Mode {
		mode = theirs.Mode
	}
	if ours.BlobHash == theirs.BlobHash {
		idx.Set(path, ours.BlobHash, mode)
		return nil
	}

	var baseData []byte
	if base != nil {
		data, err := r.readBlobData(base.BlobHash)
		if err != nil {
			return err
		}
		baseData = data
	}
	oursData, err := r.readBlobData(ours.BlobHash)
	if err != nil {
		return err
	}
	theirsData, err := r.readBlobData(theirs.BlobHash)
	if err != nil {
		return err
	}
	if textmerge.IsBinary(oursData) || textmerge.IsBinary(theirsData) || textmerge.IsBinary(baseData) {
		return r.stageConflict(idx, path, base, ours, theirs, labels)
	}

	res := textmerge.MergeWithLabels(baseData, oursData, theirsData, labels)
	blob, err := r.Store.WriteBlob(&object.Blob{Data: res.Merged})
	if err != nil {
		return classifyObjectError("", err)
	}
	if !res.HasConflicts {
		idx.Set(path, blob, mode)
		return nil
	}
	idx.Entries[path] = &IndexEntry{
		Path:     path,
		BlobHash: blob,
		Mode:     normalizeFileMode(mode),
		Conflict: true,
		Base:     base,
		Ours:     ours,
		Theirs:   theirs,
	}
	return nil
}

// stageConflict records a conflict that has no line-level merge: a
// delete/modify pair or binary content. Text gets a whole-file marker
// block; binary keeps the ours version (theirs when ours is deleted).
func (r *Repo) stageConflict(idx *Index, path string, base, ours, theirs *IndexSide, labels textmerge.Labels) error {
	present := ours
	if present == nil {
		present = theirs
	}
	var oursData, theirsData []byte
	var err error
	if ours != nil {
		if oursData, err = r.readBlobData(ours.BlobHash); err != nil {
			return err
		}
	}
	if theirs != nil {
		if theirsData, err = r.readBlobData(theirs.BlobHash); err != nil {
			return err
		}
	}

	blob := present.BlobHash
	if !textmerge.IsBinary(oursData) && !textmerge.IsBinary(theirsData) {
		rendered := renderFileConflict(oursData, theirsData, labels)
		if blob, err = r.Store.WriteBlob(&object.Blob{Data: rendered}); err != nil {
			return classifyObjectError("", err)
		}
	}
	idx.Entries[path] = &IndexEntry{
		Path:     path,
		BlobHash: blob,
		Mode:     normalizeFileMode(present.Mode),
		Conflict: true,
		Base:     base,
		Ours:     ours,
		Theirs:   theirs,
	}
	return nil
}

func renderFileConflict(ours, theirs []byte, labels textmerge.Labels) []byte {
	if labels.Ours == "" {
		labels.Ours = textmerge.DefaultLabels.Ours
	}
	if labels.Theirs == "" {
		labels.Theirs = textmerge.DefaultLabels.Theirs
	}
	var buf bytes.Buffer
	buf.WriteString("<<<<<<< " + labels.Ours + "\n")
	buf.Write(ours)
	if len(ours) > 0 && ours[len(ours)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString("=======\n")
	buf.Write(theirs)
	if len(theirs) > 0 && theirs[len(theirs)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(">>>>>>> " + labels.Theirs + "\n")
	return buf.Bytes()
}

func (r *Repo) readBlobData(h object.Hash) ([]byte, error) {
	blob, err := r.Store.ReadBlob(h)
	if err != nil {
		return nil, classifyObjectError(h, err)
	}
	return blob.Data, nil
}
