package textmerge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeNonOverlappingEditsAreClean(t *testing.T) {
	base := []byte("a\nb\nc\n")
	ours := []byte("a\nB\nc\n")
	theirs := []byte("a\nb\nC\n")

	res := Merge(base, ours, theirs)
	require.False(t, res.HasConflicts)
	assert.Equal(t, "a\nB\nC\n", string(res.Merged))
}

func TestMergeIdenticalEditsAreClean(t *testing.T) {
	base := []byte("a\nb\nc\n")
	same := []byte("a\nZ\nc\n")

	res := Merge(base, same, same)
	require.False(t, res.HasConflicts)
	assert.Equal(t, "a\nZ\nc\n", string(res.Merged))
}

func TestMergeOverlappingEditsConflict(t *testing.T) {
	base := []byte("a\nb\nc\n")
	ours := []byte("a\nX\nc\n")
	theirs := []byte("a\nY\nc\n")

	res := MergeWithLabels(base, ours, theirs, Labels{Ours: "HEAD", Theirs: "phone"})
	require.True(t, res.HasConflicts)
	assert.Equal(t, "a\n<<<<<<< HEAD\nX\n=======\nY\n>>>>>>> phone\nc\n", string(res.Merged))
	assert.True(t, HasConflictMarkers(res.Merged))
	assert.Equal(t, "a\nX\nY\nc\n", string(res.Union()))

	var conflicts int
	for _, h := range res.Hunks {
		if h.Type == HunkConflict {
			conflicts++
			assert.Equal(t, "b\n", string(h.Base))
			assert.Equal(t, "X\n", string(h.Ours))
			assert.Equal(t, "Y\n", string(h.Theirs))
		}
	}
	assert.Equal(t, 1, conflicts)
}

func TestMergeAppendsOnBothSidesConflict(t *testing.T) {
	base := []byte("a\nb\nc\n")
	ours := []byte("a\nb\nc\nd\n")
	theirs := []byte("a\nb\nc\ne\n")

	res := Merge(base, ours, theirs)
	require.True(t, res.HasConflicts)
	assert.Equal(t, "a\nb\nc\n<<<<<<< ours\nd\n=======\ne\n>>>>>>> theirs\n", string(res.Merged))
}

func TestMergeOneSideOnly(t *testing.T) {
	base := []byte("title\n\nbody\n")
	theirs := []byte("title\n\nbody\nmore\n")

	res := Merge(base, base, theirs)
	require.False(t, res.HasConflicts)
	assert.Equal(t, string(theirs), string(res.Merged))
}

func TestMergeFromEmptyBase(t *testing.T) {
	res := Merge(nil, []byte("x\n"), []byte("x\n"))
	require.False(t, res.HasConflicts)
	assert.Equal(t, "x\n", string(res.Merged))

	res = Merge(nil, []byte("x\n"), []byte("y\n"))
	assert.True(t, res.HasConflicts)
}

func TestMergeKeepsMissingFinalNewline(t *testing.T) {
	res := Merge([]byte("a\nb\nc"), []byte("A\nb\nc"), []byte("a\nb\nC"))
	require.False(t, res.HasConflicts)
	assert.Equal(t, "A\nb\nC", string(res.Merged))

	res = Merge([]byte("a\nb"), []byte("a\nb"), []byte("a\nb\nc"))
	require.False(t, res.HasConflicts)
	assert.Equal(t, "a\nb\nc", string(res.Merged))

	res = Merge([]byte("a\nb\n"), []byte("a\nb"), []byte("a\nb\n"))
	require.False(t, res.HasConflicts)
	assert.Equal(t, "a\nb", string(res.Merged), "dropping the final newline is an edit")
}

func TestMergeConflictWithoutFinalNewline(t *testing.T) {
	res := Merge([]byte("a\nb"), []byte("a\nX"), []byte("a\nY"))
	require.True(t, res.HasConflicts)
	assert.Equal(t, "a\n<<<<<<< ours\nX\n=======\nY\n>>>>>>> theirs\n", string(res.Merged))
	assert.True(t, HasConflictMarkers(res.Merged))
	assert.Equal(t, "a\nX\nY", string(res.Union()))
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("plain text\n")))
	assert.True(t, IsBinary([]byte{'P', 'N', 'G', 0, 1}))
	assert.False(t, IsBinary(nil))
}

func TestLineDiff(t *testing.T) {
	lines := LineDiff([]byte("hello\nworld\n"), []byte("hello\ngo\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, DiffLine{Type: Equal, Content: "hello"}, lines[0])
	assert.Equal(t, DiffLine{Type: Delete, Content: "world"}, lines[1])
	assert.Equal(t, DiffLine{Type: Insert, Content: "go"}, lines[2])
}

func TestUnified(t *testing.T) {
	out, err := Unified("a/todo.md", "b/todo.md", []byte("a\nb\nc\n"), []byte("a\nB\nc\n"), 1)
	require.NoError(t, err)
	assert.Contains(t, out, "--- a/todo.md")
	assert.Contains(t, out, "+++ b/todo.md")
	assert.Contains(t, out, "\n-b\n")
	assert.Contains(t, out, "\n+B\n")

	out, err = Unified("a", "b", []byte("same\n"), []byte("same\n"), 3)
	require.NoError(t, err)
	assert.Empty(t, out)
}
