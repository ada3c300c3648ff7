// Package textmerge performs line-level three-way merges of note content.
package textmerge

import (
	"bytes"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean HunkType = iota
	HunkConflict
)

// Hunk is a contiguous section of the merge output.
type Hunk struct {
	Type                       HunkType
	Base, Ours, Theirs, Merged []byte
}

// Labels name the two sides in conflict markers.
type Labels struct {
	Ours   string
	Theirs string
}

// DefaultLabels are used when a label is left empty.
var DefaultLabels = Labels{Ours: "ours", Theirs: "theirs"}

// Result holds the outcome of a three-way merge.
type Result struct {
	// Merged is the full output, with conflict markers if HasConflicts.
	Merged       []byte
	HasConflicts bool
	Hunks        []Hunk
}

// Union renders the result keeping both sides of every conflicting hunk,
// ours first, without markers.
func (r Result) Union() []byte {
	var buf bytes.Buffer
	for _, h := range r.Hunks {
		if h.Type == HunkConflict {
			buf.Write(h.Ours)
			if len(h.Ours) > 0 && len(h.Theirs) > 0 && !bytes.HasSuffix(h.Ours, []byte("\n")) {
				buf.WriteByte('\n')
			}
			buf.Write(h.Theirs)
			continue
		}
		buf.Write(h.Merged)
	}
	return buf.Bytes()
}

// Merge performs a three-way merge of base, ours and theirs with the
// default marker labels.
func Merge(base, ours, theirs []byte) Result {
	return MergeWithLabels(base, ours, theirs, DefaultLabels)
}

// MergeWithLabels performs a three-way merge.
//
// Algorithm:
//  1. Split all three inputs into lines, each keeping its terminator so a
//     final line without a newline survives the merge.
//  2. Match base against each side and turn the opcodes into chunks that
//     cover base contiguously (one chunk per unchanged line, one per edit).
//  3. Sweep both chunk lists together. Overlapping chunks are grouped into
//     a region until neither side has a chunk starting inside it.
//  4. A region changed on one side only, or changed identically on both,
//     is clean. Anything else is a conflict.
func MergeWithLabels(base, ours, theirs []byte, labels Labels) Result {
	if labels.Ours == "" {
		labels.Ours = DefaultLabels.Ours
	}
	if labels.Theirs == "" {
		labels.Theirs = DefaultLabels.Theirs
	}
	baseLines := splitRawLines(string(base))
	oursChunks := buildChunks(baseLines, splitRawLines(string(ours)))
	theirsChunks := buildChunks(baseLines, splitRawLines(string(theirs)))
	return sweep(baseLines, oursChunks, theirsChunks, labels)
}

// IsBinary reports whether data looks like binary content. Binary blobs are
// never merged line by line.
func IsBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

// HasConflictMarkers reports whether data still contains an unresolved
// conflict block.
func HasConflictMarkers(data []byte) bool {
	return bytes.Contains(data, []byte("\n=======\n")) &&
		(bytes.HasPrefix(data, []byte("<<<<<<< ")) || bytes.Contains(data, []byte("\n<<<<<<< ")))
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitRawLines splits s after every newline. Only the last line can lack
// a terminator.
func splitRawLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

type chunk struct {
	baseStart, baseEnd int
	lines              []string
	changed            bool
}

func buildChunks(base, side []string) []chunk {
	m := difflib.NewMatcherWithJunk(base, side, false, nil)
	var chunks []chunk
	for _, op := range m.GetOpCodes() {
		if op.Tag == 'e' {
			for i := op.I1; i < op.I2; i++ {
				chunks = append(chunks, chunk{baseStart: i, baseEnd: i + 1, lines: []string{base[i]}})
			}
			continue
		}
		chunks = append(chunks, chunk{
			baseStart: op.I1,
			baseEnd:   op.I2,
			lines:     append([]string(nil), side[op.J1:op.J2]...),
			changed:   true,
		})
	}
	return chunks
}

func sweep(baseLines []string, ours, theirs []chunk, labels Labels) Result {
	var merged bytes.Buffer
	var hunks []Hunk
	conflicted := false

	oi, ti := 0, 0
	for oi < len(ours) || ti < len(theirs) {
		var oursRegion, theirsRegion []chunk
		start, end := -1, -1
		if oi < len(ours) {
			oursRegion = append(oursRegion, ours[oi])
			start, end = ours[oi].baseStart, ours[oi].baseEnd
			oi++
		}
		if ti < len(theirs) {
			theirsRegion = append(theirsRegion, theirs[ti])
			if start < 0 || theirs[ti].baseStart < start {
				start = theirs[ti].baseStart
			}
			if theirs[ti].baseEnd > end {
				end = theirs[ti].baseEnd
			}
			ti++
		}
		for grew := true; grew; {
			grew = false
			for oi < len(ours) && ours[oi].baseStart < end {
				oursRegion = append(oursRegion, ours[oi])
				end = max(end, ours[oi].baseEnd)
				oi++
				grew = true
			}
			for ti < len(theirs) && theirs[ti].baseStart < end {
				theirsRegion = append(theirsRegion, theirs[ti])
				end = max(end, theirs[ti].baseEnd)
				ti++
				grew = true
			}
		}

		baseRegion := baseLines[start:end]
		oursOut, oursChanged := assemble(oursRegion, baseRegion)
		theirsOut, theirsChanged := assemble(theirsRegion, baseRegion)

		h := Hunk{Type: HunkClean, Base: joinLines(baseRegion)}
		switch {
		case !oursChanged && !theirsChanged:
			h.Merged = joinLines(baseRegion)
		case oursChanged && !theirsChanged:
			h.Ours = joinLines(oursOut)
			h.Merged = h.Ours
		case !oursChanged && theirsChanged:
			h.Theirs = joinLines(theirsOut)
			h.Merged = h.Theirs
		case linesEqual(oursOut, theirsOut):
			h.Ours = joinLines(oursOut)
			h.Theirs = h.Ours
			h.Merged = h.Ours
		default:
			conflicted = true
			h.Type = HunkConflict
			h.Ours = joinLines(oursOut)
			h.Theirs = joinLines(theirsOut)
			writeConflict(&merged, oursOut, theirsOut, labels)
			hunks = append(hunks, h)
			continue
		}
		merged.Write(h.Merged)
		hunks = append(hunks, h)
	}

	return Result{Merged: merged.Bytes(), HasConflicts: conflicted, Hunks: hunks}
}

// assemble returns the side's lines over a region. An empty region list
// means the side kept the base text.
func assemble(region []chunk, base []string) ([]string, bool) {
	if len(region) == 0 {
		return base, false
	}
	var lines []string
	changed := false
	for _, c := range region {
		lines = append(lines, c.lines...)
		changed = changed || c.changed
	}
	return lines, changed
}

func writeConflict(buf *bytes.Buffer, oursLines, theirsLines []string, labels Labels) {
	buf.WriteString("<<<<<<< " + labels.Ours + "\n")
	writeTerminated(buf, oursLines)
	buf.WriteString("=======\n")
	writeTerminated(buf, theirsLines)
	buf.WriteString(">>>>>>> " + labels.Theirs + "\n")
}

// writeTerminated writes raw lines, ending an unterminated last line so the
// marker that follows starts on its own line.
func writeTerminated(buf *bytes.Buffer, lines []string) {
	for _, l := range lines {
		buf.WriteString(l)
	}
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		buf.WriteByte('\n')
	}
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, ""))
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
