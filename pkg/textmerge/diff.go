package textmerge

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffType classifies a line in an edit script.
type DiffType int

const (
	Equal DiffType = iota
	Insert
	Delete
)

// DiffLine is a single line in the output of LineDiff.
type DiffLine struct {
	Type    DiffType
	Content string
}

// LineDiff computes a line-level edit script from a to b.
func LineDiff(a, b []byte) []DiffLine {
	aLines := splitLines(string(a))
	bLines := splitLines(string(b))
	m := difflib.NewMatcherWithJunk(aLines, bLines, false, nil)

	var out []DiffLine
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			for _, l := range aLines[op.I1:op.I2] {
				out = append(out, DiffLine{Type: Equal, Content: l})
			}
		default:
			for _, l := range aLines[op.I1:op.I2] {
				out = append(out, DiffLine{Type: Delete, Content: l})
			}
			for _, l := range bLines[op.J1:op.J2] {
				out = append(out, DiffLine{Type: Insert, Content: l})
			}
		}
	}
	return out
}

// Unified renders a unified diff between two versions of a file.
// Identical inputs produce an empty string.
func Unified(fromName, toName string, a, b []byte, context int) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  context,
	}
	out, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return "", fmt.Errorf("unified diff %s: %w", toName, err)
	}
	return out, nil
}
