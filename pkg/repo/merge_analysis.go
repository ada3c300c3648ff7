package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/notesync/pkg/object"
)

// MergeAnalysis classifies how a branch tip relates to HEAD.
type MergeAnalysis int

const (
	// MergeAnalysisNone: HEAD is unborn or the histories are unrelated.
	MergeAnalysisNone MergeAnalysis = iota
	// MergeAnalysisUpToDate: the tip is already contained in HEAD.
	MergeAnalysisUpToDate
	// MergeAnalysisFastForward: HEAD is an ancestor of the tip.
	MergeAnalysisFastForward
	// MergeAnalysisNormal: the histories diverged since their merge base.
	MergeAnalysisNormal
)

func (a MergeAnalysis) String() string {
	switch a {
	case MergeAnalysisNone:
		return "none"
	case MergeAnalysisUpToDate:
		return "up-to-date"
	case MergeAnalysisFastForward:
		return "fast-forward"
	case MergeAnalysisNormal:
		return "normal"
	}
	return fmt.Sprintf("MergeAnalysis(%d)", int(a))
}

// AnalyzeMerge compares HEAD with tip and returns the classification along
// with their merge base ("" for none). It never writes anything.
func (r *Repo) AnalyzeMerge(tip object.Hash) (MergeAnalysis, object.Hash, error) {
	if _, err := r.ReadCommit(tip); err != nil {
		return MergeAnalysisNone, "", fmt.Errorf("analyze merge: %w", err)
	}
	head, err := r.Ref("HEAD")
	if err != nil {
		return MergeAnalysisNone, "", fmt.Errorf("analyze merge: %w", err)
	}
	headHash, err := head.Resolve()
	if errors.Is(err, ErrNotFound) {
		return MergeAnalysisNone, "", nil
	}
	if err != nil {
		return MergeAnalysisNone, "", fmt.Errorf("analyze merge: %w", err)
	}

	base, err := r.FindMergeBase(headHash, tip)
	if err != nil {
		return MergeAnalysisNone, "", fmt.Errorf("analyze merge: %w", err)
	}
	switch base {
	case "":
		return MergeAnalysisNone, "", nil
	case tip:
		return MergeAnalysisUpToDate, base, nil
	case headHash:
		return MergeAnalysisFastForward, base, nil
	default:
		return MergeAnalysisNormal, base, nil
	}
}
