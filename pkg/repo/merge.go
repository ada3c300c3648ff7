package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/object"
	"github.com/odvcencio/notesync/pkg/textmerge"
)

const (
	mergeHeadFile = "MERGE_HEAD"
	mergeMsgFile  = "MERGE_MSG"
)

// MergeOptions configures MergeBranch.
type MergeOptions struct {
	// Signature authors merge commits. Nil uses DefaultSignature.
	Signature *object.Signature
	// Policy is handed to the conflict resolver when the merge conflicts.
	Policy   ResolvePolicy
	Progress ProgressFunc
}

func (o MergeOptions) signature(r *Repo) object.Signature {
	if o.Signature != nil {
		return *o.Signature
	}
	return r.DefaultSignature(time.Now())
}

// MergeBranch merges the branch (or tag) name into HEAD.
//
//   - up to date: nothing changes, true.
//   - fast-forward: HEAD's branch moves to the tip and the working tree is
//     force-checked-out; no commit is created.
//   - normal: the trees are merged. A clean result is committed with
//     parents [HEAD, tip] and checked out. Conflicts are written to the
//     working tree with markers, merge state is persisted and the conflict
//     resolver decides the returned bool.
//   - none: ErrUnableToMerge and nothing changes.
func (r *Repo) MergeBranch(ctx context.Context, name string, opts MergeOptions) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if r.MergeInProgress() {
		return false, fmt.Errorf("merge: %w", ErrMergeInProgress)
	}
	branch, err := r.Ref(name)
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}
	tip, tipCommit, err := branch.TargetCommit()
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}

	analysis, base, err := r.AnalyzeMerge(tip)
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}
	log := r.Logger().With(zap.String("branch", name), zap.Stringer("analysis", analysis))
	log.Debug("merge analyzed", zap.String("tip", tip.Short()), zap.String("base", base.Short()))

	switch analysis {
	case MergeAnalysisUpToDate:
		return true, nil
	case MergeAnalysisNone:
		return false, fmt.Errorf("merge: %w", &RefError{Kind: ErrUnableToMerge, Ref: name, Err: errors.New("no common ancestor with HEAD")})
	}

	head, err := r.Ref("HEAD")
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}
	baseline, err := r.worktreeBaseline()
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}

	if analysis == MergeAnalysisFastForward {
		idx, err := r.IndexFromTree(tipCommit.TreeHash)
		if err != nil {
			return false, fmt.Errorf("merge: %w", err)
		}
		if _, err := r.checkoutIndex(baseline, idx, CheckoutOptions{Strategy: CheckoutForce, Progress: opts.Progress}); err != nil {
			return false, fmt.Errorf("merge: %w", err)
		}
		if err := head.UpdateTargetCommit(tip, fmt.Sprintf("merge %s: Fast-forward", name)); err != nil {
			return false, fmt.Errorf("merge: %w", err)
		}
		return true, nil
	}

	headHash, headCommit, err := head.TargetCommit()
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}
	baseCommit, err := r.ReadCommit(base)
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}
	idx, err := r.MergeTrees(headCommit.TreeHash, tipCommit.TreeHash, baseCommit.TreeHash, MergeTreesOptions{
		Labels:   textmerge.Labels{Ours: "HEAD", Theirs: name},
		Progress: opts.Progress,
	})
	if err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}

	message := fmt.Sprintf("Merge branch '%s'", branch.ShortName())
	sig := opts.signature(r)

	if !idx.HasConflicts() {
		tree, err := r.WriteTreeFromIndex(idx)
		if err != nil {
			return false, fmt.Errorf("merge: %w", err)
		}
		commit, err := r.CreateCommit(tree, []object.Hash{headHash, tip}, message, sig, sig, nil)
		if err != nil {
			return false, fmt.Errorf("merge: %w", err)
		}
		if _, err := r.checkoutIndex(baseline, idx, CheckoutOptions{Strategy: CheckoutForce, Progress: opts.Progress}); err != nil {
			return false, fmt.Errorf("merge: %w", err)
		}
		if err := head.UpdateTargetCommit(commit, fmt.Sprintf("merge %s: Merge made", name)); err != nil {
			return false, fmt.Errorf("merge: %w", err)
		}
		log.Info("merge committed", zap.String("commit", commit.Short()))
		return true, nil
	}

	if _, err := r.checkoutIndex(baseline, idx, CheckoutOptions{
		Strategy:       CheckoutForce,
		AllowConflicts: true,
		Progress:       opts.Progress,
	}); err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}
	if err := r.writeMergeState(tip, message); err != nil {
		return false, fmt.Errorf("merge: %w", err)
	}
	log.Info("merge conflicted", zap.Int("conflicts", len(idx.Conflicts())))
	return r.resolveConflicts(ctx, opts.Policy, sig, opts.Progress), nil
}

// MergeInProgress reports whether a conflicted merge is waiting for
// resolution.
func (r *Repo) MergeInProgress() bool {
	_, err := os.Stat(filepath.Join(r.MetaDir, mergeHeadFile))
	return err == nil
}

// AbortMerge discards a conflicted merge: HEAD is hard-reset to itself and
// the merge state is cleared.
func (r *Repo) AbortMerge() error {
	if !r.MergeInProgress() {
		return fmt.Errorf("abort merge: %w", ErrNoMergeState)
	}
	head, err := r.ResolveRef("HEAD")
	if err != nil {
		return fmt.Errorf("abort merge: %w", err)
	}
	if err := r.Reset(head, ResetHard); err != nil {
		return fmt.Errorf("abort merge: %w", err)
	}
	return nil
}

func (r *Repo) writeMergeState(tip object.Hash, message string) error {
	if err := r.writeMetaFile(mergeMsgFile, []byte(message+"\n")); err != nil {
		return fmt.Errorf("write %s: %w", mergeMsgFile, err)
	}
	if err := r.writeMetaFile(mergeHeadFile, []byte(string(tip)+"\n")); err != nil {
		return fmt.Errorf("write %s: %w", mergeHeadFile, err)
	}
	return nil
}

func (r *Repo) readMergeHead() (object.Hash, error) {
	data, err := os.ReadFile(filepath.Join(r.MetaDir, mergeHeadFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoMergeState
		}
		return "", fmt.Errorf("read %s: %w", mergeHeadFile, err)
	}
	h, err := object.ParseHash(string(data))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", mergeHeadFile, invalidSpec(strings.TrimSpace(string(data)), err.Error()))
	}
	return h, nil
}

func (r *Repo) readMergeMessage() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.MetaDir, mergeMsgFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *Repo) clearMergeState() {
	for _, name := range []string{mergeHeadFile, mergeMsgFile} {
		if err := os.Remove(filepath.Join(r.MetaDir, name)); err != nil && !os.IsNotExist(err) {
			r.Logger().Warn("clear merge state", zap.String("file", name), zap.Error(err))
		}
	}
}
