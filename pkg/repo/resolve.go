package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/object"
	"github.com/odvcencio/notesync/pkg/textmerge"
)

// ResolvePolicy decides how ResolveConflicts settles each conflicted path.
type ResolvePolicy int

const (
	// PolicyOurs keeps the HEAD version of every conflicted path.
	PolicyOurs ResolvePolicy = iota
	// PolicyTheirs keeps the merged branch's version.
	PolicyTheirs
	// PolicyUnion keeps both sides of every conflicting hunk, ours first.
	PolicyUnion
	// PolicyManual resolves nothing; conflicts stay for the user.
	PolicyManual
)

func (p ResolvePolicy) String() string {
	switch p {
	case PolicyOurs:
		return "ours"
	case PolicyTheirs:
		return "theirs"
	case PolicyUnion:
		return "union"
	case PolicyManual:
		return "manual"
	}
	return fmt.Sprintf("ResolvePolicy(%d)", int(p))
}

// ParsePolicy parses a policy name. The empty string is PolicyOurs.
func ParsePolicy(s string) (ResolvePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ours":
		return PolicyOurs, nil
	case "theirs":
		return PolicyTheirs, nil
	case "union":
		return PolicyUnion, nil
	case "manual":
		return PolicyManual, nil
	}
	return PolicyOurs, invalidSpec(s, "unknown merge policy")
}

// ResolveConflicts settles every conflict of the merge in progress with
// policy, then commits the result with parents [HEAD, MERGE_HEAD] and
// message "Merge conflict", moves HEAD and force-checks-out the merged
// tree. It returns false, leaving the merge state in place, when the policy
// leaves conflicts unresolved or any step fails; failures are logged.
func (r *Repo) ResolveConflicts(ctx context.Context, policy ResolvePolicy) bool {
	return r.resolveConflicts(ctx, policy, r.DefaultSignature(time.Now()), nil)
}

func (r *Repo) resolveConflicts(ctx context.Context, policy ResolvePolicy, sig object.Signature, progress ProgressFunc) bool {
	commit, err := r.settleConflicts(ctx, policy, sig, progress)
	if err != nil {
		r.Logger().Warn("conflict resolution failed",
			zap.Stringer("policy", policy), zap.Error(err))
		return false
	}
	if commit == "" {
		r.Logger().Info("conflicts left for manual resolution", zap.Stringer("policy", policy))
		return false
	}
	r.Logger().Info("conflicts resolved",
		zap.Stringer("policy", policy), zap.String("commit", commit.Short()))
	return true
}

// settleConflicts returns the resolution commit, or "" when conflicts are
// left for the user.
func (r *Repo) settleConflicts(ctx context.Context, policy ResolvePolicy, sig object.Signature, progress ProgressFunc) (object.Hash, error) {
	mergeHead, err := r.readMergeHead()
	if err != nil {
		return "", err
	}
	idx, err := r.ReadIndex()
	if err != nil {
		return "", err
	}
	conflicts := idx.Conflicts()
	if policy == PolicyManual && len(conflicts) > 0 {
		return "", nil
	}

	for i, c := range conflicts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		side, err := r.pickSide(c, policy)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", c.Path, err)
		}
		idx.Resolve(c.Path, side)
		progress.report(PhaseResolve, i+1, len(conflicts))
	}

	tree, err := r.WriteTreeFromIndex(idx)
	if err != nil {
		return "", err
	}
	head, err := r.Ref("HEAD")
	if err != nil {
		return "", err
	}
	headHash, err := head.Resolve()
	if err != nil {
		return "", err
	}
	commit, err := r.CreateCommit(tree, []object.Hash{headHash, mergeHead}, "Merge conflict", sig, sig, nil)
	if err != nil {
		return "", err
	}
	baseline, err := r.worktreeBaseline()
	if err != nil {
		return "", err
	}
	// HEAD moves only once the working tree holds the resolution.
	if _, err := r.checkoutIndex(baseline, idx, CheckoutOptions{Strategy: CheckoutForce, Progress: progress}); err != nil {
		return "", err
	}
	if err := head.UpdateTargetCommit(commit, "merge: Merge conflict"); err != nil {
		return "", err
	}
	r.clearMergeState()
	return commit, nil
}

func (r *Repo) pickSide(c Conflict, policy ResolvePolicy) (*IndexSide, error) {
	switch policy {
	case PolicyOurs:
		return c.Ours, nil
	case PolicyTheirs:
		return c.Theirs, nil
	case PolicyUnion:
		return r.unionSide(c)
	case PolicyManual:
		return nil, invalidSpec(policy.String(), "policy cannot resolve conflicts")
	}
	return nil, &RefError{Kind: ErrNotImplemented, Ref: policy.String(), Err: errors.New("no resolution strategy")}
}

// unionSide concatenates both sides of each conflicting hunk. A side that
// deleted the path loses to the side that kept it; binary content keeps
// ours.
func (r *Repo) unionSide(c Conflict) (*IndexSide, error) {
	if c.Ours == nil {
		return c.Theirs, nil
	}
	if c.Theirs == nil {
		return c.Ours, nil
	}
	var base []byte
	if c.Base != nil {
		data, err := r.readBlobData(c.Base.BlobHash)
		if err != nil {
			return nil, err
		}
		base = data
	}
	ours, err := r.readBlobData(c.Ours.BlobHash)
	if err != nil {
		return nil, err
	}
	theirs, err := r.readBlobData(c.Theirs.BlobHash)
	if err != nil {
		return nil, err
	}
	if textmerge.IsBinary(ours) || textmerge.IsBinary(theirs) {
		return c.Ours, nil
	}
	blob, err := r.Store.WriteBlob(&object.Blob{Data: textmerge.Merge(base, ours, theirs).Union()})
	if err != nil {
		return nil, classifyObjectError("", err)
	}
	return &IndexSide{BlobHash: blob, Mode: c.Ours.Mode}, nil
}
