package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/object"
)

// CheckoutStrategy controls how CheckoutTree treats local modifications.
type CheckoutStrategy int

const (
	// CheckoutNone computes the plan and reports progress without touching
	// the working tree or index.
	CheckoutNone CheckoutStrategy = iota
	// CheckoutSafe refuses to overwrite or delete locally modified files.
	CheckoutSafe
	// CheckoutRecreateMissing is Safe, and also restores tracked files that
	// were deleted locally.
	CheckoutRecreateMissing
	// CheckoutForce makes the working tree match the target unconditionally.
	CheckoutForce
)

func (s CheckoutStrategy) String() string {
	switch s {
	case CheckoutNone:
		return "none"
	case CheckoutSafe:
		return "safe"
	case CheckoutRecreateMissing:
		return "recreate-missing"
	case CheckoutForce:
		return "force"
	}
	return fmt.Sprintf("CheckoutStrategy(%d)", int(s))
}

// CheckoutOptions configures CheckoutTree and CheckoutIndex.
type CheckoutOptions struct {
	Strategy CheckoutStrategy
	// AllowConflicts permits materializing an index with unresolved
	// entries; conflicted files are written with their marker content.
	AllowConflicts bool
	Progress       ProgressFunc
}

// CheckoutResult lists what a checkout changed (or, for CheckoutNone, would
// change).
type CheckoutResult struct {
	Updated   []string
	Removed   []string
	Conflicts []string
}

// DirtyCheckoutError is returned by a Safe checkout that would overwrite
// local modifications. Err aggregates one error per path.
type DirtyCheckoutError struct {
	Paths []string
	Err   error
}

func (e *DirtyCheckoutError) Error() string {
	return fmt.Sprintf("checkout would overwrite local changes in %d file(s): %s",
		len(e.Paths), strings.Join(e.Paths, ", "))
}

func (e *DirtyCheckoutError) Unwrap() error { return e.Err }

type checkoutAction struct {
	path   string
	remove bool
	blob   object.Hash
	mode   string
}

// CheckoutTree makes the working tree and index match target, a tree or a
// commit. HEAD does not move.
func (r *Repo) CheckoutTree(target object.Hash, opts CheckoutOptions) (*CheckoutResult, error) {
	tree, err := r.treeOf(target)
	if err != nil {
		return nil, fmt.Errorf("checkout tree: %w", err)
	}
	idx, err := r.IndexFromTree(tree)
	if err != nil {
		return nil, fmt.Errorf("checkout tree: %w", err)
	}
	return r.CheckoutIndex(idx, opts)
}

// CheckoutIndex makes the working tree and index match idx.
func (r *Repo) CheckoutIndex(idx *Index, opts CheckoutOptions) (*CheckoutResult, error) {
	baseline, err := r.worktreeBaseline()
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return r.checkoutIndex(baseline, idx, opts)
}

// worktreeBaseline is the state the working tree is expected to be in: the
// index when one exists, the HEAD tree otherwise.
func (r *Repo) worktreeBaseline() (map[string]IndexSide, error) {
	if _, err := os.Stat(r.indexPath()); err == nil {
		idx, err := r.ReadIndex()
		if err != nil {
			return nil, err
		}
		baseline := make(map[string]IndexSide, len(idx.Entries))
		for p, e := range idx.Entries {
			baseline[p] = IndexSide{BlobHash: e.BlobHash, Mode: normalizeFileMode(e.Mode)}
		}
		return baseline, nil
	}

	headTree, err := r.headTree()
	if err != nil {
		return nil, err
	}
	files, err := r.FlattenTree(headTree)
	if err != nil {
		return nil, err
	}
	baseline := make(map[string]IndexSide, len(files))
	for _, f := range files {
		baseline[f.Path] = IndexSide{BlobHash: f.BlobHash, Mode: f.Mode}
	}
	return baseline, nil
}

func (r *Repo) checkoutIndex(baseline map[string]IndexSide, target *Index, opts CheckoutOptions) (*CheckoutResult, error) {
	if target.HasConflicts() && !opts.AllowConflicts {
		return nil, fmt.Errorf("checkout: %w", ErrUnmergedIndex)
	}

	paths := make(map[string]struct{}, len(baseline)+len(target.Entries))
	for p := range baseline {
		paths[p] = struct{}{}
	}
	for p := range target.Entries {
		paths[p] = struct{}{}
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	result := &CheckoutResult{}
	var actions []checkoutAction
	var dirty *multierror.Error
	var dirtyPaths []string

	for _, p := range sorted {
		want, inTarget := target.Entries[p]
		base, inBase := baseline[p]
		disk, onDisk, err := r.worktreeBlob(p)
		if err != nil {
			return nil, fmt.Errorf("checkout: %w", err)
		}
		// modified: the file differs from what the baseline says is there.
		modified := onDisk && (!inBase || disk != base.BlobHash)

		switch {
		case inTarget && inBase && want.BlobHash == base.BlobHash && normalizeFileMode(want.Mode) == base.Mode:
			switch {
			case !onDisk && opts.Strategy >= CheckoutRecreateMissing:
				actions = append(actions, checkoutAction{path: p, blob: want.BlobHash, mode: want.Mode})
			case onDisk && opts.Strategy == CheckoutForce && !r.worktreeMatches(p, disk, want):
				actions = append(actions, checkoutAction{path: p, blob: want.BlobHash, mode: want.Mode})
			}
		case inTarget:
			if onDisk && disk == want.BlobHash {
				if !inBase || normalizeFileMode(want.Mode) == base.Mode {
					continue
				}
			}
			if modified && opts.Strategy != CheckoutForce {
				dirtyPaths = append(dirtyPaths, p)
				dirty = multierror.Append(dirty, fmt.Errorf("%s: local changes would be overwritten", p))
				continue
			}
			actions = append(actions, checkoutAction{path: p, blob: want.BlobHash, mode: want.Mode})
		case inBase:
			if !onDisk {
				continue
			}
			if modified && opts.Strategy != CheckoutForce {
				dirtyPaths = append(dirtyPaths, p)
				dirty = multierror.Append(dirty, fmt.Errorf("%s: local changes would be deleted", p))
				continue
			}
			actions = append(actions, checkoutAction{path: p, remove: true})
		}
	}

	if len(dirtyPaths) > 0 && opts.Strategy != CheckoutNone {
		return nil, &DirtyCheckoutError{Paths: dirtyPaths, Err: dirty.ErrorOrNil()}
	}
	result.Conflicts = dirtyPaths

	total := len(actions)
	for i, a := range actions {
		if a.remove {
			result.Removed = append(result.Removed, a.path)
		} else {
			result.Updated = append(result.Updated, a.path)
		}
		if opts.Strategy != CheckoutNone {
			if err := r.applyCheckoutAction(a); err != nil {
				return nil, fmt.Errorf("checkout: %w", err)
			}
		}
		opts.Progress.report(PhaseCheckout, i+1, total)
	}
	if total == 0 {
		opts.Progress.report(PhaseCheckout, 0, 0)
	}

	if opts.Strategy == CheckoutNone {
		return result, nil
	}
	if err := r.WriteIndex(target); err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	r.Logger().Debug("checkout applied",
		zap.Stringer("strategy", opts.Strategy),
		zap.Int("updated", len(result.Updated)),
		zap.Int("removed", len(result.Removed)))
	return result, nil
}

func (r *Repo) applyCheckoutAction(a checkoutAction) error {
	abs := filepath.Join(r.RootDir, filepath.FromSlash(a.path))
	if a.remove {
		if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %q: %w", a.path, err)
		}
		r.removeEmptyParents(filepath.Dir(abs))
		return nil
	}

	blob, err := r.Store.ReadBlob(a.blob)
	if err != nil {
		return fmt.Errorf("read blob for %q: %w", a.path, classifyObjectError(a.blob, err))
	}
	if info, err := os.Lstat(abs); err == nil && info.IsDir() {
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("remove directory %q: %w", a.path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w", a.path, err)
	}
	perm := permForMode(normalizeFileMode(a.mode))
	if err := os.WriteFile(abs, blob.Data, perm); err != nil {
		return fmt.Errorf("write %q: %w", a.path, err)
	}
	if err := os.Chmod(abs, perm); err != nil {
		return fmt.Errorf("chmod %q: %w", a.path, err)
	}
	return nil
}

// worktreeMatches reports whether the working file at rel already holds
// want's content and executable bit.
func (r *Repo) worktreeMatches(rel string, disk object.Hash, want *IndexEntry) bool {
	if disk != want.BlobHash {
		return false
	}
	info, err := os.Stat(filepath.Join(r.RootDir, filepath.FromSlash(rel)))
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o111 == permForMode(normalizeFileMode(want.Mode))&0o111
}

// worktreeBlob hashes the working file at rel the way the store would.
func (r *Repo) worktreeBlob(rel string) (object.Hash, bool, error) {
	data, err := os.ReadFile(filepath.Join(r.RootDir, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			if info, statErr := os.Stat(pathErr.Path); statErr == nil && info.IsDir() {
				return "", true, nil
			}
		}
		return "", false, fmt.Errorf("read %q: %w", rel, err)
	}
	return object.HashObject(object.TypeBlob, data), true, nil
}

// Checkout switches to target, a branch name or a commit hash, with a Safe
// checkout. A branch makes HEAD symbolic; anything else detaches it.
func (r *Repo) Checkout(target string) error {
	if r.MergeInProgress() {
		return fmt.Errorf("checkout: %w", ErrMergeInProgress)
	}

	branchRef := ""
	var commit object.Hash
	if ref, err := r.Ref("refs/heads/" + target); err == nil {
		h, _, err := ref.TargetCommit()
		if err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
		branchRef, commit = ref.Name, h
	} else {
		h, err := r.ResolveCommitish(target)
		if err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
		commit = h
	}

	if _, err := r.CheckoutTree(commit, CheckoutOptions{Strategy: CheckoutSafe}); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if branchRef != "" {
		return r.SetHeadSymbolic(branchRef)
	}
	return r.SetHeadDetached(commit)
}

// ResolveCommitish resolves a ref name, a full hash or a unique hash prefix
// of at least 4 characters to a commit hash.
func (r *Repo) ResolveCommitish(spec string) (object.Hash, error) {
	spec = strings.TrimSpace(spec)
	if ref, err := r.Ref(spec); err == nil {
		h, _, err := ref.TargetCommit()
		return h, err
	} else if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidSpec) {
		return "", err
	}
	if h, err := object.ParseHash(spec); err == nil {
		if !r.Store.Has(h) {
			return "", notFound(spec)
		}
		return h, nil
	}
	return r.resolveHashPrefix(spec)
}

func (r *Repo) resolveHashPrefix(prefix string) (object.Hash, error) {
	if len(prefix) < 4 || len(prefix) >= object.HashSize {
		return "", invalidSpec(prefix, "not a ref or hash")
	}
	for _, c := range prefix {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", invalidSpec(prefix, "not a ref or hash")
		}
	}
	dir := filepath.Join(r.MetaDir, "objects", prefix[:2])
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", notFound(prefix)
		}
		return "", err
	}
	var matches []object.Hash
	for _, e := range entries {
		h := object.Hash(prefix[:2] + e.Name())
		if len(h) == object.HashSize && strings.HasPrefix(string(h), prefix) {
			if typ, _, err := r.Store.Read(h); err == nil && typ == object.TypeCommit {
				matches = append(matches, h)
			}
		}
	}
	switch len(matches) {
	case 0:
		return "", notFound(prefix)
	case 1:
		return matches[0], nil
	default:
		return "", &RefError{Kind: ErrAmbiguous, Ref: prefix}
	}
}

// treeOf returns h itself when it names a tree, or the tree of commit h.
func (r *Repo) treeOf(h object.Hash) (object.Hash, error) {
	if h == "" {
		return "", nil
	}
	typ, _, err := r.Store.Read(h)
	if err != nil {
		return "", classifyObjectError(h, err)
	}
	switch typ {
	case object.TypeTree:
		return h, nil
	case object.TypeCommit:
		c, err := r.ReadCommit(h)
		if err != nil {
			return "", err
		}
		return c.TreeHash, nil
	}
	return "", &RefError{Kind: ErrInvalidSpec, Ref: string(h), Err: fmt.Errorf("%s is a %s", h.Short(), typ)}
}

// headTree is the tree of the HEAD commit, or "" when HEAD is unborn.
func (r *Repo) headTree() (object.Hash, error) {
	head, err := r.Ref("HEAD")
	if err != nil {
		return "", err
	}
	_, c, err := head.TargetCommit()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return c.TreeHash, nil
}

// removeEmptyParents removes empty directories up to (but not including)
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for dir != r.RootDir && strings.HasPrefix(dir, r.RootDir+string(filepath.Separator)) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
