package repo

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/notesync/pkg/object"
)

// ResetMode selects how much state Reset rewrites.
type ResetMode int

const (
	// ResetSoft moves only the branch tip.
	ResetSoft ResetMode = iota
	// ResetMixed also rewrites the index to the target tree.
	ResetMixed
	// ResetHard also force-checks-out the target tree.
	ResetHard
)

func (m ResetMode) String() string {
	switch m {
	case ResetSoft:
		return "soft"
	case ResetMixed:
		return "mixed"
	case ResetHard:
		return "hard"
	}
	return fmt.Sprintf("ResetMode(%d)", int(m))
}

// Reset moves HEAD (or the branch it points at) to commit target. Mixed and
// hard resets abandon any merge in progress.
func (r *Repo) Reset(target object.Hash, mode ResetMode) error {
	if mode < ResetSoft || mode > ResetHard {
		return fmt.Errorf("reset: %w", invalidSpec(mode.String(), "unknown reset mode"))
	}
	commit, err := r.ReadCommit(target)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	baseline, err := r.worktreeBaseline()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	head, err := r.Ref("HEAD")
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := head.UpdateTargetCommit(target, fmt.Sprintf("reset: moving to %s", target.Short())); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if mode == ResetSoft {
		return nil
	}

	idx, err := r.IndexFromTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if mode == ResetMixed {
		if err := r.WriteIndex(idx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	} else if _, err := r.checkoutIndex(baseline, idx, CheckoutOptions{Strategy: CheckoutForce}); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	r.clearMergeState()
	return nil
}

// ResetPaths unstages paths by restoring their index entries to the HEAD
// version. A path absent from HEAD is dropped from the index. No paths
// means every path. The working tree is not touched.
func (r *Repo) ResetPaths(paths []string) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	tree, err := r.headTree()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	files, err := r.FlattenTree(tree)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	head := indexByPath(files)

	targets, err := r.matchPaths(paths, idx, head)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	for _, p := range targets {
		if e, ok := head[p]; ok {
			idx.Set(p, e.BlobHash, e.Mode)
			continue
		}
		idx.Remove(p)
	}
	if err := r.WriteIndex(idx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (r *Repo) matchPaths(paths []string, idx *Index, head map[string]TreeFileEntry) ([]string, error) {
	all := make(map[string]struct{}, len(idx.Entries)+len(head))
	for p := range idx.Entries {
		all[p] = struct{}{}
	}
	for p := range head {
		all[p] = struct{}{}
	}

	targets := make(map[string]struct{})
	if len(paths) == 0 {
		targets = all
	}
	for _, raw := range paths {
		rel, err := r.repoRelPath(raw)
		if err != nil {
			return nil, err
		}
		rel = filepath.ToSlash(filepath.Clean(strings.TrimSpace(rel)))
		matched := false
		for p := range all {
			if rel == "." || p == rel || strings.HasPrefix(p, rel+"/") {
				targets[p] = struct{}{}
				matched = true
			}
		}
		if !matched {
			return nil, notFound(raw)
		}
	}

	out := make([]string, 0, len(targets))
	for p := range targets {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
