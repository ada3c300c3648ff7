package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/notesync/pkg/object"
)

// CreateBranch creates refs/heads/<name> pointing at target. An existing
// branch is ErrAlreadyExists.
func (r *Repo) CreateBranch(name string, target object.Hash) error {
	refName := "refs/heads/" + strings.TrimSpace(name)
	if !r.Store.Has(target) {
		return fmt.Errorf("create branch %q: %w", name, notFound(string(target)))
	}
	if err := r.UpdateRefCAS(refName, target, ""); err != nil {
		if isModifiedElsewhere(err) {
			return fmt.Errorf("create branch: %w", &RefError{Kind: ErrAlreadyExists, Ref: name})
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes refs/heads/<name>. The checked-out branch cannot be
// deleted.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch: %w", invalidSpec(name, "cannot delete the checked-out branch"))
	}
	refName := "refs/heads/" + name
	if err := validateRefName(refName); err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}

	if err := os.Remove(filepath.Join(r.MetaDir, filepath.FromSlash(refName))); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete branch: %w", notFound(name))
		}
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	return nil
}

// ListBranches returns branch names sorted alphabetically. Nested names such
// as "phone/inbox" are included.
func (r *Repo) ListBranches() ([]string, error) {
	refs, err := r.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	names := make([]string, 0, len(refs))
	for full := range refs {
		names = append(names, strings.TrimPrefix(full, "heads/"))
	}
	sort.Strings(names)
	return names, nil
}

// CurrentBranch returns the branch HEAD points at, or "" when HEAD is
// detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if name, ok := strings.CutPrefix(head, "refs/heads/"); ok {
		return name, nil
	}
	return "", nil
}
