package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/notesync/pkg/object"
)

// CreateTag creates or, with force, moves a lightweight tag under refs/tags/.
func (r *Repo) CreateTag(name string, target object.Hash, force bool) error {
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	if !r.Store.Has(target) {
		return fmt.Errorf("create tag: %w", notFound(string(target)))
	}

	refName := "refs/tags/" + name
	if !force {
		if err := r.UpdateRefCAS(refName, target, ""); err != nil {
			if isModifiedElsewhere(err) {
				return fmt.Errorf("create tag: %w", &RefError{Kind: ErrAlreadyExists, Ref: name})
			}
			return fmt.Errorf("create tag: %w", err)
		}
		return nil
	}
	if err := r.UpdateRef(refName, target); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// DeleteTag removes a tag ref from refs/tags/.
func (r *Repo) DeleteTag(name string) error {
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if err := os.Remove(filepath.Join(r.MetaDir, "refs", "tags", filepath.FromSlash(name))); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete tag: %w", notFound(name))
		}
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// ListTags returns tag name -> target hash.
func (r *Repo) ListTags() (map[string]object.Hash, error) {
	refs, err := r.ListRefs("tags")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	out := make(map[string]object.Hash, len(refs))
	for full, h := range refs {
		out[strings.TrimPrefix(full, "tags/")] = h
	}
	return out, nil
}

// TagNames lists tag names sorted alphabetically.
func (r *Repo) TagNames() ([]string, error) {
	tags, err := r.ListTags()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func validateTagName(name string) error {
	if name == "" {
		return invalidSpec(name, "tag name is required")
	}
	return validateRefName("refs/tags/" + name)
}
