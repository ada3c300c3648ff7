package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/object"
)

const maxSymrefDepth = 8

// Reference is a read view of a named pointer. It is either direct (Target
// set) or symbolic (Symbolic names another ref). The value observed when
// the reference was read is kept so UpdateTargetCommit can detect
// concurrent moves.
type Reference struct {
	Name     string
	Target   object.Hash
	Symbolic string

	repo *Repo

	// terminal is the direct ref at the end of the chain and observed its
	// hash at read time ("" when unborn).
	terminal string
	observed object.Hash
	chainErr error
}

// IsSymbolic reports whether the reference points at another reference.
func (ref *Reference) IsSymbolic() bool { return ref.Symbolic != "" }

// ShortName strips the refs/heads/ or refs/tags/ prefix.
func (ref *Reference) ShortName() string {
	for _, p := range []string{"refs/heads/", "refs/tags/"} {
		if strings.HasPrefix(ref.Name, p) {
			return strings.TrimPrefix(ref.Name, p)
		}
	}
	return ref.Name
}

// Ref looks up a reference by name. "HEAD", full "refs/..." names, and
// short branch or tag names are accepted.
func (r *Repo) Ref(name string) (*Reference, error) {
	name = strings.TrimSpace(name)
	full, err := r.expandRefName(name)
	if err != nil {
		return nil, err
	}

	raw, exists, err := r.readRefFile(full)
	if err != nil {
		return nil, fmt.Errorf("ref %q: %w", name, err)
	}
	if !exists {
		return nil, notFound(name)
	}

	ref := &Reference{Name: full, repo: r}
	if target, ok := strings.CutPrefix(string(raw), symrefPrefix); ok {
		ref.Symbolic = strings.TrimSpace(target)
	} else {
		ref.Target = raw
	}
	ref.terminal, ref.observed, ref.chainErr = r.followChain(ref)
	return ref, nil
}

func (r *Repo) expandRefName(name string) (string, error) {
	if name == "" {
		return "", invalidSpec(name, "empty ref name")
	}
	if name == "HEAD" {
		return name, nil
	}
	if strings.HasPrefix(name, "refs/") {
		if err := validateRefName(name); err != nil {
			return "", err
		}
		return name, nil
	}

	var matches []string
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		full := prefix + name
		if err := validateRefName(full); err != nil {
			return "", err
		}
		if _, exists, err := r.readRefFile(full); err == nil && exists {
			matches = append(matches, full)
		}
	}
	switch len(matches) {
	case 0:
		return "", notFound(name)
	case 1:
		return matches[0], nil
	default:
		return "", &RefError{Kind: ErrAmbiguous, Ref: name, Err: fmt.Errorf("matches %s", strings.Join(matches, ", "))}
	}
}

func (r *Repo) readRefFile(full string) (object.Hash, bool, error) {
	data, err := os.ReadFile(filepath.Join(r.MetaDir, filepath.FromSlash(full)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return object.Hash(strings.TrimSpace(string(data))), true, nil
}

// followChain walks symbolic links until a direct ref or a missing ref.
func (r *Repo) followChain(ref *Reference) (string, object.Hash, error) {
	if !ref.IsSymbolic() {
		return ref.Name, ref.Target, nil
	}
	seen := map[string]bool{ref.Name: true}
	cur := ref.Symbolic
	for depth := 0; depth < maxSymrefDepth; depth++ {
		if seen[cur] {
			return "", "", &RefError{Kind: ErrInvalidReference, Ref: ref.Name, Err: fmt.Errorf("symbolic ref cycle at %q", cur)}
		}
		seen[cur] = true
		if err := validateRefName(cur); err != nil {
			return "", "", &RefError{Kind: ErrInvalidReference, Ref: ref.Name, Err: err}
		}
		raw, exists, err := r.readRefFile(cur)
		if err != nil {
			return "", "", fmt.Errorf("ref %q: read %q: %w", ref.Name, cur, err)
		}
		if !exists {
			return cur, "", nil
		}
		next, ok := strings.CutPrefix(string(raw), symrefPrefix)
		if !ok {
			return cur, raw, nil
		}
		cur = strings.TrimSpace(next)
	}
	return "", "", &RefError{Kind: ErrInvalidReference, Ref: ref.Name, Err: fmt.Errorf("symbolic chain longer than %d", maxSymrefDepth)}
}

// Resolve returns the hash at the end of the symbolic chain as observed when
// the reference was read.
func (ref *Reference) Resolve() (object.Hash, error) {
	if ref.chainErr != nil {
		return "", ref.chainErr
	}
	if ref.observed == "" {
		return "", notFound(ref.terminal)
	}
	return ref.observed, nil
}

// TargetCommit resolves the reference, possibly through a symbolic chain, to
// a commit. An unborn or dangling chain is ErrNotFound; a cycle is
// ErrInvalidReference; a target that is not a commit is
// ErrUnknownReference.
func (ref *Reference) TargetCommit() (object.Hash, *object.CommitObj, error) {
	h, err := ref.Resolve()
	if err != nil {
		return "", nil, fmt.Errorf("target commit: %w", err)
	}
	objType, _, err := ref.repo.Store.Read(h)
	if err != nil {
		return "", nil, fmt.Errorf("target commit: %w", classifyObjectError(h, err))
	}
	if objType != object.TypeCommit {
		return "", nil, fmt.Errorf("target commit: %w", &RefError{
			Kind: ErrUnknownReference, Ref: ref.Name, Err: fmt.Errorf("%s is a %s", h.Short(), objType),
		})
	}
	c, err := ref.repo.ReadCommit(h)
	if err != nil {
		return "", nil, fmt.Errorf("target commit: %w", err)
	}
	return h, c, nil
}

// UpdateTargetCommit moves the reference to commit. For a symbolic reference
// the ref at the end of the chain moves. The update is a compare-and-swap
// against the value observed when the reference was read: if the ref moved
// in between, ErrModifiedElsewhere is returned and nothing changes. message
// is recorded in the reflog.
func (ref *Reference) UpdateTargetCommit(commit object.Hash, message string) error {
	if _, err := object.ParseHash(string(commit)); err != nil {
		return fmt.Errorf("update target: %w", invalidSpec(string(commit), err.Error()))
	}
	if ref.chainErr != nil {
		return fmt.Errorf("update target: %w", ref.chainErr)
	}
	if ref.terminal != "HEAD" {
		if err := validateRefName(ref.terminal); err != nil {
			return fmt.Errorf("update target: %w", err)
		}
	}
	if !ref.repo.Store.Has(commit) {
		return fmt.Errorf("update target: %w", notFound(string(commit)))
	}
	if strings.TrimSpace(message) == "" {
		message = "update"
	}

	observed := ref.observed
	if err := ref.repo.updateRef(ref.terminal, commit, message, &observed); err != nil {
		var reflogErr *RefUpdateReflogError
		if !errors.As(err, &reflogErr) {
			return err
		}
		ref.repo.Logger().Warn("reflog append failed after ref update",
			zap.String("ref", ref.terminal), zap.Error(reflogErr.Err))
	}
	ref.observed = commit
	if !ref.IsSymbolic() {
		ref.Target = commit
	}
	return nil
}
