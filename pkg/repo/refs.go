package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/notesync/pkg/object"
)

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second

	symrefPrefix = "ref: "
)

// ErrRefUpdatedButReflogAppendFailed marks a ref update that landed but
// whose reflog line could not be written.
var ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")

// RefUpdateReflogError indicates the ref file update succeeded, but appending
// the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("update ref %q: %s (old=%s new=%s): %v",
		e.Ref, ErrRefUpdatedButReflogAppendFailed, e.OldHash, e.NewHash, e.Err)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

// Head reads .notesync/HEAD. A symbolic HEAD returns the ref path (e.g.
// "refs/heads/main"); a detached HEAD returns the raw hash.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.MetaDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")
	return strings.TrimPrefix(content, symrefPrefix), nil
}

// ResolveRef resolves a ref name to a commit hash, following symbolic refs.
//
// Resolution order:
//  1. "HEAD" reads HEAD and follows it.
//  2. Names starting with "refs/" are read as-is.
//  3. Short names are looked up under refs/heads/ and refs/tags/; matching
//     both is ErrAmbiguous.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	ref, err := r.Ref(name)
	if err != nil {
		return "", err
	}
	h, err := ref.Resolve()
	if err != nil {
		return "", err
	}
	return h, nil
}

// UpdateRef writes a hash to the named ref without a compare-and-swap.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.updateRef(name, h, "update", nil)
}

// UpdateRefCAS writes a hash to the named ref under .notesync/ using
// lockfile + rename atomic semantics. If expectedOld is provided, the
// update only succeeds when the current ref hash matches it; an empty
// expectedOld requires the ref not to exist. A mismatch is
// ErrModifiedElsewhere.
//
// Reflog append happens after the ref rename; if it fails the ref update
// remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	var want *object.Hash
	if len(expectedOld) == 1 {
		want = &expectedOld[0]
	}
	return r.updateRef(name, h, "update", want)
}

func (r *Repo) updateRef(name string, h object.Hash, reason string, expectedOld *object.Hash) error {
	if name != "HEAD" {
		if err := validateRefName(name); err != nil {
			return fmt.Errorf("update ref: %w", err)
		}
	}
	refPath := filepath.Join(r.MetaDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if expectedOld != nil && oldHash != *expectedOld {
		return fmt.Errorf("update ref: %w", modifiedElsewhere(name,
			fmt.Errorf("expected %s, found %s", displayHash(*expectedOld), displayHash(oldHash))))
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := r.appendReflog(name, oldHash, h, reason); err != nil {
		return &RefUpdateReflogError{Ref: name, OldHash: oldHash, NewHash: h, Err: err}
	}
	return nil
}

// SetHeadSymbolic points HEAD at another ref, e.g. "refs/heads/main".
func (r *Repo) SetHeadSymbolic(target string) error {
	if err := validateRefName(target); err != nil {
		return fmt.Errorf("set HEAD: %w", err)
	}
	return r.writeHead(symrefPrefix+target, "checkout: moving to "+target)
}

// SetHeadDetached points HEAD directly at a commit.
func (r *Repo) SetHeadDetached(h object.Hash) error {
	if _, err := object.ParseHash(string(h)); err != nil {
		return fmt.Errorf("set HEAD: %w", invalidSpec(string(h), err.Error()))
	}
	return r.writeHead(string(h), "checkout: moving to "+h.Short())
}

func (r *Repo) writeHead(content, reason string) error {
	old, _ := r.ResolveRef("HEAD")
	headPath := filepath.Join(r.MetaDir, "HEAD")
	tmp, err := os.CreateTemp(r.MetaDir, ".HEAD-tmp-*")
	if err != nil {
		return fmt.Errorf("set HEAD: tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("set HEAD: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("set HEAD: close: %w", err)
	}
	if err := os.Rename(tmpName, headPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("set HEAD: rename: %w", err)
	}
	now, _ := r.ResolveRef("HEAD")
	if err := r.appendReflog("HEAD", old, now, reason); err != nil {
		r.Logger().Warn("HEAD reflog append failed", zap.Error(err))
	}
	return nil
}

// ListRefs lists references under .notesync/refs. Names are returned
// relative to the refs root, e.g. "heads/main", "tags/v1".
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.MetaDir, "refs")
	dir := root
	if strings.TrimSpace(prefix) != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		h, err := readRefHash(path)
		if err != nil {
			return err
		}
		refs[filepath.ToSlash(rel)] = h
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// validateRefName rejects names that cannot be stored as ref files.
func validateRefName(name string) error {
	switch {
	case name == "":
		return invalidSpec(name, "empty ref name")
	case !strings.HasPrefix(name, "refs/"):
		return invalidSpec(name, "ref name must start with refs/")
	case strings.HasSuffix(name, "/"), strings.HasSuffix(name, ".lock"):
		return invalidSpec(name, "ref name has an invalid suffix")
	case strings.Contains(name, ".."), strings.Contains(name, "//"), strings.Contains(name, "@{"):
		return invalidSpec(name, "ref name contains an invalid sequence")
	case strings.ContainsAny(name, " ~^:?*[\\\t\n"):
		return invalidSpec(name, "ref name contains an invalid character")
	}
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") {
			return invalidSpec(name, "ref name component starts with '.'")
		}
	}
	return nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

// readRefHash returns the raw ref file content, or "" if it does not exist.
// For symbolic refs this is "ref: <target>".
func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

func displayHash(h object.Hash) string {
	if h == "" {
		return "<none>"
	}
	return string(h)
}
