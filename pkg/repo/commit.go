package repo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odvcencio/notesync/pkg/object"
)

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in CommitObj.Signature.
type CommitSigner func(payload []byte) (string, error)

// DefaultSignature builds a signature from [user] in config.toml, stamped
// with now. Missing values fall back to "notesync".
func (r *Repo) DefaultSignature(now time.Time) object.Signature {
	name, email := "notesync", ""
	if cfg, err := r.ReadConfig(); err == nil {
		if strings.TrimSpace(cfg.User.Name) != "" {
			name = cfg.User.Name
		}
		email = cfg.User.Email
	}
	return object.NewSignature(name, email, now)
}

// CreateCommit writes a commit object with the given tree and parents. It
// does not move any reference.
func (r *Repo) CreateCommit(tree object.Hash, parents []object.Hash, message string, author, committer object.Signature, signer CommitSigner) (object.Hash, error) {
	if !r.Store.Has(tree) {
		return "", fmt.Errorf("create commit: tree: %w", notFound(string(tree)))
	}
	for _, p := range parents {
		if !r.Store.Has(p) {
			return "", fmt.Errorf("create commit: parent: %w", notFound(string(p)))
		}
	}
	c := &object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   message,
	}
	if signer != nil {
		sig, err := signer(object.CommitSigningPayload(c))
		if err != nil {
			return "", fmt.Errorf("create commit: sign: %w", err)
		}
		c.Signature = sig
	}
	h, err := r.Store.WriteCommit(c)
	if err != nil {
		return "", fmt.Errorf("create commit: %w", classifyObjectError("", err))
	}
	return h, nil
}

// Commit records the index as a new commit on HEAD and moves HEAD's branch
// (or detached HEAD) with a compare-and-swap. While a merge is in progress
// the commit gets MERGE_HEAD as second parent and the merge state is
// cleared.
func (r *Repo) Commit(message string, sig object.Signature, signer CommitSigner) (object.Hash, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(idx.Entries) == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}
	tree, err := r.WriteTreeFromIndex(idx)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	head, err := r.Ref("HEAD")
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	var parents []object.Hash
	if parent, err := head.Resolve(); err == nil {
		parents = append(parents, parent)
	} else if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("commit: %w", err)
	}

	merging := false
	if mergeHead, err := r.readMergeHead(); err == nil {
		parents = append(parents, mergeHead)
		merging = true
		if stored, err := r.readMergeMessage(); err == nil && strings.TrimSpace(message) == "" {
			message = stored
		}
	} else if !errors.Is(err, ErrNoMergeState) {
		return "", fmt.Errorf("commit: %w", err)
	}

	h, err := r.CreateCommit(tree, parents, message, sig, sig, signer)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if err := head.UpdateTargetCommit(h, "commit: "+firstLine(message)); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if merging {
		r.clearMergeState()
	}
	return h, nil
}

// LogEntry pairs a commit with its hash.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log returns up to limit commits reachable from start, newest first in
// walk order. A limit <= 0 means no limit.
func (r *Repo) Log(start object.Hash, limit int) ([]LogEntry, error) {
	w := r.WalkCommits(start)
	var out []LogEntry
	for limit <= 0 || len(out) < limit {
		h, c, err := w.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("log: %w", err)
		}
		out = append(out, LogEntry{Hash: h, Commit: c})
	}
	return out, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
