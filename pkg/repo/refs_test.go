package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/odvcencio/notesync/pkg/object"
)

func TestUpdateRefCAS_ConcurrentSingleWinner(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	base := object.Hash(fmt.Sprintf("%064x", 0xaa))
	if err := r.UpdateRef("refs/heads/main", base); err != nil {
		t.Fatalf("UpdateRef(base): %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	successCh := make(chan object.Hash, workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			next := object.Hash(fmt.Sprintf("%064x", i+1))
			if err := r.UpdateRefCAS("refs/heads/main", next, base); err != nil {
				errCh <- err
				return
			}
			successCh <- next
		}()
	}
	wg.Wait()
	close(successCh)
	close(errCh)

	var winner object.Hash
	successes := 0
	for h := range successCh {
		successes++
		winner = h
	}
	if successes != 1 {
		t.Fatalf("successful CAS updates = %d, want 1", successes)
	}
	for err := range errCh {
		if !errors.Is(err, ErrModifiedElsewhere) {
			t.Fatalf("unexpected error type: %v", err)
		}
	}
	got, err := r.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("ResolveRef(main): %v", err)
	}
	if got != winner {
		t.Fatalf("refs/heads/main = %s, want winner %s", got, winner)
	}
}

func TestUpdateRefCAS_EmptyExpectedRequiresAbsence(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := object.Hash(fmt.Sprintf("%064x", 1))
	if err := r.UpdateRefCAS("refs/heads/topic", h, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.UpdateRefCAS("refs/heads/topic", h, ""); !errors.Is(err, ErrModifiedElsewhere) {
		t.Fatalf("second create err = %v, want ErrModifiedElsewhere", err)
	}
}

func TestUpdateRef_RejectsMalformedNames(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	h := object.Hash(fmt.Sprintf("%064x", 1))
	for _, name := range []string{"heads/main", "refs/heads/a..b", "refs/heads/x.lock", "refs/heads/.hidden", "refs/heads/a b"} {
		if err := r.UpdateRef(name, h); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("UpdateRef(%q) err = %v, want ErrInvalidSpec", name, err)
		}
	}
}

func TestRef_ShortNameLookup(t *testing.T) {
	r := initRepoWithFile(t, "a.md", []byte("a"))
	h, err := r.Commit("first", testSig, nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ref, err := r.Ref("main")
	if err != nil {
		t.Fatalf("Ref(main): %v", err)
	}
	if ref.Name != "refs/heads/main" || ref.ShortName() != "main" {
		t.Errorf("ref name = %q short = %q", ref.Name, ref.ShortName())
	}
	got, c, err := ref.TargetCommit()
	if err != nil {
		t.Fatalf("TargetCommit: %v", err)
	}
	if got != h || c.Message != "first" {
		t.Errorf("TargetCommit = %s %q", got.Short(), c.Message)
	}

	head, err := r.Ref("HEAD")
	if err != nil {
		t.Fatalf("Ref(HEAD): %v", err)
	}
	if !head.IsSymbolic() || head.Symbolic != "refs/heads/main" {
		t.Errorf("HEAD symbolic = %q", head.Symbolic)
	}
}

func TestRef_AmbiguousShortName(t *testing.T) {
	r := initRepoWithFile(t, "a.md", []byte("a"))
	h, err := r.Commit("first", testSig, nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.CreateBranch("v1", h); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.CreateTag("v1", h, false); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if _, err := r.Ref("v1"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("Ref(v1) err = %v, want ErrAmbiguous", err)
	}
	if _, err := r.Ref("refs/tags/v1"); err != nil {
		t.Fatalf("full name must stay unambiguous: %v", err)
	}
}

func TestRef_NotFoundAndInvalid(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, err = r.Ref("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Ref(nope) err = %v, want ErrNotFound", err)
	}
	var refErr *RefError
	if !errors.As(err, &refErr) || refErr.Ref != "nope" {
		t.Errorf("error does not name the ref: %v", err)
	}
	if _, err := r.Ref("bad..name"); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("Ref(bad..name) err = %v, want ErrInvalidSpec", err)
	}
	if _, err := r.Ref(""); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("Ref(\"\") err = %v, want ErrInvalidSpec", err)
	}
}

func TestReference_UnbornHead(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	head, err := r.Ref("HEAD")
	if err != nil {
		t.Fatalf("Ref(HEAD): %v", err)
	}
	if _, _, err := head.TargetCommit(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("TargetCommit on unborn HEAD err = %v, want ErrNotFound", err)
	}
}

func TestReference_SymbolicCycle(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	heads := filepath.Join(r.MetaDir, "refs", "heads")
	if err := os.WriteFile(filepath.Join(heads, "a"), []byte("ref: refs/heads/b\n"), 0o644); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(filepath.Join(heads, "b"), []byte("ref: refs/heads/a\n"), 0o644); err != nil {
		t.Fatalf("write b: %v", err)
	}
	ref, err := r.Ref("refs/heads/a")
	if err != nil {
		t.Fatalf("Ref: %v", err)
	}
	if _, _, err := ref.TargetCommit(); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("TargetCommit err = %v, want ErrInvalidReference", err)
	}
}

func TestReference_TargetNotCommit(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	blob, err := r.Store.WriteBlob(&object.Blob{Data: []byte("not a commit")})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if err := r.UpdateRef("refs/tags/blob", blob); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	ref, err := r.Ref("blob")
	if err != nil {
		t.Fatalf("Ref: %v", err)
	}
	if _, _, err := ref.TargetCommit(); !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("TargetCommit err = %v, want ErrUnknownReference", err)
	}
}

func TestReference_UpdateTargetCommitDetectsConcurrentMove(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c1 := commitFile(t, r, "a.md", "1", "c1")
	c2 := commitFile(t, r, "a.md", "2", "c2")
	c3 := commitFile(t, r, "a.md", "3", "c3")
	if err := r.UpdateRef("refs/heads/main", c1); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}

	stale, err := r.Ref("main")
	if err != nil {
		t.Fatalf("Ref: %v", err)
	}
	if err := r.UpdateRef("refs/heads/main", c2); err != nil {
		t.Fatalf("UpdateRef: %v", err)
	}
	if err := stale.UpdateTargetCommit(c3, "stale move"); !errors.Is(err, ErrModifiedElsewhere) {
		t.Fatalf("UpdateTargetCommit err = %v, want ErrModifiedElsewhere", err)
	}
	if got, _ := r.ResolveRef("main"); got != c2 {
		t.Fatalf("main = %s, want %s untouched", got.Short(), c2.Short())
	}

	fresh, err := r.Ref("main")
	if err != nil {
		t.Fatalf("Ref: %v", err)
	}
	if err := fresh.UpdateTargetCommit(c3, "fresh move"); err != nil {
		t.Fatalf("UpdateTargetCommit: %v", err)
	}
	if got, _ := r.ResolveRef("main"); got != c3 {
		t.Fatalf("main = %s, want %s", got.Short(), c3.Short())
	}
}

func TestReference_UpdateThroughSymbolicHead(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c1 := commitFile(t, r, "a.md", "1", "c1")
	c2 := commitFile(t, r, "a.md", "2", "c2")

	head, err := r.Ref("HEAD")
	if err != nil {
		t.Fatalf("Ref(HEAD): %v", err)
	}
	if err := head.UpdateTargetCommit(c1, "rewind"); err != nil {
		t.Fatalf("UpdateTargetCommit: %v", err)
	}
	if got, _ := r.ResolveRef("main"); got != c1 {
		t.Fatalf("main = %s, want %s", got.Short(), c1.Short())
	}
	if h, _ := r.Head(); h != "refs/heads/main" {
		t.Fatalf("HEAD no longer symbolic: %q", h)
	}

	entries, err := r.ReadReflog("main", 1)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "rewind" || entries[0].OldHash != c2 || entries[0].NewHash != c1 {
		t.Fatalf("latest reflog entry = %+v", entries)
	}
}

func TestReference_UpdateTargetCommitRejectsBadTargets(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	commitFile(t, r, "a.md", "1", "c1")
	head, err := r.Ref("HEAD")
	if err != nil {
		t.Fatalf("Ref(HEAD): %v", err)
	}
	if err := head.UpdateTargetCommit("xyz", "bad"); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("malformed hash err = %v, want ErrInvalidSpec", err)
	}
	missing := object.HashBytes([]byte("missing"))
	if err := head.UpdateTargetCommit(missing, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing commit err = %v, want ErrNotFound", err)
	}
}

func TestSetHeadDetached(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c1 := commitFile(t, r, "a.md", "1", "c1")
	if err := r.SetHeadDetached(c1); err != nil {
		t.Fatalf("SetHeadDetached: %v", err)
	}
	branch, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "" {
		t.Errorf("CurrentBranch = %q, want detached", branch)
	}
	if got := headHash(t, r); got != c1 {
		t.Errorf("HEAD = %s, want %s", got.Short(), c1.Short())
	}
}
