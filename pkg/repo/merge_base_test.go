package repo

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/notesync/pkg/object"
)

// graphCommit writes a commit over an empty tree directly to the store.
func graphCommit(t *testing.T, r *Repo, when int64, msg string, parents ...object.Hash) object.Hash {
	t.Helper()
	tree, err := r.Store.WriteTree(&object.TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	sig := testSig
	sig.When = when
	h, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    sig,
		Committer: sig,
		Message:   msg,
	})
	if err != nil {
		t.Fatalf("WriteCommit(%s): %v", msg, err)
	}
	return h
}

// forgeCommit stores a commit under an arbitrary hash, bypassing content
// addressing, so tests can build graphs that cannot occur naturally.
func forgeCommit(t *testing.T, r *Repo, as object.Hash, c *object.CommitObj) {
	t.Helper()
	data := object.MarshalCommit(c)
	raw := append([]byte(fmt.Sprintf("%s %d\x00", object.TypeCommit, len(data))), data...)
	path := filepath.Join(r.Store.Root(), "objects", string(as[:2]), string(as[2:]))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write forged commit: %v", err)
	}
}

func newGraphRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func TestFindMergeBase_Linear(t *testing.T) {
	r := newGraphRepo(t)
	c1 := graphCommit(t, r, 100, "c1")
	c2 := graphCommit(t, r, 200, "c2", c1)
	c3 := graphCommit(t, r, 300, "c3", c2)

	base, err := r.FindMergeBase(c3, c1)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if base != c1 {
		t.Fatalf("base = %s, want %s", base.Short(), c1.Short())
	}
	if base, _ := r.FindMergeBase(c2, c2); base != c2 {
		t.Fatalf("self base = %s, want %s", base.Short(), c2.Short())
	}
}

func TestFindMergeBase_Diamond(t *testing.T) {
	r := newGraphRepo(t)
	root := graphCommit(t, r, 100, "root")
	fork := graphCommit(t, r, 200, "fork", root)
	left := graphCommit(t, r, 300, "left", fork)
	left2 := graphCommit(t, r, 350, "left2", left)
	right := graphCommit(t, r, 400, "right", fork)

	base, err := r.FindMergeBase(left2, right)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if base != fork {
		t.Fatalf("base = %s, want fork %s", base.Short(), fork.Short())
	}
	// Symmetric and served from the memo on the second call.
	again, err := r.FindMergeBase(right, left2)
	if err != nil || again != fork {
		t.Fatalf("reversed base = %s, %v", again.Short(), err)
	}
}

func TestFindMergeBase_CrissCrossPicksBestCandidate(t *testing.T) {
	r := newGraphRepo(t)
	root := graphCommit(t, r, 100, "root")
	a := graphCommit(t, r, 200, "a", root)
	b := graphCommit(t, r, 210, "b", root)
	m1 := graphCommit(t, r, 300, "m1", a, b)
	m2 := graphCommit(t, r, 310, "m2", b, a)

	base, err := r.FindMergeBase(m1, m2)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if base != a && base != b {
		t.Fatalf("base = %s, want one of a/b", base.Short())
	}
}

func TestFindMergeBase_Unrelated(t *testing.T) {
	r := newGraphRepo(t)
	a := graphCommit(t, r, 100, "a")
	b := graphCommit(t, r, 200, "b")
	base, err := r.FindMergeBase(a, b)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if base != "" {
		t.Fatalf("base = %s, want none", base.Short())
	}
	if base, err := r.FindMergeBase("", b); base != "" || err != nil {
		t.Fatalf("empty side = %q, %v", base, err)
	}
}

func TestFindMergeBase_CycleIsAnError(t *testing.T) {
	r := newGraphRepo(t)
	tree, err := r.Store.WriteTree(&object.TreeObj{})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	x := object.Hash(strings.Repeat("a", 64))
	y := object.Hash(strings.Repeat("b", 64))
	forgeCommit(t, r, x, &object.CommitObj{TreeHash: tree, Parents: []object.Hash{y}, Author: testSig, Committer: testSig, Message: "x"})
	forgeCommit(t, r, y, &object.CommitObj{TreeHash: tree, Parents: []object.Hash{x}, Author: testSig, Committer: testSig, Message: "y"})
	other := graphCommit(t, r, 100, "other")

	if _, err := r.FindMergeBase(x, other); err == nil {
		t.Fatal("expected an error for a cyclic history")
	}
	if _, _, err := r.WalkCommits(x).Next(); err == nil {
		t.Fatal("expected walk over a cyclic history to fail")
	}
}

func TestFindMergeBase_MissingParent(t *testing.T) {
	r := newGraphRepo(t)
	tip := graphCommit(t, r, 100, "tip", object.Hash(strings.Repeat("c", 64)))
	other := graphCommit(t, r, 200, "other")
	if _, err := r.FindMergeBase(tip, other); err == nil {
		t.Fatal("expected error for a dangling parent")
	}
}

func TestIsAncestor(t *testing.T) {
	r := newGraphRepo(t)
	c1 := graphCommit(t, r, 100, "c1")
	c2 := graphCommit(t, r, 200, "c2", c1)
	side := graphCommit(t, r, 250, "side", c1)

	cases := []struct {
		name      string
		anc, desc object.Hash
		want      bool
	}{
		{"parent", c1, c2, true},
		{"self", c2, c2, true},
		{"child", c2, c1, false},
		{"sibling", side, c2, false},
		{"empty", "", c2, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.IsAncestor(tc.anc, tc.desc)
			if err != nil {
				t.Fatalf("IsAncestor: %v", err)
			}
			if got != tc.want {
				t.Fatalf("IsAncestor = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestWalkCommits_TopologicalThenTime(t *testing.T) {
	r := newGraphRepo(t)
	root := graphCommit(t, r, 100, "root")
	// The older side branch carries a later timestamp than main's tip; the
	// walk must still never emit a parent before its child.
	a := graphCommit(t, r, 500, "a", root)
	b := graphCommit(t, r, 200, "b", root)
	b2 := graphCommit(t, r, 300, "b2", b)
	merge := graphCommit(t, r, 600, "merge", a, b2)

	w := r.WalkCommits(merge)
	var got []object.Hash
	for {
		h, _, err := w.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, h)
	}
	want := []object.Hash{merge, b2, a, b, root}
	if len(got) != len(want) {
		t.Fatalf("walk length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("walk[%d] = %s, want %s", i, got[i].Short(), want[i].Short())
		}
	}
}

func TestWalkCommits_EmptyStart(t *testing.T) {
	r := newGraphRepo(t)
	if _, _, err := r.WalkCommits("").Next(); err != io.EOF {
		t.Fatalf("Next on empty walk = %v, want io.EOF", err)
	}
}
