package object

import (
	"bytes"
	"testing"
	"time"
)

func TestNewSignatureKeepsZone(t *testing.T) {
	loc := time.FixedZone("", -5*3600)
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, loc)
	sig := NewSignature("Ada", "ada@example.com", at)
	if sig.TZOffset != -300 {
		t.Fatalf("TZOffset = %d, want -300", sig.TZOffset)
	}
	if got := sig.Time(); !got.Equal(at) || got.Format("-0700") != "-0500" {
		t.Fatalf("Time() = %v, want %v", got, at)
	}
	if got := sig.Identity(); got != "Ada <ada@example.com>" {
		t.Fatalf("Identity() = %q", got)
	}
	if got := (Signature{Name: "Ada"}).Identity(); got != "Ada" {
		t.Fatalf("Identity() without email = %q", got)
	}
}

func TestCommitSigningPayloadIgnoresSignature(t *testing.T) {
	c := &CommitObj{
		TreeHash:  HashBytes([]byte("tree")),
		Author:    Signature{Name: "Ada", When: 1700000000},
		Committer: Signature{Name: "Ada", When: 1700000000},
		Message:   "note",
	}
	unsigned := CommitSigningPayload(c)
	c.Signature = "sshsig-v1:ssh-ed25519:AAAA:BBBB"
	if !bytes.Equal(unsigned, CommitSigningPayload(c)) {
		t.Fatal("payload changed when the commit was signed")
	}
	if CommitSigningPayload(nil) != nil {
		t.Fatal("nil commit has a payload")
	}
}
