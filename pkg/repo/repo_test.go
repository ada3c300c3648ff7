package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_CreatesStructure(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	meta := filepath.Join(dir, MetaDirName)
	if r.MetaDir != meta {
		t.Errorf("MetaDir = %q, want %q", r.MetaDir, meta)
	}
	for _, sub := range []string{"objects", "refs/heads", "refs/tags", "logs/refs/heads"} {
		info, err := os.Stat(filepath.Join(meta, filepath.FromSlash(sub)))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s: %v", sub, err)
		}
	}
	head, err := os.ReadFile(filepath.Join(meta, "HEAD"))
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if strings.TrimSpace(string(head)) != "ref: refs/heads/main" {
		t.Errorf("HEAD = %q, want symbolic ref to main", head)
	}
}

func TestInit_ExistingRepo_Error(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := Init(dir); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second Init err = %v, want ErrAlreadyExists", err)
	}
}

func TestOpen_FromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	sub := filepath.Join(dir, "journal", "2024")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	r, err := Open(sub)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want, _ := filepath.Abs(dir)
	if r.RootDir != want {
		t.Errorf("RootDir = %q, want %q", r.RootDir, want)
	}
}

func TestOpen_NoRepo_Error(t *testing.T) {
	if _, err := Open(t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open err = %v, want ErrNotFound", err)
	}
}

func TestReadTree_EmptyHashIsEmptyTree(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	tree, err := r.ReadTree("")
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(tree.Entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(tree.Entries))
	}
}

func TestConfig_RoundTrip(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	empty, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig (missing): %v", err)
	}
	if empty.Merge.Policy != "" {
		t.Errorf("missing config policy = %q, want empty", empty.Merge.Policy)
	}

	cfg := &Config{
		User:  UserConfig{Name: "Ada"},
		Merge: MergeConfig{Policy: "union"},
		Cache: CacheConfig{Backend: "sqlite", DSN: "file:cache.db", Project: "notes"},
	}
	if err := r.WriteConfig(cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	got, err := r.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if *got != *cfg {
		t.Fatalf("config = %+v, want %+v", got, cfg)
	}
}
