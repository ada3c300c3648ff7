package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the per-repository ignore file at the working root.
const IgnoreFileName = ".notesyncignore"

var defaultIgnoreRules = []string{
	MetaDirName,
	".git",
	".DS_Store",
	"Thumbs.db",
	"*.swp",
}

// IgnoreChecker decides which working-tree paths are never tracked.
type IgnoreChecker struct {
	ignorer *gitignore.GitIgnore
}

// NewIgnoreChecker compiles the built-in rules plus .notesyncignore when it
// exists under repoRoot.
func NewIgnoreChecker(repoRoot string) (*IgnoreChecker, error) {
	ignorePath := filepath.Join(repoRoot, IgnoreFileName)
	if _, err := os.Stat(ignorePath); err != nil {
		return &IgnoreChecker{ignorer: gitignore.CompileIgnoreLines(defaultIgnoreRules...)}, nil
	}
	ig, err := gitignore.CompileIgnoreFileAndLines(ignorePath, defaultIgnoreRules...)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", IgnoreFileName, err)
	}
	return &IgnoreChecker{ignorer: ig}, nil
}

// IsIgnored reports whether a repo-relative, slash-separated path is
// ignored.
func (ic *IgnoreChecker) IsIgnored(path string) bool {
	if ic == nil || ic.ignorer == nil {
		return false
	}
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")
	if path == MetaDirName || strings.HasPrefix(path, MetaDirName+"/") {
		return true
	}
	return ic.ignorer.MatchesPath(path)
}
