package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/notesync/pkg/repo"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	v, err := Load("")
	require.NoError(t, err)
	s := Resolve(v, nil)
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, "console", s.LogFormat)
	assert.Equal(t, "ours", s.MergePolicy)
	assert.Equal(t, "memory", s.CacheBackend)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\ncache:\n  backend: sqlite\n  dsn: cache.db\n"), 0o644))
	t.Setenv("NOTESYNC_MERGE_POLICY", "union")

	v, err := Load(path)
	require.NoError(t, err)
	s := Resolve(v, nil)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "sqlite", s.CacheBackend)
	assert.Equal(t, "cache.db", s.CacheDSN)
	assert.Equal(t, "union", s.MergePolicy)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestResolveRepoConfigOverridesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NOTESYNC_USER_EMAIL", "env@example.com")

	v, err := Load("")
	require.NoError(t, err)
	rc := &repo.Config{
		User:  repo.UserConfig{Name: "Repo User", Email: "repo@example.com"},
		Merge: repo.MergeConfig{Policy: "theirs"},
		Cache: repo.CacheConfig{Backend: "redis", RedisURL: "redis://localhost:6379/0"},
	}
	s := Resolve(v, rc)
	assert.Equal(t, "Repo User", s.UserName)
	assert.Equal(t, "env@example.com", s.UserEmail, "environment wins over the repo file")
	assert.Equal(t, "theirs", s.MergePolicy)
	assert.Equal(t, "redis", s.CacheBackend)
	assert.Equal(t, "redis://localhost:6379/0", s.CacheRedisURL)
}
