package repo

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the repository-local settings file .notesync/config.toml.
type Config struct {
	User  UserConfig  `toml:"user"`
	Merge MergeConfig `toml:"merge"`
	Cache CacheConfig `toml:"cache"`
}

type UserConfig struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

type MergeConfig struct {
	// Policy is one of "ours", "theirs", "union" or "manual".
	Policy string `toml:"policy,omitempty"`
}

// CacheConfig selects the backend of the commit diff cache.
type CacheConfig struct {
	Backend  string `toml:"backend,omitempty"` // memory, redis, sqlite, postgres
	RedisURL string `toml:"redis_url,omitempty"`
	DSN      string `toml:"dsn,omitempty"`
	Project  string `toml:"project,omitempty"`
}

func (r *Repo) configPath() string {
	return filepath.Join(r.MetaDir, "config.toml")
}

// ReadConfig reads .notesync/config.toml. A missing file is an empty
// config.
func (r *Repo) ReadConfig() (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(r.configPath(), &cfg); err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return &cfg, nil
}

// WriteConfig atomically writes .notesync/config.toml.
func (r *Repo) WriteConfig(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}
	if err := r.writeMetaFile("config.toml", buf.Bytes()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// writeMetaFile replaces a file under .notesync/ via temp file + rename.
func (r *Repo) writeMetaFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(r.MetaDir, "."+filepath.Base(name)+"-tmp-*")
	if err != nil {
		return fmt.Errorf("tmpfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(r.MetaDir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
