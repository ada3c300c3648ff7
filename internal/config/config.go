// Package config loads process-level settings for the notesync CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/odvcencio/notesync/pkg/repo"
)

const envPrefix = "NOTESYNC"

// Settings is the resolved process configuration.
type Settings struct {
	LogLevel  string
	LogFormat string

	UserName  string
	UserEmail string

	MergePolicy string

	CacheBackend  string
	CacheRedisURL string
	CacheDSN      string
	CacheProject  string
}

// Load reads defaults, an optional notesync.yaml and NOTESYNC_* environment
// variables into a fresh viper instance. cfgFile, when set, names the file
// explicitly and must exist.
func Load(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("notesync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".notesync"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
	v.SetDefault("user.name", "")
	v.SetDefault("user.email", "")
	v.SetDefault("merge.policy", "ours")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.project", "")
}

// Resolve merges v with a repository config. Values set in the repository
// file win over defaults; values from the environment or notesync.yaml win
// over both.
func Resolve(v *viper.Viper, rc *repo.Config) Settings {
	if rc == nil {
		rc = &repo.Config{}
	}
	pick := func(key, repoValue string) string {
		if repoValue != "" && !explicit(v, key) {
			return repoValue
		}
		return v.GetString(key)
	}
	return Settings{
		LogLevel:      v.GetString("log.level"),
		LogFormat:     v.GetString("log.format"),
		UserName:      pick("user.name", rc.User.Name),
		UserEmail:     pick("user.email", rc.User.Email),
		MergePolicy:   pick("merge.policy", rc.Merge.Policy),
		CacheBackend:  pick("cache.backend", rc.Cache.Backend),
		CacheRedisURL: pick("cache.redis_url", rc.Cache.RedisURL),
		CacheDSN:      pick("cache.dsn", rc.Cache.DSN),
		CacheProject:  pick("cache.project", rc.Cache.Project),
	}
}

// explicit reports whether key came from the config file or environment
// rather than a default.
func explicit(v *viper.Viper, key string) bool {
	if v.InConfig(key) {
		return true
	}
	_, ok := os.LookupEnv(envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	return ok
}
