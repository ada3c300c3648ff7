package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/odvcencio/notesync/internal/config"
	"github.com/odvcencio/notesync/internal/logging"
	"github.com/odvcencio/notesync/pkg/diffcache"
	"github.com/odvcencio/notesync/pkg/object"
	"github.com/odvcencio/notesync/pkg/repo"
	"github.com/odvcencio/notesync/pkg/treediff"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfgFile  string
	logLevel string

	v       *viper.Viper
	logger  *zap.Logger
	metrics *prometheus.Registry
	closers []io.Closer
}

func (a *app) load(cmd *cobra.Command) error {
	v, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		v.Set("log.level", a.logLevel)
	}
	logger, err := logging.New(v.GetString("log.level"), v.GetString("log.format"))
	if err != nil {
		return err
	}
	a.v = v
	a.logger = logger
	a.metrics = prometheus.NewRegistry()
	return nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// open finds the repository enclosing the working directory and resolves
// its settings.
func (a *app) open() (*repo.Repo, config.Settings, error) {
	r, err := repo.Open(".")
	if err != nil {
		return nil, config.Settings{}, err
	}
	r.SetLogger(a.logger)
	rc, err := r.ReadConfig()
	if err != nil {
		return nil, config.Settings{}, err
	}
	return r, config.Resolve(a.v, rc), nil
}

func (a *app) signature(r *repo.Repo, s config.Settings) object.Signature {
	now := time.Now()
	if strings.TrimSpace(s.UserName) == "" {
		return r.DefaultSignature(now)
	}
	return object.NewSignature(s.UserName, s.UserEmail, now)
}

// diffCache builds the configured cache backend behind a process-local
// memory layer, counting outcomes in the app's registry.
func (a *app) diffCache(s config.Settings) (*diffcache.Instrumented, error) {
	var backend diffcache.Store
	switch strings.ToLower(s.CacheBackend) {
	case "", "memory":
		return diffcache.NewInstrumented(diffcache.NewMemory(), a.metrics), nil
	case "redis":
		rs, err := diffcache.NewRedis(diffcache.RedisConfig{URL: s.CacheRedisURL})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs)
		backend = rs
	case "sqlite", "postgres":
		if s.CacheDSN == "" {
			return nil, fmt.Errorf("cache backend %s needs cache.dsn", s.CacheBackend)
		}
		sqlStore, err := diffcache.OpenSQL(strings.ToLower(s.CacheBackend), s.CacheDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sqlStore)
		backend = sqlStore
	default:
		return nil, fmt.Errorf("unknown cache backend %q", s.CacheBackend)
	}
	a.logger.Debug("diff cache", zap.String("backend", s.CacheBackend))
	return diffcache.NewInstrumented(diffcache.NewTiered(diffcache.NewMemory(), backend), a.metrics), nil
}

func (a *app) engine(r *repo.Repo, s config.Settings) (*treediff.Engine, *diffcache.Instrumented, error) {
	cache, err := a.diffCache(s)
	if err != nil {
		return nil, nil, err
	}
	project := s.CacheProject
	if project == "" {
		project = filepath.Base(r.RootDir)
	}
	e := treediff.NewEngine(r, cache, project,
		treediff.WithLogger(a.logger),
		treediff.WithDiffOptions(treediff.Options{DetectRenames: true}))
	return e, cache, nil
}

func currentBranchLabel(r *repo.Repo) string {
	head, err := r.Head()
	if err == nil && strings.HasPrefix(head, "refs/heads/") {
		return strings.TrimPrefix(head, "refs/heads/")
	}
	return "HEAD"
}
