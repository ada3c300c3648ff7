package diffcache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/odvcencio/notesync/pkg/object"
)

func testKey(project, commit string) Key {
	return Key{
		Project: project,
		Commit:  object.HashBytes([]byte(commit)),
		Against: object.HashBytes([]byte(commit + "^")),
	}
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	k := testKey("notes", "c1")

	_, ok, err := s.Load(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok, "empty cache must miss")

	require.NoError(t, s.Save(ctx, k, []string{"b.md", "a.md", "b.md"}))
	paths, ok, err := s.Load(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a.md", "b.md"}, paths)

	empty := testKey("notes", "c2")
	require.NoError(t, s.Save(ctx, empty, nil))
	paths, ok, err = s.Load(ctx, empty)
	require.NoError(t, err)
	require.True(t, ok, "an empty touched set is still a hit")
	assert.Empty(t, paths)

	require.NoError(t, s.Save(ctx, k, []string{"c.md"}))
	paths, _, err = s.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.md"}, paths, "save overwrites")

	other := testKey("journal", "c1")
	require.NoError(t, s.Save(ctx, other, []string{"x.md"}))

	require.NoError(t, s.Purge(ctx, "notes"))
	_, ok, err = s.Load(ctx, k)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Load(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok, "purge is scoped to one project")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	k := testKey("notes", "c1")
	in := []string{"a.md"}
	require.NoError(t, m.Save(ctx, k, in))
	in[0] = "mutated"

	out, _, err := m.Load(ctx, k)
	require.NoError(t, err)
	out[0] = "mutated again"

	again, _, err := m.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, again)
}

func setupSQLStore(t *testing.T) *SQL {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := NewSQL(db)
	require.NoError(t, err)
	return s
}

func TestSQLStore(t *testing.T) {
	exerciseStore(t, setupSQLStore(t))
}

func TestSQLStoreClose(t *testing.T) {
	s, err := OpenSQL("sqlite", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, testKey("notes", "c1"), []string{"a.md"}))
	require.NoError(t, s.Close())

	_, _, err = s.Load(ctx, testKey("notes", "c1"))
	assert.Error(t, err, "load after close")
}

func TestOpenSQLRejectsUnknownDriver(t *testing.T) {
	_, err := OpenSQL("oracle", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sql driver")
}

func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	s, err := NewRedisWithClient(client, time.Minute)
	require.NoError(t, err)
	defer s.Close()

	// Start from a clean slate for both projects used below.
	require.NoError(t, s.Purge(context.Background(), "notes"))
	require.NoError(t, s.Purge(context.Background(), "journal"))
	exerciseStore(t, s)
	require.NoError(t, s.Purge(context.Background(), "journal"))

	ctx = context.Background()
	for _, project := range []string{"notes", "notes:x", "n*"} {
		require.NoError(t, s.Save(ctx, testKey(project, "c1"), []string{"a.md"}))
	}
	require.NoError(t, s.Purge(ctx, "notes"))
	for _, project := range []string{"notes:x", "n*"} {
		_, ok, err := s.Load(ctx, testKey(project, "c1"))
		require.NoError(t, err)
		assert.True(t, ok, "purging notes removed %s", project)
		require.NoError(t, s.Purge(ctx, project))
	}
}

func TestRedisProjectPrefixIsolatesProjects(t *testing.T) {
	notes := redisProjectPrefix("notes")
	assert.False(t, strings.HasPrefix(redisKey(testKey("notes:x", "c1")), notes))
	assert.True(t, strings.HasPrefix(redisKey(testKey("notes", "c1")), notes))
	assert.NotContains(t, redisProjectPrefix("n*[?]"), "*")
	assert.NotContains(t, redisProjectPrefix("n*[?]"), "[")
}

func TestInstrumentedCountsOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s := NewInstrumented(NewMemory(), reg)
	k := testKey("notes", "c1")

	_, _, _ = s.Load(ctx, k)
	require.NoError(t, s.Save(ctx, k, []string{"a.md"}))
	_, _, _ = s.Load(ctx, k)
	_, _, _ = s.Load(ctx, k)
	require.NoError(t, s.Purge(ctx, "notes"))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Counter("load", "miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.Counter("load", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Counter("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Counter("purge", "ok")))

	n, err := testutil.GatherAndCount(reg, "notesync_diffcache_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context, Key) ([]string, bool, error) { return nil, false, f.err }
func (f failingStore) Save(context.Context, Key, []string) error         { return f.err }
func (f failingStore) Purge(context.Context, string) error               { return f.err }

func TestInstrumentedCountsErrors(t *testing.T) {
	boom := errors.New("boom")
	s := NewInstrumented(failingStore{err: boom}, nil)
	_, _, err := s.Load(context.Background(), testKey("notes", "c1"))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Save(context.Background(), testKey("notes", "c1"), nil), boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Counter("load", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Counter("save", "error")))
}

func TestTieredBackfillsUpperLayers(t *testing.T) {
	ctx := context.Background()
	fast, slow := NewMemory(), NewMemory()
	tiered := NewTiered(fast, slow)
	k := testKey("notes", "c1")

	require.NoError(t, slow.Save(ctx, k, []string{"a.md"}))
	paths, ok, err := tiered.Load(ctx, k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a.md"}, paths)
	assert.Equal(t, 1, fast.Len(), "hit in the slow layer backfills the fast one")

	exerciseStore(t, NewTiered(NewMemory(), NewMemory()))
}

func TestTieredSkipsFailingLayer(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	slow := NewMemory()
	tiered := NewTiered(failingStore{err: boom}, slow)
	k := testKey("notes", "c1")
	require.NoError(t, slow.Save(ctx, k, []string{"a.md"}))

	paths, ok, err := tiered.Load(ctx, k)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a.md"}, paths)

	err = tiered.Save(ctx, k, []string{"b.md"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	got, _, _ := slow.Load(ctx, k)
	assert.Equal(t, []string{"b.md"}, got, "healthy layers still receive the save")
}
