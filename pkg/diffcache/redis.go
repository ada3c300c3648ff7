package diffcache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "notesync:diff:"

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	URL string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL time.Duration // 0 keeps entries until purged
}

// Redis stores path sets as canonical CBOR arrays.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	enc    cbor.EncMode
}

// NewRedis connects to the server in cfg.URL and pings it before returning.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisWithClient(client, cfg.TTL)
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) (*Redis, error) {
	enc, err := cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	return &Redis{client: client, ttl: ttl, enc: enc}, nil
}

// Close releases the underlying connection pool.
func (s *Redis) Close() error { return s.client.Close() }

// redisProjectPrefix hex-encodes the project so no project's keys fall
// under another project's prefix and the name carries no glob characters.
func redisProjectPrefix(project string) string {
	return redisKeyPrefix + hex.EncodeToString([]byte(project)) + ":"
}

func redisKey(key Key) string {
	return redisProjectPrefix(key.Project) + string(key.Commit) + ":" + string(key.Against)
}

func (s *Redis) Load(ctx context.Context, key Key) ([]string, bool, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var paths []string
	if err := cbor.Unmarshal(data, &paths); err != nil {
		return nil, false, fmt.Errorf("decode cached paths: %w", err)
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, true, nil
}

func (s *Redis) Save(ctx context.Context, key Key, paths []string) error {
	data, err := s.enc.Marshal(sortedCopy(paths))
	if err != nil {
		return fmt.Errorf("encode cached paths: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Purge deletes every key of project. Keys are scanned in batches; failed
// deletes are collected and the scan continues.
func (s *Redis) Purge(ctx context.Context, project string) error {
	var result *multierror.Error
	iter := s.client.Scan(ctx, 0, redisProjectPrefix(project)+"*", 256).Iterator()
	batch := make([]string, 0, 256)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			result = multierror.Append(result, fmt.Errorf("redis del: %w", err))
		}
		batch = batch[:0]
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			flush()
		}
	}
	flush()
	if err := iter.Err(); err != nil {
		result = multierror.Append(result, fmt.Errorf("redis scan: %w", err))
	}
	return result.ErrorOrNil()
}
