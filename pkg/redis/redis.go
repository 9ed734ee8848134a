package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var NilError = goredis.Nil

type Options = goredis.UniversalOptions

// KV covers the plain key operations used for idempotency markers and settings cache.
type KV interface {
	Set(key string, value []byte, ttl time.Duration) error
	SetNX(key string, value []byte, ttl time.Duration) (bool, error)
	Get(key string) ([]byte, error)
	Del(key string) error
	Exist(key string) (int64, error)
}

// Counters backs the per-vehicle daily aggregates.
type Counters interface {
	HGetAll(key string) (map[string]string, error)
	HIncrementBatch(coreName, keySuffix string, fieldAndValues map[string]int64, ttl time.Duration) error
}

type RedisAdapter interface {
	KV
	Counters
	Streams
	Ping(ctx context.Context) error
	Client() goredis.UniversalClient
}

type redisAdapter struct {
	prefix string
	name   string
	conn   goredis.UniversalClient
}

var (
	registryMu sync.Mutex
	registry   = map[string]RedisAdapter{}
)

// NewRedisAdapter returns the adapter registered under connName, dialing and
// pinging a new client the first time a name is seen.
func NewRedisAdapter(connName string, keysPrefix string, opts *goredis.UniversalOptions) (RedisAdapter, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if a, ok := registry[connName]; ok {
		return a, nil
	}

	c := goredis.NewUniversalClient(opts)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis %s: %w", connName, err)
	}

	a := &redisAdapter{prefix: keysPrefix, name: connName, conn: c}
	registry[connName] = a
	return a, nil
}

// Forget drops a named adapter from the registry and closes its client.
func Forget(connName string) error {
	registryMu.Lock()
	a, ok := registry[connName]
	delete(registry, connName)
	registryMu.Unlock()

	if !ok {
		return nil
	}
	return a.Client().Close()
}

func (r *redisAdapter) key(k string) string { return r.prefix + k }

func (r *redisAdapter) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx).Err()
}

func (r *redisAdapter) Client() goredis.UniversalClient {
	return r.conn
}

func (r *redisAdapter) Set(key string, value []byte, ttl time.Duration) error {
	return r.conn.Set(context.Background(), r.key(key), value, ttl).Err()
}

func (r *redisAdapter) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	return r.conn.SetNX(context.Background(), r.key(key), value, ttl).Result()
}

func (r *redisAdapter) Get(key string) ([]byte, error) {
	return r.conn.Get(context.Background(), r.key(key)).Bytes()
}

func (r *redisAdapter) Del(key string) error {
	return r.conn.Del(context.Background(), r.key(key)).Err()
}

func (r *redisAdapter) Exist(key string) (int64, error) {
	return r.conn.Exists(context.Background(), r.key(key)).Result()
}

func (r *redisAdapter) HGetAll(key string) (map[string]string, error) {
	return r.conn.HGetAll(context.Background(), r.key(key)).Result()
}

// HIncrementBatch applies every increment to coreName+keySuffix inside MULTI/EXEC
// and refreshes the ttl, so readers never see half of a settlement counted.
func (r *redisAdapter) HIncrementBatch(coreName, keySuffix string, fieldAndValues map[string]int64, ttl time.Duration) error {
	ctx := context.Background()
	hash := r.key(coreName + keySuffix)

	cmds, err := r.conn.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		for field, v := range fieldAndValues {
			p.HIncrBy(ctx, hash, field, v)
		}
		if ttl > 0 {
			p.Expire(ctx, hash, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("hincr batch %s: %w", hash, err)
	}
	for _, c := range cmds {
		if c.Err() != nil {
			return fmt.Errorf("hincr batch %s: %w", hash, c.Err())
		}
	}
	return nil
}
