package rediskv

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jrsteele09/go-session-identity/kvstore"
	"github.com/redis/go-redis/v9"
)

var _ kvstore.Repo = (*RedisRepo)(nil)

// RedisRepo stores every key of one namespace as a field of a single Redis hash.
// Every process pointed at the same Redis and namespace shares the values, which
// makes it the cross-tab lifetime.
type RedisRepo struct {
	client redis.UniversalClient
	hash   string
}

// NewRedisRepo creates a repo backed by the hash "<namespace>:kv"
func NewRedisRepo(client redis.UniversalClient, namespace string) *RedisRepo {
	return &RedisRepo{
		client: client,
		hash:   namespace + ":kv",
	}
}

// NewClient creates a go-redis client from connection settings
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (r *RedisRepo) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis HGET %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisRepo) Upsert(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.hash, key, value).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", key, err)
	}
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.hash, keys...).Err(); err != nil {
		return fmt.Errorf("redis HDEL: %w", err)
	}
	return nil
}

// Apply sends the batch as one MULTI/EXEC transaction
func (r *RedisRepo) Apply(ctx context.Context, b *kvstore.Batch) error {
	if b.Empty() {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(b.Upserts) > 0 {
			fields := make([]any, 0, 2*len(b.Upserts))
			for k, v := range b.Upserts {
				fields = append(fields, k, v)
			}
			pipe.HSet(ctx, r.hash, fields...)
		}
		if len(b.Deletes) > 0 {
			pipe.HDel(ctx, r.hash, b.Deletes...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis MULTI: %w", err)
	}
	return nil
}

func (r *RedisRepo) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HKEYS: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
