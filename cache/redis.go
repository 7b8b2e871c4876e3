package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldData  = "data"
	fieldFresh = "fresh"
)

// Redis is a Backend shared by every process pointing at the same server.
// Each key is a hash holding the payload and its freshness, plus a counter
// holding the generation.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis backend. Entries expire after ttl; zero keeps them
// until invalidated and replaced.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl < 0 {
		ttl = 0
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) dataKey(key string) string { return r.prefix + key }

func (r *Redis) genKey(key string) string { return r.prefix + key + ":gen" }

func (r *Redis) Load(ctx context.Context, key string) (Entry, bool, uint64, error) {
	pipe := r.client.Pipeline()
	hash := pipe.HGetAll(ctx, r.dataKey(key))
	genCmd := pipe.Get(ctx, r.genKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, 0, err
	}

	gen, err := genCmd.Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, 0, err
	}
	fields := hash.Val()
	data, ok := fields[fieldData]
	if !ok {
		return Entry{}, false, gen, nil
	}
	return Entry{Data: []byte(data), Fresh: fields[fieldFresh] == "1"}, true, gen, nil
}

func (r *Redis) Store(ctx context.Context, key string, data []byte, gen uint64) (bool, error) {
	dataKey := r.dataKey(key)
	genKey := r.genKey(key)
	stored := false
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, dataKey, fieldData, data, fieldFresh, "1")
			if r.ttl > 0 {
				pipe.Expire(ctx, dataKey, r.ttl)
			}
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		// The generation moved while we were writing.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored, nil
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	dataKey := r.dataKey(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.genKey(key))
		// Only flag an existing payload; a bare hash without data reads as a miss.
		pipe.HSet(ctx, dataKey, fieldFresh, "0")
		return nil
	})
	return err
}
