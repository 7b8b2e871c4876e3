package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard admits at most one status advance per task id at a time.
type Guard interface {
	// Acquire claims id. ok is false when another advance holds it.
	Acquire(ctx context.Context, id int64) (token string, ok bool, err error)
	// Release frees id if token still holds it.
	Release(ctx context.Context, id int64, token string) error
}

// MemoryGuard guards ids within one process.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[int64]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: map[int64]string{}}
}

func (g *MemoryGuard) Acquire(_ context.Context, id int64) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[id]; busy {
		return "", false, nil
	}
	token := uuid.NewString()
	g.held[id] = token
	return token, true, nil
}

func (g *MemoryGuard) Release(_ context.Context, id int64, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[id] == token {
		delete(g.held, id)
	}
	return nil
}

// releaseScript deletes the lock only while it still carries our token, so a
// lease that expired and was taken over is left to its new owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares the guard across replicas. Locks expire after ttl so a
// crashed holder cannot wedge a task.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisGuard creates a guard storing locks under prefix.
func NewRedisGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) key(id int64) string {
	return fmt.Sprintf("%sadvance:%d", g.prefix, id)
}

func (g *RedisGuard) Acquire(ctx context.Context, id int64) (string, bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key(id), token, g.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, id int64, token string) error {
	return releaseScript.Run(ctx, g.client, []string{g.key(id)}, token).Err()
}
