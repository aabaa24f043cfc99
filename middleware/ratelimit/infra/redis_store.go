package infra

import (
	"context"
	"fmt"
	"time"

	"limitguard/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// windowScript executa incremento, expiração na criação e leitura do TTL como
// uma unidade atômica no Redis.
//
// KEYS[1] = chave do contador
// ARGV[1] = janela em milissegundos
// ARGV[2] = limite
//
// Retorno: {allowed (0/1), count, pttl_ms}
var windowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local window = tonumber(ARGV[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], window)
end
local pttl = redis.call("PTTL", KEYS[1])
if pttl < 0 then
    redis.call("PEXPIRE", KEYS[1], window)
    pttl = window
end
local allowed = 0
if count <= tonumber(ARGV[2]) then
    allowed = 1
end
return {allowed, count, pttl}
`)

// RedisWindowStore é o store compartilhado entre instâncias, baseado em Redis.
// A janela nasce no primeiro INCR e some pela expiração do próprio Redis.
type RedisWindowStore struct {
	rdb redis.Scripter
}

var (
	_ domain.WindowStore = (*RedisWindowStore)(nil)
	_ domain.Pinger      = (*RedisWindowStore)(nil)
)

func NewRedisWindowStore(rdb redis.Scripter) *RedisWindowStore {
	return &RedisWindowStore{rdb: rdb}
}

// Evaluate implementa domain.WindowStore.
func (s *RedisWindowStore) Evaluate(ctx context.Context, key domain.Key, limit int64, window time.Duration) (domain.WindowResult, error) {
	if s == nil || s.rdb == nil {
		return domain.WindowResult{}, fmt.Errorf("%w: redis client not configured", domain.ErrStoreUnavailable)
	}
	windowMs := window.Milliseconds()
	if windowMs <= 0 || limit <= 0 {
		return domain.WindowResult{}, fmt.Errorf("ratelimit: invalid window %s or limit %d", window, limit)
	}

	raw, err := windowScript.Run(ctx, s.rdb, []string{string(key)}, windowMs, limit).Int64Slice()
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("%w: eval: %w", domain.ErrStoreUnavailable, err)
	}
	if len(raw) != 3 || raw[1] < 1 {
		return domain.WindowResult{}, fmt.Errorf("%w: malformed script reply %v", domain.ErrStoreUnavailable, raw)
	}

	return domain.WindowResult{
		Allowed:      raw[0] == 1,
		Count:        raw[1],
		ResetSeconds: ceilSeconds(raw[2]),
	}, nil
}

// Ping implementa domain.Pinger quando o cliente suporta PING.
func (s *RedisWindowStore) Ping(ctx context.Context) error {
	p, ok := s.rdb.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	})
	if !ok {
		return nil
	}
	return p.Ping(ctx).Err()
}

func ceilSeconds(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms + 999) / 1000
}
