package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"limitguard/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Pipeliner é o pedaço do cliente Redis usado pelas estatísticas
// (atendido por *redis.Client, *redis.ClusterClient e *redis.Ring).
type Pipeliner interface {
	Pipeline() redis.Pipeliner
}

// RedisStatsStore agrega eventos em hashes no Redis, para que todas as instâncias
// somem no mesmo lugar.
//
// Chaves (prefixo padrão "ratelimit:stats"):
//   - <prefix>:total                 allowed/denied/degraded, cumulativo
//   - <prefix>:minute:<yyyymmddHHMM> mesmos campos por minuto, com TTL
//   - <prefix>:origin                <origin>:<campo>
//   - <prefix>:rule                  <rule>:<campo>
//   - <prefix>:key:<key>             por chave, só com WithStatsTrackKeys, com TTL
type RedisStatsStore struct {
	rdb Pipeliner

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

var _ domain.StatsStore = (*RedisStatsStore)(nil)

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb Pipeliner, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	fields := []string{"denied"}
	if ev.Allowed {
		fields[0] = "allowed"
	}
	if ev.Degraded {
		fields = append(fields, "degraded")
	}

	pipe := s.rdb.Pipeline()
	totalKey := s.prefix + ":total"
	bucketKey := ""
	if s.bucket == "minute" {
		bucketKey = fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	}
	origin := strings.TrimSpace(ev.Origin)
	if origin == "" {
		origin = domain.UnknownOrigin
	}
	keyKey := ""
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		keyKey = s.prefix + ":key:" + k
	}

	for _, field := range fields {
		pipe.HIncrBy(ctx, totalKey, field, 1)
		if bucketKey != "" {
			pipe.HIncrBy(ctx, bucketKey, field, 1)
		}
		pipe.HIncrBy(ctx, s.prefix+":origin", origin+":"+field, 1)
		if ev.Rule != "" {
			pipe.HIncrBy(ctx, s.prefix+":rule", ev.Rule+":"+field, 1)
		}
		if keyKey != "" {
			pipe.HIncrBy(ctx, keyKey, field, 1)
		}
	}
	if s.ttl > 0 {
		if bucketKey != "" {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
		if keyKey != "" {
			pipe.Expire(ctx, keyKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
