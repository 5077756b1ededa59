package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	redisBreakerDuration = 30 * time.Second
	redisMinuteTTL       = 24 * time.Hour
	redisPingTimeout     = 2 * time.Second
	redisRecordTimeout   = 250 * time.Millisecond
)

// DialRedis connects to Redis and verifies it answers a PING.
func DialRedis(ctx context.Context, options *redis.Options) (*redis.Client, error) {
	if options == nil || strings.TrimSpace(options.Addr) == "" {
		return nil, fmt.Errorf("rate limit redis: missing address")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	client := newRedisClient(options)
	ctxPing, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rate limit redis: ping: %w", errPing)
	}
	return client, nil
}

// newRedisClient makes socket reads and writes honor context deadlines so
// Record's timeout bounds the request path.
func newRedisClient(options *redis.Options) *redis.Client {
	opts := *options
	opts.ContextTimeoutEnabled = true
	return redis.NewClient(&opts)
}

// RedisStats aggregates decision counters in Redis so several gateway
// processes can be observed together. Admission never depends on it.
type RedisStats struct {
	client *redis.Client
	prefix string

	mu           sync.Mutex
	breakerUntil time.Time
}

// NewRedisStats constructs a RedisStats sink.
func NewRedisStats(client *redis.Client, prefix string) *RedisStats {
	return &RedisStats{
		client: client,
		prefix: strings.Trim(strings.TrimSpace(prefix), ":"),
	}
}

// Record increments totals, a per-minute bucket and, for rejections, the per-identity denial score.
// Each call is bounded by redisRecordTimeout; a failure trips the breaker.
func (s *RedisStats) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.client == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	if s.isBreakerActive(at) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, redisRecordTimeout)
	defer cancel()

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}
	minuteKey := s.buildKey("minute", at.UTC().Format("200601021504"))

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.buildKey("total"), ev.Class.String()+":"+field, 1)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	pipe.Expire(ctx, minuteKey, redisMinuteTTL)
	if !ev.Allowed {
		pipe.ZIncrBy(ctx, s.buildKey("denied"), 1, string(ev.Identity))
	}
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		s.tripBreaker(errExec, at)
		return fmt.Errorf("rate limit redis: record stats: %w", errExec)
	}
	return nil
}

// Close releases the Redis client.
func (s *RedisStats) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStats) isBreakerActive(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.breakerUntil.IsZero() {
		return false
	}
	if now.Before(s.breakerUntil) {
		return true
	}
	s.breakerUntil = time.Time{}
	return false
}

func (s *RedisStats) tripBreaker(err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.breakerUntil.IsZero() && now.Before(s.breakerUntil) {
		return
	}
	s.breakerUntil = now.Add(redisBreakerDuration)
	log.WithError(err).Warn("rate limit: redis stats unavailable, pausing for 30s")
}

func (s *RedisStats) buildKey(parts ...string) string {
	joined := strings.Join(parts, ":")
	if s.prefix == "" {
		return joined
	}
	return s.prefix + ":" + joined
}
