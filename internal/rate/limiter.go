package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces the counters.
const DefaultPrefix = "lkc:signin"

// Config holds limiter tuning parameters.
type Config struct {
	// MaxAttempts is the number of failed sign-ins allowed per window.
	MaxAttempts int
	// Cooldown is the window length, counted from the first failure.
	Cooldown time.Duration
	// PerIP also counts failures per client IP.
	PerIP  bool
	Prefix string
}

// DefaultConfig allows five failures per matricule and per IP every
// fifteen minutes.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Cooldown:    15 * time.Minute,
		PerIP:       true,
		Prefix:      DefaultPrefix,
	}
}

// Limiter counts failed sign-ins per matricule and per IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client. Zero fields of
// cfg take their DefaultConfig values.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, errors.New("rate: nil redis client")
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	return &Limiter{redis: redisClient, config: cfg}, nil
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.config
}

// Check reports ErrRateLimited when matricule or ip has used up its budget.
// It does not count the attempt.
func (l *Limiter) Check(ctx context.Context, matricule, ip string) error {
	for _, key := range l.keys(matricule, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// Fail records a failed sign-in and returns ErrRateLimited once the budget
// is spent.
func (l *Limiter) Fail(ctx context.Context, matricule, ip string) error {
	limited := false
	for _, key := range l.keys(matricule, ip) {
		count, err := l.incrementWithTTL(ctx, key)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the matricule counter after a successful sign-in. The IP
// counter keeps running so one good account cannot unlock guessing on others.
func (l *Limiter) Reset(ctx context.Context, matricule string) error {
	if err := l.redis.Del(ctx, l.matriculeKey(matricule)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the failure count recorded for matricule.
func (l *Limiter) Attempts(ctx context.Context, matricule string) (int, error) {
	count, err := l.redis.Get(ctx, l.matriculeKey(matricule)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// RetryAfter returns the time left in the matricule's window.
func (l *Limiter) RetryAfter(ctx context.Context, matricule string) time.Duration {
	ttl, err := l.redis.TTL(ctx, l.matriculeKey(matricule)).Result()
	if err != nil || ttl < 0 {
		return l.config.Cooldown
	}
	return ttl
}

func (l *Limiter) keys(matricule, ip string) []string {
	keys := []string{l.matriculeKey(matricule)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, l.config.Prefix+":ip:"+ip)
	}
	return keys
}

func (l *Limiter) matriculeKey(matricule string) string {
	return l.config.Prefix + ":m:" + strings.ToUpper(strings.TrimSpace(matricule))
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set on the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
