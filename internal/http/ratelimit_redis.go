package http

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

const (
	redisLimiterPrefix  = "blogpress:ratelimit:"
	redisConnectTimeout = 5 * time.Second
	redisCallTimeout    = 250 * time.Millisecond
)

// ConnectRedis parses url, opens a client and verifies it with a ping.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "parsing redis url")
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "connecting to redis")
	}

	return client, nil
}

// RedisLimiter counts requests per client in fixed windows shared through Redis, so
// every replica enforces the same budget. A window admits burst requests and lasts
// burst/requestsPerSecond seconds.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter constructs a limiter backed by client.
func NewRedisLimiter(client redis.Cmdable, burst int, requestsPerSecond float64, logger *logrus.Logger) (*RedisLimiter, error) {
	if client == nil {
		return nil, eris.New("redis client is required")
	}
	if burst <= 0 {
		return nil, eris.New("rate limiter burst must be greater than zero")
	}
	if requestsPerSecond <= 0 {
		return nil, eris.New("rate limiter requests per second must be greater than zero")
	}

	window := time.Duration(float64(burst) / requestsPerSecond * float64(time.Second))
	if window < time.Second {
		window = time.Second
	}

	return &RedisLimiter{
		client: client,
		limit:  int64(burst),
		window: window,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Allow increments the caller's counter for the current window. Redis failures admit
// the request.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		key = "unknown"
	}

	slot := l.now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", redisLimiterPrefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		if l.logger != nil {
			l.logger.WithFields(logrus.Fields{"component": "http.ratelimit", "key": key}).
				WithError(err).Warn("redis rate limiter unavailable")
		}
		return true
	}

	return incr.Val() <= l.limit
}
