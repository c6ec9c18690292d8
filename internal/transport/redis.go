package transport

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/config"
)

const (
	defaultRedisKey = "printspool:jobs"
	popTimeout      = time.Second
	redisBackoff    = time.Second
)

// RedisSource pops records from a Redis list. Producers RPUSH
// "invoiceId:template:output" strings onto the key.
type RedisSource struct {
	client *redis.Client
	key    string
	enq    Enqueuer
	logger *zap.Logger
}

func NewRedisSource(cfg config.RedisConfig, enq Enqueuer, logger *zap.Logger) *RedisSource {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisSource(client, cfg.Key, enq, logger)
}

func newRedisSource(client *redis.Client, key string, enq Enqueuer, logger *zap.Logger) *RedisSource {
	if key == "" {
		key = defaultRedisKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSource{client: client, key: key, enq: enq, logger: logger}
}

// Run blocks until ctx is done.
func (s *RedisSource) Run(ctx context.Context) error {
	s.logger.Info("redis job source started", zap.String("key", s.key))

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := s.client.BLPop(ctx, popTimeout, s.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("redis pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(redisBackoff):
			}
			continue
		}

		// BLPOP answers [key, value]
		if len(res) == 2 {
			submit(res[1], "redis", s.enq, s.logger)
		}
	}
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}
