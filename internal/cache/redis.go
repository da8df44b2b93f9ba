package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/SamoraDC/marketdata/internal/adapters"
	"github.com/SamoraDC/marketdata/internal/observ"
)

// RedisTier is a Redis-backed alternative to the in-memory L2: same TTL
// semantics, shared across processes. Backend errors degrade to a cache miss
// so Redis being down never fails the read path.
type RedisTier struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

// RedisConfig holds the connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

const redisKeyPrefix = "bars:"

// NewRedisTier connects and pings the server.
func NewRedisTier(cfg RedisConfig, ttl time.Duration, logger *logrus.Logger) (*RedisTier, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisTier{
		client: client,
		ttl:    ttl,
		logger: logger.WithField("component", "redis_cache"),
	}, nil
}

func (r *RedisTier) Name() string { return "l2" }

func (r *RedisTier) Get(ctx context.Context, key string) ([]adapters.Bar, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		r.logger.WithField("error", err.Error()).Warn("redis get failed, treating as miss")
		observ.IncCounter("cache_backend_errors_total", map[string]string{"tier": "l2"})
		return nil, false
	}
	var bars []adapters.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		r.logger.WithField("error", err.Error()).Warn("corrupt redis entry, dropping")
		r.client.Del(ctx, redisKeyPrefix+key)
		return nil, false
	}
	return bars, true
}

func (r *RedisTier) Put(ctx context.Context, key string, bars []adapters.Bar) {
	data, err := json.Marshal(bars)
	if err != nil {
		r.logger.WithField("error", err.Error()).Error("failed to marshal bars")
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		r.logger.WithField("error", err.Error()).Warn("redis set failed")
		observ.IncCounter("cache_backend_errors_total", map[string]string{"tier": "l2"})
	}
}

func (r *RedisTier) DeletePrefix(ctx context.Context, prefix string) {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.WithField("error", err.Error()).Warn("redis delete failed")
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.WithField("error", err.Error()).Warn("redis scan failed")
	}
}

func (r *RedisTier) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	n, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the connection pool.
func (r *RedisTier) Close() error { return r.client.Close() }
