package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/metrics"
)

// NewRedisClient dials Redis and verifies the connection with a ping
// before handing the client back.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewStore returns the backing store for the limiters. Without a Redis
// client it is a plain in-process memory store. With one, the Redis store
// is wrapped in a circuit breaker that serves limits from a per-instance
// memory store while Redis is unhealthy, so limiting degrades instead of
// taking connections down with it.
func NewStore(client *redis.Client) (limiter.Store, error) {
	mem := memory.NewStore()
	if client == nil {
		logging.Warn(context.Background(), "Rate limiter using memory store (Redis disabled)")
		return mem, nil
	}

	primary, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "limiter:signaling:",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis limiter store: %w", err)
	}
	logging.Info(context.Background(), "Rate limiter using Redis store")

	st := gobreaker.Settings{
		Name:        "limiter-redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateHalfOpen:
				stateVal = 1
			case gobreaker.StateOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.Set(stateVal)
		},
	}

	return &breakerStore{
		primary:  primary,
		fallback: mem,
		cb:       gobreaker.NewCircuitBreaker(st),
	}, nil
}

// breakerStore routes limiter operations through a circuit breaker and
// serves them from the fallback store when Redis misbehaves.
type breakerStore struct {
	primary  limiter.Store
	fallback limiter.Store
	cb       *gobreaker.CircuitBreaker
}

type storeOp func(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error)

func (s *breakerStore) Get(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	return s.run(ctx, "get", key, rate, s.primary.Get, s.fallback.Get)
}

func (s *breakerStore) Peek(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	return s.run(ctx, "peek", key, rate, s.primary.Peek, s.fallback.Peek)
}

func (s *breakerStore) Reset(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	return s.run(ctx, "reset", key, rate, s.primary.Reset, s.fallback.Reset)
}

func (s *breakerStore) Increment(ctx context.Context, key string, count int64, rate limiter.Rate) (limiter.Context, error) {
	return s.run(ctx, "increment", key, rate,
		func(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
			return s.primary.Increment(ctx, key, count, rate)
		},
		func(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
			return s.fallback.Increment(ctx, key, count, rate)
		})
}

func (s *breakerStore) run(ctx context.Context, op, key string, rate limiter.Rate, primary, fallback storeOp) (limiter.Context, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return primary(ctx, key, rate)
	})
	if err == nil {
		metrics.RedisOperationsTotal.WithLabelValues(op, "ok").Inc()
		return res.(limiter.Context), nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RedisOperationsTotal.WithLabelValues(op, "breaker_open").Inc()
	} else {
		metrics.RedisOperationsTotal.WithLabelValues(op, "error").Inc()
		logging.Warn(ctx, "Limiter store falling back to memory", zap.String("operation", op), zap.Error(err))
	}
	return fallback(ctx, key, rate)
}
