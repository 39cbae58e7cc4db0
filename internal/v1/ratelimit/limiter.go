// Package ratelimit enforces the server's admission limits: how often an
// address may open connections, how many it may hold at once, and how fast
// a client may send frames. Limits are backed by Redis when configured and
// fail open, an unreachable limiter store should degrade enforcement, not
// availability.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/config"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/metrics"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// Decision reports a limiter verdict. RetryAfter is how long the caller
// should wait before trying again; it is zero when Allowed.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter holds the connection and message limiters.
type Limiter struct {
	connect  *limiter.Limiter
	messages *limiter.Limiter

	mu         sync.Mutex
	concurrent map[string]int
	maxPerAddr int
}

// New builds a Limiter from the configured rates, backed by store.
func New(cfg *config.Config, store limiter.Store) (*Limiter, error) {
	connectRate, err := limiter.NewRateFromFormatted(cfg.ConnectRateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid connect rate: %w", err)
	}
	messageRate := limiter.Rate{
		Period: cfg.MessageRateWindow,
		Limit:  int64(cfg.MessageRateLimit),
	}

	return &Limiter{
		connect:    limiter.New(store, connectRate),
		messages:   limiter.New(store, messageRate),
		concurrent: make(map[string]int),
		maxPerAddr: cfg.ConnectMaxConcurrent,
	}, nil
}

// AllowConnect decides whether addr may attempt another connection within
// the connect window.
func (l *Limiter) AllowConnect(ctx context.Context, addr string) Decision {
	lctx, err := l.connect.Get(ctx, "connect:"+addr)
	if err != nil {
		logging.Error(ctx, "Limiter store failed, allowing connect", zap.Error(err))
		return Decision{Allowed: true}
	}
	if lctx.Reached {
		metrics.RateLimitRejections.WithLabelValues("connect").Inc()
		return Decision{RetryAfter: untilReset(lctx.Reset)}
	}
	return Decision{Allowed: true}
}

// AcquireConn counts a live connection against addr's concurrency cap and
// reports whether the cap had room. Every successful acquire must be paired
// with a ReleaseConn when the connection ends.
func (l *Limiter) AcquireConn(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.concurrent[addr] >= l.maxPerAddr {
		metrics.RateLimitRejections.WithLabelValues("concurrent").Inc()
		return false
	}
	l.concurrent[addr]++
	return true
}

// ReleaseConn returns addr's concurrency slot.
func (l *Limiter) ReleaseConn(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := l.concurrent[addr]; n <= 1 {
		delete(l.concurrent, addr)
	} else {
		l.concurrent[addr] = n - 1
	}
}

// AllowMessage decides whether clientID may send another frame in the
// current window.
func (l *Limiter) AllowMessage(ctx context.Context, clientID types.ClientIdType) Decision {
	lctx, err := l.messages.Get(ctx, "msg:"+string(clientID))
	if err != nil {
		logging.Error(ctx, "Limiter store failed, allowing message", zap.Error(err))
		return Decision{Allowed: true}
	}
	if lctx.Reached {
		metrics.RateLimitRejections.WithLabelValues("message").Inc()
		return Decision{RetryAfter: untilReset(lctx.Reset)}
	}
	return Decision{Allowed: true}
}

// untilReset converts the limiter's unix reset timestamp into a wait,
// clamped to at least one second so clients never retry in a tight loop.
func untilReset(reset int64) time.Duration {
	d := time.Until(time.Unix(reset, 0))
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}
