package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Channel names an outbound service paced by a Throttle.
type Channel string

const (
	ChannelTranscript Channel = "transcript"
	ChannelGeneration Channel = "generation"
)

// Throttle enforces a minimum interval between calls on each channel.
// Admission on a channel is granted in arrival order. Safe for concurrent use.
type Throttle struct {
	mu       sync.Mutex
	limiters map[Channel]*rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottle builds a Throttle with one gate per channel.
// A zero or negative interval leaves that channel unpaced.
func NewThrottle(intervals map[Channel]time.Duration) *Throttle {
	t := &Throttle{
		limiters: make(map[Channel]*rate.Limiter, len(intervals)),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for ch, d := range intervals {
		t.limiters[ch] = newIntervalLimiter(d)
	}
	return t
}

func newIntervalLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Interval reports the configured minimum gap for ch (0 if unpaced).
func (t *Throttle) Interval(ch Channel) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[ch]
	if !ok || lim.Limit() == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(lim.Limit()))
}

// Acquire blocks until a call on ch is permitted.
// The only error is ctx.Err() when the caller gives up while waiting.
func (t *Throttle) Acquire(ctx context.Context, ch Channel) error {
	if t == nil {
		return ctx.Err()
	}
	t.mu.Lock()
	lim, ok := t.limiters[ch]
	if !ok {
		lim = rate.NewLimiter(rate.Inf, 1)
		t.limiters[ch] = lim
	}
	now := t.now()
	r := lim.ReserveN(now, 1)
	t.mu.Unlock()

	delay := r.DelayFrom(now)
	if delay <= 0 {
		return ctx.Err()
	}
	metrics.ThrottleWaits.Add(1)
	slog.Debug("throttle: waiting", slog.String("channel", string(ch)), slog.Duration("delay", delay))
	if err := t.sleep(ctx, delay); err != nil {
		r.CancelAt(t.now())
		return err
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
