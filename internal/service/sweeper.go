package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	sfotel "github.com/Strob0t/StockForge/internal/adapter/otel"
)

// Expirer closes overdue reservations.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// ExpirySweeper drives Expirer on a fixed interval, independent of request
// handling. Overlapping runs across instances are safe because every
// reservation is re-checked under its lock.
type ExpirySweeper struct {
	expirer  Expirer
	interval time.Duration
	metrics  *sfotel.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpirySweeper creates a sweeper running every interval.
func NewExpirySweeper(expirer Expirer, interval time.Duration, metrics *sfotel.Metrics) *ExpirySweeper {
	return &ExpirySweeper{expirer: expirer, interval: interval, metrics: metrics}
}

// Start launches the background sweep goroutine. It runs until ctx is
// cancelled or Stop is called. Calling Start twice is a no-op.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.interval <= 0 {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.RunOnce(ctx)
			}
		}
	}(s.done)
	slog.Info("expiry sweeper started", "interval", s.interval)
}

// Stop cancels the sweep goroutine and waits for an in-flight run to finish.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("expiry sweeper stopped")
}

// RunOnce performs a single sweep and returns the number of reservations expired.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (n int, err error) {
	start := time.Now()
	ctx, span := sfotel.StartSweepSpan(ctx)
	defer func() { sfotel.EndSpan(span, err) }()

	n, err = s.expirer.ExpireOverdue(ctx)
	s.metrics.RecordSweep(ctx, time.Since(start).Seconds())

	if err != nil {
		slog.Error("expiry sweep failed", "expired", n, "error", err)
		return n, err
	}
	if n > 0 {
		slog.Info("expired overdue reservations", "count", n, "duration_ms", time.Since(start).Milliseconds())
	}
	return n, nil
}
