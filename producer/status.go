package producer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fbittq01/vehicle-manage/errors"
	"github.com/fbittq01/vehicle-manage/message"
)

// DefaultStatusInterval is how often status reports are pushed
const DefaultStatusInterval = 30 * time.Second

// Status pushes periodic processing_status envelopes built from the
// lifecycle controller's counters. SendNow serves the collector's
// get_status command between ticks.
type Status struct {
	interval time.Duration
	sender   Sender
	source   StatsSource
	logger   *slog.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool

	sent    atomic.Int64
	dropped atomic.Int64
}

// NewStatus creates the status producer
func NewStatus(interval time.Duration, sender Sender, source StatsSource, logger *slog.Logger) *Status {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	return &Status{
		interval: interval,
		sender:   sender,
		source:   source,
		logger:   logger.With("component", "status_producer"),
		shutdown: make(chan struct{}),
	}
}

// Start launches the report loop
func (p *Status) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"Status", "Start", "producer already running")
	}
	p.started = true

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop terminates the loop, waiting up to timeout
func (p *Status) Stop(timeout time.Duration) error {
	p.shutdownOnce.Do(func() { close(p.shutdown) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(errors.ErrConnectionTimeout,
			"Status", "Stop", "producer did not stop in time")
	}
}

// Counts returns (sent, dropped)
func (p *Status) Counts() (int64, int64) {
	return p.sent.Load(), p.dropped.Load()
}

func (p *Status) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SendNow()
		}
	}
}

// SendNow pushes one status report immediately
func (p *Status) SendNow() {
	payload := p.source.StatusPayload()
	if payload == nil {
		return
	}

	env := message.NewStatus(payload)
	if err := p.sender.Send(env); err != nil {
		if errors.Is(err, errors.ErrNotConnected) {
			p.dropped.Add(1)
			p.logger.Debug("dropping status report while disconnected")
			return
		}
		p.logger.Warn("status send failed", "error", err)
		return
	}

	p.sent.Add(1)
	p.logger.Debug("status report sent",
		"status", payload.Status,
		"processed", payload.ProcessedCount,
		"errors", payload.ErrorCount)
}
