package producer

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fbittq01/vehicle-manage/errors"
	"github.com/fbittq01/vehicle-manage/message"
)

// Default detection poll interval bounds
const (
	DefaultMinInterval = 3 * time.Second
	DefaultMaxInterval = 8 * time.Second
)

// DetectionConfig holds detection producer settings
type DetectionConfig struct {
	MinInterval time.Duration
	MaxInterval time.Duration
}

func (c *DetectionConfig) applyDefaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
}

// Detection polls the recognizer on a randomized interval and sends each
// detection as a license_plate_detected envelope. When the link is down
// the detection is dropped and counted (at most once, no buffering).
// Recognizer or send failures are reported via an error envelope when
// possible and never terminate the loop.
type Detection struct {
	cfg        DetectionConfig
	sender     Sender
	recognizer Recognizer
	recorder   Recorder
	logger     *slog.Logger

	randMu sync.Mutex
	rng    *rand.Rand

	paused atomic.Bool

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewDetection creates the detection producer. recorder may be nil.
func NewDetection(
	cfg DetectionConfig,
	sender Sender,
	rec Recognizer,
	recorder Recorder,
	logger *slog.Logger,
) *Detection {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Detection{
		cfg:        cfg,
		sender:     sender,
		recognizer: rec,
		recorder:   recorder,
		logger:     logger.With("component", "detection_producer"),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		shutdown:   make(chan struct{}),
	}
}

// Start launches the producer loop
func (p *Detection) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"Detection", "Start", "producer already running")
	}
	p.started = true

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop terminates the loop, waiting up to timeout
func (p *Detection) Stop(timeout time.Duration) error {
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
			"Detection", "Stop", "producer did not stop in time")
	}
}

// Pause suspends detection without stopping the loop (stop_processing)
func (p *Detection) Pause() {
	if p.paused.CompareAndSwap(false, true) {
		p.logger.Info("detection paused")
	}
}

// Resume re-enables detection (start_processing)
func (p *Detection) Resume() {
	if p.paused.CompareAndSwap(true, false) {
		p.logger.Info("detection resumed")
	}
}

// Paused reports whether detection is suspended
func (p *Detection) Paused() bool {
	return p.paused.Load()
}

// Counts returns (sent, dropped, failed)
func (p *Detection) Counts() (int64, int64, int64) {
	return p.sent.Load(), p.dropped.Load(), p.failed.Load()
}

func (p *Detection) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		timer := time.NewTimer(p.nextInterval())
		select {
		case <-p.shutdown:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if p.paused.Load() {
			continue
		}
		p.emit()
	}
}

func (p *Detection) nextInterval() time.Duration {
	spread := p.cfg.MaxInterval - p.cfg.MinInterval
	if spread <= 0 {
		return p.cfg.MinInterval
	}
	p.randMu.Lock()
	jitter := time.Duration(p.rng.Int63n(int64(spread)))
	p.randMu.Unlock()
	return p.cfg.MinInterval + jitter
}

func (p *Detection) emit() {
	payload, ok := p.recognizer.ProduceDetection()
	if !ok {
		return
	}

	env := message.NewDetection(payload)
	if err := p.sender.Send(env); err != nil {
		if errors.Is(err, errors.ErrNotConnected) {
			// Offline: drop and count, never buffer
			p.dropped.Add(1)
			if p.recorder != nil {
				p.recorder.RecordDropped()
			}
			p.logger.Debug("dropping detection while disconnected",
				"plate", payload.LicensePlate)
			return
		}

		p.failed.Add(1)
		if p.recorder != nil {
			p.recorder.RecordError()
		}
		p.logger.Warn("detection send failed",
			"plate", payload.LicensePlate, "error", err)
		p.reportError("DETECTION_SEND_FAILED", err)
		return
	}

	p.sent.Add(1)
	if p.recorder != nil {
		p.recorder.RecordProcessed()
	}
	p.logger.Info("detection sent",
		"plate", payload.LicensePlate,
		"gate", payload.GateID,
		"action", payload.Action,
		"confidence", payload.Confidence)
}

// reportError pushes an error envelope, best effort
func (p *Detection) reportError(code string, cause error) {
	env := message.NewError(&message.ErrorPayload{
		ErrorCode: code,
		Message:   cause.Error(),
		Severity:  message.SeverityMedium,
		Details: map[string]any{
			"errorId": uuid.NewString(),
		},
	})
	if err := p.sender.Send(env); err != nil {
		p.logger.Debug("error report not delivered", "error", err)
	}
}
