package agent

import (
	"context"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fbittq01/vehicle-manage/config"
	"github.com/fbittq01/vehicle-manage/connection"
	"github.com/fbittq01/vehicle-manage/dispatch"
	"github.com/fbittq01/vehicle-manage/errors"
	"github.com/fbittq01/vehicle-manage/message"
	"github.com/fbittq01/vehicle-manage/metric"
	"github.com/fbittq01/vehicle-manage/producer"
	"github.com/fbittq01/vehicle-manage/recognizer"
)

// Controller wires the connection manager, dispatcher, and producers
// into one supervised process: Init -> Running -> Stopping -> Stopped.
type Controller struct {
	cfg       *config.Config
	logger    *slog.Logger
	sessionID string

	conn       *connection.Manager
	dispatcher *dispatch.Dispatcher
	detection  *producer.Detection
	status     *producer.Status
	simulator  *recognizer.Simulator
	stats      *Stats

	registry      *metric.MetricsRegistry
	metricsServer *metric.Server

	state  atomic.Int32
	gaveUp chan error

	randMu sync.Mutex
	rng    *rand.Rand
}

// Option adjusts controller construction
type Option func(*controllerOptions)

type controllerOptions struct {
	dialer connection.Dialer
}

// WithDialer overrides the WebSocket dialer (tests inject fakes)
func WithDialer(d connection.Dialer) Option {
	return func(o *controllerOptions) { o.dialer = d }
}

// New assembles a controller from configuration
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Controller", "New", "configuration required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var co controllerOptions
	for _, opt := range opts {
		opt(&co)
	}

	c := &Controller{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		stats:     NewStats(),
		gaveUp:    make(chan error, 1),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.logger = logger.With("component", "agent", "session_id", c.sessionID)
	c.state.Store(int32(StateInit))

	if cfg.MetricsPort > 0 {
		c.registry = metric.NewMetricsRegistry()
		c.metricsServer = metric.NewServer(cfg.MetricsPort, "/metrics", c.registry)
	}

	var simOpts []recognizer.Option
	if cfg.DetectionRate > 0 {
		simOpts = append(simOpts, recognizer.WithDetectionRate(cfg.DetectionRate))
	}
	if cfg.CameraID != "" || cfg.DeviceName != "" {
		simOpts = append(simOpts, recognizer.WithDevice(cfg.CameraID, cfg.DeviceName))
	}
	c.simulator = recognizer.NewSimulator(simOpts...)

	var dispatchOpts []dispatch.Option
	if cfg.DispatchQueueSize > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithQueueSize(cfg.DispatchQueueSize))
	}
	if c.registry != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithMetricsRegistry(c.registry))
	}
	c.dispatcher = dispatch.NewDispatcher(logger, dispatchOpts...)

	connCfg := connection.Config{
		URL:                cfg.CollectorURL,
		MaxAttempts:        cfg.MaxReconnectAttempts,
		BaseDelay:          cfg.ReconnectBaseDelay.Std(),
		WriteTimeout:       cfg.WriteTimeout.Std(),
		PingInterval:       cfg.PingInterval.Std(),
		PongWait:           cfg.PongWait.Std(),
		HandshakeTimeout:   cfg.HandshakeTimeout.Std(),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	connOpts := []connection.Option{
		connection.WithOnGaveUp(c.notifyGaveUp),
	}
	if c.registry != nil {
		connOpts = append(connOpts, connection.WithMetricsRegistry(c.registry))
	}
	if co.dialer != nil {
		connOpts = append(connOpts, connection.WithDialer(co.dialer))
	}
	conn, err := connection.NewManager(connCfg, c.dispatcher.Enqueue, logger, connOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	c.detection = producer.NewDetection(
		producer.DetectionConfig{
			MinInterval: cfg.DetectionMinInterval.Std(),
			MaxInterval: cfg.DetectionMaxInterval.Std(),
		},
		conn, c.simulator, c.stats, logger)

	c.status = producer.NewStatus(cfg.StatusInterval.Std(), conn, c, logger)

	if err := c.registerCommandHandlers(); err != nil {
		return nil, err
	}
	return c, nil
}

// SessionID identifies this agent run
func (c *Controller) SessionID() string { return c.sessionID }

// State returns the current lifecycle state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Stats exposes the agent's counters read-only
func (c *Controller) Stats() StatsReader { return c.stats }

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Info("agent state changed", "from", old.String(), "to", s.String())
	}
}

func (c *Controller) notifyGaveUp(err error) {
	select {
	case c.gaveUp <- err:
	default:
	}
}

// registerCommandHandlers binds the collector's built-in commands
func (c *Controller) registerCommandHandlers() error {
	if err := c.dispatcher.Register(message.KindStartProcessing,
		func(context.Context, message.Payload, *message.Envelope) error {
			c.detection.Resume()
			c.status.SendNow()
			return nil
		}); err != nil {
		return err
	}

	if err := c.dispatcher.Register(message.KindStopProcessing,
		func(context.Context, message.Payload, *message.Envelope) error {
			c.detection.Pause()
			c.status.SendNow()
			return nil
		}); err != nil {
		return err
	}

	return c.dispatcher.Register(message.KindGetStatus,
		func(context.Context, message.Payload, *message.Envelope) error {
			c.status.SendNow()
			return nil
		})
}

// StatusPayload implements producer.StatsSource
func (c *Controller) StatusPayload() *message.StatusPayload {
	snap := c.stats.Snapshot()

	status := c.State().String()
	if c.State() == StateRunning && c.detection.Paused() {
		status = "paused"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memUsage := 0.0
	if mem.Sys > 0 {
		memUsage = float64(mem.HeapAlloc) / float64(mem.Sys) * 100
	}

	return &message.StatusPayload{
		Status:         status,
		ActiveGates:    c.simulator.ActiveGates(),
		ProcessedCount: snap.Processed,
		ErrorCount:     snap.Errors,
		Uptime:         snap.Uptime.Seconds(),
		MemoryUsage:    memUsage,
		CPUUsage:       c.syntheticCPU(),
		ActiveCameras:  c.simulator.CameraCount(),
	}
}

// syntheticCPU reports a plausible load figure. The process has no
// hardware counters to read; the value is informational only.
func (c *Controller) syntheticCPU() float64 {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return 30 + c.rng.Float64()*30
}

// Run starts every component and blocks until the context is cancelled
// or reconnection is exhausted. It always performs a full shutdown
// before returning.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("agent starting",
		"collector_url", c.cfg.CollectorURL,
		"start_degraded", c.cfg.StartDegraded)

	if c.metricsServer != nil {
		go func() {
			if err := c.metricsServer.Start(); err != nil {
				c.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if err := c.dispatcher.Start(ctx); err != nil {
		return err
	}

	var connectErr error
	if c.cfg.StartDegraded {
		connectErr = c.conn.ConnectInBackground(ctx)
	} else {
		connectErr = c.conn.Connect(ctx)
	}
	if connectErr != nil {
		c.shutdown()
		return connectErr
	}

	if err := c.detection.Start(ctx); err != nil {
		c.shutdown()
		return err
	}
	if err := c.status.Start(ctx); err != nil {
		c.shutdown()
		return err
	}

	c.setState(StateRunning)
	c.logger.Info("agent running")

	var runErr error
	select {
	case <-ctx.Done():
		c.logger.Info("shutdown requested")
	case err := <-c.gaveUp:
		c.logger.Error("collector unreachable, giving up", "error", err)
		if c.cfg.ExitOnGiveUp {
			runErr = err
		}
	}

	c.shutdown()
	return runErr
}

// shutdown stops components in reverse start order and logs the final
// state with cumulative counters
func (c *Controller) shutdown() {
	c.setState(StateStopping)
	timeout := c.cfg.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	if err := c.detection.Stop(timeout); err != nil {
		c.logger.Warn("detection producer stop", "error", err)
	}
	if err := c.status.Stop(timeout); err != nil {
		c.logger.Warn("status producer stop", "error", err)
	}
	if err := c.dispatcher.Stop(timeout); err != nil {
		c.logger.Warn("dispatcher stop", "error", err)
	}
	if err := c.conn.Close(timeout); err != nil {
		c.logger.Warn("connection close", "error", err)
	}
	if c.metricsServer != nil {
		if err := c.metricsServer.Stop(timeout); err != nil {
			c.logger.Warn("metrics server stop", "error", err)
		}
	}

	c.setState(StateStopped)
	snap := c.stats.Snapshot()
	c.logger.Info("agent stopped",
		"connection_state", c.conn.State().String(),
		"processed", snap.Processed,
		"dropped", snap.Dropped,
		"errors", snap.Errors,
		"uptime", snap.Uptime.Round(time.Second).String())
}
