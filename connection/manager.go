package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fbittq01/vehicle-manage/errors"
	"github.com/fbittq01/vehicle-manage/message"
	"github.com/fbittq01/vehicle-manage/metric"
	"github.com/fbittq01/vehicle-manage/pkg/retry"
)

// Default connection tuning
const (
	DefaultMaxAttempts      = 10
	DefaultBaseDelay        = 5 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 20 * time.Second
	DefaultPongWait         = 10 * time.Second
	DefaultHandshakeTimeout = 45 * time.Second
)

// FrameHandler receives each decoded inbound envelope. It must not block;
// the dispatcher enqueues asynchronously.
type FrameHandler func(ctx context.Context, env *message.Envelope)

// Config holds connection manager settings
type Config struct {
	URL                string
	MaxAttempts        int
	BaseDelay          time.Duration
	WriteTimeout       time.Duration
	PingInterval       time.Duration
	PongWait           time.Duration
	HandshakeTimeout   time.Duration
	InsecureSkipVerify bool
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
}

// Stats is a snapshot of connection counters
type Stats struct {
	State          string `json:"state"`
	SendsTotal     int64  `json:"sends_total"`
	SendErrors     int64  `json:"send_errors"`
	FramesReceived int64  `json:"frames_received"`
	FramesDropped  int64  `json:"frames_dropped"`
	Reconnects     int64  `json:"reconnects"`
}

// Manager owns the WebSocket link to the collector: dialing, the single
// receive loop per connection, reconnection with linear backoff, and
// serialized writes. Reconnection is driven only by receive loop exit;
// Send never reconnects, avoiding double-reconnect races.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	dialer  Dialer
	handler FrameHandler

	onGaveUp func(error)

	state  atomic.Int32
	connMu sync.Mutex
	conn   Conn

	// writeMu serializes writes; gorilla panics on concurrent writes
	writeMu sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool

	sendsTotal     atomic.Int64
	sendErrors     atomic.Int64
	framesReceived atomic.Int64
	framesDropped  atomic.Int64
	reconnects     atomic.Int64

	metrics *managerMetrics
}

type managerMetrics struct {
	stateGauge        prometheus.Gauge
	connectsTotal     prometheus.Counter
	reconnectAttempts prometheus.Counter
	sendsTotal        prometheus.Counter
	sendErrorsTotal   prometheus.Counter
	framesReceived    prometheus.Counter
	framesDropped     prometheus.Counter
}

// Option configures a Manager
type Option func(*Manager)

// WithDialer overrides the transport dialer (tests inject fakes here)
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithOnGaveUp registers a callback invoked once when reconnection is
// exhausted. Called from the manager's goroutine.
func WithOnGaveUp(fn func(error)) Option {
	return func(m *Manager) { m.onGaveUp = fn }
}

// WithMetricsRegistry enables Prometheus metrics. Nil registry disables them.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		if registry == nil {
			return
		}
		m.metrics = newManagerMetrics(registry)
	}
}

func newManagerMetrics(registry *metric.MetricsRegistry) *managerMetrics {
	mm := &managerMetrics{
		stateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connection_state",
			Help: "Current connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=gave_up 5=shut_down)",
		}),
		connectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connection_connects_total",
			Help: "Successful connections established",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connection_reconnect_attempts_total",
			Help: "Dial attempts including reconnects",
		}),
		sendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connection_sends_total",
			Help: "Frames written to the collector",
		}),
		sendErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connection_send_errors_total",
			Help: "Frame writes that failed",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connection_frames_received_total",
			Help: "Inbound frames decoded successfully",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connection_frames_dropped_total",
			Help: "Inbound frames dropped as malformed",
		}),
	}

	const component = "connection"
	_ = registry.RegisterGauge(component, "connection_state", mm.stateGauge)
	_ = registry.RegisterCounter(component, "connection_connects_total", mm.connectsTotal)
	_ = registry.RegisterCounter(component, "connection_reconnect_attempts_total", mm.reconnectAttempts)
	_ = registry.RegisterCounter(component, "connection_sends_total", mm.sendsTotal)
	_ = registry.RegisterCounter(component, "connection_send_errors_total", mm.sendErrorsTotal)
	_ = registry.RegisterCounter(component, "connection_frames_received_total", mm.framesReceived)
	_ = registry.RegisterCounter(component, "connection_frames_dropped_total", mm.framesDropped)
	return mm
}

// NewManager creates a connection manager. handler receives every decoded
// inbound frame; it may be nil when inbound traffic is ignored.
func NewManager(cfg Config, handler FrameHandler, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Manager", "NewManager", "collector URL required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	m := &Manager{
		cfg:      cfg,
		logger:   logger.With("component", "connection"),
		handler:  handler,
		shutdown: make(chan struct{}),
	}
	m.state.Store(int32(StateDisconnected))

	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewDialer(cfg.HandshakeTimeout, cfg.InsecureSkipVerify)
	}
	return m, nil
}

// State returns the current connection state
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether the link is up
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Snapshot returns current counter values
func (m *Manager) Snapshot() Stats {
	return Stats{
		State:          m.State().String(),
		SendsTotal:     m.sendsTotal.Load(),
		SendErrors:     m.sendErrors.Load(),
		FramesReceived: m.framesReceived.Load(),
		FramesDropped:  m.framesDropped.Load(),
		Reconnects:     m.reconnects.Load(),
	}
}

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Info("connection state changed",
			"from", old.String(), "to", s.String())
	}
	if m.metrics != nil {
		m.metrics.stateGauge.Set(float64(s))
	}
}

// Connect dials the collector, blocking until the first connection is
// established or attempts are exhausted. On success the receive loop and
// reconnect supervision run in the background until Close.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.markStarted(); err != nil {
		return err
	}

	m.setState(StateConnecting)
	if err := m.establish(ctx); err != nil {
		if !errors.Is(err, errors.ErrShuttingDown) {
			m.setState(StateGaveUp)
		}
		return err
	}

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// ConnectInBackground starts the connect/reconnect loop without waiting
// for the first connection. Used when the agent starts degraded with the
// collector down.
func (m *Manager) ConnectInBackground(ctx context.Context) error {
	if err := m.markStarted(); err != nil {
		return err
	}

	m.setState(StateConnecting)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.establish(ctx); err != nil {
			m.handleEstablishFailure(err)
			return
		}
		m.runInline(ctx)
	}()
	return nil
}

func (m *Manager) markStarted() error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted,
			"Manager", "Connect", "connect called twice")
	}
	m.started = true
	return nil
}

// establish dials with linear backoff until success or exhaustion
func (m *Manager) establish(ctx context.Context) error {
	cfg := retry.Linear(m.cfg.MaxAttempts, m.cfg.BaseDelay)

	conn, err := retry.DoWithResult(ctx, cfg, func() (Conn, error) {
		select {
		case <-m.shutdown:
			return nil, retry.NonRetryable(errors.ErrShuttingDown)
		default:
		}

		if m.metrics != nil {
			m.metrics.reconnectAttempts.Inc()
		}
		c, err := m.dialer.Dial(ctx, m.cfg.URL)
		if err != nil {
			m.logger.Warn("dial failed", "url", m.cfg.URL, "error", err)
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		if retry.IsNonRetryable(err) || ctx.Err() != nil {
			return errors.WrapTransient(errors.ErrShuttingDown,
				"Manager", "establish", "connect aborted by shutdown")
		}
		return errors.WrapFatal(errors.ErrReconnectExhausted,
			"Manager", "establish",
			fmt.Sprintf("gave up after %d attempts: %v", m.cfg.MaxAttempts, err))
	}

	m.setConn(conn)
	m.setState(StateConnected)
	if m.metrics != nil {
		m.metrics.connectsTotal.Inc()
	}
	m.logger.Info("connected to collector", "url", m.cfg.URL)
	return nil
}

func (m *Manager) handleEstablishFailure(err error) {
	if m.closing() || errors.Is(err, errors.ErrShuttingDown) {
		return
	}
	m.setState(StateGaveUp)
	m.logger.Error("reconnection exhausted", "error", err)
	if m.onGaveUp != nil {
		m.onGaveUp(err)
	}
}

// run supervises the live connection: one receive loop per conn, then
// reconnect or terminate.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	m.runInline(ctx)
}

// runInline is run's body for callers that already hold a wg slot
func (m *Manager) runInline(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("connection supervisor panic", "panic", r)
			if conn := m.currentConn(); conn != nil {
				m.clearConn(conn)
			}
		}
	}()

	for {
		conn := m.currentConn()
		if conn == nil {
			return
		}

		pingStop := make(chan struct{})
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			m.pingLoop(ctx, conn, pingStop)
		}()

		m.readLoop(ctx, conn)

		close(pingStop)
		<-pingDone
		m.clearConn(conn)

		if m.closing() || ctx.Err() != nil {
			return
		}

		m.setState(StateReconnecting)
		m.reconnects.Add(1)
		m.logger.Warn("connection lost, reconnecting", "url", m.cfg.URL)

		if err := m.establish(ctx); err != nil {
			m.handleEstablishFailure(err)
			return
		}
	}
}

// readLoop is the single receive loop for one connection. Reads block;
// shutdown and context cancellation unblock them by closing the conn
// (Close and the ping goroutine do that). WebSocket read errors are
// permanent, so every one is treated as connection loss. Liveness is
// bounded by a read deadline that pongs and inbound frames extend.
func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	liveness := m.cfg.PingInterval + m.cfg.PongWait
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(liveness))
	})
	_ = conn.SetReadDeadline(time.Now().Add(liveness))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !m.closing() && ctx.Err() == nil {
				m.logger.Warn("read failed", "error", err)
			}
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(liveness))

		env, err := message.Decode(raw)
		if err != nil {
			// Malformed frame: drop and keep reading
			m.framesDropped.Add(1)
			if m.metrics != nil {
				m.metrics.framesDropped.Inc()
			}
			m.logger.Warn("dropping malformed frame", "error", err)
			continue
		}

		m.framesReceived.Add(1)
		if m.metrics != nil {
			m.metrics.framesReceived.Inc()
		}
		if m.handler != nil {
			m.handler(ctx, env)
		}
	}
}

// pingLoop sends keepalive pings until stop or write failure. It also
// closes the conn on shutdown or context cancellation so the blocked
// receive loop unwinds.
func (m *Manager) pingLoop(ctx context.Context, conn Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-m.shutdown:
			_ = conn.Close()
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			m.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			m.writeMu.Unlock()
			if err != nil {
				// Receive loop will observe the closed conn
				_ = conn.Close()
				return
			}
		}
	}
}

// Send serializes and writes an envelope. Returns ErrNotConnected
// immediately when the link is down; it never blocks waiting for a
// reconnect and never initiates one.
func (m *Manager) Send(env message.Envelope) error {
	if m.State() != StateConnected {
		return errors.ErrNotConnected
	}
	conn := m.currentConn()
	if conn == nil {
		return errors.ErrNotConnected
	}

	raw, err := message.Encode(env)
	if err != nil {
		return errors.WrapInvalid(err, "Manager", "Send", "encode envelope")
	}

	m.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	writeErr := conn.WriteMessage(websocket.TextMessage, raw)
	m.writeMu.Unlock()

	if writeErr != nil {
		m.sendErrors.Add(1)
		if m.metrics != nil {
			m.metrics.sendErrorsTotal.Inc()
		}
		// Close so the receive loop observes the failure and drives the
		// single reconnect path
		_ = conn.Close()
		return errors.WrapTransient(errors.ErrConnectionLost,
			"Manager", "Send", writeErr.Error())
	}

	m.sendsTotal.Add(1)
	if m.metrics != nil {
		m.metrics.sendsTotal.Inc()
	}
	return nil
}

// Close shuts the manager down: no further reconnects, connection closed,
// background goroutines drained up to the timeout.
func (m *Manager) Close(timeout time.Duration) error {
	m.shutdownOnce.Do(func() {
		close(m.shutdown)
	})

	if conn := m.currentConn(); conn != nil {
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var waitErr error
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		waitErr = errors.WrapTransient(errors.ErrConnectionTimeout,
			"Manager", "Close", "goroutines did not drain in time")
	}

	// GaveUp stays visible after close
	if m.State() != StateGaveUp {
		m.setState(StateShutDown)
	}
	return waitErr
}

func (m *Manager) closing() bool {
	select {
	case <-m.shutdown:
		return true
	default:
		return false
	}
}

func (m *Manager) setConn(conn Conn) {
	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()
}

func (m *Manager) currentConn() Conn {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.conn
}

// clearConn nils the stored conn if it is still the given one
func (m *Manager) clearConn(conn Conn) {
	m.connMu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.connMu.Unlock()
	_ = conn.Close()
	m.setState(StateDisconnected)
}
