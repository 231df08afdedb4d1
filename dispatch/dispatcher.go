package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fbittq01/vehicle-manage/errors"
	"github.com/fbittq01/vehicle-manage/message"
	"github.com/fbittq01/vehicle-manage/metric"
	"github.com/fbittq01/vehicle-manage/pkg/worker"
)

// DefaultQueueSize bounds how many inbound frames may wait for a handler
const DefaultQueueSize = 100

// HandlerFunc processes one inbound command. It receives the decoded
// payload and the raw envelope.
type HandlerFunc func(ctx context.Context, payload message.Payload, env *message.Envelope) error

// Dispatcher routes inbound envelopes to registered handlers by kind.
// Handler invocation is asynchronous: Enqueue never blocks the receive
// loop, and a single worker preserves frame arrival order. Unmatched
// kinds are logged and dropped, a normal case with collector-side
// command additions.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[message.Kind]HandlerFunc

	pool *worker.Pool[*message.Envelope]

	dispatched atomic.Int64
	unmatched  atomic.Int64
	dropped    atomic.Int64
	failed     atomic.Int64
}

// Option configures a Dispatcher
type Option func(*options)

type options struct {
	queueSize int
	registry  *metric.MetricsRegistry
}

// WithQueueSize overrides the inbound frame queue size
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithMetricsRegistry enables worker pool metrics
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// NewDispatcher creates a dispatcher with an empty handler table
func NewDispatcher(logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	o := options{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher{
		logger:   logger.With("component", "dispatch"),
		handlers: make(map[message.Kind]HandlerFunc),
	}

	var poolOpts []worker.Option[*message.Envelope]
	if o.registry != nil {
		poolOpts = append(poolOpts,
			worker.WithMetricsRegistry[*message.Envelope](o.registry, "dispatch"))
	}
	// One worker: frames are handled in arrival order
	d.pool = worker.NewPool(1, o.queueSize, d.process, poolOpts...)
	return d
}

// Register binds a handler to a message kind. Duplicate registration is
// a programming error.
func (d *Dispatcher) Register(kind message.Kind, handler HandlerFunc) error {
	if kind == "" || handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidData,
			"Dispatcher", "Register", "kind and handler required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[kind]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("handler for %q already registered", kind),
			"Dispatcher", "Register", "duplicate handler")
	}
	d.handlers[kind] = handler
	return nil
}

// Enqueue queues an envelope for asynchronous handling. It matches
// connection.FrameHandler and never blocks; when the queue is full the
// frame is dropped and counted.
func (d *Dispatcher) Enqueue(_ context.Context, env *message.Envelope) {
	if env == nil {
		return
	}
	if err := d.pool.Submit(env); err != nil {
		d.dropped.Add(1)
		d.logger.Warn("dropping inbound frame", "kind", env.Type, "error", err)
	}
}

// process is the pool worker body
func (d *Dispatcher) process(ctx context.Context, env *message.Envelope) error {
	d.mu.RLock()
	handler, ok := d.handlers[env.Type]
	d.mu.RUnlock()

	if !ok {
		d.unmatched.Add(1)
		d.logger.Debug("no handler for message kind", "kind", env.Type)
		return nil
	}

	if err := handler(ctx, env.Data, env); err != nil {
		d.failed.Add(1)
		d.logger.Warn("command handler failed", "kind", env.Type, "error", err)
		return err
	}
	d.dispatched.Add(1)
	return nil
}

// Start begins handler execution
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.pool.Start(ctx)
}

// Stop drains queued frames up to the timeout
func (d *Dispatcher) Stop(timeout time.Duration) error {
	return d.pool.Stop(timeout)
}

// Stats is a snapshot of dispatcher counters
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Unmatched  int64 `json:"unmatched"`
	Dropped    int64 `json:"dropped"`
	Failed     int64 `json:"failed"`
}

// Snapshot returns current counter values
func (d *Dispatcher) Snapshot() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Unmatched:  d.unmatched.Load(),
		Dropped:    d.dropped.Load(),
		Failed:     d.failed.Load(),
	}
}
