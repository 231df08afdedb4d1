package connection

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fbittq01/vehicle-manage/errors"
)

// timeoutError satisfies net.Error for simulated read deadline expiry
type timeoutError struct{}

func (timeoutError) Error() string   { return "read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeConn is an in-memory Conn that records writes and serves queued
// inbound frames. Reads block until a frame arrives, the conn closes, or
// an injected failure fires; like the real transport, the first read
// error latches and every later read returns it.
type fakeConn struct {
	mu            sync.Mutex
	written       [][]byte
	pings         int
	writeErr      error
	readErr       error
	pongHandler   func(string) error
	readDeadlines []time.Time

	inbound  chan []byte
	readFail chan error
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		readFail: make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return 0, nil, err
	}
	c.mu.Unlock()

	select {
	case <-c.closed:
		return 0, nil, c.latchReadErr(stderrors.New("use of closed connection"))
	case err := <-c.readFail:
		return 0, nil, c.latchReadErr(err)
	case raw := <-c.inbound:
		return websocket.TextMessage, raw, nil
	}
}

func (c *fakeConn) latchReadErr(err error) error {
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = err
	}
	err = c.readErr
	c.mu.Unlock()
	return err
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return stderrors.New("use of closed connection")
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	switch messageType {
	case websocket.PingMessage:
		c.pings++
	case websocket.TextMessage:
		cp := make([]byte, len(data))
		copy(cp, data)
		c.written = append(c.written, cp)
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.readDeadlines = append(c.readDeadlines, t)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPongHandler(h func(appData string) error) {
	c.mu.Lock()
	c.pongHandler = h
	c.mu.Unlock()
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

// failRead hands the next blocked read the given error; the conn latches
// it the way gorilla does
func (c *fakeConn) failRead(err error) {
	c.readFail <- err
}

func (c *fakeConn) pong() error {
	c.mu.Lock()
	h := c.pongHandler
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	return h("")
}

func (c *fakeConn) deadlines() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Time, len(c.readDeadlines))
	copy(out, c.readDeadlines)
	return out
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// fakeDialer fails the first failBefore dials, then hands out fresh conns
type fakeDialer struct {
	mu         sync.Mutex
	attempts   int
	failBefore int
	conns      []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.attempts++
	if d.attempts <= d.failBefore {
		return nil, errors.WrapTransient(errors.ErrConnectFailed,
			"fakeDialer", "Dial", "simulated refusal")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialAttempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}
