package connection

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fbittq01/vehicle-manage/errors"
)

// Conn is the subset of a WebSocket connection the manager uses.
// *websocket.Conn satisfies it directly; tests inject recording fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer establishes a Conn to the collector
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// wsDialer is the production dialer backed by gorilla/websocket
type wsDialer struct {
	handshakeTimeout   time.Duration
	insecureSkipVerify bool
}

// NewDialer creates the default WebSocket dialer
func NewDialer(handshakeTimeout time.Duration, insecureSkipVerify bool) Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 45 * time.Second
	}
	return &wsDialer{
		handshakeTimeout:   handshakeTimeout,
		insecureSkipVerify: insecureSkipVerify,
	}
}

func (d *wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
	}
	if d.insecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- dev-only, gated by config
	}

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, errors.WrapTransient(errors.ErrConnectFailed,
			"wsDialer", "Dial", err.Error())
	}
	return conn, nil
}
