// Package connection manages the WebSocket link to the collector.
//
// Manager owns the full connection lifecycle: dialing with linear backoff,
// exactly one receive loop per live connection, keepalive pings, and
// reconnection after link loss. Reconnects are driven solely by the
// receive loop observing closure; Send fails fast with ErrNotConnected
// when the link is down and never dials. Two terminal states exist:
// GaveUp when reconnect attempts are exhausted and ShutDown after an
// explicit Close.
//
// The Dialer and Conn interfaces abstract gorilla/websocket so tests can
// inject failing and recording transports.
package connection
