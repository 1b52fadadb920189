package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// defaultDialer bounds the WebSocket handshake so a black-holed relay does
// not stall reconnection.
var defaultDialer = &websocket.Dialer{
	HandshakeTimeout: 10 * time.Second,
}

// connect dials the given WebSocket URL and returns the connection (private).
func connect(ctx context.Context, dialer *websocket.Dialer, url string) (*websocket.Conn, error) {
	if dialer == nil {
		dialer = defaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return conn, nil
}

// sleep waits for d or until ctx is cancelled. Returns false if cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
