package signaling

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/drift/internal/protocol"
	"github.com/1ureka/drift/internal/util"
)

const (
	writeWait    = 10 * time.Second // deadline for a single frame write
	pongWait     = 45 * time.Second // read deadline, refreshed by every pong
	pingInterval = 20 * time.Second // keepalive ping period, must be < pongWait
)

// sender serializes outgoing signaling frames onto one WebSocket (private).
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send encodes msg and writes it as a text frame, guarded by a mutex.
func (s *sender) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}

	util.Stats.AddSignalSent()
	return nil
}

// keepalive pings the relay until stop is closed. A ping failure closes the
// connection so the read loop returns and the link reconnects.
func (s *sender) keepalive(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.conn.Close()
				return
			}
		case <-stop:
			return
		}
	}
}

// close sends a best-effort close frame and closes the socket.
func (s *sender) close() {
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	s.conn.Close()
}
