package signaling

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/drift/internal/protocol"
	"github.com/1ureka/drift/internal/util"
)

// receiver reads signaling frames from one WebSocket (private).
type receiver struct {
	conn    *websocket.Conn
	deliver func(protocol.Message) bool // returns false once the link is closing
}

// watch reads frames until the connection fails. Malformed frames and
// unrecognized shapes are logged and skipped; they never end the loop.
func (r *receiver) watch() error {
	r.conn.SetReadDeadline(time.Now().Add(pongWait))
	r.conn.SetPongHandler(func(string) error {
		return r.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := r.conn.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn("%v", &Error{Op: "decode", Err: err})
			continue
		}
		if msg.Kind == protocol.KindUnknown {
			log.Debug("ignoring unrecognized signaling frame (%d bytes)", len(data))
			continue
		}

		util.Stats.AddSignalRecv()
		if !r.deliver(msg) {
			return ErrClosed
		}
	}
}
