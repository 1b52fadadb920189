// Package sigtest provides an in-process signaling relay for tests. It
// forwards every frame a member sends to the other members of the same room,
// the way the production relay does.
package sigtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Relay is a room-keyed WebSocket fan-out server.
type Relay struct {
	param  string
	server *httptest.Server

	mu    sync.Mutex
	rooms map[string]map[*websocket.Conn]struct{}
	conns int // total connections accepted
}

// NewRelay starts a relay that reads the room id from the query parameter
// param.
func NewRelay(param string) *Relay {
	r := &Relay{
		param: param,
		rooms: make(map[string]map[*websocket.Conn]struct{}),
	}
	r.server = httptest.NewServer(http.HandlerFunc(r.handleWS))
	return r
}

// URL returns the ws:// endpoint of the relay.
func (r *Relay) URL() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

// Accepted returns how many connections the relay has upgraded so far.
func (r *Relay) Accepted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns
}

// Members returns the number of live connections in room.
func (r *Relay) Members(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

// Broadcast writes data to every member of room.
func (r *Relay) Broadcast(room string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.rooms[room] {
		c.WriteMessage(websocket.TextMessage, data)
	}
}

// DropAll closes every live connection without a close frame, simulating a
// relay restart.
func (r *Relay) DropAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, members := range r.rooms {
		for c := range members {
			c.Close()
		}
	}
}

// Close drops all members and shuts the server down.
func (r *Relay) Close() {
	r.DropAll()
	r.server.CloseClientConnections()
	r.server.Close()
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	room := req.URL.Query().Get(r.param)
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	r.mu.Lock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[*websocket.Conn]struct{})
	}
	r.rooms[room][conn] = struct{}{}
	r.conns++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.rooms[room], conn)
		r.mu.Unlock()
		conn.Close()
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		r.mu.Lock()
		for peer := range r.rooms[room] {
			if peer != conn {
				peer.WriteMessage(typ, data)
			}
		}
		r.mu.Unlock()
	}
}
