// Package signaling owns the relay connection that carries setup messages
// between the two peers of a room. A Link keeps one WebSocket open per room,
// announces itself with a Join on every connect and reconnects with
// exponential backoff until it is closed.
package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/drift/internal/config"
	"github.com/1ureka/drift/internal/protocol"
	"github.com/1ureka/drift/internal/util"
)

var log = util.Scoped("signaling")

// EventKind identifies a Link event.
type EventKind int

const (
	EventConnected    EventKind = iota + 1 // relay connection (re)established
	EventMessage                           // signaling message received
	EventDisconnected                      // relay connection lost, reconnecting
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventMessage:
		return "message"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is one item of the Link's event stream.
type Event struct {
	Kind    EventKind
	Join    protocol.Join    // EventConnected: the join announced on this connection
	Message protocol.Message // EventMessage
	Err     error            // EventDisconnected: *Error describing the drop
}

// Options tunes a Link. Zero values fall back to config defaults.
type Options struct {
	RoomParam   string
	BackoffBase time.Duration
	BackoffMax  time.Duration
	EventBuffer int
	Dialer      *websocket.Dialer
}

// Link is a reconnecting relay connection for a single room.
type Link struct {
	url    string
	room   string
	opts   Options
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	sender *sender // nil while disconnected
}

// Dial starts a Link to the relay at endpoint for room and returns
// immediately; the first connection is reported as EventConnected on
// Events(). Only an invalid endpoint or room is reported as an error.
func Dial(ctx context.Context, endpoint, room string, opts Options) (*Link, error) {
	cfg := config.Config{
		RoomParam:   opts.RoomParam,
		BackoffBase: opts.BackoffBase,
		BackoffMax:  opts.BackoffMax,
	}.WithDefaults()
	opts.RoomParam, opts.BackoffBase, opts.BackoffMax = cfg.RoomParam, cfg.BackoffBase, cfg.BackoffMax
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = config.DefaultEventQueueSize
	}

	u, err := config.RoomURL(endpoint, opts.RoomParam, room)
	if err != nil {
		return nil, err
	}

	lCtx, lCancel := context.WithCancel(ctx)
	l := &Link{
		url:    u,
		room:   room,
		opts:   opts,
		events: make(chan Event, opts.EventBuffer),
		ctx:    lCtx,
		cancel: lCancel,
		done:   make(chan struct{}),
	}

	go l.run()
	return l, nil
}

// Events returns the link's event stream. Events are delivered in receipt
// order and never deduplicated. The channel is closed after Close.
func (l *Link) Events() <-chan Event {
	return l.events
}

// Send writes msg to the relay. It fails with ErrNotConnected while the link
// is reconnecting; the caller is expected to restart negotiation once
// EventConnected arrives.
func (l *Link) Send(msg protocol.Message) error {
	if l.ctx.Err() != nil {
		return ErrClosed
	}

	l.mu.Lock()
	s := l.sender
	l.mu.Unlock()

	if s == nil {
		return &Error{Op: "write", Err: ErrNotConnected}
	}
	if err := s.send(msg); err != nil {
		return &Error{Op: "write", Err: err}
	}
	return nil
}

// Close stops reconnecting, closes the relay connection and waits for the
// link goroutine to exit.
func (l *Link) Close() error {
	l.cancel()

	l.mu.Lock()
	if l.sender != nil {
		l.sender.close()
	}
	l.mu.Unlock()

	<-l.done
	return nil
}

// run is the single connection-owning goroutine: dial, serve until the
// connection drops, back off, repeat.
func (l *Link) run() {
	defer close(l.done)
	defer close(l.events)

	bo := newBackoff(l.opts.BackoffBase, l.opts.BackoffMax)

	for {
		conn, err := connect(l.ctx, l.opts.Dialer, l.url)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			delay := bo.Next()
			log.Warn("relay unreachable, retrying in %v: %v", delay, err)
			util.Stats.AddReconnect()
			if !sleep(l.ctx, delay) {
				return
			}
			continue
		}

		bo.Reset()
		err = l.serve(conn)
		if l.ctx.Err() != nil {
			return
		}

		log.Warn("relay connection lost: %v", err)
		if !l.emit(Event{Kind: EventDisconnected, Err: &Error{Op: "read", Err: err}}) {
			return
		}

		delay := bo.Next()
		util.Stats.AddReconnect()
		if !sleep(l.ctx, delay) {
			return
		}
	}
}

// serve announces a fresh Join on conn, publishes it as EventConnected and
// pumps inbound frames until the connection fails.
func (l *Link) serve(conn *websocket.Conn) error {
	s := &sender{conn: conn}
	defer conn.Close()

	join := protocol.NewJoin(l.room)
	if err := s.send(join); err != nil {
		return err
	}

	l.mu.Lock()
	if l.ctx.Err() != nil {
		l.mu.Unlock()
		return ErrClosed
	}
	l.sender = s
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.sender = nil
		l.mu.Unlock()
	}()

	log.Debug("relay connected: %s (join %s)", l.url, join.Join.ID)
	if !l.emit(Event{Kind: EventConnected, Join: *join.Join}) {
		return ErrClosed
	}

	stop := make(chan struct{})
	defer close(stop)
	go s.keepalive(stop)

	r := &receiver{
		conn: conn,
		deliver: func(msg protocol.Message) bool {
			return l.emit(Event{Kind: EventMessage, Message: msg})
		},
	}
	return r.watch()
}

// emit hands ev to the consumer, blocking until it is taken or the link is
// closed. Returns false if the link is closing.
func (l *Link) emit(ev Event) bool {
	select {
	case l.events <- ev:
		return true
	case <-l.ctx.Done():
		return false
	}
}
