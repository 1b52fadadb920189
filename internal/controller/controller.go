// Package controller is the consumer-facing façade of the peer link. A
// Controller opens one session per room: a relay link, a negotiation state
// machine and an outbound buffer, all driven by a single event loop.
package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/1ureka/drift/internal/config"
	"github.com/1ureka/drift/internal/negotiation"
	"github.com/1ureka/drift/internal/protocol"
	"github.com/1ureka/drift/internal/signaling"
	"github.com/1ureka/drift/internal/transport"
	"github.com/1ureka/drift/internal/util"
)

var log = util.Scoped("controller")

// Link is the relay connection a session signals through.
type Link interface {
	Events() <-chan signaling.Event
	Send(msg protocol.Message) error
	Close() error
}

// LinkDialer opens a Link to endpoint for room. It must return without
// waiting for the connection; progress is reported on Events.
type LinkDialer func(ctx context.Context, endpoint, room string) (Link, error)

// PeerFactory creates a fresh peer session for each negotiation attempt.
type PeerFactory func() (negotiation.PeerSession, error)

// Options configures a Controller. Nil collaborators default to the
// WebSocket relay link and the pion peer session.
type Options struct {
	Config  config.Config
	Dial    LinkDialer
	NewPeer PeerFactory
}

// Controller exposes Open, Send and Close plus state, message and error
// subscriptions. It is safe for concurrent use.
type Controller struct {
	cfg     config.Config
	dial    LinkDialer
	newPeer PeerFactory

	opMu sync.Mutex // serializes Open and Close

	mu     sync.Mutex
	sess   *session
	state  negotiation.State
	closed bool

	onState   subscribers[negotiation.State]
	onMessage subscribers[[]byte]
	onError   subscribers[error]
}

// New returns an Idle controller.
func New(opts Options) *Controller {
	cfg := opts.Config.WithDefaults()

	c := &Controller{
		cfg:     cfg,
		dial:    opts.Dial,
		newPeer: opts.NewPeer,
	}

	if c.dial == nil {
		c.dial = func(ctx context.Context, endpoint, room string) (Link, error) {
			l, err := signaling.Dial(ctx, endpoint, room, signaling.Options{
				RoomParam:   cfg.RoomParam,
				BackoffBase: cfg.BackoffBase,
				BackoffMax:  cfg.BackoffMax,
				EventBuffer: cfg.EventQueueSize,
			})
			if err != nil {
				return nil, err
			}
			return l, nil
		}
	}
	if c.newPeer == nil {
		c.newPeer = func() (negotiation.PeerSession, error) {
			p, err := transport.NewPeer(transport.Options{
				STUNServers: cfg.STUNServers,
				EventBuffer: cfg.EventQueueSize,
			})
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}

	return c
}

// Open starts a session for room through the relay at endpoint and returns
// the resulting state. While a session for the same room and endpoint is
// alive, Open is a no-op returning the current state. A failed session is
// replaced by a fresh one.
func (c *Controller) Open(ctx context.Context, room, endpoint string) (negotiation.State, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	endpoint, err := config.NormalizeEndpoint(endpoint)
	if err != nil {
		return c.State(), err
	}

	c.mu.Lock()
	old := c.sess
	c.mu.Unlock()

	if old != nil {
		if old.alive() {
			if old.room == room && old.endpoint == endpoint {
				return c.State(), nil
			}
			return c.State(), ErrSessionMismatch
		}
		old.stop()
	}

	s := newSession(c, room, endpoint)

	c.mu.Lock()
	c.sess = s
	c.state = negotiation.Idle
	c.closed = false
	c.mu.Unlock()

	if err := s.start(ctx); err != nil {
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		return c.State(), fmt.Errorf("open %q: %w", room, err)
	}

	log.Info("session opened for room %q", room)
	return c.State(), nil
}

// Send queues p until the channel is open, or writes it directly once it
// is. It fails with ErrChannelFailed after the session failed and with
// ErrChannelClosed after Close. While a channel whose queued payloads could
// not all be written is still up, it fails with buffer.ErrFlushFailed.
func (c *Controller) Send(p []byte) error {
	c.mu.Lock()
	s, closed := c.sess, c.closed
	c.mu.Unlock()

	if s == nil {
		if closed {
			return ErrChannelClosed
		}
		return ErrNotOpen
	}
	return s.send(p)
}

// Renegotiate asks the current session to offer again.
func (c *Controller) Renegotiate() error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	if s == nil {
		return ErrNotOpen
	}
	return s.renegotiate()
}

// Close tears down the relay link and the peer session, drops anything
// still queued and leaves the controller Disconnected. Close without an
// open session is a no-op.
func (c *Controller) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	s := c.sess
	c.sess = nil
	if s != nil {
		c.closed = true
	}
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	s.stop()
	c.setState(negotiation.Disconnected)
	log.Info("session closed for room %q", s.room)
	return nil
}

// State returns the state of the current (or last) session.
func (c *Controller) State() negotiation.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnState subscribes fn to state transitions. Callbacks run on the session
// goroutine and must not block. The returned func unsubscribes.
func (c *Controller) OnState(fn func(negotiation.State)) func() {
	return c.onState.add(fn)
}

// OnMessage subscribes fn to inbound channel payloads.
func (c *Controller) OnMessage(fn func([]byte)) func() {
	return c.onMessage.add(fn)
}

// OnError subscribes fn to session errors: negotiation failures, timeouts
// and discarded payloads.
func (c *Controller) OnError(fn func(error)) func() {
	return c.onError.add(fn)
}

func (c *Controller) setState(st negotiation.State) {
	c.mu.Lock()
	if c.state == st {
		c.mu.Unlock()
		return
	}
	c.state = st
	c.mu.Unlock()

	c.onState.emit(st)
}

func (c *Controller) reportError(err error) {
	if err == nil {
		return
	}
	log.Warn("%v", err)
	c.onError.emit(err)
}
