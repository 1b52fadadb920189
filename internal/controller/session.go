package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/drift/internal/buffer"
	"github.com/1ureka/drift/internal/negotiation"
	"github.com/1ureka/drift/internal/signaling"
)

// peerEvent is a PeerSession event tagged with the generation of the peer
// that produced it.
type peerEvent struct {
	gen uint64
	ev  negotiation.PeerEvent
}

// session is one Open: its own link, machine, buffer, queues and timer.
// Everything but the buffer and the failed flag is owned by the run
// goroutine.
type session struct {
	c        *Controller
	room     string
	endpoint string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	link  Link
	m     *negotiation.Machine
	buf   *buffer.Buffer
	timer *time.Timer

	peerEvents chan peerEvent
	timeouts   chan uint64
	cmds       chan func()

	failed    atomic.Bool
	stopOnce  sync.Once
	connected bool
}

func newSession(c *Controller, room, endpoint string) *session {
	return &session{
		c:          c,
		room:       room,
		endpoint:   endpoint,
		done:       make(chan struct{}),
		buf:        buffer.New(),
		peerEvents: make(chan peerEvent, c.cfg.EventQueueSize),
		timeouts:   make(chan uint64, 1),
		cmds:       make(chan func()),
	}
}

// start dials the relay and launches the event loop.
func (s *session) start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	// The link outlives the session context so that shutdown can still say
	// Bye; teardown closes it.
	link, err := s.c.dial(context.WithoutCancel(s.ctx), s.endpoint, s.room)
	if err != nil {
		s.cancel()
		close(s.done)
		return err
	}
	s.link = link

	s.m = negotiation.NewMachine(negotiation.Config{
		Room:     s.room,
		Label:    s.c.cfg.ChannelLabel,
		NewPeer:  s.newPeer,
		OnState:  s.onState,
		ArmTimer: s.armTimer,
	}, link)

	s.m.SignalingConnecting()
	go s.run()
	return nil
}

// stop cancels the session and waits for the event loop to finish its
// teardown.
func (s *session) stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

// alive reports whether the session can still make progress: it has
// neither failed nor been shut down.
func (s *session) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return !s.failed.Load()
	}
}

// run is the single consumer of every event source of the session. Only
// this goroutine touches the machine.
func (s *session) run() {
	defer close(s.done)

	for {
		select {
		case ev, ok := <-s.link.Events():
			if !ok {
				s.shutdown()
				return
			}
			s.onLink(ev)
		case pe := <-s.peerEvents:
			if s.m.Peer() == nil || pe.gen != s.m.Generation() {
				continue
			}
			s.onPeer(pe.ev)
		case attempt := <-s.timeouts:
			s.c.reportError(s.m.Timeout(attempt))
		case fn := <-s.cmds:
			fn()
		case <-s.ctx.Done():
			s.shutdown()
			return
		}

		if s.m.State() == negotiation.Failed {
			s.teardown(negotiation.Failed)
			return
		}
	}
}

func (s *session) onLink(ev signaling.Event) {
	switch ev.Kind {
	case signaling.EventConnected:
		s.m.SignalingConnected(ev.Join)
	case signaling.EventMessage:
		s.c.reportError(s.m.OnRemoteSignal(ev.Message))
	case signaling.EventDisconnected:
		log.Warn("relay lost: %v", ev.Err)
		s.m.SignalingLost()
	}
}

func (s *session) onPeer(ev negotiation.PeerEvent) {
	if ev.Kind == negotiation.ChannelMessage {
		s.c.onMessage.emit(ev.Data)
		return
	}
	s.c.reportError(s.m.OnChannelEvent(ev))
}

// onState runs inside machine calls, on the loop goroutine.
func (s *session) onState(st negotiation.State) {
	if st == negotiation.Failed {
		s.failed.Store(true)
	}
	if s.connected && st != negotiation.Connected {
		s.connected = false
		s.buf.Detach()
	}

	// Queued payloads go out before anyone learns the channel is open.
	if st == negotiation.Connected {
		s.connected = true
		s.stopTimer()
		n, err := s.buf.FlushTo(s.m.Peer())
		if err != nil {
			log.Warn("flushed %d queued payloads before error: %v", n, err)
		} else if n > 0 {
			log.Debug("flushed %d queued payloads", n)
		}
	}

	s.c.setState(st)
}

// newPeer creates the peer of generation gen and forwards its events into
// the loop, tagged with gen.
func (s *session) newPeer(gen uint64) (negotiation.PeerSession, error) {
	p, err := s.c.newPeer()
	if err != nil {
		return nil, err
	}

	go func(events <-chan negotiation.PeerEvent) {
		for ev := range events {
			select {
			case s.peerEvents <- peerEvent{gen: gen, ev: ev}:
			case <-s.ctx.Done():
				return
			}
		}
	}(p.Events())

	return p, nil
}

func (s *session) armTimer(attempt uint64) {
	s.stopTimer()
	s.timer = time.AfterFunc(s.c.cfg.NegotiationTimeout, func() {
		select {
		case s.timeouts <- attempt:
		case <-s.ctx.Done():
		}
	})
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *session) send(p []byte) error {
	if s.failed.Load() {
		return ErrChannelFailed
	}
	if err := s.buf.Enqueue(p); err != nil {
		if err == buffer.ErrClosed {
			if s.failed.Load() {
				return ErrChannelFailed
			}
			return ErrChannelClosed
		}
		return err
	}
	return nil
}

// renegotiate runs Renegotiate on the loop goroutine.
func (s *session) renegotiate() error {
	reply := make(chan error, 1)
	select {
	case s.cmds <- func() { reply <- s.m.Renegotiate() }:
	case <-s.done:
		return ErrChannelClosed
	}
	return <-reply
}

// shutdown is the Close path: say goodbye, release everything and end
// Disconnected.
func (s *session) shutdown() {
	s.m.Close()
	s.teardown(negotiation.Disconnected)
}

// teardown releases the link, the timer and the buffer. Queued payloads
// are reported as discarded.
func (s *session) teardown(final negotiation.State) {
	s.stopTimer()
	s.stopOnce.Do(s.cancel)
	if err := s.link.Close(); err != nil {
		log.Debug("closing link: %v", err)
	}

	reason := ErrChannelClosed
	if final == negotiation.Failed {
		reason = ErrChannelFailed
	}
	s.c.reportError(s.buf.Discard(reason))
}
