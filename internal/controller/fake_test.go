package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/drift/internal/config"
	"github.com/1ureka/drift/internal/negotiation"
	"github.com/1ureka/drift/internal/protocol"
	"github.com/1ureka/drift/internal/signaling"
)

// memLink is a Link whose events are injected by the test and whose sent
// messages are observable. Like a real link it stops sending once the
// context it was dialed with is done.
type memLink struct {
	ctx    context.Context
	events chan signaling.Event
	sent   chan protocol.Message

	mu     sync.Mutex
	closed bool
}

func newMemLink(ctx context.Context) *memLink {
	return &memLink{
		ctx:    ctx,
		events: make(chan signaling.Event, 64),
		sent:   make(chan protocol.Message, 256),
	}
}

func (l *memLink) Events() <-chan signaling.Event { return l.events }

func (l *memLink) Send(msg protocol.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.ctx.Err() != nil {
		return signaling.ErrClosed
	}
	l.sent <- msg
	return nil
}

func (l *memLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	return nil
}

func (l *memLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *memLink) push(ev signaling.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.events <- ev
	}
}

func (l *memLink) connected(id string) {
	l.push(signaling.Event{Kind: signaling.EventConnected, Join: protocol.Join{Room: "room", ID: id}})
}

func (l *memLink) deliver(msg protocol.Message) {
	l.push(signaling.Event{Kind: signaling.EventMessage, Message: msg})
}

// fakePeer is a PeerSession whose channel events are injected by the test.
// It keeps its event channel open after Close so that late events of a
// discarded generation can still be delivered.
type fakePeer struct {
	id     int
	events chan negotiation.PeerEvent

	mu         sync.Mutex
	sent       []string
	candidates []string
	closed     bool
}

func (p *fakePeer) CreateOffer() (protocol.Description, error) {
	return protocol.Description{Type: protocol.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", p.id)}, nil
}

func (p *fakePeer) CreateAnswer() (protocol.Description, error) {
	return protocol.Description{Type: protocol.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", p.id)}, nil
}

func (p *fakePeer) SetLocalDescription(protocol.Description) error  { return nil }
func (p *fakePeer) SetRemoteDescription(protocol.Description) error { return nil }
func (p *fakePeer) RollbackLocalDescription() error                 { return nil }
func (p *fakePeer) OpenDataChannel(string) error                    { return nil }
func (p *fakePeer) Events() <-chan negotiation.PeerEvent            { return p.events }

func (p *fakePeer) AddRemoteCandidate(c protocol.Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c.Candidate)
	return nil
}

func (p *fakePeer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %d closed", p.id)
	}
	p.sent = append(p.sent, string(b))
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) sentPayloads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// rig is a Controller wired to in-memory links and fake peers.
type rig struct {
	c      *Controller
	links  chan *memLink
	peers  chan *fakePeer
	states chan negotiation.State
	errs   chan error
	msgs   chan []byte
}

func newRig(t *testing.T, timeout time.Duration) *rig {
	t.Helper()
	r := &rig{
		links:  make(chan *memLink, 8),
		peers:  make(chan *fakePeer, 8),
		states: make(chan negotiation.State, 64),
		errs:   make(chan error, 16),
		msgs:   make(chan []byte, 16),
	}

	var peerCount int
	r.c = New(Options{
		Config: config.Config{NegotiationTimeout: timeout},
		Dial: func(ctx context.Context, endpoint, room string) (Link, error) {
			l := newMemLink(ctx)
			r.links <- l
			return l, nil
		},
		NewPeer: func() (negotiation.PeerSession, error) {
			peerCount++
			p := &fakePeer{id: peerCount, events: make(chan negotiation.PeerEvent, 16)}
			r.peers <- p
			return p, nil
		},
	})
	r.c.OnState(func(s negotiation.State) { r.states <- s })
	r.c.OnError(func(err error) { r.errs <- err })
	r.c.OnMessage(func(b []byte) { r.msgs <- b })

	t.Cleanup(func() { r.c.Close() })
	return r
}

func (r *rig) open(t *testing.T) *memLink {
	t.Helper()
	if _, err := r.c.Open(context.Background(), "room", "ws://relay.test/signal"); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return r.nextLink(t)
}

func (r *rig) nextLink(t *testing.T) *memLink {
	t.Helper()
	select {
	case l := <-r.links:
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("no link dialed")
		return nil
	}
}

func (r *rig) nextPeer(t *testing.T) *fakePeer {
	t.Helper()
	select {
	case p := <-r.peers:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no peer created")
		return nil
	}
}

// waitState collects state transitions until want is seen.
func (r *rig) waitState(t *testing.T, want negotiation.State) []negotiation.State {
	t.Helper()
	var seen []negotiation.State
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.states:
			seen = append(seen, s)
			if s == want {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, saw %v", want, seen)
		}
	}
}

func (r *rig) nextError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
		return nil
	}
}

// waitSent returns the next message of the given kind sent on l.
func waitSent(t *testing.T, l *memLink, kind protocol.Kind) protocol.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-l.sent:
			if msg.Kind == kind {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s to be sent", kind)
		}
	}
}

func remoteJoin(id string, ack bool) protocol.Message {
	return protocol.Message{Kind: protocol.KindJoin, Join: &protocol.Join{Room: "room", ID: id, Ack: ack}}
}

// negotiateAsOfferer drives the session on l up to Connected with the local
// side offering, and returns the peer in use.
func (r *rig) negotiateAsOfferer(t *testing.T, l *memLink) *fakePeer {
	t.Helper()
	l.connected("1")
	l.deliver(remoteJoin("2", false))
	offer := waitSent(t, l, protocol.KindOffer)
	p := r.nextPeer(t)

	l.deliver(protocol.NewAnswer("answer-to-" + offer.Description.SDP))
	r.waitState(t, negotiation.ChannelOpening)
	p.events <- negotiation.PeerEvent{Kind: negotiation.ChannelOpen}
	r.waitState(t, negotiation.Connected)
	return p
}
