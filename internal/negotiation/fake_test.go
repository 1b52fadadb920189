package negotiation

import (
	"errors"
	"fmt"

	"github.com/1ureka/drift/internal/protocol"
)

// Signaling states of fakePeer, as defined for an RTCPeerConnection.
const (
	stable          = "stable"
	haveLocalOffer  = "have-local-offer"
	haveRemoteOffer = "have-remote-offer"
)

// fakePeer models the offer/answer state of a peer connection closely enough
// that an out-of-order call fails the way a real one would.
type fakePeer struct {
	name string
	gen  uint64

	state  string
	local  *protocol.Description
	remote *protocol.Description
	label  string
	offers int
	closed bool

	applied []protocol.Candidate
	events  chan PeerEvent

	failRemote error
	failAdd    error
}

func newFakePeer(name string, gen uint64) *fakePeer {
	return &fakePeer{name: name, gen: gen, state: stable, events: make(chan PeerEvent, 16)}
}

func (p *fakePeer) CreateOffer() (protocol.Description, error) {
	p.offers++
	return protocol.Description{
		Type: protocol.SDPTypeOffer,
		SDP:  fmt.Sprintf("offer/%s/%d/%d", p.name, p.gen, p.offers),
	}, nil
}

func (p *fakePeer) CreateAnswer() (protocol.Description, error) {
	if p.state != haveRemoteOffer {
		return protocol.Description{}, fmt.Errorf("create answer in %s", p.state)
	}
	return protocol.Description{Type: protocol.SDPTypeAnswer, SDP: "answer/" + p.remote.SDP}, nil
}

func (p *fakePeer) SetLocalDescription(d protocol.Description) error {
	switch {
	case d.Type == protocol.SDPTypeOffer && p.state == stable:
		p.state = haveLocalOffer
	case d.Type == protocol.SDPTypeAnswer && p.state == haveRemoteOffer:
		p.state = stable
	default:
		return fmt.Errorf("set local %s in %s", d.Type, p.state)
	}
	p.local = &d
	return nil
}

func (p *fakePeer) SetRemoteDescription(d protocol.Description) error {
	if p.failRemote != nil {
		return p.failRemote
	}
	switch {
	case d.Type == protocol.SDPTypeOffer && p.state == stable:
		p.state = haveRemoteOffer
	case d.Type == protocol.SDPTypeAnswer && p.state == haveLocalOffer:
		p.state = stable
	default:
		return fmt.Errorf("set remote %s in %s", d.Type, p.state)
	}
	p.remote = &d
	return nil
}

func (p *fakePeer) AddRemoteCandidate(c protocol.Candidate) error {
	if p.remote == nil {
		return errors.New("candidate before remote description")
	}
	if p.failAdd != nil {
		return p.failAdd
	}
	p.applied = append(p.applied, c)
	return nil
}

func (p *fakePeer) RollbackLocalDescription() error {
	if p.state != haveLocalOffer {
		return fmt.Errorf("rollback in %s", p.state)
	}
	p.state = stable
	p.local = nil
	return nil
}

func (p *fakePeer) OpenDataChannel(label string) error {
	p.label = label
	return nil
}

func (p *fakePeer) Send([]byte) error        { return nil }
func (p *fakePeer) Events() <-chan PeerEvent { return p.events }

func (p *fakePeer) Close() error {
	p.closed = true
	return nil
}

// recordingSignaler keeps every message the machine sends.
type recordingSignaler struct {
	sent []protocol.Message
}

func (s *recordingSignaler) Send(msg protocol.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

// take returns and forgets the recorded messages.
func (s *recordingSignaler) take() []protocol.Message {
	sent := s.sent
	s.sent = nil
	return sent
}

func (s *recordingSignaler) kinds() []protocol.Kind {
	kinds := make([]protocol.Kind, len(s.sent))
	for i, m := range s.sent {
		kinds[i] = m.Kind
	}
	return kinds
}

// harness wires a Machine to fakes and records everything it does.
type harness struct {
	m      *Machine
	sig    *recordingSignaler
	peers  []*fakePeer
	states []State
	armed  []uint64
}

func newHarness(name string) *harness {
	h := &harness{sig: &recordingSignaler{}}
	h.m = NewMachine(Config{
		Room:  "room",
		Label: "drift-data",
		NewPeer: func(gen uint64) (PeerSession, error) {
			p := newFakePeer(name, gen)
			h.peers = append(h.peers, p)
			return p, nil
		},
		OnState:  func(s State) { h.states = append(h.states, s) },
		ArmTimer: func(attempt uint64) { h.armed = append(h.armed, attempt) },
	}, h.sig)
	return h
}

// peer returns the machine's current fake peer, or nil.
func (h *harness) peer() *fakePeer {
	if p, ok := h.m.Peer().(*fakePeer); ok {
		return p
	}
	return nil
}

// connect brings the machine to SignalingConnected with the given join id.
func (h *harness) connect(id string) {
	h.m.SignalingConnecting()
	h.m.SignalingConnected(protocol.Join{Room: "room", ID: id})
}

func join(id string, ack bool) protocol.Message {
	return protocol.Message{Kind: protocol.KindJoin, Join: &protocol.Join{Room: "room", ID: id, Ack: ack}}
}

func answer(sdp string) protocol.Message { return protocol.NewAnswer(sdp) }
func offer(sdp string) protocol.Message  { return protocol.NewOffer(sdp) }

func candidate(s string) protocol.Message {
	return protocol.NewCandidate(protocol.Candidate{Candidate: s})
}
