// Package negotiation implements the offer/answer state machine that brings
// a peer session from an empty room to an open data channel.
//
// A Machine is not safe for concurrent use. It is driven by exactly one
// goroutine, which feeds it relay messages, peer events and timer firings in
// the order they were received.
package negotiation

import (
	"errors"

	"github.com/1ureka/drift/internal/protocol"
	"github.com/1ureka/drift/internal/util"
)

var log = util.Scoped("negotiation")

// ErrNotNegotiating is returned by Renegotiate when no peer session exists.
var ErrNotNegotiating = errors.New("no negotiation in progress")

// Config wires a Machine to its collaborators.
type Config struct {
	Room  string // room announced in join replies
	Label string // data channel label

	// NewPeer creates the peer session for generation gen. Events of a
	// session must be tagged with gen by the caller so that stale ones can
	// be dropped once Generation moves on.
	NewPeer func(gen uint64) (PeerSession, error)

	// OnState is called synchronously on every state change.
	OnState func(State)

	// ArmTimer asks the caller to call Timeout(attempt) once the negotiation
	// deadline has passed.
	ArmTimer func(attempt uint64)
}

// Machine is the negotiation state machine of one session.
type Machine struct {
	cfg Config
	sig Signaler

	state State
	role  Role

	localJoin  string
	remoteJoin string

	peer    PeerSession
	gen     uint64
	attempt uint64

	pending      candidateQueue
	haveRemote   bool // remote description applied on the current peer
	offerPending bool // local offer set, answer not yet applied
	ignoreOffer  bool // last remote offer was dropped as a collision
}

// NewMachine returns an Idle machine that signals through sig.
func NewMachine(cfg Config, sig Signaler) *Machine {
	return &Machine{cfg: cfg, sig: sig}
}

func (m *Machine) State() State       { return m.state }
func (m *Machine) Role() Role         { return m.role }
func (m *Machine) Attempt() uint64    { return m.attempt }
func (m *Machine) Generation() uint64 { return m.gen }
func (m *Machine) LocalJoin() string  { return m.localJoin }
func (m *Machine) RemoteJoin() string { return m.remoteJoin }

// Peer returns the current peer session, or nil between attempts.
func (m *Machine) Peer() PeerSession { return m.peer }

// SignalingConnecting records that the relay connection is being dialed.
func (m *Machine) SignalingConnecting() {
	if m.state == Failed {
		return
	}
	m.transition(SignalingConnecting)
}

// SignalingConnected records a relay (re)connection announced with join.
// Anything left from an earlier connection is discarded; roles are
// arbitrated again once the remote join id is known.
func (m *Machine) SignalingConnected(join protocol.Join) {
	if m.state == Failed {
		return
	}
	m.resetPeer()
	m.role = NoRole
	m.localJoin = join.ID
	m.remoteJoin = ""
	m.transition(SignalingConnected)
}

// SignalingLost records a relay drop. The in-flight negotiation is abandoned
// and the machine waits for the link to reconnect.
func (m *Machine) SignalingLost() {
	if m.state == Failed || m.state == Idle {
		return
	}
	m.resetPeer()
	m.role = NoRole
	m.remoteJoin = ""
	m.transition(Disconnected)
	m.transition(SignalingConnecting)
}

// Start begins a negotiation attempt with a fresh peer session. An Offerer
// sends its offer right away; an Answerer waits for one.
func (m *Machine) Start(role Role) error {
	if m.state == Failed {
		return ErrFailed
	}
	if role != Offerer && role != Answerer {
		return m.fail("start", errors.New("invalid role"))
	}

	// Candidates that arrived before any peer existed belong to this attempt.
	if m.peer != nil {
		m.resetPeer()
	}
	m.role = role
	m.attempt++

	if err := m.ensurePeer(); err != nil {
		return m.fail("create peer", err)
	}

	log.Debug("attempt %d started as %s", m.attempt, role)
	m.transition(Negotiating)
	if m.cfg.ArmTimer != nil {
		m.cfg.ArmTimer(m.attempt)
	}

	if role == Offerer {
		return m.offer()
	}
	return nil
}

// OnRemoteSignal applies one message received from the relay. A non-nil
// error means the machine has failed.
func (m *Machine) OnRemoteSignal(msg protocol.Message) error {
	if m.state == Failed {
		return nil
	}

	switch msg.Kind {
	case protocol.KindJoin:
		return m.onJoin(*msg.Join)
	case protocol.KindBye:
		m.onBye()
		return nil
	case protocol.KindOffer:
		return m.onOffer(*msg.Description)
	case protocol.KindAnswer:
		return m.onAnswer(*msg.Description)
	case protocol.KindCandidate:
		return m.onCandidate(*msg.Candidate)
	default:
		return nil
	}
}

// OnLocalCandidate trickles a local candidate to the remote peer, whatever
// the negotiation phase.
func (m *Machine) OnLocalCandidate(c protocol.Candidate) error {
	if m.state == Failed {
		return nil
	}
	m.signal(protocol.NewCandidate(c))
	return nil
}

// OnChannelEvent applies one event of the current peer session. The caller
// is responsible for dropping events of older generations.
func (m *Machine) OnChannelEvent(ev PeerEvent) error {
	if m.state == Failed {
		return nil
	}

	switch ev.Kind {
	case LocalCandidate:
		return m.OnLocalCandidate(ev.Candidate)
	case ChannelOpen:
		if m.state == Negotiating || m.state == ChannelOpening {
			m.transition(Connected)
		}
	case ChannelClosed, ConnectionFailed:
		if ev.Err != nil {
			log.Warn("peer %s: %v", ev.Kind, ev.Err)
		} else {
			log.Warn("peer %s", ev.Kind)
		}
		m.restart()
	}
	return nil
}

// Renegotiate makes the local side offer again on the current peer session,
// whatever its role.
func (m *Machine) Renegotiate() error {
	if m.state == Failed {
		return ErrFailed
	}
	if m.peer == nil {
		return ErrNotNegotiating
	}
	if m.offerPending {
		return nil
	}
	return m.offer()
}

// Timeout fires the deadline of the given attempt. Stale attempts and
// attempts that already reached Connected are ignored.
func (m *Machine) Timeout(attempt uint64) error {
	if attempt != m.attempt {
		return nil
	}
	if m.state != Negotiating && m.state != ChannelOpening {
		return nil
	}
	return m.fail("deadline", ErrTimeout)
}

// Close says goodbye to the remote peer, releases the peer session and
// leaves the machine Disconnected.
func (m *Machine) Close() {
	if m.remoteJoin != "" {
		m.signal(protocol.NewBye())
	}
	m.resetPeer()
	m.role = NoRole
	m.remoteJoin = ""
	m.transition(Disconnected)
}

func (m *Machine) onJoin(j protocol.Join) error {
	if j.ID == m.localJoin || (m.cfg.Room != "" && j.Room != m.cfg.Room) {
		return nil
	}
	if !j.Ack && m.localJoin != "" {
		m.signal(protocol.NewJoinAck(m.cfg.Room, m.localJoin))
	}

	switch m.remoteJoin {
	case j.ID:
		return nil
	case "":
	default:
		log.Info("remote peer rejoined, restarting negotiation")
		m.resetPeer()
		m.role = NoRole
		m.transition(Disconnected)
		m.transition(SignalingConnected)
	}

	m.remoteJoin = j.ID
	if m.localJoin == "" || m.role != NoRole {
		return nil
	}
	return m.Start(RoleFor(m.localJoin, m.remoteJoin))
}

func (m *Machine) onBye() {
	if m.remoteJoin == "" && m.role == NoRole {
		return
	}
	log.Info("remote peer left")
	m.resetPeer()
	m.role = NoRole
	m.remoteJoin = ""
	m.transition(Disconnected)
	m.transition(SignalingConnected)
}

func (m *Machine) onOffer(d protocol.Description) error {
	if m.role == NoRole {
		// The remote arbitrated before us; whoever offers first wins.
		if err := m.Start(Answerer); err != nil {
			return err
		}
	}

	collision := m.offerPending
	m.ignoreOffer = !m.role.Polite() && collision
	if m.ignoreOffer {
		log.Debug("ignoring colliding offer")
		return nil
	}

	if collision {
		if err := m.peer.RollbackLocalDescription(); err != nil {
			return m.fail("rollback", err)
		}
		m.offerPending = false
		log.Debug("rolled back local offer")
	}

	if err := m.peer.SetRemoteDescription(d); err != nil {
		return m.fail("set remote offer", err)
	}
	m.haveRemote = true
	if err := m.flushCandidates(); err != nil {
		return err
	}

	answer, err := m.peer.CreateAnswer()
	if err != nil {
		return m.fail("create answer", err)
	}
	if err := m.peer.SetLocalDescription(answer); err != nil {
		return m.fail("set local answer", err)
	}
	m.signal(protocol.NewAnswer(answer.SDP))

	if m.state == Negotiating {
		m.transition(ChannelOpening)
	}
	return nil
}

func (m *Machine) onAnswer(d protocol.Description) error {
	if m.peer == nil || !m.offerPending {
		log.Debug("ignoring answer without pending offer")
		return nil
	}

	if err := m.peer.SetRemoteDescription(d); err != nil {
		return m.fail("set remote answer", err)
	}
	m.offerPending = false
	m.haveRemote = true
	if err := m.flushCandidates(); err != nil {
		return err
	}
	// The collision is resolved; candidate errors count again.
	m.ignoreOffer = false

	if m.state == Negotiating {
		m.transition(ChannelOpening)
	}
	return nil
}

func (m *Machine) onCandidate(c protocol.Candidate) error {
	if m.peer == nil || !m.haveRemote {
		m.pending.push(c)
		return nil
	}
	return m.addCandidate(c)
}

func (m *Machine) flushCandidates() error {
	if m.pending.len() > 0 {
		log.Debug("applying %d queued candidates", m.pending.len())
	}
	for _, c := range m.pending.drain() {
		if err := m.addCandidate(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) addCandidate(c protocol.Candidate) error {
	if err := m.peer.AddRemoteCandidate(c); err != nil {
		if m.ignoreOffer {
			return nil
		}
		return m.fail("add candidate", err)
	}
	return nil
}

func (m *Machine) offer() error {
	d, err := m.peer.CreateOffer()
	if err != nil {
		return m.fail("create offer", err)
	}
	if err := m.peer.SetLocalDescription(d); err != nil {
		return m.fail("set local offer", err)
	}
	m.offerPending = true
	m.signal(protocol.NewOffer(d.SDP))
	return nil
}

// restart abandons the current peer session after a channel or connection
// failure and announces a fresh join so both sides arbitrate again.
func (m *Machine) restart() {
	m.resetPeer()
	m.role = NoRole
	m.remoteJoin = ""
	m.transition(Disconnected)

	join := protocol.NewJoin(m.cfg.Room)
	m.localJoin = join.Join.ID
	m.signal(join)
	m.transition(SignalingConnected)
}

func (m *Machine) ensurePeer() error {
	if m.peer != nil {
		return nil
	}

	m.gen++
	p, err := m.cfg.NewPeer(m.gen)
	if err != nil {
		return err
	}
	if err := p.OpenDataChannel(m.cfg.Label); err != nil {
		p.Close()
		return err
	}
	m.peer = p
	return nil
}

// resetPeer releases the current peer session and every piece of state tied
// to it.
func (m *Machine) resetPeer() {
	if m.peer != nil {
		if err := m.peer.Close(); err != nil {
			log.Debug("closing peer: %v", err)
		}
		m.peer = nil
	}
	m.pending.clear()
	m.haveRemote = false
	m.offerPending = false
	m.ignoreOffer = false
}

func (m *Machine) fail(op string, err error) error {
	e := &Error{Op: op, Err: err}
	log.Warn("%v", e)
	m.resetPeer()
	m.transition(Failed)
	return e
}

func (m *Machine) signal(msg protocol.Message) {
	if err := m.sig.Send(msg); err != nil {
		log.Debug("%s not sent: %v", msg.Kind, err)
	}
}

func (m *Machine) transition(to State) {
	if m.state == to {
		return
	}
	log.Debug("%s -> %s", m.state, to)
	m.state = to
	if m.cfg.OnState != nil {
		m.cfg.OnState(to)
	}
}
