package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/drift/internal/negotiation"
	"github.com/1ureka/drift/internal/protocol"
	"github.com/1ureka/drift/internal/util"
)

var (
	// ErrNoChannel is returned by Send before OpenDataChannel.
	ErrNoChannel = errors.New("data channel not created")

	// ErrChannelNotOpen is returned by Send while the channel is not open.
	ErrChannelNotOpen = errors.New("data channel not open")
)

var _ negotiation.PeerSession = (*Peer)(nil)

// Options configures a Peer.
type Options struct {
	STUNServers []string
	EventBuffer int
}

// Peer wraps a single PeerConnection + DataChannel pair. pion callbacks are
// turned into PeerEvents delivered in order on Events().
type Peer struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	sender *sender

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	events chan negotiation.PeerEvent
}

// NewPeer creates a Peer backed by a new PeerConnection. The DataChannel is
// created by OpenDataChannel.
func NewPeer(opts Options) (*Peer, error) {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}

	pc, err := newPeerConnection(newAPI(), opts.STUNServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		pc:     pc,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan negotiation.PeerEvent, opts.EventBuffer),
	}

	// Trickle local candidates. A nil candidate marks the end of gathering.
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		p.emit(negotiation.PeerEvent{Kind: negotiation.LocalCandidate, Candidate: fromICECandidate(c.ToJSON())})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("PeerConnection state: %s", state)
		if state == webrtc.PeerConnectionStateFailed {
			p.emit(negotiation.PeerEvent{Kind: negotiation.ConnectionFailed, Err: errors.New("ICE connectivity lost")})
		}
	})

	return p, nil
}

// Events returns the peer's event stream. It is closed by Close.
func (p *Peer) Events() <-chan negotiation.PeerEvent {
	return p.events
}

// OpenDataChannel creates the application DataChannel. It can be called once.
func (p *Peer) OpenDataChannel(label string) error {
	if p.dc != nil {
		return fmt.Errorf("data channel %q already created", p.dc.Label())
	}

	dc, err := newDataChannel(p.pc, label)
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() {
			log.Debug("DataChannel %q open", label)
			p.emit(negotiation.PeerEvent{Kind: negotiation.ChannelOpen})
		})
	})
	dc.OnClose(func() {
		log.Debug("DataChannel %q closed", label)
		p.emit(negotiation.PeerEvent{Kind: negotiation.ChannelClosed})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.Stats.AddRecv(len(msg.Data))
		p.emit(negotiation.PeerEvent{Kind: negotiation.ChannelMessage, Data: msg.Data})
	})

	p.dc = dc
	p.sender = newSender(dc)
	return nil
}

// Send writes p to the DataChannel, honoring backpressure.
func (p *Peer) Send(data []byte) error {
	if p.sender == nil {
		return ErrNoChannel
	}
	if p.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return p.sender.send(p.ctx, data)
}

// Close shuts down the DataChannel and PeerConnection and closes Events().
func (p *Peer) Close() error {
	p.cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	var dcErr error
	if p.dc != nil {
		dcErr = p.dc.Close()
	}
	return errors.Join(dcErr, p.pc.Close())
}

// emit delivers ev unless the peer is closing. It blocks while the event
// queue is full.
func (p *Peer) emit(ev negotiation.PeerEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	case <-p.ctx.Done():
	}
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (p *Peer) CreateOffer() (protocol.Description, error) {
	sd, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.Description{}, err
	}
	return fromSessionDescription(sd), nil
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (protocol.Description, error) {
	sd, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.Description{}, err
	}
	return fromSessionDescription(sd), nil
}

// SetLocalDescription applies the local SDP.
func (p *Peer) SetLocalDescription(d protocol.Description) error {
	return p.pc.SetLocalDescription(toSessionDescription(d))
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(d protocol.Description) error {
	return p.pc.SetRemoteDescription(toSessionDescription(d))
}

// RollbackLocalDescription discards a local offer that has not been
// answered yet.
func (p *Peer) RollbackLocalDescription() error {
	return p.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

// AddRemoteCandidate adds a remote ICE candidate received through signaling.
// The end-of-candidates marker is accepted and ignored.
func (p *Peer) AddRemoteCandidate(c protocol.Candidate) error {
	if c.Candidate == "" {
		return nil
	}
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

// SignalingState returns the current offer/answer state.
func (p *Peer) SignalingState() webrtc.SignalingState {
	return p.pc.SignalingState()
}

func fromSessionDescription(sd webrtc.SessionDescription) protocol.Description {
	return protocol.Description{Type: sd.Type.String(), SDP: sd.SDP}
}

func toSessionDescription(d protocol.Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

func fromICECandidate(c webrtc.ICECandidateInit) protocol.Candidate {
	return protocol.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
