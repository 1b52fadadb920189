package negotiation

import "github.com/1ureka/drift/internal/protocol"

// PeerSession is the native peer-connection capability the machine drives.
// Implementations deliver their asynchronous notifications on Events; the
// channel is closed after Close.
type PeerSession interface {
	CreateOffer() (protocol.Description, error)
	CreateAnswer() (protocol.Description, error)
	SetLocalDescription(d protocol.Description) error
	SetRemoteDescription(d protocol.Description) error
	AddRemoteCandidate(c protocol.Candidate) error
	RollbackLocalDescription() error
	OpenDataChannel(label string) error
	Send(p []byte) error
	Events() <-chan PeerEvent
	Close() error
}

// PeerEventKind identifies a PeerSession notification.
type PeerEventKind int

const (
	LocalCandidate PeerEventKind = iota + 1
	ChannelOpen
	ChannelMessage
	ChannelClosed
	ConnectionFailed
)

func (k PeerEventKind) String() string {
	switch k {
	case LocalCandidate:
		return "local-candidate"
	case ChannelOpen:
		return "channel-open"
	case ChannelMessage:
		return "channel-message"
	case ChannelClosed:
		return "channel-closed"
	case ConnectionFailed:
		return "connection-failed"
	default:
		return "unknown"
	}
}

// PeerEvent is one notification from a PeerSession.
type PeerEvent struct {
	Kind      PeerEventKind
	Candidate protocol.Candidate // LocalCandidate
	Data      []byte             // ChannelMessage
	Err       error              // ConnectionFailed, optional
}

// Signaler sends messages to the remote peer through the relay.
type Signaler interface {
	Send(msg protocol.Message) error
}
