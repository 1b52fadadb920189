package negotiation

// State is the connection state of one session.
type State int

const (
	Idle State = iota
	SignalingConnecting
	SignalingConnected
	Negotiating
	ChannelOpening
	Connected
	Disconnected
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SignalingConnecting:
		return "SignalingConnecting"
	case SignalingConnected:
		return "SignalingConnected"
	case Negotiating:
		return "Negotiating"
	case ChannelOpening:
		return "ChannelOpening"
	case Connected:
		return "Connected"
	case Disconnected:
		return "Disconnected"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Role decides which side offers. It is fixed for the lifetime of one
// negotiation attempt.
type Role int

const (
	NoRole Role = iota
	Offerer
	Answerer
)

func (r Role) String() string {
	switch r {
	case Offerer:
		return "offerer"
	case Answerer:
		return "answerer"
	default:
		return "none"
	}
}

// Polite reports whether the role yields on an offer collision.
func (r Role) Polite() bool { return r == Answerer }

// RoleFor arbitrates between two join ids. The side that joined first, i.e.
// whose time-ordered id sorts first, offers.
func RoleFor(localID, remoteID string) Role {
	if localID < remoteID {
		return Offerer
	}
	return Answerer
}
