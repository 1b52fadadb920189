// Package protocol defines the signaling envelopes exchanged through the relay
// while two peers negotiate their DataChannel.
package protocol

import (
	"github.com/google/uuid"
)

// Kind identifies which payload a Message carries.
type Kind uint8

// Message kinds. KindUnknown marks a frame whose shape was not recognized;
// such messages are ignored by every consumer.
const (
	KindUnknown Kind = iota
	KindOffer
	KindAnswer
	KindCandidate
	KindJoin
	KindBye
)

func (k Kind) String() string {
	switch k {
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	case KindCandidate:
		return "candidate"
	case KindJoin:
		return "join"
	case KindBye:
		return "bye"
	default:
		return "unknown"
	}
}

// SDP types carried in Description.Type.
const (
	SDPTypeOffer  = "offer"
	SDPTypeAnswer = "answer"
)

// Description is a session description as it travels on the wire.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is a trickled ICE candidate as it travels on the wire.
// An empty Candidate string marks the end of gathering.
type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Join announces that a peer entered the room. ID is a time-ordered UUIDv7
// minted when the peer joined, so comparing two IDs tells which side joined
// first. Ack is set on the reply a present peer sends back to a newcomer.
type Join struct {
	Room string `json:"room"`
	ID   string `json:"id"`
	Ack  bool   `json:"ack,omitempty"`
}

// Message is the tagged variant exchanged over the signaling link. Exactly
// one of the payload pointers is set, matching Kind.
type Message struct {
	Kind        Kind
	Description *Description
	Candidate   *Candidate
	Join        *Join
}

// NewOffer wraps an SDP offer.
func NewOffer(sdp string) Message {
	return Message{Kind: KindOffer, Description: &Description{Type: SDPTypeOffer, SDP: sdp}}
}

// NewAnswer wraps an SDP answer.
func NewAnswer(sdp string) Message {
	return Message{Kind: KindAnswer, Description: &Description{Type: SDPTypeAnswer, SDP: sdp}}
}

// NewCandidate wraps a local ICE candidate for trickling.
func NewCandidate(c Candidate) Message {
	return Message{Kind: KindCandidate, Candidate: &c}
}

// NewJoin mints a fresh join announcement for room.
func NewJoin(room string) Message {
	return Message{Kind: KindJoin, Join: &Join{Room: room, ID: NewJoinID()}}
}

// NewJoinAck answers a newcomer's join with the local join id.
func NewJoinAck(room, id string) Message {
	return Message{Kind: KindJoin, Join: &Join{Room: room, ID: id, Ack: true}}
}

// NewBye tells the room that this peer is leaving.
func NewBye() Message {
	return Message{Kind: KindBye}
}

// NewJoinID returns a time-ordered identifier. Later calls sort after
// earlier ones when compared as strings.
func NewJoinID() string {
	return uuid.Must(uuid.NewV7()).String()
}
