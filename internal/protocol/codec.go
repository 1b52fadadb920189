package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKind is returned by Encode for a message without a payload kind.
var ErrUnknownKind = errors.New("unknown signaling message kind")

// envelope is the JSON shape on the wire. The recipient infers the kind from
// whichever key is present.
type envelope struct {
	SDP       *Description `json:"sdp,omitempty"`
	Candidate *Candidate   `json:"candidate,omitempty"`
	Join      *Join        `json:"join,omitempty"`
	Bye       *struct{}    `json:"bye,omitempty"`
}

// Encode serializes a Message into a JSON text frame.
func Encode(msg Message) ([]byte, error) {
	var env envelope

	switch msg.Kind {
	case KindOffer, KindAnswer:
		if msg.Description == nil {
			return nil, fmt.Errorf("%s message without description", msg.Kind)
		}
		d := *msg.Description
		d.Type = msg.Kind.String()
		env.SDP = &d
	case KindCandidate:
		if msg.Candidate == nil {
			return nil, fmt.Errorf("candidate message without candidate")
		}
		env.Candidate = msg.Candidate
	case KindJoin:
		if msg.Join == nil || msg.Join.ID == "" {
			return nil, fmt.Errorf("join message without id")
		}
		env.Join = msg.Join
	case KindBye:
		env.Bye = &struct{}{}
	default:
		return nil, ErrUnknownKind
	}

	return json.Marshal(env)
}

// Decode deserializes a JSON text frame. A frame that is not valid JSON is an
// error; a valid frame of an unrecognized shape decodes to KindUnknown.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("malformed signaling frame: %w", err)
	}

	present := 0
	for _, set := range []bool{env.SDP != nil, env.Candidate != nil, env.Join != nil, env.Bye != nil} {
		if set {
			present++
		}
	}
	if present != 1 {
		return Message{}, nil
	}

	switch {
	case env.SDP != nil:
		switch env.SDP.Type {
		case SDPTypeOffer:
			return Message{Kind: KindOffer, Description: env.SDP}, nil
		case SDPTypeAnswer:
			return Message{Kind: KindAnswer, Description: env.SDP}, nil
		}
	case env.Candidate != nil:
		return Message{Kind: KindCandidate, Candidate: env.Candidate}, nil
	case env.Join != nil:
		if env.Join.ID != "" {
			return Message{Kind: KindJoin, Join: env.Join}, nil
		}
	case env.Bye != nil:
		return Message{Kind: KindBye}, nil
	}

	return Message{}, nil
}
