// Package transport implements the peer session on top of a pion
// PeerConnection carrying a single pre-negotiated DataChannel.
package transport

import (
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/drift/internal/util"
)

var log = util.Scoped("transport")

// newAPI returns a pion API whose internal logging goes through the process
// logger.
func newAPI() *webrtc.API {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = util.PionLoggerFactory{}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// newPeerConnection creates a PeerConnection using the given STUN servers.
// No TURN: peers that cannot reach each other directly fail negotiation.
func newPeerConnection(api *webrtc.API, stunServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{
			{URLs: stunServers},
		}
	}
	return api.NewPeerConnection(config)
}

// newDataChannel creates the pre-negotiated, ordered DataChannel. Using
// negotiated mode (ID 0) lets both sides create the channel independently
// without relying on OnDataChannel, whichever of them ends up offering.
func newDataChannel(pc *webrtc.PeerConnection, label string) (*webrtc.DataChannel, error) {
	ordered := true
	negotiated := true
	id := uint16(0)

	return pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	})
}
