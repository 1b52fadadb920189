// Package config holds the engine and CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults used when a Config field is left zero.
const (
	DefaultRoomParam          = "dft_id"
	DefaultChannelLabel       = "drift-data"
	DefaultNegotiationTimeout = 30 * time.Second
	DefaultBackoffBase        = 500 * time.Millisecond
	DefaultBackoffMax         = 8 * time.Second
	DefaultEventQueueSize     = 64
)

// DefaultSTUNServers is used for ICE gathering. No TURN: peers that cannot
// reach each other directly fail negotiation.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config stores every tunable of a peer link.
type Config struct {
	Endpoint string // relay WebSocket URL (CLI only; Open takes it explicitly)
	Room     string // room identifier (CLI only; Open takes it explicitly)

	RoomParam    string   // query parameter carrying the room id
	ChannelLabel string   // label of the single application DataChannel
	STUNServers  []string // ICE servers handed to each PeerConnection

	NegotiationTimeout time.Duration // Negotiating/ChannelOpening deadline
	BackoffBase        time.Duration // first reconnect delay
	BackoffMax         time.Duration // reconnect delay cap

	EventQueueSize int // bounded queue between peer callbacks and the event loop

	Debug bool
}

// Default returns a Config with every tunable set to its default.
func Default() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills zero-valued fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.RoomParam == "" {
		c.RoomParam = DefaultRoomParam
	}
	if c.ChannelLabel == "" {
		c.ChannelLabel = DefaultChannelLabel
	}
	if c.STUNServers == nil {
		c.STUNServers = append([]string(nil), DefaultSTUNServers...)
	}
	if c.NegotiationTimeout <= 0 {
		c.NegotiationTimeout = DefaultNegotiationTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = DefaultEventQueueSize
	}
	return c
}

// Validate checks the fields the CLI must supply.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Room) == "" {
		errs = append(errs, errors.New("missing room"))
	}
	if _, err := NormalizeEndpoint(c.Endpoint); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NormalizeEndpoint validates a relay URL and maps http(s) schemes onto their
// WebSocket equivalents. A bare host defaults to wss.
func NormalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("missing relay URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported relay URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// RoomURL returns endpoint with the room identifier set as query parameter.
func RoomURL(endpoint, param, room string) (string, error) {
	normalized, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(room) == "" {
		return "", errors.New("missing room")
	}
	if param == "" {
		param = DefaultRoomParam
	}

	u, _ := url.Parse(normalized)
	q := u.Query()
	q.Set(param, room)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
