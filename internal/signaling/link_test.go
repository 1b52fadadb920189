package signaling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/1ureka/drift/internal/config"
	"github.com/1ureka/drift/internal/protocol"
	"github.com/1ureka/drift/internal/signaling/sigtest"
)

var testOptions = Options{
	BackoffBase: 10 * time.Millisecond,
	BackoffMax:  40 * time.Millisecond,
}

// nextEvent waits for the next link event of the given kind, skipping others.
func nextEvent(t *testing.T, l *Link, kind EventKind) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-l.Events():
			if !ok {
				t.Fatalf("event stream closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func waitMembers(t *testing.T, relay *sigtest.Relay, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for relay.Members(room) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room %q has %d members, want %d", room, relay.Members(room), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLinkAnnouncesJoinOnConnect(t *testing.T) {
	relay := sigtest.NewRelay(config.DefaultRoomParam)
	defer relay.Close()

	a, err := Dial(context.Background(), relay.URL(), "room", testOptions)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer a.Close()

	connected := nextEvent(t, a, EventConnected)
	if connected.Join.Room != "room" || connected.Join.ID == "" {
		t.Fatalf("unexpected join: %+v", connected.Join)
	}
	waitMembers(t, relay, "room", 1)

	b, err := Dial(context.Background(), relay.URL(), "room", testOptions)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer b.Close()

	bJoin := nextEvent(t, b, EventConnected).Join

	// a is already in the room and must see b's announcement.
	ev := nextEvent(t, a, EventMessage)
	if ev.Message.Kind != protocol.KindJoin || ev.Message.Join.ID != bJoin.ID {
		t.Fatalf("expected b's join, got %+v", ev.Message)
	}
}

func TestLinkRelaysMessagesWithinRoom(t *testing.T) {
	relay := sigtest.NewRelay(config.DefaultRoomParam)
	defer relay.Close()

	a, _ := Dial(context.Background(), relay.URL(), "r1", testOptions)
	defer a.Close()
	b, _ := Dial(context.Background(), relay.URL(), "r1", testOptions)
	defer b.Close()
	other, _ := Dial(context.Background(), relay.URL(), "r2", testOptions)
	defer other.Close()

	nextEvent(t, a, EventConnected)
	nextEvent(t, b, EventConnected)
	nextEvent(t, other, EventConnected)
	waitMembers(t, relay, "r1", 2)

	if err := a.Send(protocol.NewOffer("v=0 offer")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// b may first see a's join; skip until the offer.
	for {
		ev := nextEvent(t, b, EventMessage)
		if ev.Message.Kind == protocol.KindJoin {
			continue
		}
		if ev.Message.Kind != protocol.KindOffer || ev.Message.Description.SDP != "v=0 offer" {
			t.Fatalf("unexpected message: %+v", ev.Message)
		}
		break
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("room r2 received a frame from r1: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLinkIgnoresMalformedFrames(t *testing.T) {
	relay := sigtest.NewRelay(config.DefaultRoomParam)
	defer relay.Close()

	l, _ := Dial(context.Background(), relay.URL(), "room", testOptions)
	defer l.Close()
	nextEvent(t, l, EventConnected)
	waitMembers(t, relay, "room", 1)

	relay.Broadcast("room", []byte("{not json"))
	relay.Broadcast("room", []byte(`{"type":"chat"}`))
	relay.Broadcast("room", []byte(`{"bye":{}}`))

	ev := nextEvent(t, l, EventMessage)
	if ev.Message.Kind != protocol.KindBye {
		t.Fatalf("expected bye after skipped frames, got %s", ev.Message.Kind)
	}
}

func TestLinkReconnectsWithFreshJoin(t *testing.T) {
	relay := sigtest.NewRelay(config.DefaultRoomParam)
	defer relay.Close()

	l, _ := Dial(context.Background(), relay.URL(), "room", testOptions)
	defer l.Close()

	first := nextEvent(t, l, EventConnected)
	waitMembers(t, relay, "room", 1)

	relay.DropAll()

	lost := nextEvent(t, l, EventDisconnected)
	var sigErr *Error
	if !errors.As(lost.Err, &sigErr) {
		t.Errorf("expected *Error, got %T", lost.Err)
	}

	second := nextEvent(t, l, EventConnected)
	if second.Join.ID == first.Join.ID {
		t.Error("expected a fresh join id after reconnect")
	}
	if relay.Accepted() != 2 {
		t.Errorf("relay accepted %d connections, want 2", relay.Accepted())
	}
}

func TestLinkSendWhileDisconnected(t *testing.T) {
	relay := sigtest.NewRelay(config.DefaultRoomParam)
	url := relay.URL()
	relay.Close()

	l, err := Dial(context.Background(), url, "room", testOptions)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer l.Close()

	err = l.Send(protocol.NewBye())
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestLinkCloseEndsEventStream(t *testing.T) {
	relay := sigtest.NewRelay(config.DefaultRoomParam)
	defer relay.Close()

	l, _ := Dial(context.Background(), relay.URL(), "room", testOptions)
	nextEvent(t, l, EventConnected)

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for range l.Events() {
	}
	if err := l.Send(protocol.NewBye()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}

func TestDialRejectsInvalidInput(t *testing.T) {
	if _, err := Dial(context.Background(), "ftp://example.com", "room", testOptions); err == nil {
		t.Error("expected error for unsupported scheme")
	}
	if _, err := Dial(context.Background(), "ws://localhost:1", "", testOptions); err == nil {
		t.Error("expected error for empty room")
	}
}
