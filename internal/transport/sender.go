package transport

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/drift/internal/util"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// sender serializes all writes to a single DataChannel, adding backpressure
// control.
type sender struct {
	dc          *webrtc.DataChannel
	drainSignal chan struct{}
	mu          sync.Mutex
}

// newSender creates a sender and wires the backpressure callbacks on dc.
func newSender(dc *webrtc.DataChannel) *sender {
	s := &sender{
		dc:          dc,
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	return s
}

// send writes p, blocking while the channel is above the high water mark
// until it drains or ctx is cancelled. Concurrent calls are written in the
// order they acquire the lock.
func (s *sender) send(ctx context.Context, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dc.BufferedAmount() > uint64(highWaterMark) {
		select {
		case <-s.drainSignal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := s.dc.Send(p); err != nil {
		return err
	}

	util.Stats.AddSent(len(p))
	return nil
}
