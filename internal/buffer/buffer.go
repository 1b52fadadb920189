// Package buffer queues outbound payloads until the data channel is open.
package buffer

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAlreadyFlushed is returned by FlushTo when the current channel
	// lifetime has already been flushed.
	ErrAlreadyFlushed = errors.New("buffer already flushed")

	// ErrClosed is returned by Enqueue after Discard.
	ErrClosed = errors.New("buffer closed")

	// ErrFlushFailed is returned by Enqueue when the flush of the current
	// channel lifetime failed. The payload is not accepted; Detach starts a
	// new lifetime.
	ErrFlushFailed = errors.New("buffer flush failed")
)

// Sink is where payloads go once the channel is open.
type Sink interface {
	Send(p []byte) error
}

// DiscardError reports payloads that were accepted but never delivered.
type DiscardError struct {
	Count  int
	Reason error
}

func (e *DiscardError) Error() string {
	return fmt.Sprintf("%d queued payloads discarded: %v", e.Count, e.Reason)
}

func (e *DiscardError) Unwrap() error { return e.Reason }

// Buffer is a FIFO of outbound payloads. Before FlushTo, Enqueue appends to
// the queue; after it, Enqueue writes straight to the sink until Detach
// starts a new channel lifetime. It is safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	queue   [][]byte
	sink    Sink
	flushed bool
	closed  bool
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Enqueue accepts p for delivery. The payload is copied.
func (b *Buffer) Enqueue(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.sink != nil {
		return b.sink.Send(p)
	}
	if b.flushed {
		return ErrFlushFailed
	}

	b.queue = append(b.queue, append([]byte(nil), p...))
	return nil
}

// FlushTo writes every queued payload to sink in submission order and binds
// the buffer to it. It returns the number of payloads written. If a write
// fails, the unwritten payloads stay queued, in order, for the next channel
// lifetime. Until then Enqueue fails with ErrFlushFailed.
func (b *Buffer) FlushTo(sink Sink) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if b.flushed {
		return 0, ErrAlreadyFlushed
	}
	b.flushed = true

	for i, p := range b.queue {
		if err := sink.Send(p); err != nil {
			b.queue = b.queue[i:]
			return i, err
		}
	}

	n := len(b.queue)
	b.queue = nil
	b.sink = sink
	return n, nil
}

// Detach unbinds the sink after the channel went away. Payloads enqueued
// from now on are held until the next FlushTo.
func (b *Buffer) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sink = nil
	b.flushed = false
}

// Discard drops every queued payload and closes the buffer. If anything was
// dropped, it returns a *DiscardError wrapping reason.
func (b *Buffer) Discard(reason error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.queue)
	b.queue = nil
	b.sink = nil
	b.closed = true

	if n == 0 {
		return nil
	}
	return &DiscardError{Count: n, Reason: reason}
}

// Len returns the number of payloads waiting for a sink.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
