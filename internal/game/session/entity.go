// Package session tracks live connections and queues outbound frames for
// each of them.
package session

import (
	"fmt"
	"sync"
)

// DefaultBufferSize is the outbox capacity used when none is configured.
const DefaultBufferSize = 64

// Outbox queues encoded frames for one connection. The transport's writer
// goroutine drains Frames.
type Outbox struct {
	connID string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection.
//
// Precondition: connID must be non-empty.
// Postcondition: Returns an Outbox with an open frames channel.
func NewOutbox(connID string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Outbox{
		connID: connID,
		frames: make(chan []byte, bufferSize),
	}
}

// Push enqueues a frame without blocking.
//
// Postcondition: Returns an error if the outbox is closed or full.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s is closed", o.connID)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s buffer full", o.connID)
	}
}

// Frames returns the read-only frame channel. It is closed by Close.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the frame channel. Repeated calls are no-ops.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
	return nil
}
