package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Client is one open websocket channel of a principal.
//
// Send is never closed by the server, so concurrent deliveries cannot panic;
// done signals the connection goroutines to stop.  Close is idempotent.
type Client struct {
	ID     string
	UserID uuid.UUID
	Send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(userID uuid.UUID, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		ID:     ulid.Make().String(),
		UserID: userID,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	c.closeFirst()
}

// closeFirst closes the client and reports whether this call did it.
func (c *Client) closeFirst() (first bool) {
	c.closeOnce.Do(func() {
		close(c.done)
		first = true
	})
	return first
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// deliver queues payload without blocking.  It reports false when the
// client is closing or its queue is full.
func (c *Client) deliver(payload []byte) bool {
	if c.Closed() {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}
