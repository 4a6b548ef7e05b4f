package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

// Registry maps principal ids to their open channels.  A principal may hold
// several channels at once (one per tab).
//
// Delivery never blocks: a channel whose queue is full is closed and
// dropped, and delivery to the remaining channels carries on.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	// OnDrop, when set, is called once per channel dropped for backpressure.
	OnDrop func()
}

type entry struct {
	mu      sync.Mutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*entry)}
}

// Connect registers c under principalID, creating the entry if needed.
// principalID is expected to equal c.UserID.
func (r *Registry) Connect(c *Client, principalID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[principalID]
	if !ok {
		e = &entry{clients: make(map[string]*Client)}
		r.entries[principalID] = e
	}
	e.mu.Lock()
	e.clients[c.ID] = c
	e.mu.Unlock()
}

// Disconnect removes c from principalID's entry and drops the entry when it
// becomes empty.  Unknown channels are ignored.
func (r *Registry) Disconnect(c *Client, principalID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[principalID]
	if !ok {
		return
	}
	e.mu.Lock()
	delete(e.clients, c.ID)
	empty := len(e.clients) == 0
	e.mu.Unlock()
	if empty {
		delete(r.entries, principalID)
	}
}

// Broadcast delivers payload to every channel of every principal and
// returns the number of channels that accepted it.
func (r *Registry) Broadcast(payload []byte) int {
	r.mu.RLock()
	var targets []*Client
	for _, e := range r.entries {
		targets = e.appendClients(targets)
	}
	r.mu.RUnlock()
	return r.deliverAll(targets, payload)
}

// SendTo delivers payload to principalID's channels only.  It returns 0
// when the principal is not connected.
func (r *Registry) SendTo(principalID uuid.UUID, payload []byte) int {
	r.mu.RLock()
	e, ok := r.entries[principalID]
	var targets []*Client
	if ok {
		targets = e.appendClients(nil)
	}
	r.mu.RUnlock()
	return r.deliverAll(targets, payload)
}

// Connections returns how many channels principalID has open.
func (r *Registry) Connections(principalID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[principalID]
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clients)
}

// CloseAll closes every channel and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uuid.UUID]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		for _, c := range e.appendClients(nil) {
			c.Close()
		}
	}
}

func (e *entry) appendClients(dst []*Client) []*Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.clients {
		dst = append(dst, c)
	}
	return dst
}

func (r *Registry) deliverAll(targets []*Client, payload []byte) int {
	delivered := 0
	for _, c := range targets {
		if c.deliver(payload) {
			delivered++
			continue
		}
		if !c.closeFirst() {
			continue
		}
		log.Warnf("realtime: dropping slow client %s of %s", c.ID, c.UserID)
		r.Disconnect(c, c.UserID)
		if r.OnDrop != nil {
			r.OnDrop()
		}
	}
	return delivered
}
