package hlbus

import (
	"sync"
	"time"
)

// pendingRequest is the wait slot of one outstanding Request.
type pendingRequest struct {
	reply    chan Envelope // buffered(1); written at most once
	deadline time.Time
}

// pendingTable maps correlation ids to outstanding requests.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingRequest)}
}

// add registers a wait slot; fails if id is already in flight.
func (t *pendingTable) add(id string, deadline time.Time) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[id]; exists {
		return nil, ErrDuplicateCorrelation
	}
	p := &pendingRequest{reply: make(chan Envelope, 1), deadline: deadline}
	t.entries[id] = p
	return p, nil
}

// resolve hands env to the request waiting on its correlation id. The entry is
// removed in the same critical section, so a second reply finds nothing.
func (t *pendingTable) resolve(env Envelope) bool {
	id := env.Header.CorrelationID
	if id == "" {
		return false
	}
	t.mu.Lock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.reply <- env
	return true
}

// remove drops the entry for id if it still belongs to p.
func (t *pendingTable) remove(id string, p *pendingRequest) {
	t.mu.Lock()
	if cur, ok := t.entries[id]; ok && cur == p {
		delete(t.entries, id)
	}
	t.mu.Unlock()
}

// drain removes all entries; their waiters observe the bus closing.
func (t *pendingTable) drain() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.entries)
	t.entries = make(map[string]*pendingRequest)
	return n
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
