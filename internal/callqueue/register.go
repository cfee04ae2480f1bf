// Package callqueue holds call contexts between the HTTP request that places
// an outbound call and the media stream the provider opens once it connects.
package callqueue

import (
	"sync"
	"time"

	"github.com/gammazero/deque"
)

// CallContext is what the session needs to know about a placed call.
type CallContext struct {
	PhoneNumber  string `json:"phone_number"`
	CustomerName string `json:"customer_name"`
	// PlacedAt is informational; correlation never looks at it.
	PlacedAt time.Time `json:"placed_at"`
}

// Register is a FIFO of pending call contexts. Correlation with inbound
// streams relies only on ordering; no provider identifier is stored.
type Register struct {
	mu sync.Mutex
	q  deque.Deque[CallContext]
}

func New() *Register {
	return &Register{}
}

// Push appends cc to the tail.
func (r *Register) Push(cc CallContext) {
	r.mu.Lock()
	r.q.PushBack(cc)
	r.mu.Unlock()
}

// Pop removes and returns the oldest context. ok is false when nothing is pending.
func (r *Register) Pop() (cc CallContext, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q.Len() == 0 {
		return CallContext{}, false
	}
	return r.q.PopFront(), true
}

// Peek returns the oldest context without removing it.
func (r *Register) Peek() (cc CallContext, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q.Len() == 0 {
		return CallContext{}, false
	}
	return r.q.Front(), true
}

// Len returns the number of pending contexts.
func (r *Register) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Len()
}
