// Package transcript holds the turns of one live conversation.
package transcript

import (
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Transcript is append-only. Readers can wait on Changed for the next append.
type Transcript struct {
	mu      sync.RWMutex
	turns   []Turn
	changed chan struct{}
}

func New() *Transcript {
	return &Transcript{changed: make(chan struct{})}
}

// Append adds a turn and wakes everyone waiting on Changed.
func (t *Transcript) Append(role Role, content string) {
	t.mu.Lock()
	t.turns = append(t.turns, Turn{Role: role, Content: content, At: time.Now().UTC()})
	close(t.changed)
	t.changed = make(chan struct{})
	t.mu.Unlock()
}

// Changed returns a channel closed on the next Append. Grab it before
// reading Len to avoid missing an append in between.
func (t *Transcript) Changed() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.changed
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Turns returns a copy of every turn so far.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Last returns the most recent turn with the given role and its index.
func (t *Transcript) Last(role Role) (Turn, int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].Role == role {
			return t.turns[i], i, true
		}
	}
	return Turn{}, -1, false
}

// Count returns how many turns have the given role.
func (t *Transcript) Count(role Role) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, turn := range t.turns {
		if turn.Role == role {
			n++
		}
	}
	return n
}
