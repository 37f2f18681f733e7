// Package session decides which color source may drive continuous updates.
package session

import (
	"errors"
	"sync"

	"dev.acmcsuf.com/ambientd/fader"
)

// ErrFenced is returned by Admit when a source was replaced by another one.
// A well-behaved source stops sending once it sees this.
var ErrFenced = errors.New("source has been replaced by a newer one")

// Arbiter tracks the single source allowed to drive continuous mode. A new
// source always wins over the current owner, which is fenced: its next
// continuous request is rejected once, so that it stops without the arbiter
// needing any timeout.
type Arbiter struct {
	mu       sync.Mutex
	owner    string
	hasOwner bool
	fenced   map[string]struct{}
}

// NewArbiter creates a new arbiter without an owner.
func NewArbiter() *Arbiter {
	return &Arbiter{
		fenced: make(map[string]struct{}),
	}
}

// Admit decides whether a request from id in the given mode may go ahead.
// Continuous requests from a fenced id are rejected with ErrFenced and lift
// the fence. Static requests are always admitted and depose the current owner.
func (a *Arbiter) Admit(id string, mode fader.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if mode != fader.Continuous {
		a.depose()
		return nil
	}

	// A deposed source gets exactly one rejection. If it keeps sending after
	// that it becomes the owner again.
	if _, ok := a.fenced[id]; ok {
		delete(a.fenced, id)
		return ErrFenced
	}

	if a.hasOwner && a.owner != id {
		a.fenced[a.owner] = struct{}{}
	}

	a.owner = id
	a.hasOwner = true
	return nil
}

// Depose fences the current owner, if any, and returns it.
func (a *Arbiter) Depose() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.depose()
}

func (a *Arbiter) depose() (string, bool) {
	if !a.hasOwner {
		return "", false
	}

	owner := a.owner
	a.fenced[owner] = struct{}{}
	a.owner = ""
	a.hasOwner = false
	return owner, true
}

// Owner returns the current owner.
func (a *Arbiter) Owner() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.owner, a.hasOwner
}

// Fenced reports whether id will be rejected on its next continuous request.
func (a *Arbiter) Fenced(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.fenced[id]
	return ok
}
