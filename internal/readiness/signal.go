// Package readiness reconciles live probes, install markers and the provider
// preference into one observable state.
package readiness

import (
	"sync"

	"github.com/srmooon/vcnarrator/internal/helper"
	"github.com/srmooon/vcnarrator/internal/protocol"
)

// State is the coarse readiness of the helper backend.
type State int

const (
	Unknown State = iota
	Checking
	Ready
	NotReady
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Ready:
		return "ready"
	case NotReady:
		return "not-ready"
	default:
		return "unknown"
	}
}

// Status texts shown to the user.
const (
	StatusChecking     = "Checking…"
	StatusNotInstalled = "Not installed"
	StatusDownloading  = "Downloading…"
	StatusStarting     = "Starting…"
	StatusRunning      = "✓ Running"
	StatusStartFailed  = "Failed to start"
)

// Snapshot is one published readiness value.
type Snapshot struct {
	State     State
	Status    string
	Voices    []protocol.Voice
	Installed helper.InstallState
	Err       error
}

// Signal owns the current Snapshot and fans every change out to its
// subscribers in the order they subscribed.
type Signal struct {
	mu     sync.Mutex
	cur    Snapshot
	subs   []subscriber
	nextID int

	// serializes deliveries so observers never see snapshots out of order
	deliver sync.Mutex
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// NewSignal returns a signal in the Unknown state.
func NewSignal() *Signal {
	return &Signal{}
}

// Get returns the current snapshot.
func (s *Signal) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Set publishes snap to every subscriber. Callbacks run on the caller's
// goroutine, outside the signal's lock, and must not call Set themselves.
func (s *Signal) Set(snap Snapshot) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.cur = snap
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}

// Subscribe registers fn and immediately calls it with the current snapshot.
// Call the returned function to stop receiving updates.
func (s *Signal) Subscribe(fn func(Snapshot)) func() {
	s.deliver.Lock()
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	cur := s.cur
	s.mu.Unlock()
	fn(cur)
	s.deliver.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}
