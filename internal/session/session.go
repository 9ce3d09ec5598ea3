// Package session tracks per-chat conversation state for the Telegram
// surface. The bot walks each requester through short multi-message flows
// (describe the trip, then attach a reference photo; name the request, then
// attach the payment receipt), so it needs to remember what it asked last.
//
// State is process-local and in-memory. Losing it on restart only means the
// requester restarts a flow from its menu button; no request data lives here.
package session

import (
	"sync"
	"time"
)

// Step identifies what the bot is waiting for from a chat.
type Step int

const (
	// StepIdle means no flow is active; menu buttons start one.
	StepIdle Step = iota
	// StepAwaitingDescription waits for the trip description text.
	StepAwaitingDescription
	// StepAwaitingReferencePhoto waits for the flight reference screenshot.
	StepAwaitingReferencePhoto
	// StepAwaitingPaymentRequestID waits for the request number to pay.
	StepAwaitingPaymentRequestID
	// StepAwaitingProofPhoto waits for the payment receipt photo.
	StepAwaitingProofPhoto
)

// State is one chat's position in a flow plus the answers collected so far.
type State struct {
	Step Step

	// Description is captured between StepAwaitingDescription and
	// StepAwaitingReferencePhoto.
	Description string

	// PaymentRequestID is captured between StepAwaitingPaymentRequestID and
	// StepAwaitingProofPhoto.
	PaymentRequestID uint

	lastSeen time.Time
}

// Store holds conversation state keyed by chat ID.
//
// Entries idle past the TTL are evicted opportunistically during writes to
// bound memory; an evicted chat simply reads as idle. Safe for concurrent
// use.
type Store struct {
	mu  sync.Mutex
	m   map[int64]*State
	ttl time.Duration

	writes uint64
}

// NewStore constructs a Store. ttl <= 0 defaults to 30 minutes, which is
// plenty for a human answering two questions.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{m: make(map[int64]*State), ttl: ttl}
}

// Get returns the current state for a chat. Unknown or expired chats read as
// the zero State (idle).
func (s *Store) Get(chatID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.m[chatID]
	if !ok || time.Since(st.lastSeen) >= s.ttl {
		return State{}
	}
	return *st
}

// Set replaces a chat's state and refreshes its TTL.
func (s *Store) Set(chatID int64, st State) {
	now := time.Now()
	st.lastSeen = now

	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic cleanup after a threshold of writes. Run it before the
	// insert so a stale entry for this same chat is not refreshed past it.
	s.writes++
	if s.writes >= 1000 {
		for k, v := range s.m {
			if now.Sub(v.lastSeen) >= s.ttl {
				delete(s.m, k)
			}
		}
		s.writes = 0
	}

	s.m[chatID] = &st
}

// Reset returns a chat to idle, discarding any collected answers.
func (s *Store) Reset(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
}
