package trader

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// State is the position of a user's session in the trade intake flow
type State int

const (
	StateIdle State = iota
	StateAwaitingAmount
	StateAwaitingTarget
	StateMonitoring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAmount:
		return "awaiting_amount"
	case StateAwaitingTarget:
		return "awaiting_target"
	case StateMonitoring:
		return "monitoring"
	default:
		return "unknown"
	}
}

// session is one user's in-memory trade state. All fields are guarded by mu.
type session struct {
	mu     sync.Mutex
	userID int64

	state       State
	mint        string
	symbol      string
	spend       decimal.Decimal
	target      float64 // 0 until a target has been accepted
	buyTx       string
	quantity    *float64 // estimated tokens held, nil when unknown
	boughtAt    time.Time
	lastInfo    *observation
	run         uint64
	stopMonitor context.CancelFunc
}

// observation is the last valuation a monitor saw
type observation struct {
	valuation float64
	price     float64
	at        time.Time
}

func (s *session) displayName() string {
	return tokenName(s.symbol, s.mint)
}

// reset stops a running monitor and returns the session to idle.
// Bumping run invalidates any tick still in flight. Safe to call repeatedly.
func (s *session) reset() {
	if s.stopMonitor != nil {
		s.stopMonitor()
		s.stopMonitor = nil
	}
	s.run++
	s.state = StateIdle
	s.mint = ""
	s.symbol = ""
	s.spend = decimal.Zero
	s.target = 0
	s.buyTx = ""
	s.quantity = nil
	s.boughtAt = time.Time{}
	s.lastInfo = nil
}

// registry holds exactly one session per user, created on first contact
type registry struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[int64]*session)}
}

func (r *registry) get(userID int64) *session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok {
		s = &session{userID: userID}
		r.sessions[userID] = s
	}
	return s
}

func (r *registry) lookup(userID int64) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// monitoring counts sessions with a running monitor
func (r *registry) monitoring() int {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	count := 0
	for _, s := range all {
		s.mu.Lock()
		if s.state == StateMonitoring {
			count++
		}
		s.mu.Unlock()
	}
	return count
}
