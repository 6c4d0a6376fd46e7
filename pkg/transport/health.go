package transport

import "sync"

// HealthState is a peer's position in the Healthy → Suspect → Dead
// state machine (SPEC_FULL §3): three consecutive failures demote
// Healthy to Suspect, three more demote Suspect to Dead, and any
// success resets straight back to Healthy.
type HealthState int

const (
	Healthy HealthState = iota
	Suspect
	Dead
)

func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Suspect:
		return "suspect"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

const failureThreshold = 3

// peerHealth tracks one peer's consecutive-failure count and state.
type peerHealth struct {
	state           HealthState
	consecutiveFail int
}

// HealthTracker records per-peer outcomes and exposes the resulting
// HealthState, guarded for concurrent use by the presence-refresh
// goroutine and the Router's send path.
type HealthTracker struct {
	mu    sync.Mutex
	peers map[string]*peerHealth
}

// NewHealthTracker returns a tracker with every peer starting Healthy.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{peers: make(map[string]*peerHealth)}
}

func (t *HealthTracker) entry(peer string) *peerHealth {
	ph, ok := t.peers[peer]
	if !ok {
		ph = &peerHealth{state: Healthy}
		t.peers[peer] = ph
	}
	return ph
}

// RecordSuccess resets peer straight to Healthy.
func (t *HealthTracker) RecordSuccess(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ph := t.entry(peer)
	ph.consecutiveFail = 0
	ph.state = Healthy
}

// RecordFailure advances peer's consecutive-failure count, demoting
// its state every failureThreshold failures, and returns the
// resulting state.
func (t *HealthTracker) RecordFailure(peer string) HealthState {
	t.mu.Lock()
	defer t.mu.Unlock()
	ph := t.entry(peer)
	ph.consecutiveFail++

	switch {
	case ph.state == Healthy && ph.consecutiveFail >= failureThreshold:
		ph.state = Suspect
		ph.consecutiveFail = 0
	case ph.state == Suspect && ph.consecutiveFail >= failureThreshold:
		ph.state = Dead
		ph.consecutiveFail = 0
	}
	return ph.state
}

// MarkSuspect demotes peer straight to Suspect regardless of its
// current consecutive-failure count, for a caller (the Router, on
// retry exhaustion per §4.5 step 5) that has already decided the peer
// is unreliable without going through RecordFailure's threshold. A
// peer already Dead is left Dead.
func (t *HealthTracker) MarkSuspect(peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ph := t.entry(peer)
	if ph.state == Healthy {
		ph.state = Suspect
		ph.consecutiveFail = 0
	}
}

// State returns peer's current HealthState, Healthy if never observed.
func (t *HealthTracker) State(peer string) HealthState {
	t.mu.Lock()
	defer t.mu.Unlock()
	ph, ok := t.peers[peer]
	if !ok {
		return Healthy
	}
	return ph.state
}
