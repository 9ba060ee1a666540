// Package circuit stops a batch from hammering an exchange that keeps failing.
package circuit

import (
	"sync"
	"time"

	"pumpscope/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of a Breaker.
type Snapshot struct {
	Name     string
	State    State
	Failures int
	OpenedAt time.Time
}

// Breaker counts consecutive failed downloads against one exchange. After
// threshold failures it opens; once cooldown has passed a single probe is let
// through (half-open) and its outcome closes or reopens it. A threshold of zero
// disables the breaker.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	onChange func(Snapshot, State)
}

func New(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// OnChange replaces the default log line emitted on every transition. fn
// receives the new snapshot and the previous state; it runs under the lock and
// must not call back into the breaker.
func (b *Breaker) OnChange(fn func(Snapshot, State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Breaker) Allow() bool {
	if b.threshold <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		return false
	}
	b.setState(StateHalfOpen)
	return true
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state == StateHalfOpen {
		b.setState(StateClosed)
	}
}

func (b *Breaker) RecordFailure() {
	if b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.threshold) {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) State() State { return b.Snapshot().State }

func (b *Breaker) snapshotLocked() Snapshot {
	return Snapshot{Name: b.name, State: b.state, Failures: b.failures, OpenedAt: b.openedAt}
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	snap := b.snapshotLocked()
	if b.onChange != nil {
		b.onChange(snap, from)
		return
	}
	logger.Warnf("circuit %s: %s -> %s (failures=%d/%d, cooldown=%s)",
		b.name, from, to, snap.Failures, b.threshold, b.cooldown)
}
