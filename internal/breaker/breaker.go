// Package breaker implements per-key circuit breakers that shield the
// supervisor from repeatedly spawning agents against a failing provider.
// A breaker trips open after a run of consecutive failures, refuses work
// for a cooldown period, then admits a bounded number of trial executions
// before deciding whether to close again.
//
// All transitions are lazy: state only changes inside an admission query
// or a result recording, never on a timer.
package breaker

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// State identifies where a breaker sits in the trip cycle.
type State string

const (
	// StateClosed admits everything. Normal operation.
	StateClosed State = "closed"
	// StateOpen refuses everything until the cooldown elapses.
	StateOpen State = "open"
	// StateHalfOpen admits a bounded number of trial executions.
	StateHalfOpen State = "half-open"
)

const (
	defaultMaxFailures = 5
	defaultCooldown    = 5 * time.Minute
	defaultMaxHalfOpen = 1
)

// Config tunes a breaker. Zero values fall back to the defaults.
type Config struct {
	MaxFailures int           // consecutive failures before tripping open
	Cooldown    time.Duration // how long an open breaker refuses work
	MaxHalfOpen int           // concurrent trials admitted while half-open
}

func (c Config) withDefaults() Config {
	if c.MaxFailures <= 0 {
		c.MaxFailures = defaultMaxFailures
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	if c.MaxHalfOpen <= 0 {
		c.MaxHalfOpen = defaultMaxHalfOpen
	}
	return c
}

// Snapshot is the serializable view of a breaker. LastFailure is absolute
// time, so a reloaded open breaker keeps whatever cooldown it had already
// served.
type Snapshot struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Successes           int       `json:"successes"`
	TotalCalls          int       `json:"total_calls"`
	TotalFailures       int       `json:"total_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	HalfOpenActive      int       `json:"half_open_active"`
}

// Breaker is a single circuit breaker. Safe for concurrent use. No method
// blocks, spawns a goroutine, or panics: every outcome is a state or a
// boolean.
type Breaker struct {
	mu   sync.Mutex
	name string
	cfg  Config

	state               State
	consecutiveFailures int
	successes           int
	totalCalls          int
	totalFailures       int
	lastFailure         time.Time
	halfOpenActive      int

	listeners    map[int]func(from, to State)
	nextListener int

	// now is swapped out by tests to step through cooldowns without
	// sleeping.
	now func() time.Time

	logger *log.Logger
}

// New returns a closed breaker with the given config.
func New(cfg Config) *Breaker {
	return newBreaker("", cfg, log.New(io.Discard, "", 0))
}

func newBreaker(name string, cfg Config, logger *log.Logger) *Breaker {
	return &Breaker{
		name:      name,
		cfg:       cfg.withDefaults(),
		state:     StateClosed,
		listeners: map[int]func(State, State){},
		now:       time.Now,
		logger:    logger,
	}
}

// SetLogger directs diagnostic output to the given logger.
func (b *Breaker) SetLogger(logger *log.Logger) {
	if logger == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
}

// CanExecute reports whether the caller may proceed. An open breaker whose
// cooldown has elapsed transitions to half-open here and admits the caller
// as the first trial. Admission never touches the failure counters.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	var fire func()
	admitted := false
	switch b.state {
	case StateClosed:
		admitted = true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.cfg.Cooldown {
			fire = b.setStateLocked(StateHalfOpen)
			b.halfOpenActive = 1
			admitted = true
		}
	case StateHalfOpen:
		if b.halfOpenActive < b.cfg.MaxHalfOpen {
			b.halfOpenActive++
			admitted = true
		}
	}
	b.mu.Unlock()
	if fire != nil {
		fire()
	}
	return admitted
}

// RecordFailure notes a failed execution and reports whether this call
// tripped the breaker open. Failures while already open count toward the
// totals but leave lastFailure alone, so steady failure traffic cannot
// stretch the cooldown.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	b.totalCalls++
	b.totalFailures++
	var fire func()
	opened := false
	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		b.lastFailure = b.now()
		if b.consecutiveFailures >= b.cfg.MaxFailures {
			b.logf("opened after %d consecutive failures", b.consecutiveFailures)
			fire = b.setStateLocked(StateOpen)
			opened = true
		}
	case StateHalfOpen:
		b.logf("trial failed, reopening")
		b.lastFailure = b.now()
		b.halfOpenActive = 0
		fire = b.setStateLocked(StateOpen)
		opened = true
	}
	b.mu.Unlock()
	if fire != nil {
		fire()
	}
	return opened
}

// RecordSuccess notes a successful execution. A half-open trial success
// closes the breaker outright. While closed, each success decays the
// consecutive failure count by one toward zero, so isolated failures
// spread out over time never accumulate into a trip.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.totalCalls++
	b.successes++
	var fire func()
	switch b.state {
	case StateClosed:
		if b.consecutiveFailures > 0 {
			b.consecutiveFailures--
		}
	case StateHalfOpen:
		b.logf("trial succeeded, closing")
		b.consecutiveFailures = 0
		b.halfOpenActive = 0
		fire = b.setStateLocked(StateClosed)
	}
	b.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// CancelTrial withdraws a half-open admission whose execution was
// abandoned before producing an outcome, freeing the trial for another
// caller. No-op in any other state.
func (b *Breaker) CancelTrial() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenActive > 0 {
		b.halfOpenActive--
	}
}

// State returns the current state without transitioning anything.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns a one-line human description of the breaker.
func (b *Breaker) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return fmt.Sprintf("open, retry in %s", b.remainingLocked().Round(time.Second))
	case StateHalfOpen:
		return fmt.Sprintf("half-open, %d/%d trials in flight", b.halfOpenActive, b.cfg.MaxHalfOpen)
	default:
		if b.consecutiveFailures > 0 {
			return fmt.Sprintf("closed, failures %d/%d", b.consecutiveFailures, b.cfg.MaxFailures)
		}
		return "closed"
	}
}

// CooldownRemaining returns how long an open breaker will keep refusing
// work, and zero in every other state.
func (b *Breaker) CooldownRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remainingLocked()
}

func (b *Breaker) remainingLocked() time.Duration {
	if b.state != StateOpen {
		return 0
	}
	rem := b.cfg.Cooldown - b.now().Sub(b.lastFailure)
	if rem < 0 {
		return 0
	}
	return rem
}

// Reset returns the breaker to its initial state: closed, every counter
// zeroed, lifetime totals included.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.consecutiveFailures = 0
	b.successes = 0
	b.totalCalls = 0
	b.totalFailures = 0
	b.halfOpenActive = 0
	b.lastFailure = time.Time{}
	fire := b.setStateLocked(StateClosed)
	b.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Trip forces the breaker open and starts a fresh cooldown. Operator
// override.
func (b *Breaker) Trip() {
	b.mu.Lock()
	b.lastFailure = b.now()
	b.halfOpenActive = 0
	fire := b.setStateLocked(StateOpen)
	b.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Close forces the breaker closed without touching the lifetime totals.
// The consecutive failure count is cleared so the next failure does not
// immediately re-trip. Operator override.
func (b *Breaker) Close() {
	b.mu.Lock()
	b.consecutiveFailures = 0
	b.halfOpenActive = 0
	fire := b.setStateLocked(StateClosed)
	b.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Snapshot captures the full breaker state for persistence or display.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		Successes:           b.successes,
		TotalCalls:          b.totalCalls,
		TotalFailures:       b.totalFailures,
		LastFailure:         b.lastFailure,
		HalfOpenActive:      b.halfOpenActive,
	}
}

// Restore overwrites the breaker with a previously captured snapshot.
// Because LastFailure is absolute, a restored open breaker resumes its
// cooldown where it left off; if the cooldown already elapsed, the next
// CanExecute half-opens it. Unrecognized states load as closed.
func (b *Breaker) Restore(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch snap.State {
	case StateClosed, StateOpen, StateHalfOpen:
		b.state = snap.State
	default:
		b.state = StateClosed
	}
	b.consecutiveFailures = snap.ConsecutiveFailures
	b.successes = snap.Successes
	b.totalCalls = snap.TotalCalls
	b.totalFailures = snap.TotalFailures
	b.lastFailure = snap.LastFailure
	b.halfOpenActive = snap.HalfOpenActive
}

// OnStateChange registers a listener called after every state transition.
// The returned function unsubscribes it. Listeners run outside the
// breaker's lock, so they may call back into the breaker.
func (b *Breaker) OnStateChange(fn func(from, to State)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextListener
	b.nextListener++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// setStateLocked flips the state and returns a callback that notifies the
// registered listeners, or nil when nothing changed. The caller must
// invoke the callback after releasing the mutex.
func (b *Breaker) setStateLocked(to State) func() {
	if b.state == to {
		return nil
	}
	from := b.state
	b.state = to
	if len(b.listeners) == 0 {
		return nil
	}
	fns := make([]func(State, State), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(from, to)
		}
	}
}

func (b *Breaker) logf(format string, args ...interface{}) {
	if b.name != "" {
		format = "breaker " + b.name + ": " + format
	} else {
		format = "breaker: " + format
	}
	b.logger.Printf(format, args...)
}
