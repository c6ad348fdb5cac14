// Package slots bounds how many agent processes may run at once for a
// given provider or provider:model key. Acquire blocks the caller in a
// strict FIFO queue when the key is saturated; Release hands the freed
// slot straight to the oldest waiter so a slot is never idle while
// someone queues for it.
package slots

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultLimit = 2

var (
	// ErrAcquireTimeout is returned when a waiter's context expires
	// before a slot frees up.
	ErrAcquireTimeout = errors.New("timed out waiting for a slot")
	// ErrManagerReset is returned to every queued waiter when the
	// manager is reset.
	ErrManagerReset = errors.New("slot manager reset")
)

// Config sets the concurrency ceilings. Providers is keyed by provider
// name, Models by the model segment of the key. Non-positive entries are
// dropped at construction and resolution falls through to the next tier.
type Config struct {
	Default   int
	Providers map[string]int
	Models    map[string]int
}

func (c Config) normalize() Config {
	if c.Default <= 0 {
		c.Default = defaultLimit
	}
	providers := make(map[string]int, len(c.Providers))
	for key, limit := range c.Providers {
		if limit > 0 {
			providers[key] = limit
		}
	}
	models := make(map[string]int, len(c.Models))
	for key, limit := range c.Models {
		if limit > 0 {
			models[key] = limit
		}
	}
	c.Providers = providers
	c.Models = models
	return c
}

// KeyStats describes one key's slot usage.
type KeyStats struct {
	Active  int
	Waiting int
	Limit   int
}

// Stats is a point-in-time view across every key with activity.
type Stats struct {
	Keys         map[string]KeyStats
	TotalActive  int
	TotalWaiting int
}

type waiter struct {
	grant chan struct{} // closed once resolved; err is set first
	err   error         // nil means the slot was transferred to us
	// abandoned marks a waiter whose Acquire already gave up; Release
	// skips it instead of handing it a slot nobody will return.
	abandoned bool
}

type entry struct {
	active  int
	waiters []*waiter
}

// Manager is the slot bookkeeper. Safe for concurrent use.
type Manager struct {
	mu   sync.Mutex
	cfg  Config
	keys map[string]*entry
}

// New returns a Manager enforcing the given limits.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:  cfg.normalize(),
		keys: map[string]*entry{},
	}
}

// splitKey parses on the first colon only, so "claude:opus:beta" is
// provider "claude" with model segment "opus:beta".
func splitKey(key string) (provider, model string) {
	provider, model, _ = strings.Cut(key, ":")
	return provider, model
}

// Limit returns the ceiling for key: exact model limit, then provider
// limit, then the default.
func (m *Manager) Limit(key string) int {
	return m.limitFor(key)
}

func (m *Manager) limitFor(key string) int {
	provider, model := splitKey(key)
	if model != "" {
		if limit, ok := m.cfg.Models[model]; ok {
			return limit
		}
	}
	if limit, ok := m.cfg.Providers[provider]; ok {
		return limit
	}
	return m.cfg.Default
}

// Acquire takes a slot for key, blocking in FIFO order behind earlier
// waiters when the key is at its limit. It returns nil once the slot is
// held. When ctx expires or is canceled first, the waiter is abandoned
// and the error matches ErrAcquireTimeout.
func (m *Manager) Acquire(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("acquire called with empty key")
	}

	m.mu.Lock()
	e := m.entryLocked(key)
	if e.active < m.limitFor(key) {
		e.active++
		m.mu.Unlock()
		return nil
	}
	w := &waiter{grant: make(chan struct{})}
	e.waiters = append(e.waiters, w)
	m.mu.Unlock()

	select {
	case <-w.grant:
		return w.err
	case <-ctx.Done():
	}

	// The context lost the race in the common case, but a Release may
	// have resolved us in the gap before we reacquire the lock.
	m.mu.Lock()
	select {
	case <-w.grant:
		if w.err != nil {
			m.mu.Unlock()
			return w.err
		}
		// A slot was transferred to a caller that already gave up.
		// Pass it along so it is not stranded.
		m.releaseLocked(key)
	default:
		w.abandoned = true
	}
	m.mu.Unlock()
	return fmt.Errorf("acquiring slot for %q: %w: %w", key, ErrAcquireTimeout, ctx.Err())
}

// AcquireTimeout is Acquire with a deadline instead of a context.
func (m *Manager) AcquireTimeout(key string, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.Acquire(ctx, key)
}

// Release returns a slot for key. If a live waiter is queued, the slot
// transfers to the oldest one and the active count is unchanged;
// otherwise the count drops, flooring at zero. Releasing an idle key is
// a no-op.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(key)
}

func (m *Manager) releaseLocked(key string) {
	e := m.keys[key]
	if e == nil {
		return
	}
	for len(e.waiters) > 0 {
		w := e.waiters[0]
		e.waiters = e.waiters[1:]
		if w.abandoned {
			continue
		}
		w.err = nil
		close(w.grant)
		return
	}
	if e.active > 0 {
		e.active--
	}
	if e.active == 0 && len(e.waiters) == 0 {
		delete(m.keys, key)
	}
}

// Available returns how many slots key has free right now.
func (m *Manager) Available(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	free := m.limitFor(key)
	if e := m.keys[key]; e != nil {
		free -= e.active
	}
	if free < 0 {
		free = 0
	}
	return free
}

// QueueLen returns how many live waiters are queued for key.
func (m *Manager) QueueLen(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.keys[key]; e != nil {
		return liveWaiters(e)
	}
	return 0
}

// Stats returns usage for every key with activity, plus totals.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Keys: make(map[string]KeyStats, len(m.keys))}
	for key, e := range m.keys {
		waiting := liveWaiters(e)
		st.Keys[key] = KeyStats{
			Active:  e.active,
			Waiting: waiting,
			Limit:   m.limitFor(key),
		}
		st.TotalActive += e.active
		st.TotalWaiting += waiting
	}
	return st
}

// Reset drops every active count and rejects every queued waiter with
// ErrManagerReset. Meant for supervisor restarts and tests; callers
// holding slots must not Release them afterward expecting sane counts.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.keys {
		for _, w := range e.waiters {
			if w.abandoned {
				continue
			}
			w.err = ErrManagerReset
			close(w.grant)
		}
	}
	m.keys = map[string]*entry{}
}

func (m *Manager) entryLocked(key string) *entry {
	e, ok := m.keys[key]
	if !ok {
		e = &entry{}
		m.keys[key] = e
	}
	return e
}

func liveWaiters(e *entry) int {
	n := 0
	for _, w := range e.waiters {
		if !w.abandoned {
			n++
		}
	}
	return n
}
