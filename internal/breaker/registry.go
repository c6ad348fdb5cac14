package breaker

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/steveyegge/pumpjack/internal/util"
)

// Registry hands out one breaker per key, created on first use with a
// shared config. Keys are whatever granularity the caller tracks failures
// at; the supervisor uses "provider" or "provider:model".
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
	logger   *log.Logger
}

// NewRegistry returns an empty registry whose breakers all share cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		breakers: map[string]*Breaker{},
		logger:   log.New(io.Discard, "", 0),
	}
}

// SetLogger directs diagnostic output for the registry and every breaker
// it has created (or will create) to the given logger.
func (r *Registry) SetLogger(logger *log.Logger) {
	if logger == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
	for _, b := range r.breakers {
		b.SetLogger(logger)
	}
}

// Get returns the breaker for key, creating it if absent.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(key)
}

func (r *Registry) getLocked(key string) *Breaker {
	b, ok := r.breakers[key]
	if !ok {
		b = newBreaker(key, r.cfg, r.logger)
		r.breakers[key] = b
	}
	return b
}

// CanExecute delegates to the breaker for key, creating it if absent.
func (r *Registry) CanExecute(key string) bool {
	return r.Get(key).CanExecute()
}

// RecordSuccess delegates to the breaker for key, creating it if absent.
func (r *Registry) RecordSuccess(key string) {
	r.Get(key).RecordSuccess()
}

// RecordFailure delegates to the breaker for key, creating it if absent,
// and reports whether this call tripped it open.
func (r *Registry) RecordFailure(key string) bool {
	return r.Get(key).RecordFailure()
}

// Len returns how many breakers exist.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.breakers)
}

// AllSnapshots returns a snapshot of every breaker keyed by name.
func (r *Registry) AllSnapshots() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Snapshot, len(r.breakers))
	for key, b := range r.breakers {
		out[key] = b.Snapshot()
	}
	return out
}

// OpenCircuits returns the sorted keys of every breaker currently open.
func (r *Registry) OpenCircuits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for key, b := range r.breakers {
		if b.State() == StateOpen {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Reset resets the breaker for key. Unknown keys are a no-op.
func (r *Registry) Reset(key string) {
	r.mu.Lock()
	b := r.breakers[key]
	r.mu.Unlock()
	// Reset fires state-change listeners, so it must run outside the
	// registry lock.
	if b != nil {
		b.Reset()
	}
}

// ResetAll resets every breaker without discarding them.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	bs := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		bs = append(bs, b)
	}
	r.mu.Unlock()
	for _, b := range bs {
		b.Reset()
	}
}

// Clear discards every breaker. The next Get starts from scratch.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers = map[string]*Breaker{}
}

// Save writes every breaker's snapshot to path so that tripped circuits
// survive a supervisor restart.
func (r *Registry) Save(path string) error {
	snaps := r.AllSnapshots()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating state directory: %w", err)
		}
	}
	return util.AtomicWriteJSON(path, snaps)
}

// Load restores breakers from a file written by Save. A missing file is a
// clean start; a corrupt one is logged and ignored. In-flight half-open
// trial counts are not restored, since those trials died with the process
// that admitted them.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading breaker state: %w", err)
	}
	var snaps map[string]Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		r.logger.Printf("Warning: breaker state at %s is corrupt, starting fresh: %v", path, err)
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, snap := range snaps {
		snap.HalfOpenActive = 0
		r.getLocked(key).Restore(snap)
	}
	return nil
}
