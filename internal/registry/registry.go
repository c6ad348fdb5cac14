// Package registry tracks spawned agent processes by pid and persists
// the set to a JSON file so a crashed or restarted supervisor can
// reclaim its children.
package registry

import (
	"io"
	"log"
	"sort"
	"sync"
	"time"
)

// Status describes a tracked process's lifecycle state.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusOrphaned Status = "orphaned"
	StatusStale    Status = "stale"
)

// ProcessInfo is one tracked process.
type ProcessInfo struct {
	PID       int               `json:"pid"`
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Namespace string            `json:"namespace,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Model     string            `json:"model,omitempty"`
	Pool      string            `json:"pool,omitempty"`
	Nice      int               `json:"nice,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Status    Status            `json:"status"`
	ParentPID int               `json:"parent_pid,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Registry is an in-memory pid -> ProcessInfo map with crash-safe
// persistence. All methods are safe for concurrent use.
type Registry struct {
	path   string
	logger *log.Logger

	mu    sync.RWMutex
	procs map[int]ProcessInfo
}

// New creates an empty registry persisted at path.
func New(path string) *Registry {
	return &Registry{
		path:   path,
		logger: log.New(io.Discard, "", 0),
		procs:  make(map[int]ProcessInfo),
	}
}

// SetLogger routes registry warnings to logger.
func (r *Registry) SetLogger(logger *log.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Path returns the backing file path.
func (r *Registry) Path() string {
	return r.path
}

// Add records info, replacing any existing entry for the same pid.
// A zero StartedAt is stamped with the current time; an empty Status
// defaults to running.
func (r *Registry) Add(info ProcessInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	if info.Status == "" {
		info.Status = StatusRunning
	}
	r.procs[info.PID] = info
}

// Remove drops the entry for pid. Removing an unknown pid is a no-op.
func (r *Registry) Remove(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, pid)
}

// Get returns the entry for pid.
func (r *Registry) Get(pid int) (ProcessInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.procs[pid]
	return info, ok
}

// List returns all tracked processes sorted by pid.
func (r *Registry) List() []ProcessInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// ListNamespace returns tracked processes in the given namespace,
// sorted by pid.
func (r *Registry) ListNamespace(namespace string) []ProcessInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ProcessInfo
	for _, info := range r.procs {
		if info.Namespace == namespace {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// UpdateStatus sets the status for pid. Returns false if pid is not tracked.
func (r *Registry) UpdateStatus(pid int, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.procs[pid]
	if !ok {
		return false
	}
	info.Status = status
	r.procs[pid] = info
	return true
}

// Len reports the number of tracked processes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.procs)
}

// Clear removes every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs = make(map[int]ProcessInfo)
}

// sortedLocked snapshots the map as a pid-sorted slice. Caller holds
// at least a read lock.
func (r *Registry) sortedLocked() []ProcessInfo {
	out := make([]ProcessInfo, 0, len(r.procs))
	for _, info := range r.procs {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}
