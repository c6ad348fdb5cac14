package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/steveyegge/pumpjack/internal/util"
)

// snapshotVersion is bumped whenever the on-disk shape changes. A file
// with a different version is treated as corrupt and discarded.
const snapshotVersion = 1

// snapshot is the persisted file shape.
type snapshot struct {
	Version     int           `json:"version"`
	ParentPID   int           `json:"parent_pid"`
	Processes   []ProcessInfo `json:"processes"`
	LastUpdated time.Time     `json:"last_updated"`
}

// errLockHeld marks a contended TryLock so the retry helper backs off
// instead of giving up.
var errLockHeld = errors.New("registry locked by another process")

// lockRetryConfig bounds how long a writer waits for the file lock.
// Worst case is roughly 25+50+100+200ms of sleeping before we skip.
var lockRetryConfig = util.RetryConfig{
	MaxAttempts:  5,
	InitialDelay: 25 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	Multiplier:   2.0,
	Jitter:       true,
	IsRetryable:  func(err error) bool { return errors.Is(err, errLockHeld) },
}

// LockPath returns the sibling lock file guarding writes to path.
func LockPath(path string) string {
	return path + ".lock"
}

// Save persists the current process set. Concurrent writers (two pj
// invocations, or a supervisor plus a cleanup run) coordinate through a
// sibling lock file and an atomic tmp+rename, so readers never observe
// a torn file. If the lock stays contended past the retry budget the
// cycle is skipped with a warning; the next Save picks up the state.
func (r *Registry) Save() error {
	r.mu.RLock()
	snap := snapshot{
		Version:     snapshotVersion,
		ParentPID:   os.Getpid(),
		Processes:   r.sortedLocked(),
		LastUpdated: time.Now().UTC(),
	}
	r.mu.RUnlock()

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating registry dir: %w", err)
		}
	}

	lock := flock.New(LockPath(r.path))
	_, err := util.Retry(context.Background(), lockRetryConfig, func() (struct{}, error) {
		ok, lockErr := lock.TryLock()
		if lockErr != nil {
			return struct{}{}, util.MarkPermanent(lockErr)
		}
		if !ok {
			return struct{}{}, errLockHeld
		}
		return struct{}{}, nil
	})
	if err != nil {
		if errors.Is(err, errLockHeld) {
			r.logger.Printf("Warning: registry lock contended, skipping save: %s", LockPath(r.path))
			return nil
		}
		return fmt.Errorf("locking registry: %w", err)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			r.logger.Printf("Warning: failed to release registry lock: %v", unlockErr)
		}
	}()

	if err := util.AtomicWriteJSON(r.path, snap); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	return nil
}

// Load replaces the in-memory state with the persisted snapshot. A
// missing file means a fresh workspace and loads empty. A corrupt or
// version-mismatched file is logged and discarded rather than partially
// merged; the next Save rewrites it.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.procs = make(map[int]ProcessInfo)
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("reading registry: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Printf("Warning: registry file corrupt, starting empty: %v", err)
		r.mu.Lock()
		r.procs = make(map[int]ProcessInfo)
		r.mu.Unlock()
		return nil
	}
	if snap.Version != snapshotVersion {
		r.logger.Printf("Warning: registry version %d (want %d), starting empty", snap.Version, snapshotVersion)
		r.mu.Lock()
		r.procs = make(map[int]ProcessInfo)
		r.mu.Unlock()
		return nil
	}

	procs := make(map[int]ProcessInfo, len(snap.Processes))
	for _, info := range snap.Processes {
		procs[info.PID] = info
	}

	r.mu.Lock()
	r.procs = procs
	r.mu.Unlock()
	return nil
}
