package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests step through cooldowns without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	b := New(cfg)
	clk := &fakeClock{t: time.Now()}
	b.now = clk.Now
	return b, clk
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.CanExecute())
	assert.Equal(t, time.Duration(0), b.CooldownRemaining())
	assert.Equal(t, "closed", b.Status())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 3, Cooldown: time.Minute})

	assert.False(t, b.RecordFailure())
	assert.False(t, b.RecordFailure())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.CanExecute())

	// The third failure, and only the third, reports the trip.
	assert.True(t, b.RecordFailure())
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.CanExecute())

	snap := b.Snapshot()
	assert.Equal(t, 3, snap.ConsecutiveFailures)
	assert.Equal(t, 3, snap.TotalFailures)
	assert.Equal(t, 3, snap.TotalCalls)
}

func TestBreakerCooldownAdmitsTrial(t *testing.T) {
	cfg := Config{MaxFailures: 2, Cooldown: time.Minute}
	b, clk := newTestBreaker(cfg)

	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.CanExecute())

	clk.Advance(cfg.Cooldown)

	// The admission query itself performs the open -> half-open move.
	assert.True(t, b.CanExecute())
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())

	snap := b.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Equal(t, 0, snap.HalfOpenActive)
	assert.Equal(t, 1, snap.Successes)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cfg := Config{MaxFailures: 1, Cooldown: time.Minute}
	b, clk := newTestBreaker(cfg)

	b.RecordFailure()
	clk.Advance(cfg.Cooldown)
	require.True(t, b.CanExecute())
	require.Equal(t, StateHalfOpen, b.State())

	assert.True(t, b.RecordFailure())
	assert.Equal(t, StateOpen, b.State())
	// A failed trial restarts the cooldown from scratch.
	assert.Equal(t, cfg.Cooldown, b.CooldownRemaining())
	assert.Equal(t, 0, b.Snapshot().HalfOpenActive)
}

func TestBreakerHalfOpenCapsTrials(t *testing.T) {
	cfg := Config{MaxFailures: 1, Cooldown: time.Minute, MaxHalfOpen: 2}
	b, clk := newTestBreaker(cfg)

	b.RecordFailure()
	clk.Advance(cfg.Cooldown)

	assert.True(t, b.CanExecute())
	assert.True(t, b.CanExecute())
	assert.False(t, b.CanExecute(), "third trial should be refused while two are unresolved")
	assert.Contains(t, b.Status(), "2/2")

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.CanExecute())
}

func TestBreakerCancelTrialFreesAdmission(t *testing.T) {
	cfg := Config{MaxFailures: 1, Cooldown: time.Minute}
	b, clk := newTestBreaker(cfg)

	b.RecordFailure()
	clk.Advance(cfg.Cooldown)
	require.True(t, b.CanExecute())
	require.False(t, b.CanExecute(), "single trial slot should be taken")

	b.CancelTrial()
	assert.True(t, b.CanExecute(), "canceled trial should free the slot")
	assert.Equal(t, StateHalfOpen, b.State())

	// Outside half-open it is a no-op.
	b.RecordSuccess()
	require.Equal(t, StateClosed, b.State())
	before := b.Snapshot()
	b.CancelTrial()
	assert.Equal(t, before, b.Snapshot())
}

func TestBreakerSuccessDecaysFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 5, Cooldown: time.Minute})

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, 2, b.Snapshot().ConsecutiveFailures)

	b.RecordSuccess()
	assert.Equal(t, 1, b.Snapshot().ConsecutiveFailures)

	// The count floors at zero.
	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, 0, b.Snapshot().ConsecutiveFailures)

	for i := 0; i < 4; i++ {
		assert.False(t, b.RecordFailure())
	}
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.RecordFailure())
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerOpenFailuresDoNotExtendCooldown(t *testing.T) {
	cfg := Config{MaxFailures: 1, Cooldown: time.Minute}
	b, clk := newTestBreaker(cfg)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	clk.Advance(30 * time.Second)
	assert.False(t, b.RecordFailure())
	assert.Equal(t, 30*time.Second, b.CooldownRemaining())

	clk.Advance(30 * time.Second)
	assert.True(t, b.CanExecute())
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreakerCooldownRemaining(t *testing.T) {
	cfg := Config{MaxFailures: 1, Cooldown: time.Minute}
	b, clk := newTestBreaker(cfg)

	assert.Equal(t, time.Duration(0), b.CooldownRemaining())

	b.Trip()
	assert.Equal(t, cfg.Cooldown, b.CooldownRemaining())

	clk.Advance(45 * time.Second)
	assert.Equal(t, 15*time.Second, b.CooldownRemaining())

	clk.Advance(time.Minute)
	assert.Equal(t, time.Duration(0), b.CooldownRemaining())
	// Still open until an admission query flips it.
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerManualOverrides(t *testing.T) {
	b, _ := newTestBreaker(Config{MaxFailures: 5, Cooldown: time.Minute})

	b.RecordFailure()
	b.Trip()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.CanExecute())

	b.Close()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.CanExecute())
	snap := b.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Equal(t, 1, snap.TotalFailures, "Close should keep lifetime totals")

	b.Reset()
	assert.Equal(t, Snapshot{State: StateClosed}, b.Snapshot())
}

func TestBreakerSnapshotRestoreRoundTrip(t *testing.T) {
	cfg := Config{MaxFailures: 2, Cooldown: time.Minute}
	b, _ := newTestBreaker(cfg)

	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	snap := b.Snapshot()
	restored := New(cfg)
	restored.Restore(snap)
	assert.Equal(t, snap, restored.Snapshot())
	assert.Equal(t, StateOpen, restored.State())
}

func TestBreakerRestoreResumesCooldown(t *testing.T) {
	cfg := Config{MaxFailures: 1, Cooldown: time.Hour}

	halfway := New(cfg)
	halfway.Restore(Snapshot{
		State:               StateOpen,
		ConsecutiveFailures: 1,
		LastFailure:         time.Now().Add(-30 * time.Minute),
	})
	assert.False(t, halfway.CanExecute())
	rem := halfway.CooldownRemaining()
	assert.Greater(t, rem, 25*time.Minute)
	assert.LessOrEqual(t, rem, 30*time.Minute)

	elapsed := New(cfg)
	elapsed.Restore(Snapshot{
		State:               StateOpen,
		ConsecutiveFailures: 1,
		LastFailure:         time.Now().Add(-2 * time.Hour),
	})
	assert.True(t, elapsed.CanExecute())
	assert.Equal(t, StateHalfOpen, elapsed.State())
}

func TestBreakerRestoreUnknownState(t *testing.T) {
	b := New(Config{})
	b.Restore(Snapshot{State: "banana", ConsecutiveFailures: 2})
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Snapshot().ConsecutiveFailures)
}

func TestBreakerOnStateChange(t *testing.T) {
	cfg := Config{MaxFailures: 1, Cooldown: time.Minute}
	b, clk := newTestBreaker(cfg)

	var got []string
	unsub := b.OnStateChange(func(from, to State) {
		got = append(got, string(from)+">"+string(to))
	})

	b.RecordFailure()
	clk.Advance(cfg.Cooldown)
	b.CanExecute()
	b.RecordSuccess()
	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, got)

	unsub()
	b.Trip()
	assert.Len(t, got, 3)
}

func TestBreakerListenerMayReenter(t *testing.T) {
	b := New(Config{MaxFailures: 1, Cooldown: time.Minute})

	var seen State
	b.OnStateChange(func(from, to State) {
		// Would deadlock if listeners ran under the breaker's lock.
		seen = b.State()
	})

	b.Trip()
	assert.Equal(t, StateOpen, seen)
}

func TestBreakerStatusStrings(t *testing.T) {
	cfg := Config{MaxFailures: 3, Cooldown: time.Minute}
	b, clk := newTestBreaker(cfg)

	b.RecordFailure()
	assert.Contains(t, b.Status(), "failures 1/3")

	b.RecordFailure()
	b.RecordFailure()
	assert.Contains(t, b.Status(), "open, retry in")

	clk.Advance(cfg.Cooldown)
	b.CanExecute()
	assert.Contains(t, b.Status(), "half-open")
}

func TestBreakerConcurrentAccess(t *testing.T) {
	b := New(Config{MaxFailures: 3, Cooldown: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.CanExecute()
				b.RecordFailure()
				b.RecordSuccess()
				b.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2000, b.Snapshot().TotalCalls)
}
