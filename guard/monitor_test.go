package guard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is an injectable time source the test advances by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestMonitorFiresExactlyOnce(t *testing.T) {
	var fired atomic.Int32
	clk := newFakeClock()
	m := NewConnectionMonitor(func() { fired.Add(1) },
		WithStartupGrace(20*time.Millisecond),
		WithIdleGrace(20*time.Millisecond),
		WithTimeSource(clk.now),
	)
	m.Start()
	defer m.Stop()

	clk.advance(time.Second)
	if !waitFor(t, time.Second, func() bool { return fired.Load() == 1 }) {
		t.Fatalf("fired = %d, want 1", fired.Load())
	}
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("fired = %d after settling, want exactly 1", got)
	}
}

func TestMonitorHoldsWhileClockIsFresh(t *testing.T) {
	var fired atomic.Int32
	clk := newFakeClock()
	m := NewConnectionMonitor(func() { fired.Add(1) },
		WithStartupGrace(15*time.Millisecond),
		WithIdleGrace(15*time.Millisecond),
		WithTimeSource(clk.now),
	)
	m.Start()
	defer m.Stop()

	// The wall-clock timer expires repeatedly, but the injected clock reports
	// no idle time, so each expiry re-arms instead of firing.
	time.Sleep(120 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired = %d with a fresh clock, want 0", got)
	}
}

func TestMonitorActivityResetsIdleWindow(t *testing.T) {
	var fired atomic.Int32
	clk := newFakeClock()
	m := NewConnectionMonitor(func() { fired.Add(1) },
		WithStartupGrace(30*time.Millisecond),
		WithIdleGrace(30*time.Millisecond),
		WithTimeSource(clk.now),
	)
	m.Start()
	defer m.Stop()

	// Advance close to the limit, then record activity; the idle window must
	// restart from the activity timestamp.
	clk.advance(25 * time.Millisecond)
	m.UpdateActivity()
	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired = %d right after activity, want 0", got)
	}

	clk.advance(time.Second)
	if !waitFor(t, time.Second, func() bool { return fired.Load() == 1 }) {
		t.Fatalf("fired = %d after going idle, want 1", fired.Load())
	}
}

func TestMonitorStopCancelsShutdown(t *testing.T) {
	var fired atomic.Int32
	clk := newFakeClock()
	m := NewConnectionMonitor(func() { fired.Add(1) },
		WithStartupGrace(10*time.Millisecond),
		WithIdleGrace(10*time.Millisecond),
		WithTimeSource(clk.now),
	)
	m.Start()
	m.Stop()
	clk.advance(time.Hour)

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired = %d after Stop, want 0", got)
	}
}

func TestActivityClockIdle(t *testing.T) {
	clk := newFakeClock()
	ac := NewActivityClock(clk.now)
	if idle := ac.Idle(); idle != 0 {
		t.Fatalf("fresh clock Idle() = %v, want 0", idle)
	}
	clk.advance(3 * time.Second)
	if idle := ac.Idle(); idle != 3*time.Second {
		t.Fatalf("Idle() = %v, want 3s", idle)
	}
	ac.Touch()
	if idle := ac.Idle(); idle != 0 {
		t.Fatalf("Idle() after Touch = %v, want 0", idle)
	}
}
