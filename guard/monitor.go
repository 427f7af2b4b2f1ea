package guard

import (
	"sync"
	"time"
)

// Default grace periods for the connection monitor. The startup grace is
// longer so a server waiting for its first client is not reaped.
const (
	DefaultIdleGrace    = 5 * time.Minute
	DefaultStartupGrace = 30 * time.Minute
)

// ActivityClock is the single piece of mutable process state behind the idle
// watchdog: the timestamp of the last accepted request. The time source is
// injectable so tests can drive it deterministically.
type ActivityClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewActivityClock builds a clock using the given time source (nil means
// time.Now), primed with the current instant.
func NewActivityClock(now func() time.Time) *ActivityClock {
	if now == nil {
		now = time.Now
	}
	return &ActivityClock{last: now(), now: now}
}

// Touch records activity. Last-write-wins under concurrent callers.
func (c *ActivityClock) Touch() {
	c.mu.Lock()
	c.last = c.now()
	c.mu.Unlock()
}

// Idle returns the duration since the last recorded activity.
func (c *ActivityClock) Idle() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.last)
}

// MonitorOption configures a ConnectionMonitor.
type MonitorOption func(*ConnectionMonitor)

// WithIdleGrace overrides the steady-state grace period.
func WithIdleGrace(d time.Duration) MonitorOption {
	return func(m *ConnectionMonitor) {
		if d > 0 {
			m.grace = d
		}
	}
}

// WithStartupGrace overrides the pre-first-request grace period.
func WithStartupGrace(d time.Duration) MonitorOption {
	return func(m *ConnectionMonitor) {
		if d > 0 {
			m.startupGrace = d
		}
	}
}

// WithTimeSource overrides the monitor's time source for tests.
func WithTimeSource(now func() time.Time) MonitorOption {
	return func(m *ConnectionMonitor) {
		if now != nil {
			m.clock = NewActivityClock(now)
		}
	}
}

// ConnectionMonitor shuts the server down after a period with no accepted
// requests. A longer grace applies until the first UpdateActivity call so a
// freshly started server is not killed while waiting for its first client.
// The shutdown callback is invoked at most once; Stop cancels the watchdog
// with no dangling wakeups.
type ConnectionMonitor struct {
	clock        *ActivityClock
	grace        time.Duration
	startupGrace time.Duration
	onIdle       func()

	mu      sync.Mutex
	started bool
	timer   *time.Timer
	stopped bool
	sawWork bool
	fired   sync.Once
}

// NewConnectionMonitor builds a monitor that invokes onIdle after the grace
// window elapses without activity. Call Start to arm it.
func NewConnectionMonitor(onIdle func(), opts ...MonitorOption) *ConnectionMonitor {
	m := &ConnectionMonitor{
		clock:        NewActivityClock(nil),
		grace:        DefaultIdleGrace,
		startupGrace: DefaultStartupGrace,
		onIdle:       onIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start arms the watchdog. Safe to call once.
func (m *ConnectionMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.stopped {
		return
	}
	m.started = true
	m.arm(m.startupGrace)
}

// UpdateActivity records an accepted request and resets the idle window.
func (m *ConnectionMonitor) UpdateActivity() {
	m.clock.Touch()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sawWork = true
	if m.stopped || !m.started {
		return
	}
	m.arm(m.grace)
}

// Stop cancels the watchdog. After Stop returns no shutdown callback will
// fire that has not already fired.
func (m *ConnectionMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// arm (re)schedules the watchdog. Caller holds m.mu.
func (m *ConnectionMonitor) arm(grace time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(grace, m.expire)
}

// expire re-checks idleness against the activity clock before firing so a
// request that races the timer wins.
func (m *ConnectionMonitor) expire() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	grace := m.grace
	if !m.sawWork {
		grace = m.startupGrace
	}
	idle := m.clock.Idle()
	if idle < grace {
		m.arm(grace - idle)
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.timer = nil
	m.mu.Unlock()

	m.fired.Do(m.onIdle)
}
