package streamer

import (
	"log"
	"sync"
	"time"
)

// Monitor watches the connected voice channel and requests a stop once the
// bot has been alone past the configured threshold. Each stream session owns
// exactly one Monitor; a replaced session's monitor is always stopped before
// a new one starts, so leftover timers can never stack up across restarts.
type Monitor struct {
	interval  time.Duration
	threshold time.Duration
	members   func() (int, bool)
	onIdle    func()

	mu    sync.Mutex
	alone time.Duration

	stopOnce sync.Once
	stopc    chan struct{}
}

// NewMonitor creates a monitor. members reports the non-bot member count of
// the connected call (connected=false skips the tick); onIdle fires at most
// once, after which the monitor stops polling.
func NewMonitor(interval, threshold time.Duration, members func() (int, bool), onIdle func()) *Monitor {
	return &Monitor{
		interval:  interval,
		threshold: threshold,
		members:   members,
		onIdle:    onIdle,
		stopc:     make(chan struct{}),
	}
}

// Start begins polling in its own goroutine.
func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopc:
			return
		case <-ticker.C:
			if m.tick() {
				m.onIdle()
				return
			}
		}
	}
}

// tick runs one poll and reports whether the idle threshold was reached.
func (m *Monitor) tick() bool {
	count, connected := m.members()
	if !connected {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if count > 0 {
		m.alone = 0
		return false
	}
	m.alone += m.interval
	if m.alone >= m.threshold {
		log.Printf("Nobody has been listening for %v, stopping stream", m.alone)
		return true
	}
	return false
}

// Stop cancels polling. Idempotent, and safe to call from the onIdle path.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopc) })
}

// AloneFor returns the current accumulated alone time.
func (m *Monitor) AloneFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alone
}
