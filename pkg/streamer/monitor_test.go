package streamer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorStopsAfterThreshold(t *testing.T) {
	var idleCalls int32
	mon := NewMonitor(5*time.Millisecond, 20*time.Millisecond,
		func() (int, bool) { return 0, true },
		func() { atomic.AddInt32(&idleCalls, 1) })
	mon.Start()
	defer mon.Stop()

	waitFor(t, time.Second, func() bool {
		return atomic.LoadInt32(&idleCalls) == 1
	})

	// Polling must have stopped; the callback never fires again.
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&idleCalls); got != 1 {
		t.Errorf("Expected onIdle to fire exactly once, got %d", got)
	}
}

func TestMonitorResetsWhenAudienceReturns(t *testing.T) {
	var mu sync.Mutex
	count := 0
	mon := NewMonitor(5*time.Millisecond, time.Hour,
		func() (int, bool) {
			mu.Lock()
			defer mu.Unlock()
			return count, true
		},
		func() { t.Error("onIdle must not fire") })
	mon.Start()
	defer mon.Stop()

	waitFor(t, time.Second, func() bool {
		return mon.AloneFor() > 0
	})

	mu.Lock()
	count = 1
	mu.Unlock()

	waitFor(t, time.Second, func() bool {
		return mon.AloneFor() == 0
	})
}

func TestMonitorSkipsTicksWhenDisconnected(t *testing.T) {
	mon := NewMonitor(5*time.Millisecond, time.Hour,
		func() (int, bool) { return 0, false },
		func() { t.Error("onIdle must not fire while disconnected") })
	mon.Start()
	defer mon.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := mon.AloneFor(); got != 0 {
		t.Errorf("Disconnected ticks must not accumulate, got %v", got)
	}
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	mon := NewMonitor(time.Hour, time.Hour,
		func() (int, bool) { return 0, true },
		func() {})
	mon.Start()
	mon.Stop()
	mon.Stop()
}
