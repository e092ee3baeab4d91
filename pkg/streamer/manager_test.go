package streamer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTransport implements Transport without touching Discord.
type fakeTransport struct {
	mu        sync.Mutex
	state     ConnState
	channelID string

	logins, joins, leaves, relogins, logouts int

	loginErr error
	joinErr  error
	members  func() (int, bool)

	// leaveGate, when set, blocks Leave until the channel is closed.
	leaveGate chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{state: StateLoggedOut}
}

func (f *fakeTransport) Login() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return f.loginErr
	}
	f.logins++
	if f.state == StateLoggedOut {
		f.state = StateIdle
	}
	return nil
}

func (f *fakeTransport) Relogin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relogins++
	f.state = StateIdle
	f.channelID = ""
	return nil
}

func (f *fakeTransport) Join(guildID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	if f.state == StateConnected && f.channelID == channelID {
		return nil
	}
	f.joins++
	f.channelID = channelID
	f.state = StateConnected
	return nil
}

func (f *fakeTransport) Leave() error {
	f.mu.Lock()
	gate := f.leaveGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	if f.state == StateConnected {
		f.state = StateIdle
	}
	f.channelID = ""
	return nil
}

func (f *fakeTransport) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.state = StateLoggedOut
	f.channelID = ""
	return nil
}

func (f *fakeTransport) State() ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Connected() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channelID, f.state == StateConnected
}

func (f *fakeTransport) NonBotMembers() (int, bool) {
	if f.members != nil {
		return f.members()
	}
	return 1, true
}

func (f *fakeTransport) counts() (logins, joins, leaves int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.joins, f.leaves
}

// fakeHandle blocks in Run until its context is cancelled, mirroring a
// healthy encoder, unless immediateErr makes it fail right away.
type fakeHandle struct {
	media        Media
	ctx          context.Context
	immediateErr error

	mu       sync.Mutex
	released bool
}

func (h *fakeHandle) Run(ctx context.Context) error {
	if h.immediateErr != nil {
		return h.immediateErr
	}
	<-ctx.Done()
	return &PipelineError{Source: h.media.Name, Cancelled: true, Err: ctx.Err()}
}

func (h *fakeHandle) Release() {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
}

func (h *fakeHandle) wasReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

type fakePipeline struct {
	mu           sync.Mutex
	handles      []*fakeHandle
	prepareErr   error
	immediateErr error

	// prevCancelledAtPrepare records, for every Prepare after the first,
	// whether the previous handle's context was already cancelled.
	prevCancelledAtPrepare []bool
}

func (p *fakePipeline) Prepare(ctx context.Context, media Media) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prepareErr != nil {
		return nil, p.prepareErr
	}
	if n := len(p.handles); n > 0 {
		prev := p.handles[n-1]
		p.prevCancelledAtPrepare = append(p.prevCancelledAtPrepare, prev.ctx.Err() != nil)
	}
	h := &fakeHandle{media: media, ctx: ctx, immediateErr: p.immediateErr}
	p.handles = append(p.handles, h)
	return h, nil
}

func (p *fakePipeline) handle(i int) *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[i]
}

func (p *fakePipeline) prepared() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func newTestManager(transport Transport, pipeline MediaPipeline) *Manager {
	return NewManager(transport, pipeline, nil, ManagerConfig{
		GraceDelay:    200 * time.Millisecond,
		PollInterval:  time.Hour, // monitor stays quiet unless a test wants it
		IdleThreshold: time.Hour,
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartStopLifecycle(t *testing.T) {
	transport := newFakeTransport()
	pipeline := &fakePipeline{}
	mgr := newTestManager(transport, pipeline)

	media := Media{ID: "bbc1", Name: "BBC One", URL: "http://example.com/bbc1.m3u8"}
	if err := mgr.Start(media, "guild", "123"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, joins, _ := transport.counts(); joins != 1 {
		t.Errorf("Expected 1 join, got %d", joins)
	}
	if got, _, active := mgr.NowPlaying(); !active || got.Name != "BBC One" {
		t.Errorf("Expected BBC One playing, got %v active=%v", got.Name, active)
	}

	if err := mgr.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	h := pipeline.handle(0)
	if h.ctx.Err() == nil {
		t.Error("Expected cancellation token to be triggered on stop")
	}
	if !h.wasReleased() {
		t.Error("Expected pipeline handle to be released on stop")
	}
	if _, _, active := mgr.NowPlaying(); active {
		t.Error("Expected no active session after stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	mgr := newTestManager(transport, &fakePipeline{})

	for i := 0; i < 3; i++ {
		if err := mgr.Stop(); err != nil {
			t.Fatalf("Stop with no session should succeed, got %v", err)
		}
	}
	if logins, joins, leaves := transport.counts(); logins+joins+leaves != 0 {
		t.Errorf("Stop touched the transport: logins=%d joins=%d leaves=%d", logins, joins, leaves)
	}
}

func TestStartSupersedesPreviousSession(t *testing.T) {
	transport := newFakeTransport()
	pipeline := &fakePipeline{}
	mgr := newTestManager(transport, pipeline)

	a := Media{Name: "Channel A", URL: "http://example.com/a"}
	b := Media{Name: "Channel B", URL: "http://example.com/b"}

	if err := mgr.Start(a, "guild", "123"); err != nil {
		t.Fatalf("Start A failed: %v", err)
	}
	if err := mgr.Start(b, "guild", "123"); err != nil {
		t.Fatalf("Start B failed: %v", err)
	}

	if got := pipeline.prepared(); got != 2 {
		t.Fatalf("Expected 2 prepared pipelines, got %d", got)
	}
	if !pipeline.prevCancelledAtPrepare[0] {
		t.Error("A's cancellation token must be triggered before B's prepare")
	}
	if !pipeline.handle(0).wasReleased() {
		t.Error("A's pipeline handle must be released before B runs")
	}
	if pipeline.handle(1).wasReleased() {
		t.Error("B's pipeline should still be alive")
	}
	if got, _, active := mgr.NowPlaying(); !active || got.Name != "Channel B" {
		t.Errorf("Expected Channel B to be the surviving session, got %q active=%v", got.Name, active)
	}
}

func TestConcurrentStartsSerialize(t *testing.T) {
	transport := newFakeTransport()
	pipeline := &fakePipeline{}
	mgr := newTestManager(transport, pipeline)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			media := Media{Name: "Channel", URL: "http://example.com/stream"}
			if err := mgr.Start(media, "guild", "123"); err != nil {
				t.Errorf("Start failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// However the five calls interleaved, every superseded pipeline must
	// have been cancelled before its successor was prepared.
	pipeline.mu.Lock()
	defer pipeline.mu.Unlock()
	alive := 0
	for _, h := range pipeline.handles {
		h.mu.Lock()
		if !h.released {
			alive++
		}
		h.mu.Unlock()
	}
	if alive != 1 {
		t.Errorf("Expected exactly 1 live pipeline, got %d", alive)
	}
	for i, cancelled := range pipeline.prevCancelledAtPrepare {
		if !cancelled {
			t.Errorf("Pipeline %d was prepared before its predecessor was cancelled", i+1)
		}
	}
}

func TestStartPropagatesAuthError(t *testing.T) {
	transport := newFakeTransport()
	transport.loginErr = &AuthError{Err: errors.New("bad token")}
	pipeline := &fakePipeline{}
	mgr := newTestManager(transport, pipeline)

	err := mgr.Start(Media{Name: "BBC One"}, "guild", "123")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %v", err)
	}
	if pipeline.prepared() != 0 {
		t.Error("No pipeline should be prepared when login fails")
	}
	if _, joins, _ := transport.counts(); joins != 0 {
		t.Error("No join should be attempted when login fails")
	}
}

func TestStartPropagatesConnectError(t *testing.T) {
	transport := newFakeTransport()
	transport.joinErr = &ConnectError{ChannelID: "123", Err: errors.New("missing permissions")}
	pipeline := &fakePipeline{}
	mgr := newTestManager(transport, pipeline)

	err := mgr.Start(Media{Name: "BBC One"}, "guild", "123")
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("Expected ConnectError, got %v", err)
	}
	if pipeline.prepared() != 0 {
		t.Error("No pipeline should be prepared when join fails")
	}
	if _, _, active := mgr.NowPlaying(); active {
		t.Error("No session should exist after a failed start")
	}
}

func TestRunFailureClearsSessionWithoutRetry(t *testing.T) {
	transport := newFakeTransport()
	pipeline := &fakePipeline{
		immediateErr: &PipelineError{Source: "BBC One", Err: errors.New("decode error")},
	}
	mgr := newTestManager(transport, pipeline)

	if err := mgr.Start(Media{Name: "BBC One", URL: "http://bad"}, "guild", "123"); err != nil {
		t.Fatalf("Start should succeed even if the run fails later: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		_, _, active := mgr.NowPlaying()
		return !active
	})

	time.Sleep(20 * time.Millisecond)
	if got := pipeline.prepared(); got != 1 {
		t.Errorf("Expected no automatic retry, but %d pipelines were prepared", got)
	}
}

func TestIdleAudienceStopsStreamOnce(t *testing.T) {
	transport := newFakeTransport()
	transport.members = func() (int, bool) { return 0, true }
	pipeline := &fakePipeline{}
	mgr := NewManager(transport, pipeline, nil, ManagerConfig{
		GraceDelay:    100 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		IdleThreshold: 20 * time.Millisecond,
	})

	if err := mgr.Start(Media{Name: "BBC One", URL: "http://x"}, "guild", "123"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		_, _, leaves := transport.counts()
		return leaves == 1
	})
	if _, _, active := mgr.NowPlaying(); active {
		t.Error("Expected session to be cleared after idle timeout")
	}

	// The monitor must not fire a second time.
	time.Sleep(100 * time.Millisecond)
	if _, _, leaves := transport.counts(); leaves != 1 {
		t.Errorf("Expected exactly one leave, got %d", leaves)
	}
}

func TestMonitorIsolationBetweenSessions(t *testing.T) {
	transport := newFakeTransport()
	transport.members = func() (int, bool) { return 0, true }
	pipeline := &fakePipeline{}
	mgr := NewManager(transport, pipeline, nil, ManagerConfig{
		GraceDelay:    100 * time.Millisecond,
		PollInterval:  10 * time.Millisecond,
		IdleThreshold: time.Hour,
	})

	if err := mgr.Start(Media{Name: "Channel A", URL: "http://a"}, "guild", "123"); err != nil {
		t.Fatalf("Start A failed: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		return mgr.currentMonitor().AloneFor() > 0
	})

	if err := mgr.Start(Media{Name: "Channel B", URL: "http://b"}, "guild", "123"); err != nil {
		t.Fatalf("Start B failed: %v", err)
	}
	if got := mgr.currentMonitor().AloneFor(); got != 0 {
		t.Errorf("Expected a fresh accumulator for session B, got %v", got)
	}
}

func TestResetClearsEverything(t *testing.T) {
	transport := newFakeTransport()
	pipeline := &fakePipeline{}
	mgr := newTestManager(transport, pipeline)

	if err := mgr.Start(Media{Name: "BBC One", URL: "http://x"}, "guild", "123"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := mgr.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if _, _, active := mgr.NowPlaying(); active {
		t.Error("Expected no session after reset")
	}
	transport.mu.Lock()
	relogins := transport.relogins
	transport.mu.Unlock()
	if relogins != 1 {
		t.Errorf("Expected one relogin, got %d", relogins)
	}
	if !pipeline.handle(0).wasReleased() {
		t.Error("Expected pipeline to be released by reset")
	}
}

func TestLeaveSerializesWithStart(t *testing.T) {
	transport := newFakeTransport()
	pipeline := &fakePipeline{}
	mgr := newTestManager(transport, pipeline)

	if err := mgr.Start(Media{Name: "Channel A", URL: "http://a"}, "guild", "123"); err != nil {
		t.Fatalf("Start A failed: %v", err)
	}

	// Hold the disconnect open so a start can race it.
	gate := make(chan struct{})
	transport.mu.Lock()
	transport.leaveGate = gate
	transport.mu.Unlock()

	leaveDone := make(chan error, 1)
	go func() { leaveDone <- mgr.Leave() }()

	// Leave tears session A down before it reaches the transport.
	waitFor(t, time.Second, func() bool {
		return pipeline.handle(0).wasReleased()
	})

	startDone := make(chan error, 1)
	go func() {
		startDone <- mgr.Start(Media{Name: "Channel B", URL: "http://b"}, "guild", "123")
	}()

	select {
	case err := <-startDone:
		t.Fatalf("Start completed while a leave was still in flight (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	if err := <-leaveDone; err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	if err := <-startDone; err != nil {
		t.Fatalf("Start B failed: %v", err)
	}

	// The session that won must be connected, not orphaned against a
	// disconnected transport.
	got, _, active := mgr.NowPlaying()
	if !active || got.Name != "Channel B" {
		t.Fatalf("Expected Channel B playing, got %v active=%v", got.Name, active)
	}
	if _, connected := transport.Connected(); !connected {
		t.Error("Expected transport to be connected for the active session")
	}
}

func TestOnStoppedHookFiresOnIdleTimeout(t *testing.T) {
	transport := newFakeTransport()
	transport.members = func() (int, bool) { return 0, true }
	pipeline := &fakePipeline{}

	var stopped atomic.Int32
	mgr := NewManager(transport, pipeline, nil, ManagerConfig{
		GraceDelay:    100 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		IdleThreshold: 20 * time.Millisecond,
		OnStopped:     func() { stopped.Add(1) },
	})

	if err := mgr.Start(Media{Name: "BBC One", URL: "http://x"}, "guild", "123"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return stopped.Load() == 1 })
	if _, _, active := mgr.NowPlaying(); active {
		t.Error("Expected session to be cleared after idle timeout")
	}

	time.Sleep(100 * time.Millisecond)
	if got := stopped.Load(); got != 1 {
		t.Errorf("Expected the stop hook to fire exactly once, got %d", got)
	}
}

func TestLogoutStopsStreamAndClosesTransport(t *testing.T) {
	transport := newFakeTransport()
	pipeline := &fakePipeline{}
	mgr := newTestManager(transport, pipeline)

	if err := mgr.Start(Media{Name: "BBC One", URL: "http://x"}, "guild", "123"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := mgr.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, _, active := mgr.NowPlaying(); active {
		t.Error("Expected no session after logout")
	}
	if !pipeline.handle(0).wasReleased() {
		t.Error("Expected pipeline to be released by logout")
	}
	if got := transport.State(); got != StateLoggedOut {
		t.Errorf("Expected transport to be logged out, got %v", got)
	}
}
