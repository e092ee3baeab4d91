package streamer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	defaultGraceDelay    = time.Second
	defaultPollInterval  = 10 * time.Second
	defaultIdleThreshold = 5 * time.Minute
)

// session is the at-most-one active stream. Its context is issued fresh on
// every start and never reused after cancellation; done closes when the run
// goroutine has returned, which is the teardown-complete signal Stop waits on.
type session struct {
	id        string
	media     Media
	cancel    context.CancelFunc
	handle    Handle
	monitor   *Monitor
	done      chan struct{}
	startedAt time.Time
}

// ManagerConfig tunes the lifecycle manager. Zero values get defaults.
type ManagerConfig struct {
	// GraceDelay bounds how long Stop waits for the pipeline to confirm
	// release before clearing the session anyway.
	GraceDelay time.Duration
	// PollInterval is the audience monitor's tick.
	PollInterval time.Duration
	// IdleThreshold is how long the bot may be alone before stopping.
	IdleThreshold time.Duration
	// OnStopped runs after a session has been torn down, whichever path
	// stopped it. It is invoked with the manager lock held and must not
	// call back into the Manager.
	OnStopped func()
}

// Manager is the single authority over the stream session. All starts and
// stops serialize through its mutex, which is what keeps two pipelines from
// ever running concurrently when commands race.
type Manager struct {
	transport Transport
	pipeline  MediaPipeline
	metrics   *Metrics
	cfg       ManagerConfig

	mu      sync.Mutex
	current *session
}

// NewManager wires a manager over a transport and pipeline.
func NewManager(transport Transport, pipeline MediaPipeline, metrics *Metrics, cfg ManagerConfig) *Manager {
	if cfg.GraceDelay == 0 {
		cfg.GraceDelay = defaultGraceDelay
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = defaultIdleThreshold
	}
	return &Manager{
		transport: transport,
		pipeline:  pipeline,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Start begins streaming media into the given voice channel. Any existing
// session is fully stopped first. Start returns once streaming has been
// initiated; run errors are reported through logs and metrics, never here.
func (m *Manager) Start(media Media, guildID, voiceChannelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transport.Login(); err != nil {
		return err
	}

	m.stopLocked()

	if err := m.transport.Join(guildID, voiceChannelID); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := m.pipeline.Prepare(ctx, media)
	if err != nil {
		cancel()
		return errors.Wrapf(err, "prepare pipeline for %s", media.Name)
	}

	sess := &session{
		id:        uuid.New().String(),
		media:     media,
		cancel:    cancel,
		handle:    handle,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	sess.monitor = NewMonitor(m.cfg.PollInterval, m.cfg.IdleThreshold,
		m.transport.NonBotMembers,
		func() {
			if err := m.Leave(); err != nil {
				log.Printf("Error leaving after idle timeout: %v", err)
			}
		})
	m.current = sess

	sess.monitor.Start()
	go m.runSession(ctx, sess)

	m.metrics.streamStarted()
	log.Printf("Started streaming %s (session %s) in voice channel %s", media.Name, sess.id, voiceChannelID)
	return nil
}

// runSession drives the pipeline to completion in the background. The done
// channel closes before any cleanup so a concurrent Stop never deadlocks
// waiting on this goroutine.
func (m *Manager) runSession(ctx context.Context, sess *session) {
	err := sess.handle.Run(ctx)
	close(sess.done)

	switch {
	case err == nil:
		log.Printf("Stream %s ended (session %s)", sess.media.Name, sess.id)
	case IsCancelled(err):
		// Expected exit of a stop request racing the encoder; not a fault.
		log.Printf("Encoder for session %s terminated by cancellation", sess.id)
	default:
		log.Printf("Stream %s failed (session %s): %v", sess.media.Name, sess.id, err)
		m.metrics.pipelineError()
	}

	// No automatic retry: clear state and wait for the next explicit start.
	m.clearIfCurrent(sess)
}

// clearIfCurrent tears sess down only if it is still the active session, so
// a finished run can never stop a session that superseded it.
func (m *Manager) clearIfCurrent(sess *session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != sess {
		return
	}
	m.stopLocked()
}

// Stop halts any active stream. Calling it with nothing playing is fine.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	if m.transport.State() == StateLoggedOut {
		// A live session against a logged-out transport means a precondition
		// was violated upstream; clear it anyway.
		log.Printf("Stopping session %s while transport is logged out", m.current.id)
	}
	m.stopLocked()
	return nil
}

// stopLocked tears down the current session: cancel the token, wait for the
// run goroutine to confirm release (bounded by the grace delay), kill the
// encoder, stop the monitor. Callers hold m.mu.
func (m *Manager) stopLocked() {
	sess := m.current
	if sess == nil {
		return
	}

	sess.monitor.Stop()
	sess.cancel()

	select {
	case <-sess.done:
	case <-time.After(m.cfg.GraceDelay):
		log.Printf("Session %s did not confirm release within %v", sess.id, m.cfg.GraceDelay)
	}

	sess.handle.Release()
	m.current = nil
	m.metrics.streamStopped(time.Since(sess.startedAt))
	log.Printf("Stopped streaming %s (session %s)", sess.media.Name, sess.id)

	if m.cfg.OnStopped != nil {
		m.cfg.OnStopped()
	}
}

// Login authenticates the streamer client without joining voice.
func (m *Manager) Login() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transport.Login()
}

// Join connects the streamer to a voice channel without starting a stream.
func (m *Manager) Join(guildID, voiceChannelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transport.Login(); err != nil {
		return err
	}
	return m.transport.Join(guildID, voiceChannelID)
}

// Leave stops any active stream, then disconnects from voice. The lock is
// held across both steps so a start racing the disconnect cannot install a
// session that would then be left running against a closed transport.
func (m *Manager) Leave() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	return m.transport.Leave()
}

// Logout is the shutdown path: stop the stream, leave voice, and close the
// streamer session.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	return m.transport.Logout()
}

// Reset is the hard-recovery path: drop everything and relogin the streamer
// client. Whatever state the manager was in, it ends logged in with no
// active session.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	if err := m.transport.Relogin(); err != nil {
		return errors.Wrap(err, "relogin streamer client")
	}
	log.Printf("Streamer client reset")
	return nil
}

// currentMonitor returns the active session's monitor, or nil.
func (m *Manager) currentMonitor() *Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.monitor
}

// NowPlaying returns the active media and when it started.
func (m *Manager) NowPlaying() (Media, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Media{}, time.Time{}, false
	}
	return m.current.media, m.current.startedAt, true
}
