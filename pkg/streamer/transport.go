package streamer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

// ConnState tracks the streamer client's transport state machine.
type ConnState int

const (
	StateLoggedOut ConnState = iota
	StateLoggingIn
	StateIdle
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateLoggingIn:
		return "logging_in"
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Transport owns the login and voice-call lifecycle of the streamer client.
// The Manager talks to it through this interface so tests can inject a fake.
type Transport interface {
	Login() error
	Relogin() error
	Logout() error
	Join(guildID, channelID string) error
	Leave() error
	State() ConnState
	Connected() (channelID string, ok bool)
	NonBotMembers() (count int, connected bool)
}

// FrameSink accepts encoded media frames for the active voice connection.
type FrameSink interface {
	SendFrame(ctx context.Context, frame []byte) error
	Speaking(on bool) error
}

// VoiceTransport is the discordgo-backed Transport. It holds the secondary
// session used only for carrying media, never for command handling.
type VoiceTransport struct {
	mu        sync.RWMutex
	token     string
	session   *discordgo.Session
	conn      *discordgo.VoiceConnection
	state     ConnState
	guildID   string
	channelID string
}

// NewVoiceTransport creates a transport for the given bot token. Login is
// deferred so a bad token surfaces on the first start, not at construction.
func NewVoiceTransport(token string) *VoiceTransport {
	return &VoiceTransport{
		token: token,
		state: StateLoggedOut,
	}
}

// Login authenticates the streamer session. Calling it while logged in is a
// no-op, so the Manager can call it unconditionally on every start.
func (t *VoiceTransport) Login() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateLoggedOut {
		return nil
	}

	t.state = StateLoggingIn
	session, err := discordgo.New("Bot " + t.token)
	if err != nil {
		t.state = StateLoggedOut
		return &AuthError{Err: err}
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers
	session.StateEnabled = true

	if err := session.Open(); err != nil {
		t.state = StateLoggedOut
		return &AuthError{Err: err}
	}

	t.session = session
	t.state = StateIdle
	log.Printf("Streamer client logged in as %s", session.State.User.Username)
	return nil
}

// Relogin tears the whole session down and logs in again. Any active voice
// connection is dropped on the way; callers must stop streaming first.
func (t *VoiceTransport) Relogin() error {
	t.mu.Lock()
	t.logoutLocked()
	t.mu.Unlock()

	return t.Login()
}

// Logout drops any voice connection and closes the streamer session. Never
// an error when already logged out.
func (t *VoiceTransport) Logout() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logoutLocked()
	return nil
}

func (t *VoiceTransport) logoutLocked() {
	if t.conn != nil {
		t.conn.Disconnect()
		t.conn = nil
	}
	if t.session != nil {
		if err := t.session.Close(); err != nil {
			log.Printf("Error closing streamer session: %v", err)
		}
		t.session = nil
	}
	t.guildID = ""
	t.channelID = ""
	t.state = StateLoggedOut
}

// Join connects the streamer client to a voice channel. Joining the channel
// it is already connected to is a no-op. A failed join never leaves a
// half-open connection behind, so retrying is always safe.
func (t *VoiceTransport) Join(guildID, channelID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateLoggedOut || t.state == StateLoggingIn {
		return ErrNotLoggedIn
	}
	if t.state == StateConnected && t.channelID == channelID {
		log.Printf("Already connected to voice channel %s, skipping join", channelID)
		return nil
	}

	// Moving channels: drop the old connection first.
	if t.conn != nil {
		t.conn.Disconnect()
		t.conn = nil
		t.state = StateIdle
	}

	var vc *discordgo.VoiceConnection
	var err error
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		vc, err = t.session.ChannelVoiceJoin(guildID, channelID, false, true)
		if err == nil {
			break
		}
		log.Printf("Voice join attempt %d/%d failed: %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	if err != nil {
		return &ConnectError{ChannelID: channelID, Err: err}
	}

	// Wait for the connection to report ready before handing it to a pipeline.
	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !vc.Ready {
		select {
		case <-timeout:
			vc.Disconnect()
			return &ConnectError{ChannelID: channelID, Err: errors.New("voice connection never became ready")}
		case <-ticker.C:
		}
	}

	t.conn = vc
	t.guildID = guildID
	t.channelID = channelID
	t.state = StateConnected
	log.Printf("Joined voice channel %s in guild %s", channelID, guildID)
	return nil
}

// Leave disconnects from the current voice channel. Never an error when
// there is nothing to leave.
func (t *VoiceTransport) Leave() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}

	t.conn.Speaking(false)
	if err := t.conn.Disconnect(); err != nil {
		log.Printf("Error disconnecting from voice channel %s: %v", t.channelID, err)
	}
	t.conn = nil
	t.guildID = ""
	t.channelID = ""
	if t.state == StateConnected {
		t.state = StateIdle
	}
	log.Printf("Left voice channel")
	return nil
}

// State returns the current transport state.
func (t *VoiceTransport) State() ConnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Connected returns the connected voice channel ID, if any.
func (t *VoiceTransport) Connected() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != StateConnected {
		return "", false
	}
	return t.channelID, true
}

// NonBotMembers counts the human members in the connected voice channel.
// connected is false when there is no voice connection to inspect, which the
// audience monitor treats as a skipped tick.
func (t *VoiceTransport) NonBotMembers() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != StateConnected || t.session == nil {
		return 0, false
	}
	guild, err := t.session.State.Guild(t.guildID)
	if err != nil {
		return 0, false
	}

	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != t.channelID {
			continue
		}
		if vs.UserID == t.session.State.User.ID {
			continue
		}
		member, err := t.session.State.Member(t.guildID, vs.UserID)
		if err == nil && member.User != nil && member.User.Bot {
			continue
		}
		count++
	}
	return count, true
}

// SendFrame pushes one encoded frame into the voice connection, blocking
// until the transport accepts it or the context is cancelled.
func (t *VoiceTransport) SendFrame(ctx context.Context, frame []byte) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		return errors.New("no active voice connection")
	}
	select {
	case conn.OpusSend <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Speaking toggles the speaking indicator on the voice connection.
func (t *VoiceTransport) Speaking(on bool) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()

	if conn == nil {
		return nil
	}
	return conn.Speaking(on)
}
