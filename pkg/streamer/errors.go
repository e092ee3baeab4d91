package streamer

import (
	"errors"
	"fmt"
)

// ErrNotLoggedIn is returned when a voice operation is attempted before the
// streamer client has authenticated.
var ErrNotLoggedIn = errors.New("streamer client is not logged in")

// AuthError means the streamer client could not log in. Streaming is dead
// until a relogin succeeds, so callers should treat this as fatal.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("streamer login failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnectError means joining a voice channel failed (missing permissions,
// deleted channel, gateway timeout). Retrying the start command is safe.
type ConnectError struct {
	ChannelID string
	Err       error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to join voice channel %s: %v", e.ChannelID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// PipelineError reports an abnormal encoder exit. Cancelled marks the one
// exit that is expected: the process being killed by its own session's
// cancellation. That case is logged at debug level and never shown to users.
type PipelineError struct {
	Source    string
	Cancelled bool
	Err       error
}

func (e *PipelineError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("pipeline for %s terminated by cancellation", e.Source)
	}
	return fmt.Sprintf("pipeline for %s failed: %v", e.Source, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is a PipelineError caused by the session's
// own stop request rather than a genuine encoder failure.
func IsCancelled(err error) bool {
	var perr *PipelineError
	return errors.As(err, &perr) && perr.Cancelled
}
