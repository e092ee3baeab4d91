// Package streamer owns the life of a relay stream: the secondary Discord
// client that joins voice, the ffmpeg transcode pipeline that feeds it, the
// lifecycle manager that guarantees at most one active stream, and the
// audience monitor that tears streams down when nobody is left watching.
//
// The Manager is the only entry point commands should use. Start, Stop, Join,
// Leave and Reset all serialize through it; every start issues a fresh
// cancellation context and every stop waits for the pipeline to confirm
// release before the session is cleared.
package streamer
