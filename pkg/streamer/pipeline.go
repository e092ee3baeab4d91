package streamer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"layeh.com/gopus"
)

const (
	sampleRate    = 48000
	channels      = 2
	frameSamples  = 960                         // 20ms at 48kHz
	pcmFrameBytes = frameSamples * channels * 2 // s16le
	tsChunkBytes  = 1316                        // 7 TS packets
)

// Media is the resolved thing a session streams: a display name plus a
// playable URL. Radio entries skip the video transcode and go through the
// Opus path directly.
type Media struct {
	ID    string
	Name  string
	URL   string
	Radio bool
}

// Config holds the encoder invocation settings. The values are tunables,
// not a contract; defaults target low-latency live TV.
type Config struct {
	FFmpegPath       string
	VideoCodec       string
	VideoBitrateKbps int
	VideoMaxrateKbps int
	Preset           string
	Tune             string
	OpusBitrate      int
}

// DefaultConfig returns the stock encoder settings.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:       "ffmpeg",
		VideoCodec:       "libx264",
		VideoBitrateKbps: 5000,
		VideoMaxrateKbps: 7500,
		Preset:           "ultrafast",
		Tune:             "zerolatency",
		OpusBitrate:      128000,
	}
}

// MediaPipeline is what the Manager drives. The concrete Pipeline wraps
// ffmpeg; tests inject a fake.
type MediaPipeline interface {
	Prepare(ctx context.Context, media Media) (Handle, error)
}

// Handle owns one running encoder process and its output stream. Run drives
// the output into the transport until cancellation or natural stream end;
// Release kills the process and may be called any number of times.
type Handle interface {
	Run(ctx context.Context) error
	Release()
}

// Pipeline turns a source media URL into frames on a FrameSink.
type Pipeline struct {
	cfg  Config
	sink FrameSink
}

// NewPipeline creates a pipeline that feeds the given sink.
func NewPipeline(cfg Config, sink FrameSink) *Pipeline {
	if cfg.FFmpegPath == "" {
		cfg = DefaultConfig()
	}
	return &Pipeline{cfg: cfg, sink: sink}
}

// buildArgs assembles the ffmpeg invocation for a media entry. TV channels
// are transcoded to H.264 + Opus in an MPEG-TS mux on stdout; radio channels
// come out as raw s16le PCM for the Opus encoder.
func (p *Pipeline) buildArgs(media Media) []string {
	args := []string{
		"-re",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", media.URL,
	}
	if media.Radio {
		return append(args,
			"-f", "s16le",
			"-acodec", "pcm_s16le",
			"-ar", fmt.Sprintf("%d", sampleRate),
			"-ac", fmt.Sprintf("%d", channels),
			"-")
	}
	return append(args,
		"-c:v", p.cfg.VideoCodec,
		"-b:v", fmt.Sprintf("%dk", p.cfg.VideoBitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", p.cfg.VideoMaxrateKbps),
		"-bufsize", fmt.Sprintf("%dk", p.cfg.VideoMaxrateKbps),
		"-preset", p.cfg.Preset,
		"-tune", p.cfg.Tune,
		"-c:a", "libopus",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-f", "mpegts",
		"-")
}

// Prepare starts the encoder process and returns a handle owning it. It only
// blocks on process startup; encode failures surface later through Run.
func (p *Pipeline) Prepare(ctx context.Context, media Media) (Handle, error) {
	args := p.buildArgs(media)
	cmd := exec.CommandContext(ctx, p.cfg.FFmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stderr pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}

	h := &processHandle{
		media: media,
		cmd:   cmd,
		out:   stdout,
		sink:  p.sink,
		errs:  make(chan error, 1),
	}

	// ffmpeg muxes Opus itself in TV mode; the local encoder is only needed
	// for the raw PCM radio path.
	if media.Radio {
		enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
		if err != nil {
			return nil, errors.Wrap(err, "create opus encoder")
		}
		enc.SetBitrate(p.cfg.OpusBitrate)
		h.encoder = enc
	}

	go h.drainStderr(stderr)

	log.Printf("Starting encoder for %s", media.Name)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", p.cfg.FFmpegPath)
	}

	// Reap the process exactly once and classify its exit. A kill caused by
	// the session's cancellation is the expected outcome of a stop request
	// racing the encoder, not a fault.
	go func() {
		err := cmd.Wait()
		if err == nil {
			h.errs <- nil
			return
		}
		if ctx.Err() != nil {
			h.errs <- &PipelineError{Source: media.Name, Cancelled: true, Err: err}
			return
		}
		h.errs <- &PipelineError{Source: media.Name, Err: errors.Wrap(err, h.lastStderr())}
	}()

	return h, nil
}

// processHandle is the concrete Handle over one ffmpeg process.
type processHandle struct {
	media   Media
	cmd     *exec.Cmd
	out     io.ReadCloser
	sink    FrameSink
	encoder *gopus.Encoder
	errs    chan error

	releaseOnce sync.Once

	mu      sync.Mutex
	tailLog []string
}

// Run drives encoded data into the sink until the context is cancelled or
// the source ends. It returns the classified exit error of the encoder.
func (h *processHandle) Run(ctx context.Context) error {
	h.sink.Speaking(true)
	defer h.sink.Speaking(false)

	var readErr error
	if h.media.Radio {
		readErr = h.runPCM(ctx)
	} else {
		readErr = h.runPackets(ctx)
	}

	// The Wait goroutine always reports, either the real exit status or the
	// cancellation marker; prefer that over the raw read error.
	exitErr := <-h.errs
	if exitErr != nil {
		return exitErr
	}
	if readErr != nil && ctx.Err() == nil {
		return &PipelineError{Source: h.media.Name, Err: readErr}
	}
	return nil
}

// runPackets relays the packetized MPEG-TS output into the sink.
func (h *processHandle) runPackets(ctx context.Context) error {
	reader := bufio.NewReaderSize(h.out, tsChunkBytes*8)
	buf := make([]byte, tsChunkBytes)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := io.ReadFull(reader, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			if n > 0 {
				h.send(ctx, buf[:n])
			}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read encoder output")
		}
		if err := h.send(ctx, buf[:n]); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "send frame")
		}
	}
}

// runPCM converts raw PCM into 20ms Opus frames, the same shape the voice
// transport expects from the TV path.
func (h *processHandle) runPCM(ctx context.Context) error {
	buf := make([]byte, pcmFrameBytes)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, err := io.ReadFull(h.out, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read PCM data")
		}

		samples := bytesToInt16(buf)
		frame, err := h.encoder.Encode(samples, frameSamples, pcmFrameBytes)
		if err != nil {
			log.Printf("Opus encoding error: %v", err)
			continue
		}
		if err := h.send(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "send frame")
		}
	}
}

func (h *processHandle) send(ctx context.Context, frame []byte) error {
	// Copy out: the read buffer is reused on the next iteration.
	out := make([]byte, len(frame))
	copy(out, frame)
	return h.sink.SendFrame(ctx, out)
}

// Release kills the encoder process. Idempotent; the Wait goroutine does the
// actual reaping.
func (h *processHandle) Release() {
	h.releaseOnce.Do(func() {
		if h.cmd.Process != nil {
			h.cmd.Process.Kill()
		}
		h.out.Close()
	})
}

// drainStderr keeps the encoder's stderr from blocking it and retains the
// last few lines for error context.
func (h *processHandle) drainStderr(stderr io.ReadCloser) {
	defer stderr.Close()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		h.mu.Lock()
		h.tailLog = append(h.tailLog, line)
		if len(h.tailLog) > 5 {
			h.tailLog = h.tailLog[1:]
		}
		h.mu.Unlock()
	}
}

func (h *processHandle) lastStderr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tailLog) == 0 {
		return "encoder exited abnormally"
	}
	return strings.Join(h.tailLog, "; ")
}

func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
