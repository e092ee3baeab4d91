package streamer

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildArgsTV(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)
	args := strings.Join(p.buildArgs(Media{Name: "BBC One", URL: "http://example.com/bbc1.m3u8"}), " ")

	for _, want := range []string{
		"-i http://example.com/bbc1.m3u8",
		"-c:v libx264",
		"-b:v 5000k",
		"-maxrate 7500k",
		"-preset ultrafast",
		"-tune zerolatency",
		"-f mpegts",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("TV args missing %q in %q", want, args)
		}
	}
}

func TestBuildArgsRadio(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)
	args := strings.Join(p.buildArgs(Media{Name: "Radio 4", URL: "http://example.com/r4", Radio: true}), " ")

	for _, want := range []string{
		"-f s16le",
		"-acodec pcm_s16le",
		"-ar 48000",
		"-ac 2",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("Radio args missing %q in %q", want, args)
		}
	}
	if strings.Contains(args, "libx264") {
		t.Error("Radio args must not transcode video")
	}
}

func TestIsCancelled(t *testing.T) {
	cancelled := &PipelineError{Source: "BBC One", Cancelled: true, Err: errors.New("killed")}
	if !IsCancelled(cancelled) {
		t.Error("Expected cancellation exit to be recognized")
	}

	genuine := &PipelineError{Source: "BBC One", Err: errors.New("connection reset")}
	if IsCancelled(genuine) {
		t.Error("A genuine failure must not be treated as cancellation")
	}
	if IsCancelled(errors.New("unrelated")) {
		t.Error("Unrelated errors are not cancellations")
	}
}

func TestBytesToInt16(t *testing.T) {
	samples := bytesToInt16([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	want := []int16{1, -1, -32768}
	for i, s := range samples {
		if s != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, s, want[i])
		}
	}
}
