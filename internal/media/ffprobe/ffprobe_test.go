package ffprobe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAndDuration(t *testing.T) {
	payload := []byte(`{
		"streams": [{"index": 0, "codec_name": "mp3", "codec_type": "audio", "sample_rate": "44100", "channels": 2}],
		"format": {"filename": "a.mp3", "duration": "12.500000", "size": "2048", "format_name": "mp3"}
	}`)
	result, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	if result.SizeBytes() != 2048 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
	got, err := result.Duration()
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 12500*time.Millisecond {
		t.Fatalf("Duration = %v", got)
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "3.0"}, {CodecType: "audio", Duration: "bad"}},
		Format:  Format{Duration: "N/A"},
	}
	got, err := result.Duration()
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 3*time.Second {
		t.Fatalf("Duration = %v", got)
	}
}

func TestDurationIgnoresNegativeContainerDuration(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "N/A"}, {CodecType: "audio", Duration: "12.5"}},
		Format:  Format{Duration: "-1"},
	}
	got, err := result.Duration()
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 12500*time.Millisecond {
		t.Fatalf("Duration = %v", got)
	}
}

func TestDurationUnavailable(t *testing.T) {
	if _, err := (Result{}).Duration(); !errors.Is(err, ErrNoDuration) {
		t.Fatalf("expected ErrNoDuration, got %v", err)
	}
}

func TestDurationRunsBinary(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\necho '{\"format\":{\"duration\":\"7.25\"}}'\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := Duration(context.Background(), stub, filepath.Join(dir, "a.mp3"))
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 7250*time.Millisecond {
		t.Fatalf("Duration = %v", got)
	}
}

func TestInspectFailure(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\necho broken >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Inspect(context.Background(), stub, "a.mp3"); err == nil {
		t.Fatal("expected error from failing ffprobe")
	}
}
