package corpusstats

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"whisx/internal/config"
	"whisx/internal/marker"
	"whisx/internal/scan"
	"whisx/internal/testsupport"
)

type mapProber map[string]time.Duration

func (m mapProber) Duration(_ context.Context, path string) (time.Duration, error) {
	d, ok := m[filepath.Base(path)]
	if !ok {
		return 0, errors.New("no duration")
	}
	return d, nil
}

func newSource() *scan.Source {
	return scan.NewSource(config.Scan{AudioExtensions: []string{".wav", ".mp3"}, MarkerExtension: ".json"}, nil)
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "a.wav", "b.mp3", "sub/c.wav", "sub/d.wav", "notes.txt")
	writeMarker(t, paths[0], `{"language":"en","segments":[]}`)
	writeMarker(t, paths[1], `{"language":"de"}`)
	writeMarker(t, paths[2], `{"language":"en"}`)

	prober := mapProber{
		"a.wav": 10 * time.Minute,
		"b.mp3": 3 * time.Hour,
		"c.wav": 20 * time.Minute,
	}
	collector := NewCollector(newSource(), prober, 3, 2*time.Hour, nil)
	report, err := collector.Collect(context.Background(), root)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Files != 4 || report.Marked != 3 || report.Pending() != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Coverage() != 75 {
		t.Fatalf("coverage = %v", report.Coverage())
	}
	if report.ProbeErrors != 1 {
		t.Fatalf("probe errors = %d", report.ProbeErrors)
	}
	if want := 3*time.Hour + 30*time.Minute; report.TotalDuration != want || report.MarkedDuration != want {
		t.Fatalf("durations = %v / %v", report.TotalDuration, report.MarkedDuration)
	}
	if len(report.LongFiles) != 1 || filepath.Base(report.LongFiles[0].Path) != "b.mp3" {
		t.Fatalf("long files = %+v", report.LongFiles)
	}
	if len(report.Languages) != 2 {
		t.Fatalf("languages = %+v", report.Languages)
	}
	if got := report.Languages[0]; got.Code != "en" || got.Count != 2 || got.Name != "English" {
		t.Fatalf("top language = %+v", got)
	}
	if got := report.Languages[1]; got.Code != "de" || got.Name != "German" {
		t.Fatalf("second language = %+v", got)
	}
}

func TestCollectWithoutProber(t *testing.T) {
	root := t.TempDir()
	testsupport.AudioTree(t, root, "a.wav")
	report, err := NewCollector(newSource(), nil, 0, time.Hour, nil).Collect(context.Background(), root)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Files != 1 || report.ProbeErrors != 0 || report.TotalDuration != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestCollectCancelled(t *testing.T) {
	root := t.TempDir()
	testsupport.AudioTree(t, root, "a.wav", "b.wav")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewCollector(newSource(), mapProber{}, 1, 0, nil).Collect(ctx, root); !errors.Is(err, context.Canceled) {
		t.Fatalf("Collect error = %v", err)
	}
}

func TestFormatting(t *testing.T) {
	if got := FormatCount(1234567); got != "1,234,567" {
		t.Fatalf("FormatCount = %q", got)
	}
	if got := FormatHours(90 * time.Minute); got != "1.5 h" {
		t.Fatalf("FormatHours = %q", got)
	}
	if got := LanguageName("not a tag!"); got != "not a tag!" {
		t.Fatalf("LanguageName = %q", got)
	}
	if got := LanguageName("fr"); got != "French" {
		t.Fatalf("LanguageName = %q", got)
	}
}

func writeMarker(t *testing.T, input, body string) {
	t.Helper()
	if err := marker.Write(input, ".json", []byte(body)); err != nil {
		t.Fatalf("write marker: %v", err)
	}
}
