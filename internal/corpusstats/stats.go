// Package corpusstats summarizes an audio corpus: how much audio it holds,
// how much of it already carries a transcription marker and which languages
// the markers report.
package corpusstats

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/message"

	"whisx/internal/logging"
	"whisx/internal/marker"
	"whisx/internal/scan"
)

// DurationProber measures one audio file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// LongFile is an input whose duration exceeds the configured threshold.
type LongFile struct {
	Path     string
	Duration time.Duration
}

// LanguageCount is one row of the language histogram.
type LanguageCount struct {
	Code  string
	Name  string
	Count int
}

// Report is the outcome of Collect.
type Report struct {
	Root           string
	Files          int
	Marked         int
	Unreadable     int
	TotalDuration  time.Duration
	MarkedDuration time.Duration
	ProbeErrors    int
	LongFiles      []LongFile
	Languages      []LanguageCount
}

// Pending returns the number of files without a marker.
func (r Report) Pending() int {
	return r.Files - r.Marked
}

// Coverage returns the marked share of files in percent.
func (r Report) Coverage() float64 {
	if r.Files == 0 {
		return 0
	}
	return float64(r.Marked) / float64(r.Files) * 100
}

// Collector gathers a Report with a bounded pool of probe goroutines.
type Collector struct {
	source  *scan.Source
	prober  DurationProber
	workers int
	long    time.Duration
	logger  *slog.Logger
}

// NewCollector returns a Collector. prober may be nil, in which case no
// durations are measured.
func NewCollector(source *scan.Source, prober DurationProber, workers int, long time.Duration, logger *slog.Logger) *Collector {
	if workers <= 0 {
		workers = 1
	}
	return &Collector{
		source:  source,
		prober:  prober,
		workers: workers,
		long:    long,
		logger:  logging.NewComponentLogger(logger, "stats"),
	}
}

type fileStat struct {
	path     string
	duration time.Duration
	probed   bool
	marked   bool
	language string
}

// Collect scans root and measures every audio file under it.
func (c *Collector) Collect(ctx context.Context, root string) (Report, error) {
	files, unreadable, err := c.source.AudioFiles(ctx, root)
	if err != nil {
		return Report{}, err
	}
	report := Report{Root: root, Files: len(files), Unreadable: unreadable}

	jobs := make(chan string)
	results := make(chan fileStat, len(files))
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- c.inspect(ctx, path)
			}
		}()
	}
feed:
	for _, path := range files {
		select {
		case jobs <- path:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	langs := make(map[string]int)
	for st := range results {
		if st.marked {
			report.Marked++
			if st.language != "" {
				langs[st.language]++
			}
		}
		if c.prober != nil && !st.probed {
			report.ProbeErrors++
			continue
		}
		report.TotalDuration += st.duration
		if st.marked {
			report.MarkedDuration += st.duration
		}
		if c.long > 0 && st.duration > c.long {
			report.LongFiles = append(report.LongFiles, LongFile{Path: st.path, Duration: st.duration})
		}
	}
	sort.Slice(report.LongFiles, func(i, j int) bool {
		if report.LongFiles[i].Duration != report.LongFiles[j].Duration {
			return report.LongFiles[i].Duration > report.LongFiles[j].Duration
		}
		return report.LongFiles[i].Path < report.LongFiles[j].Path
	})
	report.Languages = histogram(langs)

	c.logger.Debug("corpus statistics collected",
		logging.String("root", root),
		logging.Int("files", report.Files),
		logging.Int("marked", report.Marked),
		logging.Int("probe_errors", report.ProbeErrors),
	)
	return report, nil
}

func (c *Collector) inspect(ctx context.Context, path string) fileStat {
	st := fileStat{path: path}
	ext := c.source.MarkerExtension()
	if marker.Exists(path, ext) {
		st.marked = true
		st.language = markerLanguage(marker.Path(path, ext))
	}
	if c.prober == nil {
		return st
	}
	d, err := c.prober.Duration(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Debug("duration probe failed", logging.String(logging.FieldPath, path), logging.Error(err))
		}
		return st
	}
	st.duration = d
	st.probed = true
	return st
}

// markerLanguage reads the detected language from a whisperx JSON result.
// Unreadable or foreign markers yield "".
func markerLanguage(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var payload struct {
		Language string `json:"language"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Language
}

func histogram(counts map[string]int) []LanguageCount {
	out := make([]LanguageCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, LanguageCount{Code: code, Name: LanguageName(code), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// LanguageName returns the English display name for a BCP 47 code, or the
// code itself when it cannot be parsed.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

var printer = message.NewPrinter(language.English)

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatHours renders d as fractional hours with thousands separators.
func FormatHours(d time.Duration) string {
	return printer.Sprintf("%.1f h", d.Hours())
}
