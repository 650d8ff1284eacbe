package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Replay decodes one JSON run log line and hands it to handler as if it had
// just been logged, so the console handler renders it with the same layout a
// live run uses. Lines that are not JSON objects are rejected.
func Replay(ctx context.Context, handler slog.Handler, line string) error {
	record, err := decode(line)
	if err != nil {
		return err
	}
	if !handler.Enabled(ctx, record.Level) {
		return nil
	}
	return handler.Handle(ctx, record)
}

func decode(line string) (slog.Record, error) {
	var fields map[string]any
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return slog.Record{}, fmt.Errorf("decode run log line: %w", err)
	}

	var ts time.Time
	if raw, ok := fields["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			ts = parsed
		}
	}
	msg, _ := fields["msg"].(string)
	record := slog.NewRecord(ts, parseLevel(fields["level"]), msg, 0)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		switch k {
		case "ts", "level", "msg", "source":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		record.AddAttrs(toAttr(k, fields[k]))
	}
	return record, nil
}

func parseLevel(v any) slog.Level {
	s, _ := v.(string)
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func toAttr(key string, v any) slog.Attr {
	switch val := v.(type) {
	case string:
		return slog.String(key, val)
	case bool:
		return slog.Bool(key, val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return slog.Int64(key, i)
		}
		if f, err := val.Float64(); err == nil {
			return slog.Float64(key, f)
		}
		return slog.String(key, val.String())
	default:
		return slog.Any(key, val)
	}
}
