package durationcache

import (
	"context"
	"time"

	"whisx/internal/media/ffprobe"
)

// Prober measures durations with ffprobe, consulting the cache first when one
// is attached.
type Prober struct {
	cache  *Cache
	binary string
}

// NewProber returns a Prober. cache may be nil.
func NewProber(cache *Cache, ffprobeBinary string) *Prober {
	return &Prober{cache: cache, binary: ffprobeBinary}
}

// Duration returns the duration of the audio file at path.
func (p *Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	probe := func(ctx context.Context, path string) (time.Duration, error) {
		return ffprobe.Duration(ctx, p.binary, path)
	}
	if p.cache == nil {
		return probe(ctx, path)
	}
	return p.cache.Duration(ctx, path, probe)
}
