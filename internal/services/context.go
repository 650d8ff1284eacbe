package services

import "context"

type contextKey string

const (
	gpuKey        contextKey = "gpu"
	pathKey       contextKey = "path"
	generationKey contextKey = "generation"
	runIDKey      contextKey = "run_id"
)

// WithGPU annotates context with the GPU identity a worker is bound to.
func WithGPU(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, gpuKey, id)
}

// GPUFromContext extracts the GPU identity if present.
func GPUFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(gpuKey).(int)
	return v, ok
}

// WithPath annotates context with the input path being processed.
func WithPath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, pathKey, path)
}

// PathFromContext returns the input path if present.
func PathFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pathKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithGeneration annotates context with the supervisor generation number.
func WithGeneration(ctx context.Context, generation int) context.Context {
	if generation <= 0 {
		return ctx
	}
	return context.WithValue(ctx, generationKey, generation)
}

// GenerationFromContext returns the supervisor generation if present.
func GenerationFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(generationKey).(int)
	return v, ok
}

// WithRunID annotates context with the run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run correlation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
