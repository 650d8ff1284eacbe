package logging

import (
	"context"
	"log/slog"

	"whisx/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldGPU is the structured logging key for the GPU a worker is bound to.
	FieldGPU = "gpu"
	// FieldPath is the structured logging key for the audio file being handled.
	FieldPath = "path"
	// FieldGeneration is the structured logging key for the supervisor generation.
	FieldGeneration = "generation"
	// FieldRunID is the structured logging key for the run identifier.
	FieldRunID = "run_id"
	// FieldAttempt is the 1-based attempt number for a file.
	FieldAttempt = "attempt"
	// FieldEventType is a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step for an operator.
	FieldErrorHint = "error_hint"
	// FieldErrorKind classifies a failure (see services.Kind).
	FieldErrorKind = "error_kind"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if gen, ok := services.GenerationFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldGeneration, gen))
	}
	if gpu, ok := services.GPUFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldGPU, gpu))
	}
	if path, ok := services.PathFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPath, path))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
