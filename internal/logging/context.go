package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldPath is the standardized structured logging key for record file paths.
	FieldPath = "path"
	// FieldWorker is the standardized structured logging key for worker indices.
	FieldWorker = "worker"
	// FieldRunID is the standardized structured logging key for pipeline run identifiers.
	FieldRunID = "run_id"
)

type contextKey int

const (
	pathKey contextKey = iota
	workerKey
	runIDKey
)

// ContextWithPath attaches the record file path being processed.
func ContextWithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathKey, path)
}

// ContextWithWorker attaches the worker index owning the current unit of work.
func ContextWithWorker(ctx context.Context, worker int) context.Context {
	return context.WithValue(ctx, workerKey, worker)
}

// ContextWithRunID attaches the pipeline run identifier.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, slog.String(FieldRunID, runID))
	}
	if worker, ok := ctx.Value(workerKey).(int); ok {
		fields = append(fields, slog.Int(FieldWorker, worker))
	}
	if path, ok := ctx.Value(pathKey).(string); ok && path != "" {
		fields = append(fields, slog.String(FieldPath, path))
	}
	return fields
}
