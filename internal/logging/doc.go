// Package logging builds the slog loggers used across the pipeline and
// standardizes the structured field names stages attach to their records.
//
// Loggers are constructed once from configuration (console or JSON format,
// optional run-log file under the link-log directory) and passed explicitly to
// collaborators. ContextWith* helpers carry per-file and per-worker identity
// through context so deeply nested code logs consistent fields.
package logging
