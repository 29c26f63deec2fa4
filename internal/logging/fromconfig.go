package logging

import (
	"log/slog"
	"path/filepath"
	"strings"

	"scrub/internal/config"
)

// NewFromConfig creates a logger using application config defaults. When the
// link-log directory is configured, a run log is written alongside the link
// log so every run against a dataset leaves an audit trail in one place.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}

	outputPaths := []string{"stderr"}
	if strings.TrimSpace(cfg.Paths.LinkLogDir) != "" {
		outputPaths = append(outputPaths, filepath.Join(cfg.Paths.LinkLogDir, "scrub.log"))
	}

	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputPaths,
	})
}
