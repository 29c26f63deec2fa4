package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var validGroupings = map[string]struct{}{
	"study":   {},
	"patient": {},
	"none":    {},
}

// Validate ensures the configuration is usable for a pipeline run.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.InputDir) == "" {
		return errors.New("paths.input_dir must be set")
	}
	info, err := os.Stat(c.Paths.InputDir)
	if err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("paths.input_dir %q is not a directory", c.Paths.InputDir)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LinkLogDir) == "" {
		return errors.New("paths.link_log_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 0 {
		return errors.New("pipeline.workers must not be negative")
	}
	if c.Pipeline.SpaceBudgetGB <= 0 {
		return errors.New("pipeline.space_budget_gb must be greater than zero")
	}
	if _, ok := validGroupings[c.Pipeline.Grouping]; !ok {
		return fmt.Errorf("pipeline.grouping %q is invalid (expected study, patient, or none)", c.Pipeline.Grouping)
	}
	if c.Pipeline.ProgressEvery <= 0 {
		return errors.New("pipeline.progress_every must be greater than zero")
	}
	return nil
}
