// Package testsupport provides shared builders for package tests.
package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"scrub/internal/config"
	"scrub/internal/linklog"
	"scrub/internal/logging"
	"scrub/internal/record"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.InputDir = filepath.Join(base, "input")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LinkLogDir = filepath.Join(base, "linklog")
	cfg.Pipeline.SpaceBudgetGB = 1
	cfg.Pipeline.Workers = 2

	if err := os.MkdirAll(cfg.Paths.InputDir, 0o755); err != nil {
		t.Fatalf("create input dir: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkers overrides the worker count on the test config.
func WithWorkers(workers int) ConfigOption {
	return func(c *config.Config) {
		c.Pipeline.Workers = workers
	}
}

// WithSpaceBudgetBytes sets an exact byte budget on the test config.
func WithSpaceBudgetBytes(bytes int64) ConfigOption {
	return func(c *config.Config) {
		c.Pipeline.SpaceBudgetGB = float64(bytes) / 1e9
	}
}

// WithGrouping overrides the output grouping on the test config.
func WithGrouping(grouping string) ConfigOption {
	return func(c *config.Config) {
		c.Pipeline.Grouping = grouping
	}
}

// MustOpenLog opens the link log under the test config and closes it when the
// test finishes.
func MustOpenLog(t testing.TB, cfg *config.Config) *linklog.Log {
	t.Helper()
	log, err := linklog.Open(cfg.Paths.LinkLogDir, logging.NewNop())
	if err != nil {
		t.Fatalf("open link log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

// WriteRecordFile writes tags as a JSON record under dir and returns its path.
func WriteRecordFile(t testing.TB, dir, name string, tags record.Tags) string {
	t.Helper()
	data, err := json.MarshalIndent(tags, "", "  ")
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create record dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		t.Fatalf("write record: %v", err)
	}
	return path
}

// SampleTags returns a complete, valid tag set for tests. Callers mutate the
// returned map to shape scenarios.
func SampleTags() record.Tags {
	return record.Tags{
		record.TagPatientID:         "MRN-12345",
		record.TagAccessionNumber:   "ACC-9",
		record.TagStudyInstanceUID:  "1.2.840.1",
		record.TagSeriesInstanceUID: "1.2.840.1.1",
		record.TagSOPInstanceUID:    "1.2.840.1.1.1",
		record.TagStudyDate:         "20200101",
		record.TagPatientBirthDate:  "19800704",
		record.TagPatientSex:        "F",
		record.TagModality:          "MG",
		record.TagStudyDescription:  "Screening Mammogram",
		record.TagSeriesDescription: "L CC",
		record.TagViewPosition:      "CC",
		record.TagSeriesNumber:      "1",
		record.TagInstanceNumber:    "1",
		record.TagRows:              "3328",
		record.TagColumns:           "2560",
		record.TagBitsAllocated:     "16",
		record.TagBitsStored:        "12",
		record.TagHighBit:           "11",
		record.TagManufacturer:      "ACME Imaging",
		record.TagPixelData:         "cGl4ZWxz",
	}
}
