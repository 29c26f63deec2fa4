package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scrub/internal/config"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("no file exists at the explicit path")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Pipeline.Grouping != "study" {
		t.Fatalf("default grouping = %q", cfg.Pipeline.Grouping)
	}
	if cfg.Pipeline.ProgressEvery != 25 {
		t.Fatalf("default progress_every = %d", cfg.Pipeline.ProgressEvery)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
input_dir = "` + dir + `/data"
output_dir = "` + dir + `/out"
link_log_dir = "` + dir + `/linklog"

[pipeline]
workers = 4
space_budget_gb = 2.5
grouping = "Patient"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected the file to be found")
	}
	if cfg.Pipeline.Workers != 4 {
		t.Fatalf("workers = %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.Grouping != "patient" {
		t.Fatalf("grouping should normalize to lowercase, got %q", cfg.Pipeline.Grouping)
	}
	if cfg.SpaceBudgetBytes() != 2_500_000_000 {
		t.Fatalf("SpaceBudgetBytes = %d", cfg.SpaceBudgetBytes())
	}
	if !filepath.IsAbs(cfg.Paths.InputDir) {
		t.Fatalf("input dir should be absolute, got %q", cfg.Paths.InputDir)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[paths\ninput_dir = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *config.Config {
		t.Helper()
		cfg := config.Default()
		cfg.Paths.InputDir = t.TempDir()
		cfg.Pipeline.SpaceBudgetGB = 1
		return &cfg
	}

	if err := valid(t).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
		errHas string
	}{
		{"missing input dir", func(c *config.Config) { c.Paths.InputDir = "" }, "input_dir"},
		{"absent input dir", func(c *config.Config) { c.Paths.InputDir = "/nonexistent/scrub-in" }, "input_dir"},
		{"missing output dir", func(c *config.Config) { c.Paths.OutputDir = "" }, "output_dir"},
		{"missing link log dir", func(c *config.Config) { c.Paths.LinkLogDir = "" }, "link_log_dir"},
		{"zero budget", func(c *config.Config) { c.Pipeline.SpaceBudgetGB = 0 }, "space_budget_gb"},
		{"negative workers", func(c *config.Config) { c.Pipeline.Workers = -1 }, "workers"},
		{"bad grouping", func(c *config.Config) { c.Pipeline.Grouping = "episode" }, "grouping"},
		{"zero progress interval", func(c *config.Config) { c.Pipeline.ProgressEvery = 0 }, "progress_every"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.errHas) {
				t.Fatalf("error %q should mention %q", err, tc.errHas)
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "out")
	cfg.Paths.LinkLogDir = filepath.Join(base, "linklog", "nested")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.LinkLogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %q missing: %v", dir, err)
		}
	}
}

func TestSampleConfigParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config must parse: %v", err)
	}
}
