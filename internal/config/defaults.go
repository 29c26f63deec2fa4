package config

const (
	defaultOutputDir     = "./anondata"
	defaultLinkLogDir    = "./linklog"
	defaultGrouping      = "study"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultProgressEvery = 25
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:  defaultOutputDir,
			LinkLogDir: defaultLinkLogDir,
		},
		Pipeline: Pipeline{
			Workers:       0,
			SpaceBudgetGB: 0,
			Grouping:      defaultGrouping,
			ProgressEvery: defaultProgressEvery,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
