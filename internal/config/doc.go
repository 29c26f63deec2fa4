// Package config loads, validates, and normalizes scrub's TOML configuration.
//
// Configuration combines a config file with command-line overrides: Load
// returns defaults merged with the file, the CLI applies flag values, then
// Normalize and Validate run once the final values are known. Paths are
// expanded (~, relative) to absolute form before any component sees them.
package config
