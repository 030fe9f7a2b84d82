// Package config loads and saves gemtrail settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all gemtrail configuration.
type Config struct {
	General GeneralConfig `toml:"general"`
	Viewer  ViewerConfig  `toml:"viewer"`
}

// GeneralConfig holds the processing defaults.
type GeneralConfig struct {
	LogFile          string `toml:"log_file"`
	OutputDir        string `toml:"output_dir"`
	RetainLog        bool   `toml:"retain_log"`
	DecodeJSONFields bool   `toml:"decode_json_fields"`
	LockTimeoutSecs  int    `toml:"lock_timeout_secs"`
}

// ViewerConfig holds the viewer server settings.
type ViewerConfig struct {
	Addr string `toml:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			LogFile:          filepath.Join(".logging", "log.jsonl"),
			OutputDir:        "requests",
			DecodeJSONFields: true,
			LockTimeoutSecs:  10,
		},
		Viewer: ViewerConfig{
			Addr: "127.0.0.1:8700",
		},
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gemtrail")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "gemtrail")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}
