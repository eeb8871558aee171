package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Stream StreamConfig `toml:"stream"`
	Graph  GraphConfig  `toml:"graph"`
	UI     UIConfig     `toml:"ui"`
	Path   string       `toml:"-"`
}

type StreamConfig struct {
	URL           string `toml:"url"`
	BackoffBaseMS int    `toml:"backoff_base_ms"`
	BackoffCapMS  int    `toml:"backoff_cap_ms"`
	GraceDelayMS  int    `toml:"grace_delay_ms"`
}

type GraphConfig struct {
	RepulsionHub    float64 `toml:"repulsion_hub"`
	RepulsionLeaf   float64 `toml:"repulsion_leaf"`
	SpringLength    float64 `toml:"spring_length"`
	SpringStrength  float64 `toml:"spring_strength"`
	CenterStrength  float64 `toml:"center_strength"`
	AlphaFloor      float64 `toml:"alpha_floor"`
	JitterAmplitude float64 `toml:"jitter_amplitude"`
}

type UIConfig struct {
	ReducedMotion bool `toml:"reduced_motion"`
	TickMS        int  `toml:"tick_ms"`
}

// Load reads the monitor configuration. A missing file is not an error when
// using the default path: every setting has a working default and most
// installs never write one.
func Load(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) && path == "" {
			return Config{Path: resolved}, nil
		}
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	cfg.Path = resolved
	return cfg, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aether/monitor.toml"
	}
	return filepath.Join(home, ".aether", "monitor.toml")
}
