package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the metricd daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr               string   `json:"addr" yaml:"addr" toml:"addr"`
	RunRoot            string   `json:"run_root" yaml:"run_root" toml:"run_root"`
	CacheCapacity      int      `json:"cache_capacity" yaml:"cache_capacity" toml:"cache_capacity"`
	FinishGraceSeconds float64  `json:"finish_grace_seconds" yaml:"finish_grace_seconds" toml:"finish_grace_seconds"`
	DetachGraceSeconds float64  `json:"detach_grace_seconds" yaml:"detach_grace_seconds" toml:"detach_grace_seconds"`
	LogLevel           string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	AllowedOrigins     []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
