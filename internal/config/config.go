// Package config loads lucid.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the config file looked for in the working directory.
const DefaultFile = "lucid.toml"

type Config struct {
	Project   Project   `toml:"project"`
	Log       Log       `toml:"log"`
	Resolve   Resolve   `toml:"resolve"`
	Store     Store     `toml:"store"`
	Watch     Watch     `toml:"watch"`
	Telemetry Telemetry `toml:"telemetry"`
}

type Project struct {
	Root       string   `toml:"root"`
	EntryFile  string   `toml:"entry_file"`
	EntryPoint string   `toml:"entry_point"`
	Include    []string `toml:"include"`
	Exclude    []string `toml:"exclude"`
}

type Log struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

type Resolve struct {
	// Unrepresentable is "abort" or "skip".
	Unrepresentable string `toml:"unrepresentable"`
}

type Store struct {
	// Path is the SQLite database runs are saved to. Empty disables
	// persistence.
	Path string `toml:"path"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

type Telemetry struct {
	MetricsFile  string `toml:"metrics_file"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist. Any other error, including a malformed file, is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes TOML text into a validated Config.
func Parse(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Project.Root) == "" {
		cfg.Project.Root = "noir/src/"
	}
	if strings.TrimSpace(cfg.Project.EntryFile) == "" {
		cfg.Project.EntryFile = "main.nr"
	}
	if strings.TrimSpace(cfg.Project.EntryPoint) == "" {
		cfg.Project.EntryPoint = "main"
	}
	if strings.TrimSpace(cfg.Log.File) == "" {
		cfg.Log.File = "lucid_noir.log"
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Resolve.Unrepresentable) == "" {
		cfg.Resolve.Unrepresentable = "abort"
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "lucid"
	}
}

var validLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validate(cfg *Config) error {
	if !strings.HasSuffix(cfg.Project.EntryFile, ".nr") {
		return fmt.Errorf("project.entry_file %q: must be a .nr file", cfg.Project.EntryFile)
	}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("log.level %q: want trace, debug, info, warn or error", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Resolve.Unrepresentable) {
	case "abort", "skip":
	default:
		return fmt.Errorf("resolve.unrepresentable %q: want abort or skip", cfg.Resolve.Unrepresentable)
	}
	return nil
}
