package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result. Unknown keys are
// rejected. An empty document yields [Default] values.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the PERSONAFORGE_* and OPENAI_API_KEY
// environment variables. Unset variables leave the file value alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Rules.WatchInterval < 0 {
		errs = append(errs, errors.New("rules.watch_interval must not be negative"))
	}
	if cfg.Rules.Watch && cfg.Rules.Path == "" {
		errs = append(errs, errors.New("rules.watch requires rules.path"))
	}
	if cfg.Rules.Path != "" {
		switch filepath.Ext(cfg.Rules.Path) {
		case ".json", ".yaml", ".yml":
		default:
			errs = append(errs, fmt.Errorf("rules.path %q must end in .json, .yaml or .yml", cfg.Rules.Path))
		}
	}

	if cfg.Vision.Provider != "" && !cfg.Vision.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("vision.provider %q is invalid; valid values: simulate, openai", cfg.Vision.Provider))
	}
	if cfg.Vision.Provider == VisionOpenAI && cfg.Vision.APIKey == "" {
		errs = append(errs, errors.New("vision.api_key is required for provider openai (or set OPENAI_API_KEY)"))
	}
	if cfg.Vision.Timeout < 0 {
		errs = append(errs, errors.New("vision.timeout must not be negative"))
	}

	if cfg.Batch.Workers < 0 {
		errs = append(errs, fmt.Errorf("batch.workers %d must not be negative", cfg.Batch.Workers))
	}
	for i, p := range cfg.Batch.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("batch.patterns[%d] %q: %w", i, p, err))
		}
	}

	return errors.Join(errs...)
}
