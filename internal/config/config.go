// Package config provides the configuration schema, loader, detector
// registry and file watcher for personaforge.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// VisionProvider selects where image tags come from.
type VisionProvider string

const (
	// VisionSimulate draws random known tags and ignores the image.
	VisionSimulate VisionProvider = "simulate"

	// VisionOpenAI asks an OpenAI-compatible multimodal model.
	VisionOpenAI VisionProvider = "openai"
)

// IsValid reports whether p is a recognised vision provider.
func (p VisionProvider) IsValid() bool {
	return p == VisionSimulate || p == VisionOpenAI
}

// Config is the root configuration. Load it with [Load] or
// [LoadFromReader]; [Default] returns the configuration used when no file
// is given.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Rules     RulesConfig     `yaml:"rules"`
	Vision    VisionConfig    `yaml:"vision"`
	Batch     BatchConfig     `yaml:"batch"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the HTTP API address (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr" env:"PERSONAFORGE_LISTEN_ADDR"`

	LogLevel LogLevel `yaml:"log_level" env:"PERSONAFORGE_LOG_LEVEL"`
}

// RulesConfig locates the rule source.
type RulesConfig struct {
	// Path is a JSON or YAML rule file. Empty uses the built-in rules.
	Path string `yaml:"path" env:"PERSONAFORGE_RULES_PATH"`

	// Watch reloads the rule file when it changes.
	Watch bool `yaml:"watch"`

	// WatchInterval is the polling period for Watch. Default: 5s.
	WatchInterval time.Duration `yaml:"watch_interval"`

	// Suggest enables nearest-tag suggestions for unmatched tags.
	Suggest bool `yaml:"suggest"`

	// StableTieBreak orders equal-priority category rivals by name instead
	// of by first encounter.
	StableTieBreak bool `yaml:"stable_tie_break"`
}

// VisionConfig configures the tag detector.
type VisionConfig struct {
	Provider VisionProvider `yaml:"provider"`
	Model    string         `yaml:"model"`
	APIKey   string         `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL  string         `yaml:"base_url"`
	Timeout  time.Duration  `yaml:"timeout"`

	// Seed fixes the simulator's random sequence. Zero seeds from the clock.
	Seed uint64 `yaml:"seed"`

	// FallbackToSimulation puts the simulator behind the primary detector.
	FallbackToSimulation bool `yaml:"fallback_to_simulation"`
}

// BatchConfig configures the batch driver.
type BatchConfig struct {
	InputDir  string   `yaml:"input_dir"`
	OutputDir string   `yaml:"output_dir"`
	Workers   int      `yaml:"workers"`
	Patterns  []string `yaml:"patterns"`
}

// ArchiveConfig selects the persona archive. An empty DSN keeps archived
// personas in memory.
type ArchiveConfig struct {
	PostgresDSN string `yaml:"postgres_dsn" env:"PERSONAFORGE_POSTGRES_DSN"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// Metrics exposes /metrics on the HTTP API.
	Metrics bool `yaml:"metrics"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Telemetry: TelemetryConfig{Metrics: true}}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Rules.WatchInterval == 0 {
		cfg.Rules.WatchInterval = 5 * time.Second
	}
	if cfg.Vision.Provider == "" {
		cfg.Vision.Provider = VisionSimulate
	}
	if cfg.Vision.Timeout == 0 {
		cfg.Vision.Timeout = 60 * time.Second
	}
	if cfg.Batch.InputDir == "" {
		cfg.Batch.InputDir = "./input_images"
	}
	if cfg.Batch.OutputDir == "" {
		cfg.Batch.OutputDir = "./output_mods"
	}
	if cfg.Batch.Workers == 0 {
		cfg.Batch.Workers = 4
	}
	if len(cfg.Batch.Patterns) == 0 {
		cfg.Batch.Patterns = []string{"*.png"}
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "personaforge"
	}
}
