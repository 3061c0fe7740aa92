package config

import "slices"

// ConfigDiff describes what changed between two configs. Only settings that
// can be applied without a restart are tracked individually; RestartNeeded
// covers the rest.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RulesChanged is set when the rule file path changed; the caller should
	// replace the rule table with the new file and watch it instead.
	RulesChanged bool
	NewRulesPath string

	// SuggestChanged and TieBreakChanged require a new resolver.
	SuggestChanged  bool
	TieBreakChanged bool

	// RestartNeeded lists changed sections that are only read at startup.
	RestartNeeded []string
}

// Changed reports whether anything at all differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RulesChanged || d.SuggestChanged || d.TieBreakChanged || len(d.RestartNeeded) > 0
}

// Diff compares old and new configs.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Rules.Path != new.Rules.Path {
		d.RulesChanged = true
		d.NewRulesPath = new.Rules.Path
	}
	d.SuggestChanged = old.Rules.Suggest != new.Rules.Suggest
	d.TieBreakChanged = old.Rules.StableTieBreak != new.Rules.StableTieBreak

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "server.listen_addr")
	}
	if old.Rules.Watch != new.Rules.Watch || old.Rules.WatchInterval != new.Rules.WatchInterval {
		d.RestartNeeded = append(d.RestartNeeded, "rules.watch")
	}
	if old.Vision != new.Vision {
		d.RestartNeeded = append(d.RestartNeeded, "vision")
	}
	if !batchEqual(old.Batch, new.Batch) {
		d.RestartNeeded = append(d.RestartNeeded, "batch")
	}
	if old.Archive != new.Archive {
		d.RestartNeeded = append(d.RestartNeeded, "archive")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartNeeded = append(d.RestartNeeded, "telemetry")
	}
	return d
}

func batchEqual(a, b BatchConfig) bool {
	return a.InputDir == b.InputDir && a.OutputDir == b.OutputDir &&
		a.Workers == b.Workers && slices.Equal(a.Patterns, b.Patterns)
}
