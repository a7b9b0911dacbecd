package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; anything else
// (listen address, provider wiring, HIS credentials) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SafetyChanged is true when any threshold, override, or keyword list
	// differs.
	SafetyChanged bool

	// AliasesChanged is true when the department alias map differs.
	AliasesChanged bool

	// RBACChanged is true when the endpoint allow/deny overrides differ.
	RBACChanged bool
}

// Any reports whether the diff contains at least one hot-reloadable change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.SafetyChanged || d.AliasesChanged || d.RBACChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !safetyEqual(old.Safety, new.Safety) {
		d.SafetyChanged = true
	}

	if !maps.Equal(old.Hospital.DepartmentAliases, new.Hospital.DepartmentAliases) {
		d.AliasesChanged = true
	}

	if !stringsEqual(old.HIS.AllowedEndpoints, new.HIS.AllowedEndpoints) ||
		!stringsEqual(old.HIS.DeniedEndpoints, new.HIS.DeniedEndpoints) {
		d.RBACChanged = true
	}

	return d
}

func safetyEqual(a, b SafetyConfig) bool {
	if a.HighConfidence != b.HighConfidence ||
		a.MediumConfidence != b.MediumConfidence ||
		a.LowConfidence != b.LowConfidence {
		return false
	}
	if !maps.Equal(a.IntentOverrides, b.IntentOverrides) {
		return false
	}
	return stringsEqual(a.ExtraEmergencyKeywords, b.ExtraEmergencyKeywords) &&
		stringsEqual(a.ExtraHandoffKeywords, b.ExtraHandoffKeywords)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
