package config

import (
	"fmt"
	"time"
)

// Preferences is the complete server configuration.
type Preferences struct {
	Build     BuildSection     `toml:"build"`
	Importers ImportersSection `toml:"importers"`
	Update    UpdateSection    `toml:"update"`
	Watch     WatchSection     `toml:"watch"`
	Log       LogSection       `toml:"log"`
}

// BuildSection configures build file handling.
type BuildSection struct {
	// UpdateConfiguration is the policy applied when a build file changes.
	UpdateConfiguration UpdatePolicy `toml:"update_configuration"`
}

// ImportersSection configures importers.
type ImportersSection struct {
	// Scripts are directories searched for Lua importers.
	Scripts []string `toml:"scripts"`

	// Disabled lists importer IDs that are not registered.
	Disabled []string `toml:"disabled"`

	// ScriptTimeout bounds each call into a Lua importer.
	ScriptTimeout Duration `toml:"script_timeout"`
}

// UpdateSection configures background configuration updates.
type UpdateSection struct {
	// Workers bounds concurrently updating projects; 0 means unbounded.
	Workers int `toml:"workers"`
}

// WatchSection configures the file watcher.
type WatchSection struct {
	Enabled  bool     `toml:"enabled"`
	Ignore   []string `toml:"ignore"`
	Debounce Duration `toml:"debounce"`
}

// LogSection configures logging.
type LogSection struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as a string such as "150ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the default preferences.
func Default() Preferences {
	return Preferences{
		Build:     BuildSection{UpdateConfiguration: PolicyInteractive},
		Importers: ImportersSection{ScriptTimeout: Duration{5 * time.Second}},
		Watch:     WatchSection{Debounce: Duration{100 * time.Millisecond}},
		Log:       LogSection{Level: "info"},
	}
}

// IsImporterDisabled reports whether the importer ID is disabled.
func (p Preferences) IsImporterDisabled(id string) bool {
	for _, d := range p.Importers.Disabled {
		if d == id {
			return true
		}
	}
	return false
}

// clone returns a deep copy.
func (p Preferences) clone() Preferences {
	out := p
	out.Importers.Scripts = append([]string(nil), p.Importers.Scripts...)
	out.Importers.Disabled = append([]string(nil), p.Importers.Disabled...)
	out.Watch.Ignore = append([]string(nil), p.Watch.Ignore...)
	return out
}
