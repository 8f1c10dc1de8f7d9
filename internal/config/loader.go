package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables overriding the file.
const (
	EnvUpdateConfiguration = "BUILDSYNC_UPDATE_CONFIGURATION"
	EnvLogLevel            = "BUILDSYNC_LOG_LEVEL"
	EnvUpdateWorkers       = "BUILDSYNC_UPDATE_WORKERS"
)

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads preferences from the TOML file at path over the defaults and
// applies environment overrides. A missing file yields the defaults.
func Load(path string) (Preferences, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup LookupFunc) (Preferences, error) {
	prefs := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Preferences{}, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := Parse(path, data, &prefs); err != nil {
				return Preferences{}, err
			}
		}
	}
	ApplyEnv(&prefs, lookup)
	return prefs, nil
}

// Parse decodes TOML data into prefs. Keys absent from data keep their
// current values.
func Parse(source string, data []byte, prefs *Preferences) error {
	if err := toml.Unmarshal(data, prefs); err != nil {
		perr := &ParseError{Path: source, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
			perr.Key = strings.Join(derr.Key(), ".")
		}
		return perr
	}
	return nil
}

// ApplyEnv overrides prefs from the environment. Empty values are ignored.
func ApplyEnv(prefs *Preferences, lookup LookupFunc) {
	if lookup == nil {
		return
	}
	if v, ok := lookup(EnvUpdateConfiguration); ok && v != "" {
		policy, _ := ParseUpdatePolicy(v)
		prefs.Build.UpdateConfiguration = policy
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		prefs.Log.Level = v
	}
	if v, ok := lookup(EnvUpdateWorkers); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			prefs.Update.Workers = n
		}
	}
}

// Marshal encodes prefs as TOML.
func Marshal(prefs Preferences) ([]byte, error) {
	return toml.Marshal(prefs)
}
