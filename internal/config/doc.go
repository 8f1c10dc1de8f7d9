// Package config holds the server preferences.
//
// Preferences are read from a TOML file, overlaid on defaults, and then
// overridden by BUILDSYNC_* environment variables. A Store keeps the
// current value, persists changes back to the file and reloads it when it
// changes on disk.
//
// Example configuration:
//
//	[build]
//	update_configuration = "interactive"   # automatic | interactive | disabled
//
//	[importers]
//	scripts = ["~/.config/buildsync/importers"]
//	disabled = ["descriptor"]
//
//	[update]
//	workers = 4
//
//	[watch]
//	enabled = true
//	ignore = ["target/", "*.class"]
//	debounce = "200ms"
//
//	[log]
//	level = "info"
package config
