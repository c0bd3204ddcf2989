// Package config provides centralized configuration for TrackWing.
// All default values are defined here to keep a single source of truth.
package config

const (
	// ConfigName is the config file base name (".trackwing" ->
	// .trackwing.yaml).
	ConfigName = ".trackwing"

	// EnvPrefix namespaces environment overrides, e.g. TRACKWING_VERBOSE.
	EnvPrefix = "TRACKWING"

	// DefaultRootDir is the per-project state directory.
	DefaultRootDir = ".trackwing"
)

// Store backend constants.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	DefaultBackend    = BackendFile
	DefaultDataFile   = "tasks.json"
	DefaultDataFormat = "json"
	DefaultDBFile     = "tasks.db"
)

// DefaultSessionsDir is where serialized tracking sessions live, relative
// to the root directory.
const DefaultSessionsDir = "sessions"

// DefaultLogLevel is the slog level used when nothing overrides it.
const DefaultLogLevel = "info"
