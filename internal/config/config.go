package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InitConfig reads the config file and environment variables. Environment
// handling is set up before the config file is read so env vars can
// influence where the file is looked for. A missing config file is fine;
// a malformed one is an error.
func InitConfig() error {
	// Load .env first if present; absence is not an error.
	_ = godotenv.Load()

	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		rootDir := viper.GetString("project.rootDir")
		if rootDir == "" {
			rootDir = DefaultRootDir
		}
		if _, err := os.Stat(rootDir); !os.IsNotExist(err) {
			// Project-local config wins over global.
			viper.AddConfigPath(rootDir)
			viper.SetConfigName(ConfigName)
		} else {
			if home, err := os.UserHomeDir(); err == nil {
				viper.AddConfigPath(home)
			}
			viper.AddConfigPath(".")
			viper.SetConfigName(ConfigName)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	setDefaults()
	return nil
}

func setDefaults() {
	viper.SetDefault("verbose", false)
	viper.SetDefault("log.level", DefaultLogLevel)

	viper.SetDefault("project.rootDir", DefaultRootDir)
	viper.SetDefault("project.sessionsDir", DefaultSessionsDir)

	viper.SetDefault("store.backend", DefaultBackend)
	viper.SetDefault("store.dataFile", DefaultDataFile)
	viper.SetDefault("store.dataFormat", DefaultDataFormat)
	viper.SetDefault("store.dbFile", DefaultDBFile)
}

// RootDir returns the per-project state directory.
func RootDir() string {
	return viper.GetString("project.rootDir")
}

// SessionsDir returns the absolute-ish sessions directory below RootDir.
func SessionsDir() string {
	return filepath.Join(RootDir(), viper.GetString("project.sessionsDir"))
}

// StoreBackend returns the configured persistence backend name.
func StoreBackend() string {
	return viper.GetString("store.backend")
}

// StoreConfig returns the settings map handed to TaskStore.Initialize for
// the configured backend.
func StoreConfig() map[string]string {
	switch StoreBackend() {
	case BackendSQLite:
		return map[string]string{
			"dbPath": filepath.Join(RootDir(), viper.GetString("store.dbFile")),
		}
	default:
		return map[string]string{
			"dataFile":       filepath.Join(RootDir(), viper.GetString("store.dataFile")),
			"dataFileFormat": viper.GetString("store.dataFormat"),
		}
	}
}

// LogLevel returns the configured slog level name.
func LogLevel() string {
	return viper.GetString("log.level")
}

// Verbose reports whether verbose output is requested.
func Verbose() bool {
	return viper.GetBool("verbose")
}
