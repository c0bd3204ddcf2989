package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	if err := InitConfig(); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if got := StoreBackend(); got != BackendFile {
		t.Errorf("StoreBackend() = %s, want %s", got, BackendFile)
	}
	if got := LogLevel(); got != DefaultLogLevel {
		t.Errorf("LogLevel() = %s, want %s", got, DefaultLogLevel)
	}
	cfg := StoreConfig()
	if cfg["dataFileFormat"] != DefaultDataFormat {
		t.Errorf("dataFileFormat = %s, want %s", cfg["dataFileFormat"], DefaultDataFormat)
	}
}

func TestStoreConfig_SQLiteBackend(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	if err := InitConfig(); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	viper.Set("store.backend", BackendSQLite)

	cfg := StoreConfig()
	if cfg["dbPath"] == "" {
		t.Error("sqlite backend should produce a dbPath entry")
	}
	if _, ok := cfg["dataFile"]; ok {
		t.Error("sqlite backend should not carry file-backend keys")
	}
}

func TestOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	if err := InitConfig(); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	viper.Set("store.dataFormat", "yaml")

	if got := StoreConfig()["dataFileFormat"]; got != "yaml" {
		t.Errorf("dataFileFormat = %s, want yaml", got)
	}
}
