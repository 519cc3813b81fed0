package config

import (
	"flag"
	"time"
)

type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageSQLite StorageType = "sqlite"
)

type Config struct {
	VehiclePath  string
	Port         int
	Storage      StorageType
	SQLitePath   string
	Adapter      string
	CallTimeout  time.Duration
	LogFormat    string
	StreamBuffer int
}

func Parse() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.VehiclePath, "vehicle", "./vehicle.yaml", "Vehicle configuration file")
	flag.IntVar(&cfg.Port, "port", 8000, "Web server port")

	var storageStr string
	flag.StringVar(&storageStr, "storage", "sqlite", "Storage type: memory or sqlite")

	flag.StringVar(&cfg.SQLitePath, "sqlite-path", "./telemetry.db", "SQLite database path")
	flag.StringVar(&cfg.Adapter, "adapter", "sim", "Adapter driver: sim (simulator)")
	flag.DurationVar(&cfg.CallTimeout, "call-timeout", 10*time.Second, "Timeout for bridged operations")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	flag.IntVar(&cfg.StreamBuffer, "stream-buffer", 256, "Per-subscriber sample buffer size")

	flag.Parse()

	cfg.Storage = StorageType(storageStr)
	if cfg.Storage != StorageMemory && cfg.Storage != StorageSQLite {
		cfg.Storage = StorageSQLite
	}

	return cfg
}
