// Package config provides configuration loading and validation for botsweep.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [logging]: Logging level, format, and output
//   - [database]: Session table location and column names
//   - [session]: Session lifetime and serialization handler
//   - [filter]: Bot user agent fragments (inline and/or file)
//   - [sweep]: Batch size and per-sweep timeout
//   - [schedule]: Cron schedule for serve mode
//   - [metrics]: Prometheus endpoint for serve mode
//
// Environment variables:
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax.
// For example: dsn = "${BOTSWEEP_DSN:file:sessions.db}"
package config

// Config represents the main application configuration.
type Config struct {
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
	Database DatabaseConfig `toml:"database" yaml:"database"`
	Session  SessionConfig  `toml:"session" yaml:"session"`
	Filter   FilterConfig   `toml:"filter" yaml:"filter"`
	Sweep    SweepConfig    `toml:"sweep" yaml:"sweep"`
	Schedule ScheduleConfig `toml:"schedule" yaml:"schedule"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	Output string `toml:"output" yaml:"output"`
}

// DatabaseConfig описывает таблицу сессий
type DatabaseConfig struct {
	Driver          string `toml:"driver" yaml:"driver"` // mysql | sqlite | postgres
	DSN             string `toml:"dsn" yaml:"dsn"`
	Table           string `toml:"table" yaml:"table"`
	IDColumn        string `toml:"id_column" yaml:"id_column"`
	ExpiresColumn   string `toml:"expires_column" yaml:"expires_column"`
	DataColumn      string `toml:"data_column" yaml:"data_column"`
	ConnectAttempts int    `toml:"connect_attempts" yaml:"connect_attempts"`
	CreateSchema    bool   `toml:"create_schema" yaml:"create_schema"` // sqlite only
}

// SessionConfig представляет параметры сессий
type SessionConfig struct {
	LifetimeSeconds  int64  `toml:"lifetime_seconds" yaml:"lifetime_seconds"`
	BotsCleanupDelta int64  `toml:"bots_cleanup_delta" yaml:"bots_cleanup_delta"`
	SerializeHandler string `toml:"serialize_handler" yaml:"serialize_handler"` // php | php_serialize
}

// FilterConfig представляет список фрагментов user agent ботов
type FilterConfig struct {
	Lines []string `toml:"lines" yaml:"lines"`
	File  string   `toml:"file" yaml:"file"`
	Watch bool     `toml:"watch" yaml:"watch"`

	// fileLines holds the fragments read from File at load time.
	fileLines []string
}

// SweepConfig представляет параметры одного прохода
type SweepConfig struct {
	BatchLimit     int `toml:"batch_limit" yaml:"batch_limit"`
	TimeoutSeconds int `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

// ScheduleConfig представляет расписание для режима serve
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Spec    string `toml:"spec" yaml:"spec"`
}

// MetricsConfig представляет конфигурацию Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Listen    string `toml:"listen" yaml:"listen"`
	Namespace string `toml:"namespace" yaml:"namespace"`
}
