package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/aatumaykin/botsweep/internal/cleanup"
	"github.com/aatumaykin/botsweep/internal/filter"
	"github.com/aatumaykin/botsweep/internal/session"
	"github.com/aatumaykin/botsweep/internal/store/sqlstore"
)

// Load загружает конфигурацию из TOML файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Относительный путь к файлу фильтра считается от каталога конфигурации
	if cfg.Filter.File != "" && !filepath.IsAbs(cfg.Filter.File) {
		cfg.Filter.File = filepath.Join(filepath.Dir(path), cfg.Filter.File)
	}

	if err := cfg.loadFilterFile(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse разбирает конфигурацию из TOML без чтения внешних файлов
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := expandEnvVars(&cfg); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	return &cfg, nil
}

func (c *Config) loadFilterFile() error {
	if c.Filter.File == "" {
		return nil
	}
	lines, err := filter.ReadLines(c.Filter.File)
	if err != nil {
		return err
	}
	c.Filter.fileLines = lines
	return nil
}

// Validate проверяет валидность конфигурации
func (c *Config) Validate() []error {
	var errs []error

	// Проверка logging config
	if c.Logging.Level == "" {
		errs = append(errs, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}

	if c.Logging.Format == "" {
		errs = append(errs, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errs = append(errs, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Logging.Output == "" {
		errs = append(errs, fmt.Errorf("logging.output is required"))
	}

	// Проверка database
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required"))
	}
	if err := c.Store().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Database.ConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("database.connect_attempts must be >= 1 (got %d)", c.Database.ConnectAttempts))
	}
	if c.Database.CreateSchema && c.Database.Driver != sqlstore.DriverSQLite {
		errs = append(errs, fmt.Errorf("database.create_schema is only supported for sqlite"))
	}

	// Проверка session
	if _, err := session.ParseHandler(c.Session.SerializeHandler); err != nil {
		errs = append(errs, fmt.Errorf("invalid session.serialize_handler: %w", err))
	}
	if c.Session.LifetimeSeconds < 0 {
		errs = append(errs, fmt.Errorf("session.lifetime_seconds cannot be negative (got %d)", c.Session.LifetimeSeconds))
	}

	// Проверка фильтра: пустой фильтр допустим, невалидный паттерн нет
	if _, err := filter.Compile(c.FilterLines()); err != nil && !errors.Is(err, filter.ErrEmptyFilter) {
		errs = append(errs, fmt.Errorf("invalid filter: %w", err))
	}
	if c.Filter.Watch && c.Filter.File == "" {
		errs = append(errs, fmt.Errorf("filter.watch requires filter.file"))
	}

	// Проверка sweep
	if c.Sweep.BatchLimit < 1 {
		errs = append(errs, fmt.Errorf("sweep.batch_limit must be >= 1 (got %d)", c.Sweep.BatchLimit))
	}
	if c.Sweep.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("sweep.timeout_seconds cannot be negative (got %d)", c.Sweep.TimeoutSeconds))
	}

	// Проверка schedule
	if c.Schedule.Enabled {
		if err := cleanup.ValidateSpec(c.Schedule.Spec); err != nil {
			errs = append(errs, fmt.Errorf("schedule.spec: %w", err))
		}
	}

	// Проверка metrics
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}

	return errs
}

// FilterLines returns the inline fragments followed by the lines of
// filter.file. Blank lines are kept; the filter compiler drops them.
func (c *Config) FilterLines() []string {
	lines := make([]string, 0, len(c.Filter.Lines)+len(c.Filter.fileLines))
	lines = append(lines, c.Filter.Lines...)
	return append(lines, c.Filter.fileLines...)
}

// SessionLifetimeSeconds returns the inactivity lifetime of human sessions.
func (c *Config) SessionLifetimeSeconds() int64 {
	return c.Session.LifetimeSeconds
}

// BotsCleanupDelta returns the configured bot cleanup delta, or 3600 when it
// is unset or not positive.
func (c *Config) BotsCleanupDelta() int64 {
	if c.Session.BotsCleanupDelta <= 0 {
		return DefaultBotsCleanupDelta
	}
	return c.Session.BotsCleanupDelta
}

// Store returns the SQL store settings.
func (c *Config) Store() sqlstore.Config {
	return sqlstore.Config{
		Driver:        c.Database.Driver,
		DSN:           c.Database.DSN,
		Table:         c.Database.Table,
		IDColumn:      c.Database.IDColumn,
		ExpiresColumn: c.Database.ExpiresColumn,
		DataColumn:    c.Database.DataColumn,
	}
}

// Cleanup returns the sweep settings.
func (c *Config) Cleanup() cleanup.Config {
	return cleanup.Config{
		BatchLimit:      c.Sweep.BatchLimit,
		LifetimeSeconds: c.SessionLifetimeSeconds(),
	}
}

// Scheduler returns the scheduler settings.
func (c *Config) Scheduler() cleanup.SchedulerConfig {
	return cleanup.SchedulerConfig{
		Enabled: c.Schedule.Enabled,
		Spec:    c.Schedule.Spec,
		Timeout: c.SweepTimeout(),
	}
}

// SweepTimeout returns the deadline for one sweep, 0 when unlimited.
func (c *Config) SweepTimeout() time.Duration {
	return time.Duration(c.Sweep.TimeoutSeconds) * time.Second
}

// Redacted returns a copy safe for printing.
func (c *Config) Redacted() Config {
	out := *c
	out.Database.DSN = maskDSN(c.Database.Driver, c.Database.DSN)
	return out
}

// expandEnvVars расширяет переменные окружения в конфигурации
func expandEnvVars(c *Config) error {
	// DSN обычно содержит пароль и задаётся через окружение
	if strings.HasPrefix(c.Database.DSN, "${") {
		c.Database.DSN = expandEnv(c.Database.DSN)
	}

	// Logging output
	if strings.HasPrefix(c.Logging.Output, "${") {
		c.Logging.Output = expandEnv(c.Logging.Output)
	}

	// Filter file
	if strings.HasPrefix(c.Filter.File, "${") {
		c.Filter.File = expandEnv(c.Filter.File)
	}
	c.Filter.File = expandHome(c.Filter.File)

	// Metrics listen address
	if strings.HasPrefix(c.Metrics.Listen, "${") {
		c.Metrics.Listen = expandEnv(c.Metrics.Listen)
	}

	return nil
}

// expandEnv расширяет переменную окружения формата ${VAR:default}
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		key := parts[0]
		defaultVal := parts[1]
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultVal
	}

	// Без значения по умолчанию
	return os.Getenv(s[2:end])
}

// expandHome расширяет ~ в пути
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
