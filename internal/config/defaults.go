package config

// Значения по умолчанию
const (
	DefaultDriver           = "sqlite"
	DefaultTable            = "session"
	DefaultIDColumn         = "session_id"
	DefaultExpiresColumn    = "session_expires"
	DefaultDataColumn       = "session_data"
	DefaultConnectAttempts  = 3
	DefaultLifetimeSeconds  = 3600
	DefaultBotsCleanupDelta = 3600
	DefaultSerializeHandler = "php"
	DefaultBatchLimit       = 1000
	DefaultScheduleSpec     = "@hourly"
	DefaultMetricsListen    = ":9090"
	DefaultMetricsNamespace = "botsweep"
)

// applyDefaults применяет значения по умолчанию
func applyDefaults(c *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Database.Table == "" {
		c.Database.Table = DefaultTable
	}
	if c.Database.IDColumn == "" {
		c.Database.IDColumn = DefaultIDColumn
	}
	if c.Database.ExpiresColumn == "" {
		c.Database.ExpiresColumn = DefaultExpiresColumn
	}
	if c.Database.DataColumn == "" {
		c.Database.DataColumn = DefaultDataColumn
	}
	if c.Database.ConnectAttempts == 0 {
		c.Database.ConnectAttempts = DefaultConnectAttempts
	}

	if c.Session.LifetimeSeconds == 0 {
		c.Session.LifetimeSeconds = DefaultLifetimeSeconds
	}
	if c.Session.SerializeHandler == "" {
		c.Session.SerializeHandler = DefaultSerializeHandler
	}

	if c.Sweep.BatchLimit == 0 {
		c.Sweep.BatchLimit = DefaultBatchLimit
	}

	if c.Schedule.Spec == "" {
		c.Schedule.Spec = DefaultScheduleSpec
	}

	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}
}
