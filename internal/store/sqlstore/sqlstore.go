// Package sqlstore reads and deletes session rows in a SQL database.
//
// Three drivers are wired in: "mysql" (github.com/go-sql-driver/mysql, the
// usual home of Magento's session table), "sqlite" (modernc.org/sqlite,
// CGO-free) and "postgres" (github.com/lib/pq). Every page is an independent SELECT and
// every delete an independent statement, so no transaction or lock spans
// more than one batch.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/aatumaykin/botsweep/internal/retry"
	"github.com/aatumaykin/botsweep/internal/session"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config names the driver and the session table layout.
type Config struct {
	Driver        string
	DSN           string
	Table         string
	IDColumn      string
	ExpiresColumn string
	DataColumn    string
}

// WithDefaults fills empty names with the Magento session table layout.
func (c Config) WithDefaults() Config {
	if c.Table == "" {
		c.Table = "session"
	}
	if c.IDColumn == "" {
		c.IDColumn = "session_id"
	}
	if c.ExpiresColumn == "" {
		c.ExpiresColumn = "session_expires"
	}
	if c.DataColumn == "" {
		c.DataColumn = "session_data"
	}
	return c
}

// Validate checks the driver and that every name is a plain identifier,
// since names are interpolated into SQL.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q (expected: mysql, sqlite, postgres)", c.Driver)
	}
	for field, name := range map[string]string{
		"table":          c.Table,
		"id_column":      c.IDColumn,
		"expires_column": c.ExpiresColumn,
		"data_column":    c.DataColumn,
	} {
		if !identifier.MatchString(name) {
			return fmt.Errorf("database.%s %q is not a valid identifier", field, name)
		}
	}
	return nil
}

type queries struct {
	count      string
	firstPage  string
	afterPage  string
	deleteByID string
}

// Store is a session table accessed through database/sql.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
}

// New wraps an open database. The caller keeps ownership of db.
func New(db *sql.DB, cfg Config) (*Store, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{db: db, cfg: cfg, queries: buildQueries(cfg)}, nil
}

// Open connects using cfg and pings the server, retrying transient errors.
func Open(ctx context.Context, cfg Config, attempts int, log *logger.Logger) (*Store, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// a single connection avoids "database is locked" between our own reads and deletes
		db.SetMaxOpenConns(1)
	}

	err = retry.Do(ctx, retry.Config{
		MaxAttempts:    attempts,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			log.Warn("database not reachable, retrying",
				logger.Field{Key: "driver", Value: cfg.Driver},
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "wait", Value: wait.String()},
				logger.Field{Key: "error", Value: err})
		},
	}, db.PingContext)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return New(db, cfg)
}

func buildQueries(cfg Config) queries {
	p1, p2 := "?", "?"
	if cfg.Driver == DriverPostgres {
		p1, p2 = "$1", "$2"
	}
	cols := fmt.Sprintf("%s, %s, %s", cfg.IDColumn, cfg.ExpiresColumn, cfg.DataColumn)

	return queries{
		count:      fmt.Sprintf("SELECT COUNT(%s) FROM %s", cfg.IDColumn, cfg.Table),
		firstPage:  fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT %s", cols, cfg.Table, cfg.IDColumn, p1),
		afterPage:  fmt.Sprintf("SELECT %s FROM %s WHERE %s > %s ORDER BY %s LIMIT %s", cols, cfg.Table, cfg.IDColumn, p1, cfg.IDColumn, p2),
		deleteByID: fmt.Sprintf("DELETE FROM %s WHERE %s = %s", cfg.Table, cfg.IDColumn, p1),
	}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of stored sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.queries.count).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// FetchBatch returns up to limit sessions with id > afterID in ascending id
// order, or from the start when afterID is nil.
func (s *Store) FetchBatch(ctx context.Context, afterID *string, limit int) ([]session.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if afterID == nil {
		rows, err = s.db.QueryContext(ctx, s.queries.firstPage, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.queries.afterPage, *afterID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions: %w", err)
	}
	defer rows.Close()

	batch := make([]session.Record, 0, limit)
	for rows.Next() {
		var (
			rec     session.Record
			expires sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &expires, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		rec.ExpiresAt = expires.Int64
		rec.NoExpiry = !expires.Valid
		batch = append(batch, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return batch, nil
}

// Delete removes one session and returns the number of rows affected.
// A missing id yields 0 and no error.
func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.queries.deleteByID, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// EnsureSchema creates the session table when it does not exist. It is
// meant for local and test databases; production tables belong to the
// application that owns the sessions.
func (s *Store) EnsureSchema(ctx context.Context) error {
	var ddl string
	switch s.cfg.Driver {
	case DriverMySQL:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s VARCHAR(255) NOT NULL PRIMARY KEY,
	%s INT UNSIGNED NOT NULL DEFAULT 0,
	%s MEDIUMBLOB
)`, s.cfg.Table, s.cfg.IDColumn, s.cfg.ExpiresColumn, s.cfg.DataColumn)
	case DriverPostgres:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s VARCHAR(255) PRIMARY KEY,
	%s BIGINT NOT NULL DEFAULT 0,
	%s BYTEA
)`, s.cfg.Table, s.cfg.IDColumn, s.cfg.ExpiresColumn, s.cfg.DataColumn)
	default:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT PRIMARY KEY,
	%s INTEGER NOT NULL DEFAULT 0,
	%s BLOB
)`, s.cfg.Table, s.cfg.IDColumn, s.cfg.ExpiresColumn, s.cfg.DataColumn)
	}

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create session table: %w", err)
	}
	return nil
}
