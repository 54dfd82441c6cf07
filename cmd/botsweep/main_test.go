package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aatumaykin/botsweep/internal/cleanup"
	"github.com/aatumaykin/botsweep/internal/logger"
	"github.com/aatumaykin/botsweep/internal/pidfile"
	"github.com/aatumaykin/botsweep/internal/session"
	"github.com/aatumaykin/botsweep/internal/session/sessiontest"
	"github.com/aatumaykin/botsweep/internal/store/memstore"
	"github.com/aatumaykin/botsweep/internal/store/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCmdFlags(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantConfig string
		wantFormat string
		wantDryRun bool
		wantDebug  bool
	}{
		{
			name:       "with config flag",
			args:       []string{"--config", "test.toml"},
			wantConfig: "test.toml",
			wantFormat: "text",
		},
		{
			name:       "with format and dry run",
			args:       []string{"--format", "json", "--dry-run"},
			wantFormat: "json",
			wantDryRun: true,
		},
		{
			name:       "short flags",
			args:       []string{"-c", "test.toml", "-f", "yaml", "-d"},
			wantConfig: "test.toml",
			wantFormat: "yaml",
			wantDebug:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()

			if err := runCmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}

			if runConfigPath != tt.wantConfig {
				t.Errorf("runConfigPath = %v, want %v", runConfigPath, tt.wantConfig)
			}
			if runFormat != tt.wantFormat {
				t.Errorf("runFormat = %v, want %v", runFormat, tt.wantFormat)
			}
			if runDryRun != tt.wantDryRun {
				t.Errorf("runDryRun = %v, want %v", runDryRun, tt.wantDryRun)
			}
			if runDebug != tt.wantDebug {
				t.Errorf("runDebug = %v, want %v", runDebug, tt.wantDebug)
			}
		})
	}
}

func TestCommandStructure(t *testing.T) {
	subcommands := rootCmd.Commands()
	expectedCommands := []string{"version", "config", "run", "serve"}
	foundCommands := make(map[string]bool)

	for _, cmd := range subcommands {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("Expected command '%s' not found in rootCmd", expected)
		}
	}

	found := make(map[string]bool)
	for _, cmd := range configCmd.Commands() {
		found[cmd.Name()] = true
	}
	if !found["validate"] || !found["show"] {
		t.Errorf("config subcommands = %v, want validate and show", found)
	}
}

func TestRunCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")
	now := time.Now().Unix()

	seedSessions(t, dbPath,
		sessiontest.Record("a-bot", now, "YandexBot/3.0"),
		sessiontest.Record("b-active", now-60, "Mozilla/5.0"),
		sessiontest.Record("c-inactive", now-10000, "Mozilla/5.0"),
		session.Record{ID: "d-broken", ExpiresAt: now, Data: []byte("not base64!")},
	)
	cfgPath := writeConfig(t, dir, dbPath, "")

	out, err := executeCommand(t, "run", "-c", cfgPath, "--format", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.EqualValues(t, 4, got["total"])
	assert.EqualValues(t, 1, got["removed_bots"])
	assert.EqualValues(t, 1, got["removed_inactive"])
	assert.EqualValues(t, 1, got["active"])
	assert.EqualValues(t, 1, got["failures"])
	assert.Equal(t, false, got["dry_run"])

	assert.Equal(t, []string{"b-active", "d-broken"}, storedIDs(t, dbPath))
}

func TestRunCommand_DryRunKeepsRows(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")
	now := time.Now().Unix()

	seedSessions(t, dbPath,
		sessiontest.Record("a-bot", now, "alexa"),
		sessiontest.Record("b-inactive", now-10000, "Mozilla/5.0"),
	)
	cfgPath := writeConfig(t, dir, dbPath, "")

	out, err := executeCommand(t, "run", "-c", cfgPath, "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "dry run")
	assert.Equal(t, []string{"a-bot", "b-inactive"}, storedIDs(t, dbPath))
}

func TestRunCommand_PIDFileHeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "botsweep.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte(fmt.Sprintf("%d\n", os.Getppid())), 0o600))
	cfgPath := writeConfig(t, dir, filepath.Join(dir, "s.db"), "")

	_, err := executeCommand(t, "run", "-c", cfgPath, "--pid-file", pidPath)
	require.ErrorIs(t, err, pidfile.ErrAlreadyRunning)
}

func TestRunCommand_InvalidFormat(t *testing.T) {
	_, err := executeCommand(t, "run", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestConfigValidateCommand(t *testing.T) {
	dir := t.TempDir()

	valid := writeConfig(t, dir, filepath.Join(dir, "s.db"), "")
	out, err := executeCommand(t, "config", "validate", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	invalid := writeConfig(t, dir, filepath.Join(dir, "s.db"), "[sweep]\nbatch_limit = -1\n")
	_, err = executeCommand(t, "config", "validate", invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration has")
}

func TestConfigShowMasksPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "botsweep.toml")
	content := "[database]\ndriver = \"postgres\"\ndsn = \"postgres://app:supersecret@db/magento\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	out, err := executeCommand(t, "config", "show", path)
	require.NoError(t, err)
	assert.Contains(t, out, "driver: postgres")
	assert.NotContains(t, out, "supersecret")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:")
	assert.Contains(t, out, "Go Version:")
}

func TestHealthzAndMetrics(t *testing.T) {
	runner := cleanup.NewRunner(
		memstore.New(sessiontest.Record("a", time.Now().Unix(), "Mozilla/5.0")),
		session.NewCodec(session.HandlerPHP), nil,
		cleanup.Config{LifetimeSeconds: 3600}, logger.Discard(),
	)
	sched := cleanup.NewScheduler(runner, cleanup.SchedulerConfig{}, logger.Discard())
	mux := newServeMux(prometheus.NewRegistry(), sched)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "last_result")

	_, err := sched.Trigger(context.Background())
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var status healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	require.NotNil(t, status.Last)
	assert.Equal(t, 1, status.Last.Active)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func resetFlags() {
	runConfigPath = ""
	runFormat = "text"
	runDryRun = false
	runDebug = false
	runPIDFile = ""
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir, dbPath, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`[logging]
level = "error"
output = "stderr"

[database]
driver = "sqlite"
dsn = %q
create_schema = true

[session]
lifetime_seconds = 3600

[filter]
lines = ["^alexa", "blitz\\.io", "yandex"]
%s`, dbPath, extra)

	path := filepath.Join(dir, fmt.Sprintf("botsweep-%d.toml", time.Now().UnixNano()))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openTestStore(t *testing.T, dbPath string) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: dbPath}, 1, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func seedSessions(t *testing.T, dbPath string, records ...session.Record) {
	t.Helper()
	store := openTestStore(t, dbPath)
	defer store.Close()

	for _, r := range records {
		_, err := store.DB().Exec(
			"INSERT INTO session (session_id, session_expires, session_data) VALUES (?, ?, ?)",
			r.ID, r.ExpiresAt, r.Data)
		require.NoError(t, err)
	}
}

func storedIDs(t *testing.T, dbPath string) []string {
	t.Helper()
	store := openTestStore(t, dbPath)
	defer store.Close()

	rows, err := store.DB().Query("SELECT session_id FROM session ORDER BY session_id")
	require.NoError(t, err)
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}
