package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TestPostgresDSN names the variable holding a disposable postgres database.
const TestPostgresDSN = "TEST_POSTGRES_DSN"

// GetTestEnv returns an environment variable or a default
func GetTestEnv(envVar, defaultValue string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultValue
}

// GetTestPostgresDSN returns the configured postgres DSN, or "" when none is set.
func GetTestPostgresDSN() string {
	return GetTestEnv(TestPostgresDSN, "")
}

// RequirePostgres returns the postgres DSN or skips t.
func RequirePostgres(t testing.TB) string {
	t.Helper()
	dsn := GetTestPostgresDSN()
	if dsn == "" {
		t.Skipf("set %s to run against postgres", TestPostgresDSN)
	}
	return dsn
}

// SQLitePath returns a database file path inside t's temp dir.
func SQLitePath(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name+".db")
}
