package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var drivers = []string{DriverCGO, DriverPure}

func TestOpen_CreatesSchemaForEachDriver(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "test.db")

			s, err := Open(path, WithDriver(driver))
			require.NoError(t, err)
			defer s.Close()

			_, err = os.Stat(path)
			require.NoError(t, err, "database file was not created")

			for _, table := range []string{"notes", "tasks", "user_preferences"} {
				var name string
				err := s.db.QueryRow(
					"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
					table,
				).Scan(&name)
				assert.NoError(t, err, "table %q missing", table)
			}
		})
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var index string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_tasks_user_created'",
	).Scan(&index)
	assert.NoError(t, err, "v1 migration index missing")
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err, "invalid path")

	_, err = Open(filepath.Join(t.TempDir(), "test.db"), WithDriver("postgres"))
	assert.ErrorContains(t, err, "unknown sqlite driver")
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	cases := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, want := range cases {
		assert.NoError(t, s.verifyPragma(name, want))
	}
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file:already.db", sqliteDSN("file:already.db"))

	dsn := sqliteDSN("/tmp/notes.db")
	assert.Contains(t, dsn, "file:///tmp/notes.db")
	assert.Contains(t, dsn, "mode=rwc")
	assert.Contains(t, dsn, "_pragma=busy_timeout%285000%29")
}
