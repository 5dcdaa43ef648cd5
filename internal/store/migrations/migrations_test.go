package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUp_CreatesTables(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Up(db))

	for _, table := range []string{"projects", "documents", "entities", "facts", "llm_cache", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Up(db))
	require.NoError(t, Up(db))
}

func TestCheckStatus(t *testing.T) {
	db := openTestDB(t)
	assert.ErrorIs(t, CheckStatus(db), ErrNeedsMigration)

	require.NoError(t, Up(db))
	assert.NoError(t, CheckStatus(db))
}

func TestLatest(t *testing.T) {
	v, err := Latest()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}
