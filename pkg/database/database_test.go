package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimezoneURLForm(t *testing.T) {
	out, err := withTimezone("postgres://user:pw@localhost:5432/confluencr?sslmode=disable", "Asia/Kolkata")
	require.NoError(t, err)
	assert.Contains(t, out, "timezone=Asia%2FKolkata")
	assert.Contains(t, out, "sslmode=disable")
}

func TestWithTimezoneURLFormExplicitWins(t *testing.T) {
	in := "postgres://localhost/db?timezone=UTC"
	out, err := withTimezone(in, "Asia/Kolkata")
	require.NoError(t, err)
	assert.Contains(t, out, "timezone=UTC")
	assert.NotContains(t, out, "Kolkata")
}

func TestWithTimezoneKeywordForm(t *testing.T) {
	out, err := withTimezone("host=localhost dbname=confluencr", "Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, "host=localhost dbname=confluencr timezone=Asia/Kolkata", out)
}

func TestWithTimezoneEmptyTZ(t *testing.T) {
	out, err := withTimezone("host=localhost", "")
	require.NoError(t, err)
	assert.Equal(t, "host=localhost", out)
}

func TestOpenSQLiteCreatesFile(t *testing.T) {
	db, err := OpenSQLite(context.Background(), t.TempDir())
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping())
}

func TestOpenSQLiteMemory(t *testing.T) {
	db, err := OpenSQLiteMemory()
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE t (x INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t (x) VALUES (1)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	assert.Equal(t, 1, n)
}
