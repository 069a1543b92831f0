package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN_Release(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/sicklecare")

	dsn, err := DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/sicklecare", dsn)
}

func TestDSN_Development(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USER", "sickle")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "sicklecare")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_SSL_MODE", "")

	dsn, err := DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=sicklecare")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestDSN_MissingVariable(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("DATABASE_URL", "")

	_, err := DSN()
	assert.ErrorContains(t, err, "DATABASE_URL")
}
