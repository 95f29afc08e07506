package database

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNConfig(t *testing.T) {
	cfg := dsnConfig("app", "secret", "db.internal", "3306", "simlok")

	assert.Equal(t, "db.internal:3306", cfg.Addr)
	assert.Equal(t, "simlok", cfg.DBName)
	assert.True(t, cfg.ParseTime, "DATETIME columns must scan into time.Time")
	require.NotNil(t, cfg.Loc)
	assert.Equal(t, time.UTC, cfg.Loc, "timestamps must not depend on the server session zone")

	dsn := cfg.FormatDSN()
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db.internal:3306)/simlok"), dsn)
	assert.Contains(t, dsn, "charset=utf8mb4")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestDSNConfigEmptyPassword(t *testing.T) {
	dsn := dsnConfig("app", "", "localhost", "3306", "simlok").FormatDSN()
	assert.True(t, strings.HasPrefix(dsn, "app@tcp("), dsn)
}
