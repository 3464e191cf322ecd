package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FilePrecedenceAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"address": "0.0.0.0:9000",
		"database_dsn": "postgres://file",
		"history_limit": 20
	}`), 0o600))

	t.Setenv("CONFIG", path)
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("COOKIE_SECURE", "true")

	o := Default()
	require.NoError(t, Load(o))

	assert.Equal(t, "0.0.0.0:9000", o.Port)
	assert.Equal(t, "postgres://env", o.DatabaseDSN)
	assert.Equal(t, 20, o.HistoryLimit)
	assert.Equal(t, 5*time.Minute, o.AccessTTL)
	assert.True(t, o.CookieSecure)
	// untouched defaults survive
	assert.Equal(t, "Asia/Taipei", o.TimeZone)
	assert.Equal(t, 7*24*time.Hour, o.RefreshTTL)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	o := Default()
	o.Config = filepath.Join(t.TempDir(), "absent.json")
	require.NoError(t, Load(o))
	assert.Equal(t, "localhost:8080", o.Port)
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	o := Default()
	o.Config = path
	err := Load(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestValidate(t *testing.T) {
	o := Default()
	assert.Error(t, o.Validate(), "missing dsn")

	o.DatabaseDSN = "postgres://x"
	o.JWTSecret = "short"
	assert.Error(t, o.Validate(), "short secret")

	o.JWTSecret = "0123456789abcdef"
	assert.NoError(t, o.Validate())

	o.TimeZone = "Mars/Olympus"
	assert.Error(t, o.Validate())
}

func TestLoad_DurationsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"access_ttl": "15m",
		"refresh_ttl": "168h",
		"unlock_ttl": 60000000000,
		"clean_interval": "90s",
		"history_limit": 7
	}`), 0o600))

	o := Default()
	o.Config = path
	require.NoError(t, Load(o))

	assert.Equal(t, 15*time.Minute, o.AccessTTL)
	assert.Equal(t, 168*time.Hour, o.RefreshTTL)
	assert.Equal(t, time.Minute, o.UnlockTTL)
	assert.Equal(t, 90*time.Second, o.CleanInterval)
	assert.Equal(t, 7, o.HistoryLimit)
	// keys absent from the file keep their defaults
	assert.Equal(t, 5*time.Minute, o.PendingTTL)
	assert.Equal(t, 30*24*time.Hour, o.ShareRetain)
	assert.Equal(t, "localhost:8080", o.Port)
}

func TestLoad_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"access_ttl": "fortnight"}`), 0o600))

	o := Default()
	o.Config = path
	err := Load(o)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
