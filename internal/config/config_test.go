package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "localhost:9090", c.Addr)
	assert.Equal(t, "iou", c.MongoDatabase)
	assert.Equal(t, 5*time.Second, c.StoreTimeout)
	assert.Equal(t, 24*time.Hour, c.SessionTTL)
	assert.Equal(t, 5*time.Minute, c.ChallengeTTL)
	assert.Equal(t, "state", c.NullifierKeyMode)
	assert.NoError(t, c.Validate())
}

func TestLoad_NoArgs(t *testing.T) {
	t.Setenv("CONFIG", "")
	t.Setenv("SERVER_ADDRESS", "")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("REDIS_ADDR", "")

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9090", c.Addr)
	assert.False(t, c.Memory)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"address": "file:1",
		"mongo_uri": "mongodb://file",
		"store_timeout": "2s",
		"session_ttl": 3600000000000,
		"nullifier_key_mode": "pair",
		"memory": true
	}`), 0o600))

	t.Setenv("CONFIG", "")
	t.Setenv("SERVER_ADDRESS", "env:2")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("REDIS_ADDR", "")

	c, err := Load([]string{"-c", path, "-a", "flag:3", "-reconcile-grace", "10s"})
	require.NoError(t, err)

	assert.Equal(t, "flag:3", c.Addr, "flags beat env and file")
	assert.Equal(t, "mongodb://file", c.MongoURI)
	assert.Equal(t, 2*time.Second, c.StoreTimeout)
	assert.Equal(t, time.Hour, c.SessionTTL)
	assert.Equal(t, "pair", c.NullifierKeyMode)
	assert.True(t, c.Memory)
	assert.Equal(t, 10*time.Second, c.ReconcileGrace)
	assert.Equal(t, "iou", c.MongoDatabase, "keys missing from the file keep defaults")

	c, err = Load([]string{"-config=" + path})
	require.NoError(t, err)
	assert.Equal(t, "env:2", c.Addr, "env beats file")
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0o600))
	t.Setenv("CONFIG", path)

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("CONFIG", "")

	_, err := Load([]string{"-nullifier-key", "both"})
	assert.Error(t, err)

	_, err = Load([]string{"-unknown"})
	assert.Error(t, err)

	_, err = Load([]string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"store_timeout": true}`), 0o600))
	_, err = Load([]string{"-c", bad})
	assert.Error(t, err)
}
