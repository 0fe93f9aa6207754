package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "fusionsync.db", cfg.Database)
	assert.Equal(t, 0, cfg.MaxGraphNodes)
	assert.Equal(t, 100000, cfg.MaxBOMLines)
	assert.Equal(t, int64(10<<20), cfg.MaxPayloadBytes)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestFromMap_Overrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"FUSIONSYNC_ADDR":             "127.0.0.1:9000",
		"FUSIONSYNC_DRIVER":           "postgres",
		"FUSIONSYNC_DATABASE":         "host=localhost dbname=fusion",
		"FUSIONSYNC_MAX_GRAPH_NODES":  "5000",
		"FUSIONSYNC_MAX_BOM_LINES":    "0",
		"FUSIONSYNC_SHUTDOWN_TIMEOUT": "3s",
		"FUSIONSYNC_LOG_LEVEL":        "debug",
		"ADDR":                        "ignored-without-prefix",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, 5000, cfg.MaxGraphNodes)
	assert.Equal(t, 0, cfg.MaxBOMLines)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestFromMap_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"FUSIONSYNC_DRIVER": "mysql"}, "DRIVER"},
		{"negative budget", map[string]string{"FUSIONSYNC_MAX_GRAPH_NODES": "-1"}, "MAX_GRAPH_NODES"},
		{"negative bom limit", map[string]string{"FUSIONSYNC_MAX_BOM_LINES": "-5"}, "MAX_BOM_LINES"},
		{"zero payload limit", map[string]string{"FUSIONSYNC_MAX_PAYLOAD_BYTES": "0"}, "MAX_PAYLOAD_BYTES"},
		{"bad level", map[string]string{"FUSIONSYNC_LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad duration", map[string]string{"FUSIONSYNC_SHUTDOWN_TIMEOUT": "soon"}, "ShutdownTimeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_DatabaseRequired(t *testing.T) {
	cfg, err := FromMap(map[string]string{})
	require.NoError(t, err)

	cfg.Database = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE")

	cfg.Driver = DriverMemory
	assert.NoError(t, cfg.Validate())
}

func TestFromMap_MemoryNeedsNoDatabase(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"FUSIONSYNC_DRIVER":   "memory",
		"FUSIONSYNC_DATABASE": "",
	})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Driver)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FUSIONSYNC_ADDR=:9191\nFUSIONSYNC_DRIVER=memory\n"), 0o600))

	// godotenv.Load skips variables that are already set. t.Setenv restores
	// both after the test.
	t.Setenv("FUSIONSYNC_ADDR", "")
	t.Setenv("FUSIONSYNC_DRIVER", "")
	os.Unsetenv("FUSIONSYNC_ADDR")
	os.Unsetenv("FUSIONSYNC_DRIVER")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9191", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Driver)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.env")
}
