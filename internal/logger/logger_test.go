package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jeanpaul/jarbas/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONToWriter(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := initWith(config.LogConfig{Level: "info", Format: "json", Output: "stderr"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	l.Info().Str("component", "test").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, "info", entry["level"])
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := initWith(config.LogConfig{Level: "warn", Output: "stderr"}, &buf)
	require.NoError(t, err)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	l.Info().Msg("dropped")
	assert.Empty(t, buf.String())
	l.Warn().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestInit_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "jarbas.log")
	l, closer, err := Init(config.LogConfig{Level: "info", Output: "file", FilePath: path})
	require.NoError(t, err)

	l.Info().Msg("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestInit_Errors(t *testing.T) {
	_, _, err := Init(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, _, err = Init(config.LogConfig{Level: "info", Output: "file"})
	assert.Error(t, err)
}
