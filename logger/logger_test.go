package logger

import (
	"os"
	"path/filepath"
	"testing"

	"chartfeed/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// go test -v --run TestNewWritesFile
func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chartfeed.log")
	log, err := New(config.LogConfig{Level: "info", Format: "json", OutputFile: path})
	require.NoError(t, err)

	log.Info("chart bootstrapped", zap.String("pair", "BTC_ETH"))
	log.Debug("dropped below level")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pair":"BTC_ETH"`)
	assert.NotContains(t, string(data), "dropped below level")
}

func TestNewTagsEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chartfeed.log")
	log, err := New(config.LogConfig{Level: "debug", Environment: "prod", OutputFile: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Debug("ticker seeded", zap.Int("pairs", 3))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"env":"prod"`)
	assert.Contains(t, string(data), `"pairs":3`)
}

func TestConsoleEncoding(t *testing.T) {
	assert.True(t, console(config.LogConfig{Environment: "dev", Format: "json"}))
	assert.True(t, console(config.LogConfig{Environment: "prod", Format: "console"}))
	assert.False(t, console(config.LogConfig{Environment: "prod", Format: "json"}))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.ErrorContains(t, err, "invalid log level")
}
