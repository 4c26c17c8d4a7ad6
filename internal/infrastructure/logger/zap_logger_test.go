package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("chatty"))
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	log, err := NewFileLogger(path, "warn")
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("Trading halted", zap.String("reason", "max_daily_drawdown"))
	_ = log.Sync()

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "dropped")
	assert.Contains(t, string(body), `"reason":"max_daily_drawdown"`)
}
