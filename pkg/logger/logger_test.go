package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDailyFilename(t *testing.T) {
	day := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "logs/echo-2026-03-09.log", dailyFilename("logs/echo.log", day))
	assert.Equal(t, "echo-2026-03-09", dailyFilename("echo", day))
}

func TestIsDevelopment(t *testing.T) {
	assert.True(t, IsDevelopment("dev"))
	assert.True(t, IsDevelopment("Development"))
	assert.False(t, IsDevelopment("production"))
	assert.False(t, IsDevelopment(""))
}

func TestInit_WritesJSONFile(t *testing.T) {
	prev := Lg
	defer func() { Lg = prev }()

	file := filepath.Join(t.TempDir(), "class.log")
	err := Init(&LogConfig{Level: "debug", Filename: file, MaxSize: 1, MaxAge: 1, MaxBackups: 1}, "production")
	require.NoError(t, err)

	Named("test").Info("hello")
	Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"logger":"test"`)
}

func TestInit_BadLevel(t *testing.T) {
	err := Init(&LogConfig{Level: "loud", Filename: filepath.Join(t.TempDir(), "x.log")}, "production")
	assert.Error(t, err)
}

func TestNewConsole(t *testing.T) {
	lg := NewConsole()
	require.NotNil(t, lg)
	assert.True(t, lg.Core().Enabled(zapcore.DebugLevel))
}
