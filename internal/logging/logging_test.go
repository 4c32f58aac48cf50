package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ecsbridge/ecscore/internal/config"
)

func TestConfigLevelAndFormat(t *testing.T) {
	c := Config(config.LoggingConfig{Level: "debug", Format: "json"})
	assert.Equal(t, "json", c.Encoding)
	assert.Equal(t, zapcore.DebugLevel, c.Level.Level())

	c = Config(config.LoggingConfig{Level: "loud", Format: "console"})
	assert.Equal(t, "console", c.Encoding)
	assert.Equal(t, zapcore.InfoLevel, c.Level.Level())
	assert.True(t, c.DisableCaller)
	assert.Equal(t, "  ", c.EncoderConfig.ConsoleSeparator)
}

func TestNewBuildsLogger(t *testing.T) {
	l, err := New(config.Defaults().Logging)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}
