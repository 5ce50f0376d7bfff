package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestGetLogLevelFromEnv(t *testing.T) {
	t.Setenv("DEBUG", "")

	t.Setenv("LIVESYNC_DEBUG", "")
	assert.Equal(t, LevelInfo, GetLogLevelFromEnv(false))
	assert.Equal(t, LevelDebug, GetLogLevelFromEnv(true))

	t.Setenv("LIVESYNC_DEBUG", "1")
	assert.Equal(t, LevelDebug, GetLogLevelFromEnv(false))

	t.Setenv("LIVESYNC_DEBUG", "false")
	assert.Equal(t, LevelInfo, GetLogLevelFromEnv(true))
}

func TestConfigureWriter(t *testing.T) {
	defer ConfigureWriter(LevelInfo, false, &bytes.Buffer{})

	var buf bytes.Buffer
	ConfigureWriter(LevelWarn, false, &buf)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")

	l := With("component", "registry")
	l.Warn().Msg("tagged")
	assert.Contains(t, buf.String(), `"component":"registry"`)
}
