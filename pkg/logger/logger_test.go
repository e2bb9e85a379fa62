package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashpoint-io/atmd/pkg/config"
)

func baseConfig() config.Config {
	return config.Config{
		AppEnv: "test",
		Logger: config.LoggerConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func TestNewBuildsLogger(t *testing.T) {
	log := New(baseConfig())

	require.NotNil(t, log)
	assert.NotPanics(t, func() {
		log.Info("started", "port", "8080")
	})
}

func TestNewWithSentryEnabledTeesHandler(t *testing.T) {
	cfg := baseConfig()
	cfg.Sentry.Enabled = true

	log := New(cfg)

	require.NotNil(t, log)
	// Without sentry.Init the handler falls back to the empty current hub;
	// emitting records must still be safe.
	assert.NotPanics(t, func() {
		log.Error("journal append failed", "terminal_id", "atm-1")
	})
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, "INFO", parseLevel("nonsense").String())
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
}
