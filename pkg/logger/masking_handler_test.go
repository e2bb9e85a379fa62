package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskingHandlerHidesPINMaterial(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewTextHandler(&buf, nil)))

	log.Info("applied action",
		slog.String("terminal_id", "atm-1"),
		slog.Uint64("pin_digest", 4321),
		slog.String("register", "one two"),
	)

	out := buf.String()
	require.Contains(t, out, "atm-1")
	assert.NotContains(t, out, "4321")
	assert.NotContains(t, out, "one two")
	assert.Contains(t, out, "***")
}

func TestMaskingHandlerKeepsOrdinaryAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewTextHandler(&buf, nil)))

	log.Info("swept sessions", slog.Int("swept", 3))

	assert.Contains(t, buf.String(), "swept=3")
}
