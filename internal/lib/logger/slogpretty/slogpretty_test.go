package slogpretty

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrettyHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelInfo}}
	log := slog.New(opts.NewPrettyHandler(&buf)).With("agent", "a-1")

	log.Debug("hidden")
	log.Info("robot acquired", "robot", "pr2", "error", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO:")
	assert.Contains(t, out, "robot acquired")
	assert.Contains(t, out, `"agent": "a-1"`)
	assert.Contains(t, out, `"robot": "pr2"`)
	assert.Contains(t, out, `"error": "boom"`)
}

func TestPrettyHandlerGroup(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	opts := PrettyHandlerOptions{SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug}}
	log := slog.New(opts.NewPrettyHandler(&buf)).WithGroup("checks")

	log.Debug("poll", "attempt", 3)

	assert.Contains(t, buf.String(), `"checks.attempt": 3`)
}
