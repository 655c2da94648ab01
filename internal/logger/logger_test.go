package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("production", "info", &buf)

	log.Info().Str("region", "Pump1").Msg("region updated")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "region updated", entry["message"])
	assert.Equal(t, "Pump1", entry["region"])
	assert.Equal(t, "forecourt-service", entry["service"])
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{level: "debug", want: zerolog.DebugLevel},
		{level: "warn", want: zerolog.WarnLevel},
		{level: "", want: zerolog.InfoLevel},
		{level: "nonsense", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log := newWithWriter("production", tt.level, &bytes.Buffer{})
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}
}

func TestNewDevelopmentIsConsole(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter("development", "info", &buf)

	log.Info().Msg("hello")

	assert.False(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"), "development output looks like json: %q", buf.String())
	assert.Contains(t, buf.String(), "hello")
}
