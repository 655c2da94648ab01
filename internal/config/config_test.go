package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, int64(10<<20), cfg.HTTP.MaxFrameBytes)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 0.7, cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, 40.0, cfg.Detection.MoveThreshold)
	assert.Equal(t, 3*time.Minute, cfg.Detection.IdleInterval)
	assert.Zero(t, cfg.Detection.PhoneCooldown)
	assert.Equal(t, 20, cfg.Logs.EventCapacity)
	assert.Equal(t, 20, cfg.Logs.InferenceCapacity)
	assert.Equal(t, 640, cfg.Camera.FrameWidth)
	assert.Equal(t, 480, cfg.Camera.FrameHeight)
	assert.False(t, cfg.DB.Enabled(), "no DB_DSN")
	assert.False(t, cfg.Storage.Enabled(), "no R2 settings")
	assert.Equal(t, "auto", cfg.Storage.Region)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("HTTP_MAX_FRAME_BYTES", "1048576")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.55")
	t.Setenv("PHONE_ALERT_COOLDOWN", "15s")
	t.Setenv("CAMERA_ID", "cam-3")
	t.Setenv("R2_ENDPOINT", "https://r2.example.com")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")
	t.Setenv("R2_BUCKET", "forecourt")
	t.Setenv("R2_PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxFrameBytes)
	assert.Equal(t, 0.55, cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, 15*time.Second, cfg.Detection.PhoneCooldown)
	assert.Equal(t, "cam-3", cfg.Camera.CameraID)
	assert.True(t, cfg.Storage.Enabled())
	assert.Equal(t, "https://cdn.example.com", cfg.Storage.PublicBaseURL, "trailing slash trimmed")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			env:     map[string]string{},
			wantErr: "JWT_ACCESS_SECRET",
		},
		{
			name:    "zero frame size limit",
			env:     map[string]string{"JWT_ACCESS_SECRET": "s", "HTTP_MAX_FRAME_BYTES": "0"},
			wantErr: "HTTP_MAX_FRAME_BYTES",
		},
		{
			name:    "confidence above one",
			env:     map[string]string{"JWT_ACCESS_SECRET": "s", "CONFIDENCE_THRESHOLD": "1.5"},
			wantErr: "CONFIDENCE_THRESHOLD",
		},
		{
			name:    "negative cooldown",
			env:     map[string]string{"JWT_ACCESS_SECRET": "s", "PHONE_ALERT_COOLDOWN": "-1s"},
			wantErr: "PHONE_ALERT_COOLDOWN",
		},
		{
			name:    "zero log capacity",
			env:     map[string]string{"JWT_ACCESS_SECRET": "s", "EVENT_LOG_CAPACITY": "0"},
			wantErr: "EVENT_LOG_CAPACITY",
		},
		{
			name:    "unknown log level",
			env:     map[string]string{"JWT_ACCESS_SECRET": "s", "LOG_LEVEL": "verbose"},
			wantErr: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_ACCESS_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
