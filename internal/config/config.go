package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
	// MaxFrameBytes caps a frame request body, image included.
	MaxFrameBytes int64
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled reports whether an alert archive database is configured.
func (c DBConfig) Enabled() bool {
	return c.DSN != ""
}

type AuthConfig struct {
	AccessSecret string
}

type CameraConfig struct {
	CustomerID    string
	CameraID      string
	StationNumber string
	FrameWidth    int
	FrameHeight   int
}

type DetectionConfig struct {
	ConfidenceThreshold float64
	MoveThreshold       float64
	IdleInterval        time.Duration
	WarningDwell        time.Duration
	UnattendedAfter     time.Duration
	UnattendedInterval  time.Duration
	PhoneCooldown       time.Duration
	TrackTTL            time.Duration
}

type LogsConfig struct {
	EventCapacity     int
	InferenceCapacity int
	StreamInterval    time.Duration
}

type SnapshotConfig struct {
	QueueSize       int
	Workers         int
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	Prefix          string
	JPEGQuality     int
	BreakerFailures int
	BreakerCooldown time.Duration
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PublicBaseURL string
}

// Enabled reports whether enough is set to talk to the bucket.
func (c StorageConfig) Enabled() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

type RetentionConfig struct {
	AlertDays int
	Interval  time.Duration
}

type Config struct {
	Environment string
	LogLevel    string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Camera      CameraConfig
	Detection   DetectionConfig
	Logs        LogsConfig
	Snapshot    SnapshotConfig
	Storage     StorageConfig
	Retention   RetentionConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()
	setDefaults(v)

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		HTTP: HTTPConfig{
			Host:          v.GetString("HTTP_HOST"),
			Port:          v.GetInt("HTTP_PORT"),
			MaxFrameBytes: v.GetInt64("HTTP_MAX_FRAME_BYTES"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Camera: CameraConfig{
			CustomerID:    v.GetString("CUSTOMER_ID"),
			CameraID:      v.GetString("CAMERA_ID"),
			StationNumber: v.GetString("STATION_NUMBER"),
			FrameWidth:    v.GetInt("FRAME_WIDTH"),
			FrameHeight:   v.GetInt("FRAME_HEIGHT"),
		},
		Detection: DetectionConfig{
			ConfidenceThreshold: v.GetFloat64("CONFIDENCE_THRESHOLD"),
			MoveThreshold:       v.GetFloat64("MOVE_THRESHOLD"),
			IdleInterval:        v.GetDuration("IDLE_ALERT_INTERVAL"),
			WarningDwell:        v.GetDuration("WARNING_DWELL"),
			UnattendedAfter:     v.GetDuration("UNATTENDED_AFTER"),
			UnattendedInterval:  v.GetDuration("UNATTENDED_ALERT_INTERVAL"),
			PhoneCooldown:       v.GetDuration("PHONE_ALERT_COOLDOWN"),
			TrackTTL:            v.GetDuration("TRACK_TTL"),
		},
		Logs: LogsConfig{
			EventCapacity:     v.GetInt("EVENT_LOG_CAPACITY"),
			InferenceCapacity: v.GetInt("INFERENCE_LOG_CAPACITY"),
			StreamInterval:    v.GetDuration("STREAM_INTERVAL"),
		},
		Snapshot: SnapshotConfig{
			QueueSize:       v.GetInt("SNAPSHOT_QUEUE_SIZE"),
			Workers:         v.GetInt("SNAPSHOT_WORKERS"),
			Timeout:         v.GetDuration("SNAPSHOT_TIMEOUT"),
			MaxRetries:      v.GetInt("SNAPSHOT_MAX_RETRIES"),
			RetryBackoff:    v.GetDuration("SNAPSHOT_RETRY_BACKOFF"),
			Prefix:          v.GetString("SNAPSHOT_PREFIX"),
			JPEGQuality:     v.GetInt("SNAPSHOT_JPEG_QUALITY"),
			BreakerFailures: v.GetInt("SNAPSHOT_BREAKER_FAILURES"),
			BreakerCooldown: v.GetDuration("SNAPSHOT_BREAKER_COOLDOWN"),
		},
		Storage: StorageConfig{
			Endpoint:      strings.TrimSpace(v.GetString("R2_ENDPOINT")),
			AccessKey:     strings.TrimSpace(v.GetString("R2_ACCESS_KEY_ID")),
			SecretKey:     strings.TrimSpace(v.GetString("R2_SECRET_ACCESS_KEY")),
			Bucket:        strings.TrimSpace(v.GetString("R2_BUCKET")),
			Region:        strings.TrimSpace(v.GetString("R2_REGION")),
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("R2_PUBLIC_BASE_URL")), "/"),
		},
		Retention: RetentionConfig{
			AlertDays: v.GetInt("ALERT_RETENTION_DAYS"),
			Interval:  v.GetDuration("ALERT_RETENTION_INTERVAL"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("HTTP_MAX_FRAME_BYTES", 10<<20)

	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("CUSTOMER_ID", "default_customer")
	v.SetDefault("CAMERA_ID", "default_camera")
	v.SetDefault("STATION_NUMBER", "default_station")
	v.SetDefault("FRAME_WIDTH", 640)
	v.SetDefault("FRAME_HEIGHT", 480)

	v.SetDefault("CONFIDENCE_THRESHOLD", 0.7)
	v.SetDefault("MOVE_THRESHOLD", 40)
	v.SetDefault("IDLE_ALERT_INTERVAL", "3m")
	v.SetDefault("WARNING_DWELL", "45s")
	v.SetDefault("UNATTENDED_AFTER", "30s")
	v.SetDefault("UNATTENDED_ALERT_INTERVAL", "30s")
	v.SetDefault("PHONE_ALERT_COOLDOWN", "0s")
	v.SetDefault("TRACK_TTL", "5m")

	v.SetDefault("EVENT_LOG_CAPACITY", 20)
	v.SetDefault("INFERENCE_LOG_CAPACITY", 20)
	v.SetDefault("STREAM_INTERVAL", "1s")

	v.SetDefault("SNAPSHOT_QUEUE_SIZE", 64)
	v.SetDefault("SNAPSHOT_WORKERS", 2)
	v.SetDefault("SNAPSHOT_TIMEOUT", "10s")
	v.SetDefault("SNAPSHOT_MAX_RETRIES", 3)
	v.SetDefault("SNAPSHOT_RETRY_BACKOFF", "500ms")
	v.SetDefault("SNAPSHOT_PREFIX", "snapshots")
	v.SetDefault("SNAPSHOT_JPEG_QUALITY", 90)
	v.SetDefault("SNAPSHOT_BREAKER_FAILURES", 5)
	v.SetDefault("SNAPSHOT_BREAKER_COOLDOWN", "30s")

	v.SetDefault("R2_REGION", "auto")

	v.SetDefault("ALERT_RETENTION_DAYS", 30)
	v.SetDefault("ALERT_RETENTION_INTERVAL", "1h")
}

func validate(cfg *Config) error {
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.MaxFrameBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_FRAME_BYTES must be positive")
	}
	if cfg.Detection.ConfidenceThreshold < 0 || cfg.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0, 1], got %v", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Detection.MoveThreshold <= 0 {
		return fmt.Errorf("MOVE_THRESHOLD must be positive")
	}
	for name, d := range map[string]time.Duration{
		"IDLE_ALERT_INTERVAL":       cfg.Detection.IdleInterval,
		"UNATTENDED_AFTER":          cfg.Detection.UnattendedAfter,
		"UNATTENDED_ALERT_INTERVAL": cfg.Detection.UnattendedInterval,
		"TRACK_TTL":                 cfg.Detection.TrackTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.Detection.PhoneCooldown < 0 {
		return fmt.Errorf("PHONE_ALERT_COOLDOWN cannot be negative")
	}
	if cfg.Logs.EventCapacity <= 0 || cfg.Logs.InferenceCapacity <= 0 {
		return fmt.Errorf("EVENT_LOG_CAPACITY and INFERENCE_LOG_CAPACITY must be positive")
	}
	if cfg.Snapshot.QueueSize <= 0 || cfg.Snapshot.Workers <= 0 {
		return fmt.Errorf("SNAPSHOT_QUEUE_SIZE and SNAPSHOT_WORKERS must be positive")
	}
	if cfg.Snapshot.BreakerFailures <= 0 {
		return fmt.Errorf("SNAPSHOT_BREAKER_FAILURES must be positive")
	}
	if cfg.Retention.AlertDays < 0 {
		return fmt.Errorf("ALERT_RETENTION_DAYS cannot be negative")
	}
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not supported", cfg.LogLevel)
	}
	return nil
}
