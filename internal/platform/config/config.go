package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvBool accepts the forms strconv.ParseBool does ("1", "true", "F", ...).
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	return fallback
}

// GetEnvDuration parses a Go duration ("250ms", "2s"). A bare integer is
// read as milliseconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}

// Bridge is the bridge process configuration.
type Bridge struct {
	Port      string
	LogLevel  string
	LogFormat string

	// AssetPath is the project asset the schema is saved next to.
	AssetPath string
	// AwaitTimeout bounds each wait for frame data from the host.
	AwaitTimeout time.Duration
	// SceneSelector is "none", "streaming_levels" or "maps".
	SceneSelector   string
	CameraQueueSize int
	// InitMaxRetries and InitRetryInterval control reconnecting to the
	// host at startup.
	InitMaxRetries    int
	InitRetryInterval time.Duration
	WatchSchema       bool
	WorldToMeters     float64
	// FrameRate is the rate the loopback host requests frames at.
	FrameRate int
}

// LoadBridge reads the bridge configuration from the environment.
func LoadBridge() Bridge {
	return Bridge{
		Port:              GetEnv("PORT", "8080"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		LogFormat:         GetEnv("LOG_FORMAT", "json"),
		AssetPath:         GetEnv("RS_ASSET_PATH", "./assets/demo"),
		AwaitTimeout:      GetEnvDuration("RS_AWAIT_TIMEOUT", 500*time.Millisecond),
		SceneSelector:     GetEnv("RS_SCENE_SELECTOR", "streaming_levels"),
		CameraQueueSize:   GetEnvInt("RS_CAMERA_QUEUE_SIZE", 16),
		InitMaxRetries:    GetEnvInt("RS_INIT_MAX_RETRIES", 5),
		InitRetryInterval: GetEnvDuration("RS_INIT_RETRY_INTERVAL", 500*time.Millisecond),
		WatchSchema:       GetEnvBool("RS_WATCH_SCHEMA", true),
		WorldToMeters:     GetEnvFloat("RS_WORLD_TO_METERS", 100),
		FrameRate:         GetEnvInt("RS_FRAME_RATE", 60),
	}
}
