// Package config loads environment-driven configuration for both binaries,
// with optional .env support.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Snapshot holds all configuration for the capture service.
type Snapshot struct {
	// HTTP bind settings
	BindAddr       string
	BindCandidates []string
	AutoFallback   bool

	// Browser settings
	Headless     bool
	BrowserPath  string
	WindowWidth  int
	WindowHeight int
	MaxPages     int
	IdleClose    time.Duration
	LaunchWait   time.Duration

	// Capture defaults
	DefaultSource   string
	DefaultInterval string
	DefaultTheme    string

	// Attempt bounds
	NavTimeout      time.Duration
	RenderTimeout   time.Duration
	MinImageBytes   int
	SourceRetries   int
	RetryBackoff    time.Duration
	AttemptDelay    time.Duration
	RequestDeadline time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

// LoadSnapshot reads capture-service configuration from environment
// variables and an optional .env file.
func LoadSnapshot() (*Snapshot, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Snapshot{
		BindAddr:       getEnvOrDefault("SNAPSHOT_BIND_ADDR", "0.0.0.0:5001"),
		BindCandidates: splitList(getEnvOrDefault("SNAPSHOT_BIND_CANDIDATES", "0.0.0.0:5002,0.0.0.0:5003")),
		AutoFallback:   getEnvBoolOrDefault("SNAPSHOT_BIND_AUTO_FALLBACK", true),

		Headless:     getEnvBoolOrDefault("SNAPSHOT_HEADLESS", true),
		BrowserPath:  getEnvOrDefault("SNAPSHOT_BROWSER_PATH", ""),
		WindowWidth:  getEnvIntOrDefault("SNAPSHOT_WINDOW_WIDTH", 1280),
		WindowHeight: getEnvIntOrDefault("SNAPSHOT_WINDOW_HEIGHT", 720),
		MaxPages:     getEnvIntOrDefault("SNAPSHOT_MAX_PAGES", 2),
		IdleClose:    getEnvDurationMS("SNAPSHOT_IDLE_CLOSE_MS", 5*time.Minute),
		LaunchWait:   getEnvDurationMS("SNAPSHOT_LAUNCH_WAIT_MS", 30*time.Second),

		DefaultSource:   getEnvOrDefault("SNAPSHOT_DEFAULT_SOURCE", "FX"),
		DefaultInterval: getEnvOrDefault("SNAPSHOT_DEFAULT_INTERVAL", "1"),
		DefaultTheme:    getEnvOrDefault("SNAPSHOT_DEFAULT_THEME", "dark"),

		NavTimeout:      getEnvDurationMS("SNAPSHOT_NAV_TIMEOUT_MS", 30*time.Second),
		RenderTimeout:   getEnvDurationMS("SNAPSHOT_RENDER_TIMEOUT_MS", 8*time.Second),
		MinImageBytes:   getEnvIntOrDefault("SNAPSHOT_MIN_IMAGE_BYTES", 2000),
		SourceRetries:   getEnvIntOrDefault("SNAPSHOT_SOURCE_RETRIES", 0),
		RetryBackoff:    getEnvDurationMS("SNAPSHOT_RETRY_BACKOFF_MS", 500*time.Millisecond),
		AttemptDelay:    getEnvDurationMS("SNAPSHOT_ATTEMPT_DELAY_MS", 250*time.Millisecond),
		RequestDeadline: getEnvDurationMS("SNAPSHOT_REQUEST_DEADLINE_MS", 120*time.Second),

		LogLevel: getEnvOrDefault("SNAPSHOT_LOG_LEVEL", "info"),
		LogFile:  getEnvOrDefault("SNAPSHOT_LOG_FILE", "./logs/snapshotd.log"),
	}

	return cfg, nil
}

// ParseLogLevel maps a config string to a slog level, defaulting to Info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDurationMS reads an integer number of milliseconds.
func getEnvDurationMS(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i >= 0 {
			return time.Duration(i) * time.Millisecond
		}
	}
	return defaultVal
}
