package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Generation backend connection
	BackendURL string
	ClientID   string // empty means a random id is generated

	// Layer pool
	Layers     int // hardware channel capacity
	SampleRate int

	// Volume debouncing and the frame clock driving it
	DebounceWindow time.Duration
	FrameInterval  time.Duration

	// Monitor stream; 0 disables the HTTP server
	MonitorPort int

	// Reconnect backoff cap
	ReconnectMax time.Duration
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		BackendURL: envStr("PROMPTDJ_BACKEND_URL", "ws://127.0.0.1:8123"),
		ClientID:   envStr("PROMPTDJ_CLIENT_ID", ""),

		Layers:     envInt("PROMPTDJ_LAYERS", 4),
		SampleRate: envInt("PROMPTDJ_SAMPLE_RATE", 44100),

		DebounceWindow: time.Duration(envInt("PROMPTDJ_DEBOUNCE_MS", 150)) * time.Millisecond,
		FrameInterval:  time.Duration(envInt("PROMPTDJ_FRAME_MS", 33)) * time.Millisecond,

		MonitorPort: envInt("PROMPTDJ_MONITOR_PORT", 0),

		ReconnectMax: time.Duration(envInt("PROMPTDJ_RECONNECT_MAX_S", 30)) * time.Second,
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
