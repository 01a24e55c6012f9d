// Package config loads environment-backed settings, optionally seeded from
// a .env file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/centrixhq/centrix/internal/types"
	"github.com/joho/godotenv"
)

// Settings is the application configuration shared by every binary.
type Settings struct {
	Env    string
	DBPath string
	PidDir string

	ServerHost string
	ServerPort string

	JWTSecret string
	APIKey    string
	APISecret string

	ApprovalTTLSec int64
	ClaimTTLSec    int64
	ControlTTLSec  int64

	WorkerPoll        time.Duration
	HeartbeatInterval time.Duration
	StreamPoll        time.Duration

	GatewayEnabled bool
	GatewayHost    string
	GatewayPort    int

	// Services maps supervised service names to their launch argv.
	Services     map[string][]string
	ServiceOrder []string
}

// Load reads settings from the environment. A .env file in the working
// directory is applied first when present.
func Load() Settings {
	_ = godotenv.Load()

	settings := Settings{
		Env:    getEnv("ENV", "development"),
		DBPath: getEnv("CENTRIX_DB", filepath.Join("runtime", "ctl.db")),
		PidDir: getEnv("CENTRIX_PID_DIR", filepath.Join("runtime", "pids")),

		ServerHost: getEnv("SERVER_HOST", "127.0.0.1"),
		ServerPort: getEnv("PORT", "8787"),

		JWTSecret: getEnv("JWT_SECRET", "centrix-secret-key"),
		APIKey:    getEnv("API_KEY", "centrix-api-key"),
		APISecret: getEnv("API_SECRET", "centrix-api-secret"),

		ApprovalTTLSec: getEnvInt64("APPROVAL_TTL_SEC", 300),
		ClaimTTLSec:    getEnvInt64("CLAIM_TTL_SEC", 60),
		ControlTTLSec:  getEnvInt64("CONTROL_LOCK_TTL_SEC", 30),

		WorkerPoll:        getEnvDuration("WORKER_POLL_MS", 1000),
		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL_MS", 5000),
		StreamPoll:        getEnvDuration("STREAM_POLL_MS", 500),

		GatewayEnabled: getEnv("GATEWAY_ENABLED", "false") == "true",
		GatewayHost:    getEnv("GATEWAY_HOST", "127.0.0.1"),
		GatewayPort:    int(getEnvInt64("GATEWAY_PORT", 4002)),
	}

	bin, err := os.Executable()
	if err != nil {
		bin = "centrix"
	}
	dir := filepath.Dir(bin)

	settings.ServiceOrder = splitList(getEnv("CENTRIX_SERVICES", "server,worker,slack,adapter"))
	binaries := map[string]string{"slack": "slackbot"}
	settings.Services = make(map[string][]string, len(settings.ServiceOrder))
	for _, name := range settings.ServiceOrder {
		binary := binaries[name]
		if binary == "" {
			binary = name
		}
		settings.Services[name] = []string{filepath.Join(dir, binary)}
	}

	// Command validation must accept exactly the supervised set.
	types.KnownServices = append([]string(nil), settings.ServiceOrder...)

	return settings
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallbackMS int64) time.Duration {
	return time.Duration(getEnvInt64(key, fallbackMS)) * time.Millisecond
}
