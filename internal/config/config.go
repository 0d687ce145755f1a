package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string

	UndoEnabled bool
	MaxUndo     int
	Clock       time.Duration

	WaitingRoomTTL time.Duration
	IdleTimeout    time.Duration
	SweepInterval  time.Duration

	NotifyURL   string
	NotifyToken string

	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:     ":8080",
		UndoEnabled:    true,
		MaxUndo:        3,
		Clock:          1800 * time.Second,
		WaitingRoomTTL: 300 * time.Second,
		IdleTimeout:    1800 * time.Second,
		SweepInterval:  60 * time.Second,
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AllowedOrigins = splitList(env("ALLOWED_ORIGINS"))

	cfg.RedisURL = env("REDIS_URL")
	cfg.DatabaseURL = env("DATABASE_URL")

	if v := env("UNDO_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UndoEnabled = b
		}
	}
	if v := env("MAX_UNDO"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxUndo = n
		}
	}
	// 0 disables clocks
	if v := env("CLOCK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Clock = time.Duration(n) * time.Second
		}
	}
	cfg.WaitingRoomTTL = seconds("WAITING_ROOM_TTL_SEC", cfg.WaitingRoomTTL)
	cfg.IdleTimeout = seconds("IDLE_TIMEOUT_SEC", cfg.IdleTimeout)
	cfg.SweepInterval = seconds("SWEEP_INTERVAL_SEC", cfg.SweepInterval)

	cfg.NotifyURL = env("NOTIFY_URL")
	cfg.NotifyToken = env("NOTIFY_TOKEN")
	cfg.MessagesDir = env("MESSAGES_DIR")

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

// seconds reads a positive number of seconds; anything else keeps def.
func seconds(k string, def time.Duration) time.Duration {
	v := env(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
