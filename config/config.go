package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all configurable server parameters.
type Config struct {
	Port int `json:"port"`

	// Room defaults applied by create_room when the client omits or sends an invalid value.
	DefaultMode      int `json:"default_mode"`
	DefaultMaxBoosts int `json:"default_max_boosts"`
	DefaultDecks     int `json:"default_decks"`

	// DeckSuggestionThreshold: game_started suggests a second deck when fewer cards remain.
	DeckSuggestionThreshold int `json:"deck_suggestion_threshold"`

	// ActionTimeoutMS bounds how long a request waits for its room to process it.
	ActionTimeoutMS int `json:"action_timeout_ms"`

	RoomRetentionHours int `json:"room_retention_hours"`
	CleanupIntervalMin int `json:"cleanup_interval_min"`

	// DatabaseURL selects Postgres storage; empty keeps rooms in memory.
	DatabaseURL string `json:"database_url"`

	// NATSURL enables mirroring room events to NATS; empty disables it.
	NATSURL string `json:"nats_url"`

	// AuthBaseURL enables JWT checks on system calls; empty leaves them open.
	AuthBaseURL string `json:"auth_base_url"`

	LogLevel string `json:"log_level"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Port:                    8080,
		DefaultMode:             3,
		DefaultMaxBoosts:        3,
		DefaultDecks:            1,
		DeckSuggestionThreshold: 10,
		ActionTimeoutMS:         5000,
		RoomRetentionHours:      24,
		CleanupIntervalMin:      60,
		LogLevel:                "info",
	}
}

// ActionTimeout returns ActionTimeoutMS as a duration.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutMS) * time.Millisecond
}

// RoomRetention returns how long a room lives after creation.
func (c *Config) RoomRetention() time.Duration {
	return time.Duration(c.RoomRetentionHours) * time.Hour
}

// CleanupInterval returns the period between retention sweeps.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMin) * time.Minute
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from an optional config.json file,
// then applies environment variable overrides. Fields not set
// in either source retain their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("failed to parse config.json", "tag", "config", "error", err)
		}
	}

	overrideInt(&cfg.Port, "PORT")
	overrideInt(&cfg.DefaultMode, "DEFAULT_MODE")
	overrideInt(&cfg.DefaultMaxBoosts, "DEFAULT_MAX_BOOSTS")
	overrideInt(&cfg.DefaultDecks, "DEFAULT_DECKS")
	overrideInt(&cfg.DeckSuggestionThreshold, "DECK_SUGGESTION_THRESHOLD")
	overrideInt(&cfg.ActionTimeoutMS, "ACTION_TIMEOUT_MS")
	overrideInt(&cfg.RoomRetentionHours, "ROOM_RETENTION_HOURS")
	overrideInt(&cfg.CleanupIntervalMin, "CLEANUP_INTERVAL_MIN")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.NATSURL, "NATS_URL")
	overrideString(&cfg.AuthBaseURL, "AUTH_BASE_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")

	return cfg
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			slog.Warn("invalid integer in environment", "tag", "config", "key", envKey, "value", val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
