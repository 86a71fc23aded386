package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBHUB_* environment variable overrides, and
// returns the final Config. A missing file is not an error; defaults plus
// environment apply. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBHUB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. The
// per-chain RPC URL variables are consumed by the onchain package directly.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "ARBHUB_MODE")
	setStr(&cfg.LogLevel, "ARBHUB_LOG_LEVEL")

	setBool(&cfg.Server.Enabled, "ARBHUB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBHUB_SERVER_PORT")

	setFloat(&cfg.Monitor.DefaultThresholdPercent, "ARBHUB_MONITOR_THRESHOLD_PERCENT")
	setInt(&cfg.Monitor.PollIntervalMs, "ARBHUB_MONITOR_POLL_INTERVAL_MS")

	setStr(&cfg.Notify.TelegramToken, "ARBHUB_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBHUB_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBHUB_DISCORD_WEBHOOK_URL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
