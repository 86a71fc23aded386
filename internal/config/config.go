// Package config defines the top-level configuration for the arbitrage hub
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBHUB_* environment variables.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Exchanges ExchangesConfig `toml:"exchanges"`
	Chains    ChainsConfig    `toml:"chains"`
	Monitor   MonitorConfig   `toml:"monitor"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// VenueConfig holds one exchange's endpoints. Empty fields select the
// venue's production endpoints.
type VenueConfig struct {
	SpotWS     string `toml:"spot_ws"`
	FuturesWS  string `toml:"futures_ws"`
	WS         string `toml:"ws"` // venues with a single shared endpoint
	SpotAPI    string `toml:"spot_api"`
	FuturesAPI string `toml:"futures_api"`
	API        string `toml:"api"` // venues with a single REST host
}

// ExchangesConfig holds per-venue endpoint overrides.
type ExchangesConfig struct {
	Binance VenueConfig `toml:"binance"`
	MEXC    VenueConfig `toml:"mexc"`
	Gateio  VenueConfig `toml:"gateio"`
	Bitget  VenueConfig `toml:"bitget"`
}

// ChainsConfig holds on-chain parameters. RPCURLs maps a chain name to a
// JSON-RPC endpoint, overriding the built-in default for that chain; the
// per-chain ARBHUB_<CHAIN>_RPC_URL environment variables win over both.
type ChainsConfig struct {
	RPCURLs map[string]string `toml:"rpc_urls"`
}

// MonitorConfig holds monitoring defaults and the optional list of tickers
// to start watching at boot.
type MonitorConfig struct {
	DefaultThresholdPercent float64  `toml:"default_threshold_percent"`
	Tickers                 []string `toml:"tickers"`
	PollIntervalMs          int      `toml:"poll_interval_ms"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Chains: ChainsConfig{
			RPCURLs: map[string]string{},
		},
		Monitor: MonitorConfig{
			DefaultThresholdPercent: 1.0,
			PollIntervalMs:          500,
		},
		Notify: NotifyConfig{
			Events: []string{"arb_detected", "session_error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if c.Monitor.DefaultThresholdPercent <= 0 {
		errs = append(errs, "monitor: default_threshold_percent must be > 0")
	}
	if c.Monitor.PollIntervalMs < 0 {
		errs = append(errs, "monitor: poll_interval_ms must be >= 0")
	}
	if strings.ToLower(c.Mode) == "monitor" && len(c.Monitor.Tickers) == 0 {
		errs = append(errs, "monitor: at least one ticker is required for monitor mode")
	}

	// Telegram credentials must come in pairs.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
