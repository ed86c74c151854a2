// Package config loads the process-wide configuration for apikey-hub.
// The configuration is read once at startup (viper: flags, APIKEYHUB_*
// environment variables, optional apikeyhub.yaml) into an explicit Config
// struct that is passed into each component. Nothing reads ambient global
// state after boot.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment tags embedded in every issued key.
const (
	EnvLive = "live"
	EnvTest = "test"
)

// Defaults mirrored from the service's historical deployment.
const (
	DefaultAppName      = "apikeys-hub"
	DefaultAppTag       = "fhs"
	DefaultSecretLength = 32
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8800
)

// Config is the full apikey-hub configuration.
type Config struct {
	AppName string // Service name, used as the audit source tag (lowercased).

	Server  ServerConfig
	Keys    KeysConfig
	Store   StoreConfig
	Gateway GatewayConfig
	Audit   AuditConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host             string
	Port             int
	ShutdownTimeout  time.Duration
	CORSOrigins      []string
	VerifyRatePerMin int // Per-key rate limit on the verify endpoint; 0 disables.
}

// KeysConfig controls key generation and hashing.
type KeysConfig struct {
	AppTag       string // Short application tag prefixed to every key.
	LiveMode     bool   // Selects the "live" env tag instead of "test".
	SecretLength int    // Random secret length in bytes before hex encoding.
	ServerSecret string // HMAC key for digests. Required, never logged.
}

// EnvTag returns the environment tag selected by LiveMode.
func (k KeysConfig) EnvTag() string {
	if k.LiveMode {
		return EnvLive
	}
	return EnvTest
}

// StoreConfig controls the key record store.
type StoreConfig struct {
	DSN string // sqlite path, postgres:// URL, or mysql DSN.
}

// GatewayConfig controls the access-control gateway collaborator.
type GatewayConfig struct {
	Mode            string // "http" or "local".
	BaseURL         string
	CheckAccessPath string
	VerifyTokenPath string
	LocalSecret     string // HS256 secret for the local (dev/test) gateway.
	SuperAdminRole  string // Role name allowed to manage any owner's keys.
	Timeout         time.Duration
}

// AuditConfig controls the activity-event sink.
type AuditConfig struct {
	Enabled bool
	URL     string // Trail endpoint receiving activity events.
}

// Load builds a Config from the given viper instance, applying defaults
// and validating required fields.
func Load(v *viper.Viper) (Config, error) {
	setDefaults(v)

	cfg := Config{
		AppName: strings.ToLower(strings.TrimSpace(v.GetString("app.name"))),
		Server: ServerConfig{
			Host:             v.GetString("server.host"),
			Port:             v.GetInt("server.port"),
			ShutdownTimeout:  v.GetDuration("server.shutdown_timeout"),
			CORSOrigins:      v.GetStringSlice("server.cors_origins"),
			VerifyRatePerMin: v.GetInt("server.verify_rate_per_min"),
		},
		Keys: KeysConfig{
			AppTag:       strings.TrimSpace(v.GetString("keys.app_tag")),
			LiveMode:     v.GetBool("keys.live_mode"),
			SecretLength: v.GetInt("keys.secret_length"),
			ServerSecret: v.GetString("keys.server_secret"),
		},
		Store: StoreConfig{
			DSN: v.GetString("store.dsn"),
		},
		Gateway: GatewayConfig{
			Mode:            strings.ToLower(v.GetString("gateway.mode")),
			BaseURL:         strings.TrimRight(v.GetString("gateway.base_url"), "/"),
			CheckAccessPath: v.GetString("gateway.check_access_path"),
			VerifyTokenPath: v.GetString("gateway.verify_token_path"),
			LocalSecret:     v.GetString("gateway.local_secret"),
			SuperAdminRole:  v.GetString("gateway.super_admin_role"),
			Timeout:         v.GetDuration("gateway.timeout"),
		},
		Audit: AuditConfig{
			Enabled: v.GetBool("audit.enabled"),
			URL:     v.GetString("audit.url"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", DefaultAppName)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.verify_rate_per_min", 120)
	v.SetDefault("keys.app_tag", DefaultAppTag)
	v.SetDefault("keys.live_mode", false)
	v.SetDefault("keys.secret_length", DefaultSecretLength)
	v.SetDefault("gateway.mode", "http")
	v.SetDefault("gateway.base_url", "http://localhost:9000")
	v.SetDefault("gateway.check_access_path", "/check-access")
	v.SetDefault("gateway.verify_token_path", "/check-validate-access-token")
	v.SetDefault("gateway.super_admin_role", "Super Admin")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("audit.enabled", false)
}

func (c Config) validate() error {
	if c.Keys.ServerSecret == "" {
		return errors.New("config: keys.server_secret is required (APIKEYHUB_KEYS_SERVER_SECRET)")
	}
	if c.Keys.AppTag == "" || strings.ContainsAny(c.Keys.AppTag, "_ ") {
		return fmt.Errorf("config: invalid app tag %q", c.Keys.AppTag)
	}
	if c.Keys.SecretLength < 16 {
		return fmt.Errorf("config: keys.secret_length %d below minimum 16", c.Keys.SecretLength)
	}
	switch c.Gateway.Mode {
	case "http", "local":
	default:
		return fmt.Errorf("config: unknown gateway mode %q", c.Gateway.Mode)
	}
	if c.Gateway.Mode == "local" && c.Gateway.LocalSecret == "" {
		return errors.New("config: gateway.local_secret is required in local mode")
	}
	if c.Audit.Enabled && c.Audit.URL == "" {
		return errors.New("config: audit.url is required when audit is enabled")
	}
	return nil
}
