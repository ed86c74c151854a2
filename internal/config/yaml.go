package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk apikeyhub.yaml layout. It intentionally mirrors
// the viper key space so a generated file round-trips through Load.
type FileConfig struct {
	App struct {
		Name string `yaml:"name"`
	} `yaml:"app"`
	Server struct {
		Host             string   `yaml:"host"`
		Port             int      `yaml:"port"`
		ShutdownTimeout  string   `yaml:"shutdown_timeout"`
		CORSOrigins      []string `yaml:"cors_origins"`
		VerifyRatePerMin int      `yaml:"verify_rate_per_min"`
	} `yaml:"server"`
	Keys struct {
		AppTag       string `yaml:"app_tag"`
		LiveMode     bool   `yaml:"live_mode"`
		SecretLength int    `yaml:"secret_length"`
		ServerSecret string `yaml:"server_secret"`
	} `yaml:"keys"`
	Store struct {
		DSN string `yaml:"dsn"`
	} `yaml:"store"`
	Gateway struct {
		Mode            string `yaml:"mode"`
		BaseURL         string `yaml:"base_url"`
		CheckAccessPath string `yaml:"check_access_path"`
		VerifyTokenPath string `yaml:"verify_token_path"`
		LocalSecret     string `yaml:"local_secret,omitempty"`
	} `yaml:"gateway"`
	Audit struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url,omitempty"`
	} `yaml:"audit"`
}

// StarterFile returns a FileConfig pre-filled with defaults and the given
// server secret.
func StarterFile(serverSecret string) FileConfig {
	var f FileConfig
	f.App.Name = DefaultAppName
	f.Server.Host = DefaultHost
	f.Server.Port = DefaultPort
	f.Server.ShutdownTimeout = "30s"
	f.Server.CORSOrigins = []string{"*"}
	f.Server.VerifyRatePerMin = 120
	f.Keys.AppTag = DefaultAppTag
	f.Keys.LiveMode = false
	f.Keys.SecretLength = DefaultSecretLength
	f.Keys.ServerSecret = serverSecret
	f.Store.DSN = "apikeyhub.db"
	f.Gateway.Mode = "http"
	f.Gateway.BaseURL = "http://localhost:9000"
	f.Gateway.CheckAccessPath = "/check-access"
	f.Gateway.VerifyTokenPath = "/check-validate-access-token"
	f.Audit.Enabled = false
	return f
}

// WriteFile marshals f as YAML to path with owner-only permissions, since
// the file carries the server secret.
func WriteFile(path string, f FileConfig) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
