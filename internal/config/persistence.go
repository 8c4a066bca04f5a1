// file: internal/config/persistence.go
// version: 2.0.0
// guid: 9c8d7e6f-5a4b-3c2d-1e0f-9a8b7c6d5e4f

package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type accountFile struct {
	ServerURL string `yaml:"server_url"`
	Username  string `yaml:"username"`
	Token     string `yaml:"token,omitempty"`
}

// fileConfig is the on-disk layout; keys match the viper keys.
type fileConfig struct {
	Account          accountFile `yaml:"account"`
	Host             string      `yaml:"host"`
	Port             int         `yaml:"port"`
	APIToken         string      `yaml:"api_token,omitempty"`
	RateLimitPerMin  int         `yaml:"rate_limit_per_min"`
	RateLimitBurst   int         `yaml:"rate_limit_burst"`
	DataDir          string      `yaml:"data_dir"`
	DownloadDir      string      `yaml:"download_dir"`
	BandwidthLimit   int64       `yaml:"bandwidth_limit"`
	DownloadRetries  int         `yaml:"download_retries"`
	RetryDelay       string      `yaml:"retry_delay"`
	ProgressInterval string      `yaml:"progress_interval"`
	HistoryLimit     int         `yaml:"history_limit"`
	WatchSetInterval string      `yaml:"watch_set_interval"`
	WatchDebounce    string      `yaml:"watch_debounce"`
	ShareLinkTTL     string      `yaml:"share_link_ttl"`
	LogLevel         string      `yaml:"log_level"`
	Repos            []Repo      `yaml:"repos,omitempty"`
}

// ConfigFilePath returns the YAML config file in use, falling back to
// config.yaml in the data dir.
func ConfigFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	if AppConfig.DataDir != "" {
		return filepath.Join(AppConfig.DataDir, "config.yaml")
	}
	return ""
}

// SaveConfigToFile writes the current configuration as YAML.
func SaveConfigToFile() error {
	path := ConfigFilePath()
	if path == "" {
		return fmt.Errorf("cannot determine config file path")
	}
	return SaveToFile(path, AppConfig)
}

// SaveToFile writes cfg to path.
func SaveToFile(path string, cfg Config) error {
	fc := fileConfig{
		Account: accountFile{
			ServerURL: cfg.ServerURL,
			Username:  cfg.Username,
			Token:     cfg.Token,
		},
		Host:             cfg.Host,
		Port:             cfg.Port,
		APIToken:         cfg.APIToken,
		RateLimitPerMin:  cfg.RateLimitPerMin,
		RateLimitBurst:   cfg.RateLimitBurst,
		DataDir:          cfg.DataDir,
		DownloadDir:      cfg.DownloadDir,
		BandwidthLimit:   cfg.BandwidthLimit,
		DownloadRetries:  cfg.DownloadRetries,
		RetryDelay:       cfg.RetryDelay.String(),
		ProgressInterval: cfg.ProgressInterval.String(),
		HistoryLimit:     cfg.HistoryLimit,
		WatchSetInterval: cfg.WatchSetInterval.String(),
		WatchDebounce:    cfg.WatchDebounce.String(),
		ShareLinkTTL:     cfg.ShareLinkTTL.String(),
		LogLevel:         cfg.LogLevel,
		Repos:            cfg.Repos,
	}

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	// Write with restrictive permissions since it holds the account token
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Printf("[INFO] Configuration saved to file: %s", path)
	return nil
}

// LoadFromFile merges a YAML config file into viper and rebuilds AppConfig.
// A missing file is not an error.
func LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	// Parse with yaml.v3 first so syntax errors name the file.
	var raw map[string]any
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := viper.MergeConfigMap(raw); err != nil {
		return fmt.Errorf("failed to merge config file %s: %w", path, err)
	}

	InitConfig()
	log.Printf("[INFO] Loaded configuration from %s", path)
	return nil
}
