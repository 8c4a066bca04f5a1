// file: internal/config/config.go
// version: 2.0.0
// guid: 7b8c9d0e-1f2a-3b4c-5d6e-7f8a9b0c1d2e

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jdfalk/filesync/internal/account"
)

// Repo is a synced library and its local worktree.
type Repo struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Name     string `mapstructure:"name" yaml:"name"`
	Worktree string `mapstructure:"worktree" yaml:"worktree"`
	Paused   bool   `mapstructure:"paused" yaml:"paused,omitempty"`
}

// Config holds application configuration
type Config struct {
	// Account
	ServerURL string
	Username  string
	Token     string

	// HTTP status API
	Host            string
	Port            int
	APIToken        string
	RateLimitPerMin int
	RateLimitBurst  int

	// Transfers
	DataDir          string
	DownloadDir      string
	BandwidthLimit   int64 // bytes per second, 0 = unlimited
	DownloadRetries  int
	RetryDelay       time.Duration
	ProgressInterval time.Duration
	HistoryLimit     int

	// File browser bridge
	WatchSetInterval time.Duration
	WatchDebounce    time.Duration
	ShareLinkTTL     time.Duration
	Repos            []Repo

	LogLevel string
}

var AppConfig Config

// SetDefaults registers every default with viper.
func SetDefaults() {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".filesync")

	viper.SetDefault("account.server_url", "")
	viper.SetDefault("account.username", "")
	viper.SetDefault("account.token", "")

	viper.SetDefault("host", "127.0.0.1")
	viper.SetDefault("port", 13419)
	viper.SetDefault("api_token", "")
	viper.SetDefault("rate_limit_per_min", 600)
	viper.SetDefault("rate_limit_burst", 60)

	viper.SetDefault("data_dir", dataDir)
	viper.SetDefault("download_dir", filepath.Join(home, "Downloads"))
	viper.SetDefault("bandwidth_limit", 0)
	viper.SetDefault("download_retries", 1)
	viper.SetDefault("retry_delay", "2s")
	viper.SetDefault("progress_interval", "500ms")
	viper.SetDefault("history_limit", 1000)

	viper.SetDefault("watch_set_interval", "1s")
	viper.SetDefault("watch_debounce", "2s")
	viper.SetDefault("share_link_ttl", "10m")

	viper.SetDefault("log_level", "info")
}

// InitConfig initializes the application configuration
func InitConfig() {
	SetDefaults()

	AppConfig = Config{
		ServerURL: strings.TrimRight(viper.GetString("account.server_url"), "/"),
		Username:  viper.GetString("account.username"),
		Token:     viper.GetString("account.token"),

		Host:            viper.GetString("host"),
		Port:            viper.GetInt("port"),
		APIToken:        viper.GetString("api_token"),
		RateLimitPerMin: viper.GetInt("rate_limit_per_min"),
		RateLimitBurst:  viper.GetInt("rate_limit_burst"),

		DataDir:          viper.GetString("data_dir"),
		DownloadDir:      viper.GetString("download_dir"),
		BandwidthLimit:   viper.GetInt64("bandwidth_limit"),
		DownloadRetries:  viper.GetInt("download_retries"),
		RetryDelay:       viper.GetDuration("retry_delay"),
		ProgressInterval: viper.GetDuration("progress_interval"),
		HistoryLimit:     viper.GetInt("history_limit"),

		WatchSetInterval: viper.GetDuration("watch_set_interval"),
		WatchDebounce:    viper.GetDuration("watch_debounce"),
		ShareLinkTTL:     viper.GetDuration("share_link_ttl"),

		LogLevel: strings.ToLower(viper.GetString("log_level")),
	}

	var repos []Repo
	if err := viper.UnmarshalKey("repos", &repos); err == nil {
		AppConfig.Repos = repos
	}

	if AppConfig.DownloadRetries < 0 {
		AppConfig.DownloadRetries = 0
	}
}

// Account returns the configured sync account.
func (c Config) Account() account.Account {
	return account.New(c.ServerURL, c.Username, c.Token)
}

// HistoryPath is where the transfer journal lives.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history")
}

// ListenAddr is the host:port the status API binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RepoByID looks up a configured repo.
func (c Config) RepoByID(id string) (Repo, bool) {
	for _, r := range c.Repos {
		if r.ID == id {
			return r, true
		}
	}
	return Repo{}, false
}

// Validate reports configuration errors that would prevent serving.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.WatchSetInterval <= 0 {
		return fmt.Errorf("watch_set_interval must be positive, got %v", c.WatchSetInterval)
	}
	seen := make(map[string]bool, len(c.Repos))
	for _, r := range c.Repos {
		if r.ID == "" {
			return fmt.Errorf("repo %q has no id", r.Name)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate repo id %s", r.ID)
		}
		seen[r.ID] = true
		if r.Worktree == "" {
			return fmt.Errorf("repo %s has no worktree", r.ID)
		}
	}
	return nil
}
