// file: cmd/serve.go
// version: 1.1.0
// guid: 8d2b7f40-1c6e-4e95-a3f8-6b0e9d5c2a17

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdfalk/filesync/internal/account"
	"github.com/jdfalk/filesync/internal/api"
	"github.com/jdfalk/filesync/internal/config"
	"github.com/jdfalk/filesync/internal/findersync"
	"github.com/jdfalk/filesync/internal/history"
	"github.com/jdfalk/filesync/internal/realtime"
	"github.com/jdfalk/filesync/internal/server"
	"github.com/jdfalk/filesync/internal/tasks"
	"github.com/jdfalk/filesync/internal/transfer"
	"github.com/jdfalk/filesync/internal/watcher"
)

const shutdownTimeout = 30 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon",
	Long: `Run the transfer manager, the file browser bridge and the local
status API until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.AppConfig
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logFile, err := setupFileLogging(cfg.DataDir)
		if err != nil {
			log.Printf("[WARN] File logging disabled: %v", err)
		} else {
			defer logFile.Close()
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runDaemon(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port for the status API (default 13419)")
	serveCmd.Flags().String("host", "", "host the status API binds to (default 127.0.0.1)")
	serveCmd.Flags().String("api-token", "", "token clients must present to the status API")

	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("api_token", serveCmd.Flags().Lookup("api-token"))
}

func downloadOptions(cfg config.Config) tasks.DownloadOptions {
	opts := tasks.DefaultDownloadOptions()
	opts.Retries = cfg.DownloadRetries
	if cfg.RetryDelay > 0 {
		opts.RetryDelay = cfg.RetryDelay
	}
	opts.Limiter = tasks.NewBandwidthLimiter(int(cfg.BandwidthLimit))
	return opts
}

// liveConfig is the configuration the daemon serves with. It is replaced
// wholesale on reload.
var liveConfig atomic.Pointer[config.Config]

func currentAccount() account.Account {
	if cfg := liveConfig.Load(); cfg != nil {
		return cfg.Account()
	}
	return config.AppConfig.Account()
}

// reloadConfig re-reads path and applies the account and repo list. Other
// settings keep their startup values until restart.
func reloadConfig(path string, bridge *findersync.Bridge) error {
	if err := config.LoadFromFile(path); err != nil {
		return err
	}
	cfg := config.AppConfig
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("reloaded configuration rejected: %w", err)
	}

	liveConfig.Store(&cfg)
	bridge.SetRepos(cfg.Repos)
	setLogLevel(cfg.LogLevel)
	log.Printf("[INFO] Configuration reloaded: %s, %d repos", cfg.Account(), len(cfg.Repos))
	return nil
}

func reloadOnHangup(ctx context.Context, path string, bridge *findersync.Bridge) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadConfig(path, bridge); err != nil {
				log.Printf("[ERROR] Config reload failed: %v", err)
			}
		}
	}
}

// runDaemon wires the transfer manager, its history journal, the bridge, the
// worktree watcher and the HTTP API, then serves until ctx ends or a signal
// arrives.
func runDaemon(ctx context.Context, cfg config.Config) error {
	liveConfig.Store(&cfg)
	defer liveConfig.Store(nil)
	if !cfg.Account().IsValid() {
		log.Printf("[WARN] No account token configured; downloads will fail until one is set")
	}

	journal, err := history.Open(cfg.HistoryPath(), cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to open transfer history: %w", err)
	}
	defer journal.Close()
	log.Printf("[INFO] Transfer history at %s holds %d records", cfg.HistoryPath(), journal.Len())

	hub := realtime.NewEventHub()
	client := api.NewClient("filesync/"+Version, api.DefaultTimeout)

	mgr := transfer.NewManager(
		transfer.DownloadFactory(client, downloadOptions(cfg)),
		transfer.WithProgressInterval(cfg.ProgressInterval),
		transfer.WithListener(transfer.HubListener(hub)),
		transfer.WithListener(history.Listener(journal)),
	)
	defer func() {
		if err := mgr.Close(shutdownTimeout); err != nil {
			log.Printf("[WARN] Transfer manager shutdown: %v", err)
		}
	}()

	bridge := findersync.NewBridge(mgr, client, currentAccount, cfg.Repos, findersync.Options{
		Interval:     cfg.WatchSetInterval,
		ShareLinkTTL: cfg.ShareLinkTTL,
		OnShareLink:  hub.SendShareLink,
	})
	bridge.Start()
	defer bridge.Stop()

	reloadCtx, stopReload := context.WithCancel(ctx)
	defer stopReload()
	go reloadOnHangup(reloadCtx, config.ConfigFilePath(), bridge)

	w := watcher.New(func(root string) {
		log.Printf("[DEBUG] Worktree changed: %s", root)
		bridge.Refresh()
	}, cfg.WatchDebounce)
	worktrees := make([]string, 0, len(cfg.Repos))
	for _, r := range cfg.Repos {
		worktrees = append(worktrees, r.Worktree)
	}
	if err := w.Start(worktrees...); err != nil {
		log.Printf("[WARN] Worktree watcher unavailable: %v", err)
	} else {
		defer w.Stop()
		log.Printf("[INFO] Watching %d of %d worktrees", len(w.Roots()), len(worktrees))
	}

	srv := server.NewServer(server.Deps{
		Transfers:       mgr,
		Bridge:          bridge,
		History:         journal,
		Hub:             hub,
		Account:         currentAccount,
		DownloadDir:     cfg.DownloadDir,
		Version:         Version,
		APIToken:        cfg.APIToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		RateLimitBurst:  cfg.RateLimitBurst,
	})

	scfg := server.GetDefaultServerConfig()
	scfg.Host = cfg.Host
	scfg.Port = strconv.Itoa(cfg.Port)
	return srv.Start(ctx, scfg)
}
