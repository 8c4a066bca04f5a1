// file: cmd/root.go
// version: 2.0.0
// guid: 6a7b8c9d-0e1f-2a3b-4c5d-6e7f8a9b0c1d

package cmd

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jdfalk/filesync/internal/config"
)

// Version is stamped at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "filesync",
	Short: "Sync client for a remote file library",
	Long: `filesync downloads files from a remote library one at a time, keeps
a watch set of local worktrees for the file browser extension, and serves a
local status API that reports transfer progress.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.filesync/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "sync server URL, e.g. https://files.example.com")
	rootCmd.PersistentFlags().String("user", "", "account username")
	rootCmd.PersistentFlags().String("token", "", "account auth token")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for logs and the saved config")
	rootCmd.PersistentFlags().String("download-dir", "", "default directory for downloads")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	viper.BindPFlag("account.server_url", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("account.username", rootCmd.PersistentFlags().Lookup("user"))
	viper.BindPFlag("account.token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("download_dir", rootCmd.PersistentFlags().Lookup("download-dir"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(filepath.Join(home, ".filesync"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("[WARN] %v", err)
	}
	viper.SetEnvPrefix("filesync")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Printf("[INFO] Using config file: %s", viper.ConfigFileUsed())
	}

	config.InitConfig()
	setLogLevel(config.AppConfig.LogLevel)
}
