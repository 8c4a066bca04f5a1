// file: cmd/download.go
// version: 1.1.0
// guid: c41e9a72-5b0d-4f36-8e1a-3d7b2f96c580

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jdfalk/filesync/internal/account"
	"github.com/jdfalk/filesync/internal/api"
	"github.com/jdfalk/filesync/internal/config"
	"github.com/jdfalk/filesync/internal/transfer"
)

var noProgress bool

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <repo-id> <path> [local-path]",
	Short: "Download one file without the daemon",
	Long: `Download a single file from a repository through an in-process
transfer manager and show its progress. local-path defaults to the download
directory joined with the file name.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		local := ""
		if len(args) == 3 {
			local = args[2]
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return runDownload(ctx, cmd.OutOrStdout(), config.AppConfig, args[0], args[1], local, !noProgress)
	},
}

func init() {
	downloadCmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
}

// errReporter is implemented by tasks that keep their failure cause.
type errReporter interface {
	Err() error
}

type canceler interface {
	Cancel()
}

// cancelWait bounds how long an interrupted download gets to unwind.
const cancelWait = 5 * time.Second

func runDownload(ctx context.Context, out io.Writer, cfg config.Config, repoID, remote, local string, showProgress bool) error {
	acct := cfg.Account()
	if !acct.IsValid() {
		return fmt.Errorf("set --server, --user and --token first: %w", account.ErrInvalid)
	}
	if !strings.HasPrefix(remote, "/") {
		remote = "/" + remote
	}
	remote = path.Clean(remote)
	if remote == "/" {
		return fmt.Errorf("path must name a file")
	}
	if local == "" {
		local = filepath.Join(cfg.DownloadDir, path.Base(remote))
	}

	client := api.NewClient("filesync/"+Version, api.DefaultTimeout)
	mgr := transfer.NewManager(transfer.DownloadFactory(client, downloadOptions(cfg)),
		transfer.WithProgressInterval(cfg.ProgressInterval))
	defer mgr.Close(shutdownTimeout)

	task, err := mgr.AddDownloadTask(acct, repoID, remote, local)
	if err != nil {
		return err
	}

	label := path.Base(remote)
	if repo, ok := cfg.RepoByID(repoID); ok && repo.Name != "" {
		label = repo.Name + ":" + label
	}

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetVisibility(showProgress),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	sized := false
wait:
	for {
		select {
		case <-ctx.Done():
			abandonDownload(task, local)
			return ctx.Err()
		case <-task.Done():
			break wait
		case <-ticker.C:
			p := task.Progress()
			if !sized && p.Total > 0 {
				bar.ChangeMax64(p.Total)
				sized = true
			}
			_ = bar.Set64(p.Transferred)
		}
	}

	if !task.Succeeded() {
		var cause error = errors.New("download failed")
		if r, ok := task.(errReporter); ok && r.Err() != nil {
			cause = r.Err()
		}
		return cause
	}

	p := task.Progress()
	if !sized && p.Total > 0 {
		bar.ChangeMax64(p.Total)
	}
	_ = bar.Set64(p.Transferred)
	_ = bar.Finish()
	fmt.Fprintf(out, "\nSaved %s (%s)\n", local, p.Describe())
	return nil
}

// abandonDownload stops an interrupted task and removes its partial file.
func abandonDownload(task transfer.Task, local string) {
	if c, ok := task.(canceler); ok {
		c.Cancel()
	}
	select {
	case <-task.Done():
	case <-time.After(cancelWait):
		log.Printf("[WARN] Download to %s did not stop within %v", local, cancelWait)
	}
	if err := os.Remove(local + ".part"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[WARN] Failed to remove partial download %s: %v", local+".part", err)
	}
}
