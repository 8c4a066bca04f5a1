// file: cmd/status.go
// version: 1.0.0
// guid: 5b9e3d17-a08c-4c62-9f4e-71d2c8b6e0a3

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdfalk/filesync/internal/config"
	"github.com/jdfalk/filesync/internal/server"
	"github.com/jdfalk/filesync/internal/transfer"
)

var (
	statusRepo   string
	statusPath   string
	historyLimit int
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show transfers of the running daemon",
	Long: `Print the running transfer and the backlog of the local daemon. With
--repo and --path, print the progress of a single file instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dc := newDaemonClient(config.AppConfig)
		if statusRepo != "" || statusPath != "" {
			return runProgress(cmd.Context(), cmd.OutOrStdout(), dc, statusRepo, statusPath)
		}
		return runStatus(cmd.Context(), cmd.OutOrStdout(), dc)
	},
}

// shareCmd represents the share command
var shareCmd = &cobra.Command{
	Use:   "share <local-path>",
	Short: "Print a share link for a file in a watched worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShare(cmd.Context(), cmd.OutOrStdout(), newDaemonClient(config.AppConfig), args[0])
	},
}

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently finished transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(cmd.Context(), cmd.OutOrStdout(), newDaemonClient(config.AppConfig), historyLimit)
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "filesync %s\n", Version)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRepo, "repo", "", "repo id of a single file")
	statusCmd.Flags().StringVar(&statusPath, "path", "", "repo path of a single file")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of transfers to list")
}

// daemonClient talks to the status API of a running daemon.
type daemonClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newDaemonClient(cfg config.Config) *daemonClient {
	return &daemonClient{
		baseURL: "http://" + cfg.ListenAddr(),
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *daemonClient) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	u := d.baseURL + "/api/v1" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", d.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var er server.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error != "" {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, er.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse daemon response: %w", err)
	}
	return nil
}

func runStatus(ctx context.Context, out io.Writer, dc *daemonClient) error {
	var snap transfer.Snapshot
	if err := dc.do(ctx, http.MethodGet, "/transfers", nil, nil, &snap); err != nil {
		return err
	}
	if snap.Current == nil {
		fmt.Fprintln(out, "Idle")
	} else {
		fmt.Fprintf(out, "Downloading %s:%s %s\n", snap.Current.RepoID, snap.Current.Path, snap.Current.Progress)
		if snap.Current.LocalPath != "" {
			fmt.Fprintf(out, "  -> %s\n", snap.Current.LocalPath)
		}
	}
	for i, p := range snap.Pending {
		fmt.Fprintf(out, "  %d. %s:%s\n", i+1, p.RepoID, p.Path)
	}
	return nil
}

func runProgress(ctx context.Context, out io.Writer, dc *daemonClient, repoID, p string) error {
	if repoID == "" || p == "" {
		return fmt.Errorf("--repo and --path must be given together")
	}
	var resp server.ProgressResponse
	q := url.Values{"repo_id": {repoID}, "path": {p}}
	if err := dc.do(ctx, http.MethodGet, "/transfers/progress", q, nil, &resp); err != nil {
		return err
	}
	if resp.Progress == "" {
		fmt.Fprintf(out, "%s:%s is not queued\n", repoID, p)
		return nil
	}
	fmt.Fprintf(out, "%s:%s %s\n", repoID, p, resp.Progress)
	return nil
}

func runShare(ctx context.Context, out io.Writer, dc *daemonClient, localPath string) error {
	var resp server.ShareLinkResponse
	if err := dc.do(ctx, http.MethodPost, "/findersync/share-link", nil, server.ShareLinkRequest{Path: localPath}, &resp); err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Link)
	return nil
}

func runHistory(ctx context.Context, out io.Writer, dc *daemonClient, limit int) error {
	var resp server.HistoryResponse
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := dc.do(ctx, http.MethodGet, "/transfers/history", q, nil, &resp); err != nil {
		return err
	}
	if len(resp.Items) == 0 {
		fmt.Fprintln(out, "No finished transfers")
		return nil
	}
	for _, r := range resp.Items {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		fmt.Fprintf(out, "%s  %-6s %s:%s (%v)\n", r.FinishedAt.Local().Format(time.DateTime), result,
			r.RepoID, r.Path, time.Duration(r.ElapsedMs)*time.Millisecond)
	}
	return nil
}
