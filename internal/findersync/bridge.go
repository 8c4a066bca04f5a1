// file: internal/findersync/bridge.go
// version: 1.0.0
// guid: 4f1e0d8c-2b6a-4a3e-9f57-c81d2e7b6a90

// Package findersync feeds the file-browser extension: a watch set of repo
// worktrees with their sync status, refreshed on a timer and read from other
// goroutines, plus share-link generation for files inside those worktrees.
package findersync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jdfalk/filesync/internal/account"
	"github.com/jdfalk/filesync/internal/cache"
	"github.com/jdfalk/filesync/internal/config"
	"github.com/jdfalk/filesync/internal/metrics"
	"github.com/jdfalk/filesync/internal/transfer"
)

// DefaultInterval matches the extension's polling cadence.
const DefaultInterval = time.Second

// DefaultShareLinkTTL bounds how long a generated link is reused.
const DefaultShareLinkTTL = 10 * time.Minute

// ErrNotInWatchSet is returned for paths outside every watched worktree.
var ErrNotInWatchSet = errors.New("path is not inside a watched worktree")

// Status is the badge shown for a watched directory or file.
type Status string

const (
	StatusNone    Status = "none"
	StatusSyncing Status = "syncing"
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusError   Status = "error"
	StatusPaused  Status = "paused"
)

// WatchDir is one entry of the watch set.
type WatchDir struct {
	Path   string `json:"path"`
	RepoID string `json:"repo_id"`
	Status Status `json:"status"`
}

// Transfers is the read-only view of the transfer manager the bridge polls.
type Transfers interface {
	GetProgress(repoID, path string) string
	Snapshot() transfer.Snapshot
}

// LinkFetcher asks the server for a share link.
type LinkFetcher interface {
	SharedLink(ctx context.Context, acct account.Account, repoID, path string) (string, error)
}

// Options configures a Bridge.
type Options struct {
	Interval     time.Duration
	ShareLinkTTL time.Duration
	// OnShareLink receives every generated link, e.g. to push it to the
	// extension or the clipboard.
	OnShareLink func(localPath, link string)
}

// Bridge maintains the watch set and serves share links.
type Bridge struct {
	transfers Transfers
	links     LinkFetcher
	account   func() account.Account
	opts      Options

	reposMu sync.RWMutex
	repos   []config.Repo

	rebuildMu sync.Mutex
	watchSet  atomic.Pointer[[]WatchDir]

	shareLinks *cache.Cache[string]

	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBridge creates a bridge over repos. acct is read on every share-link
// request so credential changes take effect without a restart.
func NewBridge(transfers Transfers, links LinkFetcher, acct func() account.Account, repos []config.Repo, opts Options) *Bridge {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ShareLinkTTL <= 0 {
		opts.ShareLinkTTL = DefaultShareLinkTTL
	}
	b := &Bridge{
		transfers:  transfers,
		links:      links,
		account:    acct,
		opts:       opts,
		repos:      append([]config.Repo(nil), repos...),
		shareLinks: cache.New[string](opts.ShareLinkTTL),
		stopCh:     make(chan struct{}),
	}
	empty := []WatchDir{}
	b.watchSet.Store(&empty)
	return b
}

// Start builds the first watch set and begins the refresh loop.
func (b *Bridge) Start() {
	b.Refresh()
	b.ticker = time.NewTicker(b.opts.Interval)
	log.Printf("[INFO] Finder sync bridge started: %d repos, refreshing every %v", len(b.Repos()), b.opts.Interval)
	go b.loop()
}

// Stop halts the refresh loop.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		if b.ticker != nil {
			b.ticker.Stop()
		}
		close(b.stopCh)
		log.Printf("[INFO] Finder sync bridge stopped")
	})
}

func (b *Bridge) loop() {
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.ticker.C:
			b.Refresh()
			if n := b.shareLinks.PurgeExpired(); n > 0 {
				log.Printf("[DEBUG] Finder sync: purged %d expired share links", n)
			}
		}
	}
}

// SetRepos replaces the watched repos and rebuilds the watch set.
func (b *Bridge) SetRepos(repos []config.Repo) {
	b.reposMu.Lock()
	b.repos = append([]config.Repo(nil), repos...)
	b.reposMu.Unlock()
	b.Refresh()
}

// Repos returns the watched repos.
func (b *Bridge) Repos() []config.Repo {
	b.reposMu.RLock()
	defer b.reposMu.RUnlock()
	return append([]config.Repo(nil), b.repos...)
}

// Refresh rebuilds the watch set now.
func (b *Bridge) Refresh() {
	b.rebuildMu.Lock()
	defer b.rebuildMu.Unlock()

	repos := b.Repos()
	var snap transfer.Snapshot
	if b.transfers != nil {
		snap = b.transfers.Snapshot()
	}

	set := make([]WatchDir, 0, len(repos))
	for _, r := range repos {
		set = append(set, WatchDir{
			Path:   r.Worktree,
			RepoID: r.ID,
			Status: b.repoStatus(r, snap),
		})
	}
	b.watchSet.Store(&set)
	metrics.SetWatchSetSize(len(set))
}

func (b *Bridge) repoStatus(r config.Repo, snap transfer.Snapshot) Status {
	if info, err := os.Stat(r.Worktree); err != nil || !info.IsDir() {
		return StatusError
	}
	if r.Paused {
		return StatusPaused
	}
	if b.transfers == nil {
		return StatusNone
	}
	if snap.Current != nil && snap.Current.RepoID == r.ID {
		return StatusSyncing
	}
	for _, p := range snap.Pending {
		if p.RepoID == r.ID {
			return StatusPending
		}
	}
	return StatusDone
}

// GetWatchSet copies at most maxSize entries of the current watch set. Safe to
// call from any goroutine; maxSize <= 0 yields an empty result.
func (b *Bridge) GetWatchSet(maxSize int) []WatchDir {
	if maxSize <= 0 {
		return []WatchDir{}
	}
	set := *b.watchSet.Load()
	if len(set) > maxSize {
		set = set[:maxSize]
	}
	return append([]WatchDir(nil), set...)
}

// FileStatus reports the badge for a single file from the transfer
// manager's progress for it.
func (b *Bridge) FileStatus(localPath string) (Status, error) {
	repo, rel, err := b.resolve(localPath)
	if err != nil {
		return StatusNone, err
	}
	if repo.Paused {
		return StatusPaused, nil
	}
	if b.transfers == nil {
		return StatusNone, nil
	}
	return progressStatus(b.transfers.GetProgress(repo.ID, rel)), nil
}

func progressStatus(progress string) Status {
	switch progress {
	case "":
		return StatusDone
	case transfer.PendingMarker:
		return StatusPending
	default:
		return StatusSyncing
	}
}

// DoShareLink asks the server for a share link to localPath and hands it to
// OnShareLink. Links are reused until they expire.
func (b *Bridge) DoShareLink(ctx context.Context, localPath string) (string, error) {
	repo, rel, err := b.resolve(localPath)
	if err != nil {
		return "", err
	}

	link, err := b.shareLinks.GetOrLoad(ctx, repo.ID+":"+rel, func(ctx context.Context) (string, error) {
		return b.links.SharedLink(ctx, b.account(), repo.ID, rel)
	})
	metrics.IncShareLinkRequest(err == nil)
	if err != nil {
		log.Printf("[WARN] Finder sync: share link for %s failed: %v", localPath, err)
		return "", fmt.Errorf("share link for %s: %w", localPath, err)
	}

	log.Printf("[INFO] Finder sync: share link generated for %s", localPath)
	if b.opts.OnShareLink != nil {
		b.opts.OnShareLink(localPath, link)
	}
	return link, nil
}

// resolve maps a local path to its repo and the repo-relative path in
// server form ("/dir/file").
func (b *Bridge) resolve(localPath string) (config.Repo, string, error) {
	clean := filepath.Clean(localPath)
	for _, r := range b.Repos() {
		root := filepath.Clean(r.Worktree)
		rel, err := filepath.Rel(root, clean)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if rel == "." {
			return r, "/", nil
		}
		return r, "/" + filepath.ToSlash(rel), nil
	}
	return config.Repo{}, "", fmt.Errorf("%s: %w", localPath, ErrNotInWatchSet)
}
