// file: internal/server/response_types.go
// version: 2.0.0
// guid: 7f8a9b0c-1d2e-3f4a-5b6c-7d8e9f0a1b2c

package server

import (
	"github.com/jdfalk/filesync/internal/findersync"
	"github.com/jdfalk/filesync/internal/history"
)

// DownloadRequest is the body of POST /api/v1/transfers/downloads.
type DownloadRequest struct {
	RepoID    string `json:"repo_id" binding:"required"`
	Path      string `json:"path" binding:"required"`
	LocalPath string `json:"local_path"`
}

// DownloadResponse acknowledges an admitted download.
type DownloadResponse struct {
	RepoID    string `json:"repo_id"`
	Path      string `json:"path"`
	LocalPath string `json:"local_path"`
	Progress  string `json:"progress"`
}

// ProgressResponse is the answer to a progress query. Progress is empty when
// the manager does not know the key.
type ProgressResponse struct {
	RepoID   string `json:"repo_id"`
	Path     string `json:"path"`
	Progress string `json:"progress"`
}

// HistoryResponse lists finished transfers, newest first.
type HistoryResponse struct {
	Items []history.Record `json:"items"`
	Count int              `json:"count"`
}

// WatchSetResponse lists watched worktrees.
type WatchSetResponse struct {
	Items []findersync.WatchDir `json:"items"`
	Count int                   `json:"count"`
}

// FileStatusResponse is the badge for one local file.
type FileStatusResponse struct {
	Path   string            `json:"path"`
	Status findersync.Status `json:"status"`
}

// ShareLinkRequest is the body of POST /api/v1/findersync/share-link.
type ShareLinkRequest struct {
	Path string `json:"path" binding:"required"`
}

// ShareLinkResponse carries a generated link.
type ShareLinkResponse struct {
	Path string `json:"path"`
	Link string `json:"link"`
}

// StatusResponse provides a consistent format for status check responses
type StatusResponse struct {
	Status string `json:"status"` // "ok", "degraded"
	Data   any    `json:"data,omitempty"`
}
