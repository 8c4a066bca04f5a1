// file: internal/server/handlers.go
// version: 1.1.0
// guid: 9b8a7c6d-5e4f-4a3b-2c1d-0e9f8a7b6c5d

package server

import (
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jdfalk/filesync/internal/api"
	"github.com/jdfalk/filesync/internal/findersync"
	"github.com/jdfalk/filesync/internal/transfer"
)

const (
	// defaultWatchSetSize caps watch-set responses when the caller gives no max.
	defaultWatchSetSize = 100
	defaultHistorySize  = 50
	maxHistorySize      = 500
)

func (s *Server) listTransfers(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Transfers.Snapshot())
}

func (s *Server) addDownload(c *gin.Context) {
	ol := operationLogger(c, "addDownload")

	var req DownloadRequest
	if HandleBindError(c, c.ShouldBindJSON(&req)) {
		return
	}
	if !strings.HasPrefix(req.Path, "/") {
		RespondWithValidationError(c, "path", "must be absolute within the repo")
		return
	}
	remote := path.Clean(req.Path)
	if remote == "/" {
		RespondWithValidationError(c, "path", "must name a file")
		return
	}

	localPath := req.LocalPath
	if localPath == "" {
		if s.deps.DownloadDir == "" {
			RespondWithValidationError(c, "local_path", "required when no download directory is configured")
			return
		}
		localPath = filepath.Join(s.deps.DownloadDir, path.Base(remote))
	}

	ol.SetResourceID(req.RepoID + ":" + remote)
	ol.LogStart()

	if _, err := s.deps.Transfers.AddDownloadTask(s.deps.Account(), req.RepoID, remote, localPath); err != nil {
		if errors.Is(err, transfer.ErrClosed) {
			ol.LogError(http.StatusServiceUnavailable, err)
			RespondWithUnavailable(c, "transfer manager is shutting down")
			return
		}
		ol.LogError(http.StatusInternalServerError, err)
		RespondWithInternalError(c, err.Error())
		return
	}

	ol.LogSuccess(http.StatusAccepted)
	c.JSON(http.StatusAccepted, DownloadResponse{
		RepoID:    req.RepoID,
		Path:      remote,
		LocalPath: localPath,
		Progress:  s.deps.Transfers.GetProgress(req.RepoID, remote),
	})
}

func (s *Server) getProgress(c *gin.Context) {
	repoID := c.Query("repo_id")
	p := c.Query("path")
	if repoID == "" {
		RespondWithValidationError(c, "repo_id", "required")
		return
	}
	if p == "" {
		RespondWithValidationError(c, "path", "required")
		return
	}

	c.JSON(http.StatusOK, ProgressResponse{
		RepoID:   repoID,
		Path:     p,
		Progress: s.deps.Transfers.GetProgress(repoID, p),
	})
}

func (s *Server) getHistory(c *gin.Context) {
	if s.deps.History == nil {
		RespondWithUnavailable(c, "transfer history not configured")
		return
	}
	limit := ParseQueryInt(c, "limit", defaultHistorySize)
	if limit > maxHistorySize {
		limit = maxHistorySize
	}

	records, err := s.deps.History.Recent(limit)
	if err != nil {
		RespondWithInternalError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{Items: records, Count: len(records)})
}

func (s *Server) getWatchSet(c *gin.Context) {
	if s.deps.Bridge == nil {
		RespondWithUnavailable(c, "file browser bridge not configured")
		return
	}
	items := s.deps.Bridge.GetWatchSet(ParseQueryInt(c, "max", defaultWatchSetSize))
	c.JSON(http.StatusOK, WatchSetResponse{Items: items, Count: len(items)})
}

func (s *Server) getFileStatus(c *gin.Context) {
	if s.deps.Bridge == nil {
		RespondWithUnavailable(c, "file browser bridge not configured")
		return
	}
	local := c.Query("path")
	if local == "" {
		RespondWithValidationError(c, "path", "required")
		return
	}

	status, err := s.deps.Bridge.FileStatus(local)
	if err != nil {
		if errors.Is(err, findersync.ErrNotInWatchSet) {
			RespondWithNotFound(c, "worktree for path", local)
			return
		}
		RespondWithInternalError(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, FileStatusResponse{Path: local, Status: status})
}

func (s *Server) createShareLink(c *gin.Context) {
	if s.deps.Bridge == nil {
		RespondWithUnavailable(c, "file browser bridge not configured")
		return
	}
	ol := operationLogger(c, "createShareLink")

	var req ShareLinkRequest
	if HandleBindError(c, c.ShouldBindJSON(&req)) {
		return
	}
	ol.SetResourceID(req.Path)

	link, err := s.deps.Bridge.DoShareLink(c.Request.Context(), req.Path)
	switch {
	case err == nil:
	case errors.Is(err, findersync.ErrNotInWatchSet):
		RespondWithNotFound(c, "worktree for path", req.Path)
		return
	case errors.Is(err, api.ErrUnauthorized):
		ol.LogError(http.StatusBadGateway, err)
		RespondWithError(c, http.StatusBadGateway, "sync server rejected the account", "UPSTREAM_UNAUTHORIZED")
		return
	case errors.Is(err, api.ErrNotFound):
		RespondWithNotFound(c, "remote file", req.Path)
		return
	default:
		ol.LogError(http.StatusBadGateway, err)
		RespondWithBadGateway(c, err.Error())
		return
	}

	ol.LogSuccess(http.StatusOK)
	c.JSON(http.StatusOK, ShareLinkResponse{Path: req.Path, Link: link})
}
