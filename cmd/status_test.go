// file: cmd/status_test.go
// version: 1.0.0
// guid: 93f0b6c2-7e4d-4a18-b5c9-2d6e8a1f0c57

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/filesync/internal/config"
	"github.com/jdfalk/filesync/internal/history"
	"github.com/jdfalk/filesync/internal/server"
	"github.com/jdfalk/filesync/internal/transfer"
)

func fakeDaemon(t *testing.T, handler http.HandlerFunc) *daemonClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	dc := newDaemonClient(config.Config{Host: "127.0.0.1", Port: 1, APIToken: "secret"})
	dc.baseURL = srv.URL
	return dc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewDaemonClientAddress(t *testing.T) {
	dc := newDaemonClient(config.Config{Host: "127.0.0.1", Port: 13419})
	assert.Equal(t, "http://127.0.0.1:13419", dc.baseURL)
}

func TestRunStatus(t *testing.T) {
	dc := fakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transfers", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, transfer.Snapshot{
			Current: &transfer.TaskInfo{RepoID: "r1", Path: "/a.txt", LocalPath: "/dl/a.txt", Progress: "42%"},
			Pending: []transfer.TaskInfo{{RepoID: "r1", Path: "/b.txt"}, {RepoID: "r2", Path: "/c.txt"}},
		})
	})

	var out bytes.Buffer
	require.NoError(t, runStatus(context.Background(), &out, dc))
	assert.Equal(t, "Downloading r1:/a.txt 42%\n  -> /dl/a.txt\n  1. r1:/b.txt\n  2. r2:/c.txt\n", out.String())
}

func TestRunStatusIdle(t *testing.T) {
	dc := fakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transfer.Snapshot{})
	})

	var out bytes.Buffer
	require.NoError(t, runStatus(context.Background(), &out, dc))
	assert.Equal(t, "Idle\n", out.String())
}

func TestRunProgress(t *testing.T) {
	dc := fakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transfers/progress", r.URL.Path)
		progress := ""
		if r.URL.Query().Get("path") == "/b.txt" {
			progress = transfer.PendingMarker
		}
		writeJSON(w, http.StatusOK, server.ProgressResponse{
			RepoID:   r.URL.Query().Get("repo_id"),
			Path:     r.URL.Query().Get("path"),
			Progress: progress,
		})
	})

	var out bytes.Buffer
	require.NoError(t, runProgress(context.Background(), &out, dc, "r1", "/b.txt"))
	require.NoError(t, runProgress(context.Background(), &out, dc, "r1", "/z.txt"))
	assert.Equal(t, "r1:/b.txt pending\nr1:/z.txt is not queued\n", out.String())

	assert.Error(t, runProgress(context.Background(), &out, dc, "r1", ""))
}

func TestRunShare(t *testing.T) {
	dc := fakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req server.ShareLinkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, server.ShareLinkResponse{Path: req.Path, Link: "https://files.example.com/f/abc/"})
	})

	var out bytes.Buffer
	require.NoError(t, runShare(context.Background(), &out, dc, "/home/alice/Work/a.txt"))
	assert.Equal(t, "https://files.example.com/f/abc/\n", out.String())
}

func TestDaemonErrorResponse(t *testing.T) {
	dc := fakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, server.ErrorResponse{Error: "worktree for path not found", Status: http.StatusNotFound})
	})

	err := runShare(context.Background(), &bytes.Buffer{}, dc, "/elsewhere")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "404"))
	assert.Contains(t, err.Error(), "worktree for path not found")
}

func TestDaemonUnreachable(t *testing.T) {
	dc := newDaemonClient(config.Config{Host: "127.0.0.1", Port: 1})
	err := runStatus(context.Background(), &bytes.Buffer{}, dc)
	assert.ErrorContains(t, err, "daemon not reachable")
}

func TestRunHistory(t *testing.T) {
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	dc := fakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transfers/history", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, server.HistoryResponse{
			Items: []history.Record{
				{RepoID: "r1", Path: "/b.txt", Success: false, FinishedAt: finished, ElapsedMs: 250},
				{RepoID: "r1", Path: "/a.txt", Success: true, FinishedAt: finished, ElapsedMs: 1500},
			},
			Count: 2,
		})
	})

	var out bytes.Buffer
	require.NoError(t, runHistory(context.Background(), &out, dc, 2))
	assert.Equal(t,
		"2026-03-01 12:00:00  failed r1:/b.txt (250ms)\n"+
			"2026-03-01 12:00:00  ok     r1:/a.txt (1.5s)\n",
		out.String())
}

func TestRunHistoryEmpty(t *testing.T) {
	dc := fakeDaemon(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, server.HistoryResponse{})
	})

	var out bytes.Buffer
	require.NoError(t, runHistory(context.Background(), &out, dc, 20))
	assert.Equal(t, "No finished transfers\n", out.String())
}
