// file: internal/server/server.go
// version: 2.1.0
// guid: 3c4d5e6f-7a8b-9c0d-1e2f-3a4b5c6d7e8f

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jdfalk/filesync/internal/account"
	"github.com/jdfalk/filesync/internal/findersync"
	"github.com/jdfalk/filesync/internal/history"
	"github.com/jdfalk/filesync/internal/metrics"
	"github.com/jdfalk/filesync/internal/realtime"
	"github.com/jdfalk/filesync/internal/server/middleware"
	"github.com/jdfalk/filesync/internal/transfer"
)

// Transfers is what the API needs from the transfer manager.
type Transfers interface {
	AddDownloadTask(acct account.Account, repoID, path, localPath string) (transfer.Task, error)
	GetProgress(repoID, path string) string
	Snapshot() transfer.Snapshot
}

// Bridge is what the API needs from the file-browser bridge.
type Bridge interface {
	GetWatchSet(maxSize int) []findersync.WatchDir
	FileStatus(localPath string) (findersync.Status, error)
	DoShareLink(ctx context.Context, localPath string) (string, error)
}

// History is the journal of finished transfers.
type History interface {
	Recent(n int) ([]history.Record, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Transfers Transfers
	Bridge    Bridge
	History   History
	Hub       *realtime.EventHub
	// Account is read per request so config reloads apply immediately.
	Account     func() account.Account
	DownloadDir string
	Version     string

	APIToken        string
	RateLimitPerMin int
	RateLimitBurst  int
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	deps       Deps
	limiter    *middleware.IPRateLimiter
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new server instance
func NewServer(deps Deps) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	if deps.Account == nil {
		deps.Account = func() account.Account { return account.Account{} }
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())

	// Register metrics (idempotent)
	metrics.Register()

	server := &Server{
		router: router,
		deps:   deps,
	}
	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled or the process receives SIGINT/SIGTERM.
func (s *Server) Start(ctx context.Context, cfg ServerConfig) error {
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[INFO] Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.heartbeat(ctx, 5*time.Second)

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Println("[INFO] Shutting down server...")

	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(&realtime.Event{
			Type:      realtime.EventSystemShutdown,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"message": "Server is shutting down",
			},
		})
		// Give clients a moment to receive the event
		time.Sleep(500 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("[INFO] Server exited")
	return nil
}

// heartbeat pushes periodic system.status events and refreshes runtime gauges.
func (s *Server) heartbeat(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.deps.Hub.SendSystemStatus(s.systemStatus())
		}
	}
}

func (s *Server) systemStatus() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()

	metrics.SetMemoryAlloc(mem.Alloc)
	metrics.SetGoroutines(goroutines)

	active, pending := 0, 0
	if s.deps.Transfers != nil {
		snap := s.deps.Transfers.Snapshot()
		if snap.Current != nil {
			active = 1
		}
		pending = len(snap.Pending)
	}

	clients := 0
	if s.limiter != nil {
		clients = s.limiter.Clients()
	}

	return map[string]interface{}{
		"active_transfers":  active,
		"pending_transfers": pending,
		"api_clients":       clients,
		"memory_alloc":      mem.Alloc,
		"goroutines":        goroutines,
		"timestamp":         time.Now().Unix(),
	}
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/api/v1/health", s.healthCheck)

	s.limiter = middleware.NewIPRateLimiter(s.deps.RateLimitPerMin, s.deps.RateLimitBurst)

	api := s.router.Group("/api/v1")
	api.Use(middleware.RequireAPIToken(s.deps.APIToken))
	{
		// Real-time events (SSE) are long-lived and exempt from rate limiting
		api.GET("/events", s.handleEvents)

		limited := api.Group("")
		limited.Use(s.limiter.Middleware())

		// Transfer routes
		limited.GET("/transfers", s.listTransfers)
		limited.POST("/transfers/downloads", s.addDownload)
		limited.GET("/transfers/progress", s.getProgress)
		limited.GET("/transfers/history", s.getHistory)

		// File browser bridge routes
		limited.GET("/findersync/watch-set", s.getWatchSet)
		limited.GET("/findersync/file-status", s.getFileStatus)
		limited.POST("/findersync/share-link", s.createShareLink)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"version":   s.deps.Version,
		"account":   s.deps.Account().String(),
	})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.deps.Hub == nil {
		RespondWithUnavailable(c, "event hub not configured")
		return
	}
	s.deps.Hub.HandleSSE(c)
}

// GetDefaultServerConfig returns default server configuration
func GetDefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:        "13419",
		Host:        "127.0.0.1",
		ReadTimeout: 15 * time.Second,
		// SSE streams stay open, so writes are not bounded.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
}
