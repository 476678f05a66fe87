// Package web serves the gtd JSON API and the dashboard WebSocket.
package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gtdsync/gtd/internal/dashboard"
	"github.com/gtdsync/gtd/internal/schema"
	"github.com/gtdsync/gtd/internal/service"
)

// Users resolves API keys to users.
type Users interface {
	GetUserByAPIKey(ctx context.Context, key string) (*schema.User, error)
}

// Config holds server dependencies.
type Config struct {
	Service *service.Service
	Users   Users
	// Hub is optional; without it /ws answers 404.
	Hub    *dashboard.Hub
	Logger *log.Logger
}

// Server is the gtd HTTP API
type Server struct {
	svc    *service.Service
	users  Users
	hub    *dashboard.Hub
	router *gin.Engine
	logger *log.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[web] ", log.LstdFlags)
	}

	router := gin.New()
	s := &Server{
		svc:    config.Service,
		users:  config.Users,
		hub:    config.Hub,
		router: router,
		logger: logger,
	}

	router.Use(s.requestID(), s.accessLog(), s.recovery())
	router.GET("/health", s.handleHealth)

	authed := router.Group("/", s.authenticate())
	authed.GET("/ws", s.handleWebSocket)

	api := authed.Group("/api")
	{
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)

		api.GET("/projects", s.handleListProjects)
		api.POST("/projects", s.handleCreateProject)
		api.GET("/projects/:id", s.handleGetProject)
		api.PATCH("/projects/:id", s.handleUpdateProject)
		api.DELETE("/projects/:id", s.handleDeleteProject)
		api.GET("/projects/:id/sections", s.handleListSections)

		api.POST("/sections", s.handleCreateSection)
		api.PATCH("/sections/:id", s.handleUpdateSection)
		api.DELETE("/sections/:id", s.handleDeleteSection)

		api.GET("/labels", s.handleListLabels)

		api.POST("/todoist/sync", s.handleSync)
		api.GET("/todoist/status", s.handleStatus)
		api.PUT("/todoist/token", s.handleSetToken)
		api.DELETE("/todoist/token", s.handleClearToken)
		api.GET("/todoist/labels", s.handleRemoteLabels)
	}

	return s
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Printf("API server listening on %s", ln.Addr())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Println("API server stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": clients,
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if s.hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "dashboard disabled"})
		return
	}
	s.hub.ServeWS(c.Writer, c.Request, currentUser(c).ID)
}
