// Package server exposes the agent host over HTTP: a REST surface for
// session management and a websocket for live state and permission
// prompts.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthost/agenthost/internal/agent/host"
	"github.com/agenthost/agenthost/internal/agent/registry"
	"github.com/agenthost/agenthost/internal/agent/session"
	"github.com/agenthost/agenthost/internal/common/config"
	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/internal/storage"
	"github.com/agenthost/agenthost/internal/ui/ws"
)

// Server owns the HTTP surface and the single active agent host.
type Server struct {
	logger   *logger.Logger
	cfg      *config.Config
	registry *registry.Registry
	store    *storage.Store

	host *host.Host
	hub  *ws.Hub
	http *http.Server
}

// New assembles the server. The store may be nil; persistence is then
// skipped.
func New(cfg *config.Config, reg *registry.Registry, store *storage.Store, log *logger.Logger) *Server {
	s := &Server{
		logger:   log.WithFields(zap.String("component", "server")),
		cfg:      cfg,
		registry: reg,
		store:    store,
	}

	s.hub = ws.NewHub(s, log)
	s.host = host.New(cfg, reg, log,
		host.WithStateHandler(s.onStateChange),
		host.WithExitHandler(s.onAgentExit),
		host.WithPrompter(s.hub),
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	s.routes(router)

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	return s
}

func (s *Server) routes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.GET("/ws", gin.WrapH(s.hub))

	v1 := router.Group("/api/v1")
	v1.GET("/agents", s.handleListAgents)
	v1.GET("/sessions", s.handleListSessions)
	v1.POST("/sessions", s.handleStartSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
	v1.GET("/sessions/:id/snapshot", s.handleGetSnapshot)
	v1.POST("/sessions/:id/prompt", s.handlePrompt)
	v1.POST("/sessions/:id/cancel", s.handleCancel)
	v1.GET("/terminals/:id/output", s.handleTerminalOutput)
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener and tears down the agent session.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	s.host.Stop(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"agent_running": s.host.Running(),
		"ui_clients":    s.hub.ClientCount(),
	})
}

func (s *Server) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.registry.Names()})
}

type startSessionRequest struct {
	Agent      string `json:"agent" binding:"required"`
	WorkingDir string `json:"workingDir" binding:"required"`
}

func (s *Server) handleStartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.host.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "an agent session is already running"})
		return
	}

	sessionID, err := s.host.StartSession(c.Request.Context(), req.Agent, req.WorkingDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if s.store != nil {
		err := s.store.CreateSession(c.Request.Context(), storage.SessionRecord{
			ID:         sessionID,
			AgentName:  req.Agent,
			WorkingDir: req.WorkingDir,
		})
		if err != nil {
			s.logger.WithError(err).Error("failed to persist session")
		}
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": sessionID})
}

func (s *Server) handleListSessions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"sessions": []storage.SessionRecord{}})
		return
	}
	recs, err := s.store.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": recs})
}

func (s *Server) handleGetSession(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "persistence disabled"})
		return
	}
	rec, err := s.store.GetSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "persistence disabled"})
		return
	}
	err := s.store.DeleteSession(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleGetSnapshot prefers the live state and falls back to the persisted
// snapshot for past sessions.
func (s *Server) handleGetSnapshot(c *gin.Context) {
	id := c.Param("id")
	if state, ok := s.host.State(); ok && state.SessionID == id {
		c.JSON(http.StatusOK, state)
		return
	}
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot available"})
		return
	}
	state, err := s.store.LoadSnapshot(c.Request.Context(), id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot available"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

type promptRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handlePrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.SubmitPrompt(req.Text); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "prompting"})
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.CancelTurn(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// handleTerminalOutput serves the live buffer for running terminals and
// the release cache for released ones.
func (s *Server) handleTerminalOutput(c *gin.Context) {
	out, err := s.host.Terminals().CachedOutput(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "terminal not found"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// SubmitPrompt starts an agent turn in the background. Implements the
// websocket command surface.
func (s *Server) SubmitPrompt(text string) error {
	if !s.host.Running() {
		return host.ErrNoSession
	}
	go func() {
		if _, err := s.host.Prompt(context.Background(), text); err != nil {
			s.logger.Warn("prompt failed", zap.Error(err))
		}
	}()
	return nil
}

// RespondPermission forwards a user's permission choice.
func (s *Server) RespondPermission(requestID, optionID string) bool {
	return s.host.Permissions().Respond(requestID, optionID)
}

// DenyPermission forwards a user's permission denial.
func (s *Server) DenyPermission(requestID string) bool {
	return s.host.Permissions().Deny(requestID)
}

// CancelTurn asks the agent to abandon the current turn.
func (s *Server) CancelTurn() error {
	return s.host.Cancel()
}

// onStateChange fans each reduced state out to UI clients and persists it.
func (s *Server) onStateChange(state session.State) {
	s.hub.BroadcastState(state)
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.SaveSnapshot(ctx, state); err != nil {
			s.logger.WithError(err).Warn("failed to persist snapshot")
		}
	}
}

func (s *Server) onAgentExit(sessionID string, exitCode int) {
	s.logger.Info("agent session ended",
		zap.String("session_id", sessionID),
		zap.Int("exit_code", exitCode))
}
