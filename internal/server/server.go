// Package server exposes the HTTP and WebSocket surface consumed by the
// browser frontend: frame ingest, utterances, session state, and profiles.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/visionavatar/internal/logging"
	"github.com/normanking/visionavatar/internal/monitor"
	"github.com/normanking/visionavatar/internal/oracle"
	"github.com/normanking/visionavatar/internal/profile"
	"github.com/normanking/visionavatar/internal/session"
	"github.com/normanking/visionavatar/internal/vision"
)

// Config holds server configuration
type Config struct {
	ListenAddr string
}

// Server wires the frontend-facing endpoints to the session machinery.
type Server struct {
	config     Config
	controller *session.Controller
	monitor    *monitor.Monitor
	vision     *vision.Manager
	store      *profile.Store
	health     oracle.HealthChecker
	logs       *logging.Logger
	logger     zerolog.Logger

	engine   *gin.Engine
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// New creates a server
func New(cfg Config, ctrl *session.Controller, mon *monitor.Monitor, vis *vision.Manager, store *profile.Store, health oracle.HealthChecker, logs *logging.Logger, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:     cfg,
		controller: ctrl,
		monitor:    mon,
		vision:     vis,
		store:      store,
		health:     health,
		logs:       logs,
		logger:     logger.With().Str("component", "server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Frontend runs on a different dev port
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.logMiddleware())

	engine.GET("/health", s.handleHealth)

	api := engine.Group("/api")
	{
		api.POST("/frames", s.handleFrame)
		api.POST("/utterance", s.handleUtterance)
		api.GET("/state", s.handleState)
		api.GET("/profiles", s.handleProfiles)
		api.GET("/logs", s.handleLogs)
		api.POST("/monitoring/start", s.handleMonitoringStart)
		api.POST("/monitoring/stop", s.handleMonitoringStop)
		api.POST("/speaking", s.handleSpeaking)
		api.POST("/thinking", s.handleThinking)
	}

	engine.GET("/ws/frames", s.handleFrameSocket)

	s.engine = engine
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.engine,
	}

	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Server listening")

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Frame posts are too chatty for info level
		event := s.logger.Info()
		if c.Request.URL.Path == "/api/frames" {
			event = s.logger.Debug()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request")
	}
}

// handleHealth reports service health and whether the oracle runs in demo
// mode, surfaced to the frontend via the X-Demo-Mode header.
func (s *Server) handleHealth(c *gin.Context) {
	demoMode := true
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var err error
		demoMode, err = s.health.CheckHealth(ctx)
		if err != nil {
			// Oracle unreachable: still healthy, falls back to demo mode
			s.logger.Warn().Err(err).Msg("Oracle health check failed")
			demoMode = true
		}
	}

	c.Header("X-Demo-Mode", fmt.Sprintf("%t", demoMode))
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"demoMode": demoMode,
	})
}

type frameRequest struct {
	Image  string `json:"image" binding:"required"` // base64 JPEG
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (s *Server) handleFrame(c *gin.Context) {
	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.vision.ProcessFrame(req.Image, req.Width, req.Height)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

type utteranceRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleUtterance(c *gin.Context) {
	var req utteranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := s.controller.HandleUtterance(req.Text)
	c.JSON(http.StatusOK, gin.H{
		"intent":   string(in.Kind),
		"name":     in.Name,
		"identity": s.controller.Identity(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"identity":   s.controller.Identity(),
		"monitoring": s.monitor.IsRunning(),
		"hasGreeted": s.controller.HasGreeted(),
	})
}

func (s *Server) handleProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles": s.store.ListAll(),
	})
}

func (s *Server) handleLogs(c *gin.Context) {
	if s.logs == nil {
		c.JSON(http.StatusOK, gin.H{"entries": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": s.logs.GetHistory(100),
	})
}

func (s *Server) handleMonitoringStart(c *gin.Context) {
	s.monitor.Start()
	c.JSON(http.StatusOK, gin.H{"monitoring": true})
}

func (s *Server) handleMonitoringStop(c *gin.Context) {
	s.monitor.Stop()
	c.JSON(http.StatusOK, gin.H{"monitoring": false})
}

type activeRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSpeaking(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.controller.SetSpeaking(req.Active)
	c.JSON(http.StatusOK, gin.H{"speaking": req.Active})
}

func (s *Server) handleThinking(c *gin.Context) {
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.controller.SetThinking(req.Active)
	c.JSON(http.StatusOK, gin.H{"thinking": req.Active})
}

// wsFrameMessage is the frame ingest message on /ws/frames
type wsFrameMessage struct {
	Type   string `json:"type"`
	Data   string `json:"data"` // base64 JPEG
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// wsAckMessage acknowledges frame receipt
type wsAckMessage struct {
	Type     string `json:"type"`
	Sequence int64  `json:"sequence"`
}

// handleFrameSocket streams camera frames over a WebSocket, avoiding
// per-frame HTTP overhead. Each frame is acknowledged with its sequence.
func (s *Server) handleFrameSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Frame stream connected")

	var sequence int64
	for {
		var msg wsFrameMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Frame stream read error")
			}
			break
		}

		switch msg.Type {
		case "frame":
			sequence++
			s.vision.ProcessFrame(msg.Data, msg.Width, msg.Height)
			if err := conn.WriteJSON(wsAckMessage{Type: "ack", Sequence: sequence}); err != nil {
				s.logger.Warn().Err(err).Msg("Frame ack write failed")
				return
			}
		default:
			s.logger.Debug().Str("type", msg.Type).Msg("Unknown frame stream message")
		}
	}

	s.logger.Info().Msg("Frame stream disconnected")
}
