// Package dashboard serves the analysis and chat workflows over HTTP so a
// browser dashboard can drive one controller and chat session per tab.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chainwatch/internal/di"
	"chainwatch/internal/logging"
)

// Server is the dashboard gateway.
type Server struct {
	container  *di.Container
	engine     *gin.Engine
	httpServer *http.Server
	sessions   *sessionRegistry
	upgrader   websocket.Upgrader
	logger     logging.Logger
	startTime  time.Time
}

// NewServer wires routes for the container's client and catalog.
func NewServer(container *di.Container) (*Server, error) {
	if container == nil {
		return nil, errors.New("dashboard: container is required")
	}
	cfg := container.Config.Server
	logger := logging.Component(container.Logger, "dashboard")

	sessions, err := newSessionRegistry(cfg.SessionCapacity, container.Metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create session registry: %w", err)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		if len(cfg.AllowedOrigins) > 0 {
			corsConfig.AllowOrigins = cfg.AllowedOrigins
		} else {
			corsConfig.AllowAllOrigins = true
		}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", logIDHeader}
		corsConfig.ExposeHeaders = []string{logIDHeader}
		corsConfig.AllowWebSockets = true
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		container: container,
		engine:    engine,
		sessions:  sessions,
		logger:    logger,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.EnableCORS, cfg.AllowedOrigins),
		},
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.container.Metrics.Handler()))

	api := s.engine.Group("/api")
	api.Use(RequestContextMiddleware(s.container.Tracer, s.logger))
	api.Use(JSONMiddleware())

	api.GET("/regions", s.handleRegions)

	sessions := api.Group("/sessions")
	{
		sessions.POST("", s.handleCreateSession)
		sessions.GET("/:id", s.handleGetSession)
		sessions.DELETE("/:id", s.handleDeleteSession)
		sessions.PUT("/:id/region", s.handleSelectRegion)
		sessions.POST("/:id/analyze", s.handleAnalyze)
		sessions.GET("/:id/chat", s.handleGetChat)
		sessions.POST("/:id/chat", s.handleSendChat)
		sessions.POST("/:id/chat/open", s.handleOpenChat)
		sessions.POST("/:id/chat/close", s.handleCloseChat)
	}

	ws := s.engine.Group("/ws")
	ws.Use(RequestContextMiddleware(s.container.Tracer, s.logger))
	ws.GET("/sessions/:id/chat", s.handleChatSocket)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop shuts the listener down and ends every session.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.sessions.purge()
	if err != nil {
		return fmt.Errorf("shutdown dashboard: %w", err)
	}
	s.logger.Info("dashboard stopped")
	return nil
}

// originChecker mirrors the CORS policy for websocket upgrades. A nil checker
// leaves gorilla's same-origin default in place.
func originChecker(enableCORS bool, allowed []string) func(*http.Request) bool {
	if !enableCORS {
		return nil
	}
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
