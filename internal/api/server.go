// Package api exposes the decision engine over HTTP and WebSocket for the
// dashboard frontend.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tradedesk/config"
	"tradedesk/internal/auth"
	"tradedesk/internal/engine"
	"tradedesk/internal/logging"
)

// Server is the HTTP API server
type Server struct {
	cfg        config.ServerConfig
	log        zerolog.Logger
	router     *gin.Engine
	httpServer *http.Server
	engine     *engine.Engine
	jwtManager *auth.JWTManager
	hub        *WSHub
}

// NewServer creates a new API server. jwtManager may be nil when
// authentication is disabled.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, jwtManager *auth.JWTManager) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" || cfg.AllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	s := &Server{
		cfg:        cfg,
		log:        logging.New("api"),
		router:     router,
		engine:     eng,
		jwtManager: jwtManager,
		hub:        NewWSHub(),
	}

	s.setupRoutes()
	s.initWebSocket()

	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)

	if s.jwtManager != nil {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	api := s.router.Group("/api")
	api.Use(s.authMiddleware())
	{
		api.GET("/snapshot", s.handleSnapshot)
		api.GET("/trends", s.handleTrends)
		api.GET("/signals", s.handleSignals)
		api.GET("/opportunities", s.handleOpportunities)
		api.GET("/validation", s.handleValidation)
		api.GET("/sizing", s.handleSizing)
		api.GET("/trade", s.handleTrade)

		api.POST("/refresh", s.handleRefresh)
		api.POST("/opportunities/:id/select", s.handleSelectOpportunity)
		api.PUT("/account", s.handleAccountSettings)
		api.PUT("/trade/fields", s.handleTradeOverrides)
		api.PUT("/checks/:name/importance", s.handleCheckImportance)
		api.POST("/checks/:name/override", s.handleCheckOverride)
		api.POST("/trade/execute", s.handleExecuteTrade)
		api.POST("/trade/breakeven", s.handleMoveToBreakeven)
		api.POST("/trade/trailing", s.handleEnableTrailing)
		api.POST("/trade/close", s.handleCloseTrade)
		api.POST("/trade/notes", s.handleAddNote)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// authMiddleware validates the bearer token on every API route. With auth
// disabled it is a pass-through.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.jwtManager == nil {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := s.jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			status := http.StatusUnauthorized
			message := "invalid token"
			if err == auth.ErrTokenExpired {
				message = "token expired"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": message})
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("API server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info().Msg("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
