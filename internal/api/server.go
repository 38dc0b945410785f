// Package api exposes the scoring and ranking engine over HTTP
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"crypto-signal-ranker/config"
	"crypto-signal-ranker/internal/correlation"
	"crypto-signal-ranker/internal/justify"
	"crypto-signal-ranker/internal/quality"
	"crypto-signal-ranker/internal/ranker"
)

// Server wires the engine components behind a gin router
type Server struct {
	cfg        config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	log        zerolog.Logger

	scorer      *quality.Scorer
	ledger      *justify.Ledger
	ranker      *ranker.Ranker
	correlation *correlation.Engine
}

// NewServer builds the router and registers all routes
func NewServer(
	cfg config.ServerConfig,
	scorer *quality.Scorer,
	ledger *justify.Ledger,
	rnk *ranker.Ranker,
	corr *correlation.Engine,
	log zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		cfg:         cfg,
		router:      router,
		log:         log.With().Str("component", "api").Logger(),
		scorer:      scorer,
		ledger:      ledger,
		ranker:      rnk,
		correlation: corr,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/quality/:symbol", s.handleQuality)
		v1.POST("/justify/:symbol", s.handleJustify)
		v1.POST("/rank", s.handleRank)
		v1.GET("/correlation/:symbol", s.handleCorrelation)
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info().Msg("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
