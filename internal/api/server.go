// Package api is the thin HTTP adapter over the orchestrator, the
// agents and the repository. Core failures surface as structured
// 2xx results; non-2xx is reserved for HTTP-layer problems.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/agents"
	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/metrics"
	"github.com/ualgo/engine/internal/orchestrator"
)

// Orchestrator is the cycle-running surface the API needs
type Orchestrator interface {
	RunScanCycle(ctx context.Context, symbol, strategyID, timeframe string) *orchestrator.CycleResult
	RunScanAll(ctx context.Context, symbols []string, strategyID string) []*orchestrator.CycleResult
	Stats() map[string]any
	Tasks() []orchestrator.TaskEntry
}

// Optimizer runs on-demand performance reviews
type Optimizer interface {
	RunOptimization(ctx context.Context, strategyID string, lookbackDays int) (*agents.OptimizationResult, error)
}

// RiskControl is the kill-switch surface the API needs
type RiskControl interface {
	KillSwitchActive() bool
	ActivateKillSwitch(ctx context.Context, reason string)
	DeactivateKillSwitch(ctx context.Context, operator string)
	Summary() map[string]any
}

// Store is the read-side repository surface the API needs
type Store interface {
	Ping(ctx context.Context) error
	ListRecentSignals(ctx context.Context, symbol string, status db.SignalStatus, limit int) ([]db.Signal, error)
	ListVotes(ctx context.Context, signalID uuid.UUID) ([]db.ConsensusVote, error)
	ListHeartbeats(ctx context.Context) ([]db.AgentHeartbeat, error)
	SnapshotsSince(ctx context.Context, since time.Time) ([]db.PortfolioSnapshot, error)
}

// Server is the REST and WebSocket adapter
type Server struct {
	router  *gin.Engine
	store   Store
	orch    Orchestrator
	quant   Optimizer
	risk    RiskControl
	bus     *bus.Bus
	hub     *Hub
	symbols []string
	addr    string
	server  *http.Server
	logger  zerolog.Logger
	started time.Time
}

// NewServer creates the API server and wires the event hub to the bus
func NewServer(store Store, orch Orchestrator, quant Optimizer, risk RiskControl, b *bus.Bus, trading config.TradingConfig, apiCfg config.APIConfig) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		router:  router,
		store:   store,
		orch:    orch,
		quant:   quant,
		risk:    risk,
		bus:     b,
		hub:     NewHub(),
		symbols: trading.Symbols,
		addr:    apiCfg.Addr,
		logger:  config.NewLogger("api"),
		started: time.Now().UTC(),
	}

	go s.hub.Run()
	if b != nil {
		if _, err := b.SubscribeAll(s.hub.ForwardBusMessage); err != nil {
			return nil, fmt.Errorf("failed to subscribe event hub: %w", err)
		}
	}

	s.setupRoutes()
	return s, nil
}

// Router exposes the gin engine, mainly for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the HTTP server until Stop
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}
	return nil
}

// LoggerMiddleware logs every request with latency and status
func LoggerMiddleware() gin.HandlerFunc {
	logger := config.NewLogger("api")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		event := logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if len(c.Errors) > 0 {
			event.Str("errors", c.Errors.String())
		}

		event.Msg("API request")
	}
}
