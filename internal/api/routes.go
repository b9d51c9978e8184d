package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ualgo/engine/internal/metrics"
)

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/healthz", s.handleHealthz)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router.POST("/signals/scan", s.handleScan)
	s.router.GET("/signals/recent", s.handleRecentSignals)

	s.router.POST("/orchestrate/run", s.handleOrchestrate)
	s.router.GET("/orchestrate/consensus/:signal_id", s.handleConsensus)
	s.router.GET("/orchestrator/stats", s.handleStats)
	s.router.GET("/orchestrator/tasks", s.handleTasks)

	s.router.GET("/agents/status", s.handleAgentStatus)

	s.router.POST("/optimize/run", s.handleOptimize)
	s.router.GET("/optimize/performance", s.handlePerformance)

	s.router.POST("/risk/kill-switch", s.handleKillSwitch)

	s.router.GET("/ws/events", s.handleWS)
}
