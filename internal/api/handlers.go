package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ualgo/engine/internal/db"
)

const (
	defaultSignalLimit    = 20
	defaultLookbackDays   = 30
	maxPerformanceWindow  = 365
	defaultOptimizeWindow = 30
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "ualgo-engine",
		"version": "1.0.0",
		"status":  "running",
		"uptime":  time.Since(s.started).Seconds(),
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

type scanRequest struct {
	Symbols    []string `json:"symbols"`
	StrategyID string   `json:"strategy_id"`
}

// handleScan runs one scan cycle per symbol. Cycle failures are
// embedded in the results, never surfaced as HTTP errors.
func (s *Server) handleScan(c *gin.Context) {
	var req scanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = s.symbols
	}
	strategyID := req.StrategyID
	if strategyID == "" {
		strategyID = "default"
	}

	results := s.orch.RunScanAll(c.Request.Context(), symbols, strategyID)
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleRecentSignals(c *gin.Context) {
	symbol := c.Query("symbol")
	status := db.SignalStatus(c.Query("status"))

	limit := defaultSignalLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	signals, err := s.store.ListRecentSignals(c.Request.Context(), symbol, status, limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list signals")
		c.JSON(http.StatusOK, gin.H{
			"signals": []db.Signal{},
			"count":   0,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signals": signals,
		"count":   len(signals),
	})
}

func (s *Server) handleOrchestrate(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	result := s.orch.RunScanCycle(c.Request.Context(), symbol, c.Query("strategy_id"), c.Query("timeframe"))
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleConsensus(c *gin.Context) {
	signalID, err := uuid.Parse(c.Param("signal_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signal_id must be a UUID"})
		return
	}

	votes, err := s.store.ListVotes(c.Request.Context(), signalID)
	if err != nil {
		s.logger.Warn().Err(err).Str("signal_id", signalID.String()).Msg("Failed to list votes")
		c.JSON(http.StatusOK, gin.H{
			"signal_id": signalID,
			"votes":     []db.ConsensusVote{},
			"count":     0,
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signal_id": signalID,
		"votes":     votes,
		"count":     len(votes),
	})
}

func (s *Server) handleAgentStatus(c *gin.Context) {
	heartbeats, err := s.store.ListHeartbeats(c.Request.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list heartbeats")
		c.JSON(http.StatusOK, gin.H{
			"agents": gin.H{},
			"count":  0,
			"error":  err.Error(),
		})
		return
	}

	agentMap := make(map[string]db.AgentHeartbeat, len(heartbeats))
	for _, hb := range heartbeats {
		agentMap[hb.AgentName] = hb
	}

	c.JSON(http.StatusOK, gin.H{
		"agents":      agentMap,
		"count":       len(agentMap),
		"kill_switch": s.risk.KillSwitchActive(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"orchestrator": s.orch.Stats(),
		"risk":         s.risk.Summary(),
		"bus":          s.busStats(),
		"ws_clients":   s.hub.ClientCount(),
	})
}

func (s *Server) busStats() map[string]any {
	if s.bus == nil {
		return map[string]any{}
	}
	return s.bus.Stats()
}

func (s *Server) handleTasks(c *gin.Context) {
	tasks := s.orch.Tasks()
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// handleOptimize runs the quant lab review on demand. Analysis errors
// come back as a structured 2xx result per the degraded-read policy.
func (s *Server) handleOptimize(c *gin.Context) {
	strategyID := c.Query("strategy_id")
	if strategyID == "" {
		strategyID = "default"
	}
	days := defaultOptimizeWindow
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		days = parsed
	}

	result, err := s.quant.RunOptimization(c.Request.Context(), strategyID, days)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"strategy_id": strategyID,
			"error":       err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePerformance(c *gin.Context) {
	days := defaultLookbackDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxPerformanceWindow {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
		days = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	snapshots, err := s.store.SnapshotsSince(c.Request.Context(), since)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list snapshots")
		c.JSON(http.StatusOK, gin.H{
			"days":      days,
			"snapshots": []db.PortfolioSnapshot{},
			"count":     0,
			"error":     err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"days":      days,
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

type killSwitchRequest struct {
	Active   bool   `json:"active"`
	Reason   string `json:"reason"`
	Operator string `json:"operator"`
}

func (s *Server) handleKillSwitch(c *gin.Context) {
	var req killSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Active {
		reason := req.Reason
		if reason == "" {
			reason = "Manual activation via API"
		}
		s.risk.ActivateKillSwitch(c.Request.Context(), reason)
	} else {
		operator := req.Operator
		if operator == "" {
			operator = "api"
		}
		s.risk.DeactivateKillSwitch(c.Request.Context(), operator)
	}

	c.JSON(http.StatusOK, gin.H{
		"kill_switch": s.risk.KillSwitchActive(),
	})
}
