// Package memory provides the durable per-agent memory store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/db"
)

// Repo is the persistence surface the store needs
type Repo interface {
	InsertMemory(ctx context.Context, entry *db.MemoryEntry) (uuid.UUID, error)
	ListMemory(ctx context.Context, agentName string, memType db.MemoryType, symbol string, limit int) ([]db.MemoryEntry, error)
}

// Store is one agent's view of the shared memory table. Writes are
// append-only; expiry is logical and enforced on recall.
type Store struct {
	repo   Repo
	agent  string
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore creates a memory store bound to an agent name
func NewStore(repo Repo, agent string, logger zerolog.Logger) *Store {
	return &Store{
		repo:   repo,
		agent:  agent,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source (tests)
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Store appends one memory entry and returns its id. A positive
// ttlHours sets the logical expiry.
func (s *Store) Store(ctx context.Context, memType db.MemoryType, content map[string]any, symbol string, importance float64, ttlHours int) (uuid.UUID, error) {
	entry := &db.MemoryEntry{
		AgentName:  s.agent,
		MemoryType: memType,
		Content:    content,
		Importance: importance,
		CreatedAt:  s.now(),
	}
	if symbol != "" {
		entry.Symbol = &symbol
	}
	if ttlHours > 0 {
		expires := s.now().Add(time.Duration(ttlHours) * time.Hour)
		entry.ExpiresAt = &expires
	}

	id, err := s.repo.InsertMemory(ctx, entry)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to store memory: %w", err)
	}
	return id, nil
}

// Recall returns non-expired memories ordered by importance then
// recency. Empty memType/symbol disable those filters.
func (s *Store) Recall(ctx context.Context, memType db.MemoryType, symbol string, limit int) ([]db.MemoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.ListMemory(ctx, s.agent, memType, symbol, limit)
}

// StoreDecision records a trading decision (importance 0.7 by default,
// callers may override through Store directly).
func (s *Store) StoreDecision(ctx context.Context, symbol string, decision map[string]any, importance float64) (uuid.UUID, error) {
	if importance <= 0 {
		importance = 0.7
	}
	return s.Store(ctx, db.MemoryTypeDecision, decision, symbol, importance, 0)
}

// StoreLearning records a learning with a 1-week TTL
func (s *Store) StoreLearning(ctx context.Context, content map[string]any) (uuid.UUID, error) {
	return s.Store(ctx, db.MemoryTypeLearning, content, "", 0.5, 168)
}

// StoreError records an error with a 3-day TTL
func (s *Store) StoreError(ctx context.Context, content map[string]any) (uuid.UUID, error) {
	return s.Store(ctx, db.MemoryTypeError, content, "", 0.3, 72)
}

// RecentDecisions returns the latest decisions for a symbol
func (s *Store) RecentDecisions(ctx context.Context, symbol string, limit int) ([]db.MemoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.Recall(ctx, db.MemoryTypeDecision, symbol, limit)
}

// DecisionSummary distills recent decisions for a symbol
type DecisionSummary struct {
	Symbol       string      `json:"symbol"`
	Count        int         `json:"count"`
	Approved     int         `json:"approved"`
	Rejected     int         `json:"rejected"`
	ApprovalRate float64     `json:"approval_rate"`
	AvgConf      float64     `json:"avg_confidence"`
	TopRiskFlags []FlagCount `json:"top_risk_flags"`
	PeriodStart  *time.Time  `json:"period_start,omitempty"`
	PeriodEnd    *time.Time  `json:"period_end,omitempty"`
}

// FlagCount is one risk-flag family with its occurrence count
type FlagCount struct {
	Flag  string `json:"flag"`
	Count int    `json:"count"`
}

// SummarizeDecisions distills up to limit recent decisions into
// approval rate, average confidence and the dominant risk flags.
func (s *Store) SummarizeDecisions(ctx context.Context, symbol string, limit int) (*DecisionSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	decisions, err := s.Recall(ctx, db.MemoryTypeDecision, symbol, limit)
	if err != nil {
		return nil, err
	}
	if len(decisions) == 0 {
		return &DecisionSummary{Symbol: symbol}, nil
	}

	summary := &DecisionSummary{Symbol: symbol}
	var confidences []float64
	flagCounts := make(map[string]int)

	for _, d := range decisions {
		if approved, _ := d.Content["approved"].(bool); approved {
			summary.Approved++
		} else {
			summary.Rejected++
		}
		if wc, ok := toFloat(d.Content["weighted_confidence"]); ok && wc != 0 {
			confidences = append(confidences, wc)
		}
		if flags, ok := d.Content["risk_flags"].([]any); ok {
			for _, f := range flags {
				if flag, ok := f.(string); ok {
					// group flags by family, dropping the detail suffix
					family := strings.TrimSpace(strings.SplitN(flag, "(", 2)[0])
					flagCounts[family]++
				}
			}
		}
	}

	summary.Count = summary.Approved + summary.Rejected
	if summary.Count > 0 {
		summary.ApprovalRate = float64(summary.Approved) / float64(summary.Count)
	}
	if len(confidences) > 0 {
		total := 0.0
		for _, c := range confidences {
			total += c
		}
		summary.AvgConf = total / float64(len(confidences))
	}

	for flag, count := range flagCounts {
		summary.TopRiskFlags = append(summary.TopRiskFlags, FlagCount{Flag: flag, Count: count})
	}
	sort.Slice(summary.TopRiskFlags, func(i, j int) bool {
		if summary.TopRiskFlags[i].Count != summary.TopRiskFlags[j].Count {
			return summary.TopRiskFlags[i].Count > summary.TopRiskFlags[j].Count
		}
		return summary.TopRiskFlags[i].Flag < summary.TopRiskFlags[j].Flag
	})
	if len(summary.TopRiskFlags) > 3 {
		summary.TopRiskFlags = summary.TopRiskFlags[:3]
	}

	start := decisions[len(decisions)-1].CreatedAt
	end := decisions[0].CreatedAt
	summary.PeriodStart = &start
	summary.PeriodEnd = &end

	return summary, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
