package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/metrics"
)

// Per-agent consensus weights. The risk sentinel carries the second
// highest weight and additionally holds veto power.
var agentWeights = map[string]float64{
	"alpha_scout":       0.20,
	"technical_analyst": 0.35,
	"risk_sentinel":     0.30,
	"orchestrator":      0.15,
}

const (
	defaultAgentWeight  = 0.10
	defaultMinConsensus = 0.70
	vetoConfidence      = 0.80
)

// VoteRepo persists consensus votes
type VoteRepo interface {
	InsertVote(ctx context.Context, vote *db.ConsensusVote) error
}

// ConsensusResult is the decision engine's verdict over one ballot
type ConsensusResult struct {
	SignalID           uuid.UUID          `json:"signal_id"`
	Approved           bool               `json:"approved"`
	ApproveCount       int                `json:"approve_count"`
	RejectCount        int                `json:"reject_count"`
	AbstainCount       int                `json:"abstain_count"`
	WeightedConfidence float64            `json:"weighted_confidence"`
	MinRequired        float64            `json:"min_required"`
	Veto               bool               `json:"veto"`
	Votes              []db.ConsensusVote `json:"votes"`
}

// DecisionEngine folds agent votes into one weighted verdict and
// persists the ballot.
type DecisionEngine struct {
	repo          VoteRepo
	minConfidence float64
	logger        zerolog.Logger
}

// NewDecisionEngine creates the engine. minConfidence <= 0 uses the
// 0.70 default.
func NewDecisionEngine(repo VoteRepo, minConfidence float64, logger zerolog.Logger) *DecisionEngine {
	if minConfidence <= 0 {
		minConfidence = defaultMinConsensus
	}
	return &DecisionEngine{
		repo:          repo,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Decide persists every vote (abstentions included) and computes the
// weighted verdict. Abstentions are excluded from the weight totals;
// a risk_sentinel reject above the veto confidence is a hard reject.
func (e *DecisionEngine) Decide(ctx context.Context, signalID uuid.UUID, votes []db.ConsensusVote) (*ConsensusResult, error) {
	result := &ConsensusResult{
		SignalID:    signalID,
		MinRequired: e.minConfidence,
		Votes:       votes,
	}

	weightedSum, weightTotal := 0.0, 0.0
	for i := range votes {
		vote := &votes[i]
		vote.SignalID = signalID
		if err := e.repo.InsertVote(ctx, vote); err != nil {
			return nil, fmt.Errorf("failed to persist vote from %s: %w", vote.AgentName, err)
		}
		metrics.RecordVote(vote.AgentName, string(vote.Vote))

		switch vote.Vote {
		case db.VoteApprove:
			result.ApproveCount++
		case db.VoteReject:
			result.RejectCount++
			if vote.AgentName == "risk_sentinel" && vote.Confidence > vetoConfidence {
				result.Veto = true
			}
		case db.VoteAbstain:
			result.AbstainCount++
			continue
		}

		weight, ok := agentWeights[vote.AgentName]
		if !ok {
			weight = defaultAgentWeight
		}
		score := vote.Confidence
		if vote.Vote == db.VoteReject {
			score = 1 - vote.Confidence
		}
		weightedSum += score * weight
		weightTotal += weight
	}

	if weightTotal > 0 {
		result.WeightedConfidence = weightedSum / weightTotal
	}

	result.Approved = result.WeightedConfidence >= e.minConfidence &&
		result.ApproveCount > result.RejectCount &&
		!result.Veto

	e.logger.Info().
		Str("signal_id", signalID.String()).
		Bool("approved", result.Approved).
		Bool("veto", result.Veto).
		Int("approve", result.ApproveCount).
		Int("reject", result.RejectCount).
		Int("abstain", result.AbstainCount).
		Float64("weighted_confidence", result.WeightedConfidence).
		Msg("Consensus decided")

	return result, nil
}
