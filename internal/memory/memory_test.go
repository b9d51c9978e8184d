package memory

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ualgo/engine/internal/db"
)

type fakeRepo struct {
	entries []db.MemoryEntry
	err     error
}

func (f *fakeRepo) InsertMemory(ctx context.Context, entry *db.MemoryEntry) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	entry.ID = uuid.New()
	f.entries = append(f.entries, *entry)
	return entry.ID, nil
}

func (f *fakeRepo) ListMemory(ctx context.Context, agentName string, memType db.MemoryType, symbol string, limit int) ([]db.MemoryEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	now := time.Now().UTC()
	var out []db.MemoryEntry
	for _, e := range f.entries {
		if e.AgentName != agentName {
			continue
		}
		if memType != "" && e.MemoryType != memType {
			continue
		}
		if symbol != "" && (e.Symbol == nil || *e.Symbol != symbol) {
			continue
		}
		if e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestStore(repo *fakeRepo) *Store {
	return NewStore(repo, "test_agent", zerolog.Nop())
}

func TestStoreSetsExpiryFromTTL(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestStore(repo)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return base })

	_, err := s.Store(context.Background(), db.MemoryTypeLearning, map[string]any{"k": "v"}, "", 0.5, 24)
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, base.Add(24*time.Hour), *entry.ExpiresAt)
	assert.Nil(t, entry.Symbol)
}

func TestStoreDecisionDefaults(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestStore(repo)

	_, err := s.StoreDecision(context.Background(), "BTCUSDT", map[string]any{"approved": true}, 0)
	require.NoError(t, err)

	entry := repo.entries[0]
	assert.Equal(t, db.MemoryTypeDecision, entry.MemoryType)
	assert.Equal(t, 0.7, entry.Importance)
	require.NotNil(t, entry.Symbol)
	assert.Equal(t, "BTCUSDT", *entry.Symbol)
	assert.Nil(t, entry.ExpiresAt)
}

func TestStoreLearningAndErrorTTLs(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestStore(repo)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return base })

	_, err := s.StoreLearning(context.Background(), map[string]any{"lesson": "x"})
	require.NoError(t, err)
	_, err = s.StoreError(context.Background(), map[string]any{"error": "y"})
	require.NoError(t, err)

	learning, errEntry := repo.entries[0], repo.entries[1]
	assert.Equal(t, 0.5, learning.Importance)
	assert.Equal(t, base.Add(168*time.Hour), *learning.ExpiresAt)
	assert.Equal(t, 0.3, errEntry.Importance)
	assert.Equal(t, base.Add(72*time.Hour), *errEntry.ExpiresAt)
}

func TestRecallFiltersExpired(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestStore(repo)

	past := time.Now().UTC().Add(-48 * time.Hour)
	s.WithClock(func() time.Time { return past })
	_, err := s.Store(context.Background(), db.MemoryTypeError, map[string]any{"error": "old"}, "", 0.3, 24)
	require.NoError(t, err)

	s.WithClock(func() time.Time { return time.Now().UTC() })
	_, err = s.Store(context.Background(), db.MemoryTypeError, map[string]any{"error": "fresh"}, "", 0.3, 24)
	require.NoError(t, err)

	got, err := s.Recall(context.Background(), db.MemoryTypeError, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Content["error"])
}

func TestSummarizeDecisionsEmpty(t *testing.T) {
	s := newTestStore(&fakeRepo{})

	summary, err := s.SummarizeDecisions(context.Background(), "BTCUSDT", 20)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", summary.Symbol)
	assert.Zero(t, summary.Count)
	assert.Nil(t, summary.PeriodStart)
}

func TestSummarizeDecisions(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestStore(repo)

	decisions := []map[string]any{
		{"approved": true, "weighted_confidence": 0.72, "risk_flags": []any{}},
		{"approved": true, "weighted_confidence": 0.68, "risk_flags": []any{"MAX_POSITIONS_REACHED (5/5)"}},
		{"approved": false, "weighted_confidence": 0.44, "risk_flags": []any{"MAX_POSITIONS_REACHED (5/5)", "DAILY_LOSS_LIMIT (-3.2%)"}},
		{"approved": false, "weighted_confidence": 0.31, "risk_flags": []any{"MAX_POSITIONS_REACHED (5/5)"}},
	}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, d := range decisions {
		tick := base.Add(time.Duration(i) * time.Hour)
		s.WithClock(func() time.Time { return tick })
		_, err := s.StoreDecision(context.Background(), "BTCUSDT", d, 0.7)
		require.NoError(t, err)
	}

	summary, err := s.SummarizeDecisions(context.Background(), "BTCUSDT", 20)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Count)
	assert.Equal(t, 2, summary.Approved)
	assert.Equal(t, 2, summary.Rejected)
	assert.InDelta(t, 0.5, summary.ApprovalRate, 1e-9)
	assert.InDelta(t, (0.72+0.68+0.44+0.31)/4, summary.AvgConf, 1e-9)

	require.NotEmpty(t, summary.TopRiskFlags)
	assert.Equal(t, "MAX_POSITIONS_REACHED", summary.TopRiskFlags[0].Flag)
	assert.Equal(t, 3, summary.TopRiskFlags[0].Count)

	require.NotNil(t, summary.PeriodStart)
	require.NotNil(t, summary.PeriodEnd)
	assert.True(t, !summary.PeriodEnd.Before(*summary.PeriodStart))
}
