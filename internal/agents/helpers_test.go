package agents

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/feeds"
)

// fakeRepo is an in-memory Repository for agent tests
type fakeRepo struct {
	mu sync.Mutex

	openPositions   []db.Position
	closedPositions []db.Position
	confidences     []float64
	signals         []db.Signal
	voteOutcomes    map[string][]db.VoteOutcome
	snapshot        *db.PortfolioSnapshot
	signalsToday    int

	upsertedSnapshots []db.PortfolioSnapshot
	heartbeats        map[string]db.AgentHeartbeat
	memories          []db.MemoryEntry

	err error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		voteOutcomes: make(map[string][]db.VoteOutcome),
		heartbeats:   make(map[string]db.AgentHeartbeat),
	}
}

func (f *fakeRepo) GetOpenPositions(ctx context.Context) ([]db.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]db.Position(nil), f.openPositions...), nil
}

func (f *fakeRepo) CountOpenPositions(ctx context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if symbol == "" {
		return len(f.openPositions), nil
	}
	count := 0
	for _, p := range f.openPositions {
		if p.Symbol == symbol {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) GetClosedPositions(ctx context.Context, strategyID string, since time.Time) ([]db.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]db.Position(nil), f.closedPositions...), nil
}

func (f *fakeRepo) CountSignalsToday(ctx context.Context) (int, error) {
	return f.signalsToday, f.err
}

func (f *fakeRepo) RecentSignalConfidences(ctx context.Context, symbol string, hours int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]float64(nil), f.confidences...), nil
}

func (f *fakeRepo) SignalsSince(ctx context.Context, since time.Time) ([]db.Signal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]db.Signal(nil), f.signals...), nil
}

func (f *fakeRepo) VoteOutcomes(ctx context.Context, agentName string, since time.Time) ([]db.VoteOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]db.VoteOutcome(nil), f.voteOutcomes[agentName]...), nil
}

func (f *fakeRepo) LatestSnapshot(ctx context.Context) (*db.PortfolioSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeRepo) UpsertSnapshot(ctx context.Context, snapshot *db.PortfolioSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upsertedSnapshots = append(f.upsertedSnapshots, *snapshot)
	return nil
}

func (f *fakeRepo) UpsertHeartbeat(ctx context.Context, hb *db.AgentHeartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.heartbeats[hb.AgentName] = *hb
	return nil
}

func (f *fakeRepo) InsertMemory(ctx context.Context, entry *db.MemoryEntry) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, f.err
	}
	entry.ID = uuid.New()
	f.memories = append(f.memories, *entry)
	return entry.ID, nil
}

func (f *fakeRepo) ListMemory(ctx context.Context, agentName string, memType db.MemoryType, symbol string, limit int) ([]db.MemoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []db.MemoryEntry
	for _, m := range f.memories {
		if m.AgentName != agentName {
			continue
		}
		if memType != "" && m.MemoryType != memType {
			continue
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) memoriesOfType(memType db.MemoryType) []db.MemoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.MemoryEntry
	for _, m := range f.memories {
		if m.MemoryType == memType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeRepo) flagsContain(entries []db.MemoryEntry, substr string) bool {
	for _, e := range entries {
		for _, v := range e.Content {
			if s, ok := v.(string); ok && strings.Contains(s, substr) {
				return true
			}
		}
	}
	return false
}

// stubFetcher serves canned articles per feed URL
type stubFetcher struct {
	mu    sync.Mutex
	byURL map[string][]feeds.Article
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) []feeds.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byURL[url]
}

func (s *stubFetcher) set(url string, articles []feeds.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byURL == nil {
		s.byURL = make(map[string][]feeds.Article)
	}
	s.byURL[url] = articles
}

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b, err := bus.New(bus.Config{})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}
