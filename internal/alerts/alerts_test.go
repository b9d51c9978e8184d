package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ualgo/engine/internal/bus"
)

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingAlerter) Send(ctx context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return r.err
}

func (r *recordingAlerter) received() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

func TestManagerFansOutToAllChannels(t *testing.T) {
	first := &recordingAlerter{}
	second := &recordingAlerter{}
	m := NewManager(first, second)

	err := m.Send(context.Background(), Alert{
		Title:    "Kill Switch Activated",
		Severity: SeverityCritical,
	})
	require.NoError(t, err)

	assert.Len(t, first.received(), 1)
	assert.Len(t, second.received(), 1)
}

func TestManagerStampsTimestamp(t *testing.T) {
	rec := &recordingAlerter{}
	m := NewManager(rec)

	require.NoError(t, m.Send(context.Background(), Alert{Title: "Signal Approved"}))

	got := rec.received()
	require.Len(t, got, 1)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestManagerContinuesPastFailedChannel(t *testing.T) {
	failing := &recordingAlerter{err: errors.New("chat unreachable")}
	healthy := &recordingAlerter{}
	m := NewManager(failing, healthy)

	err := m.Send(context.Background(), Alert{Title: "Risk Flags Raised"})

	assert.Error(t, err)
	assert.Len(t, healthy.received(), 1)
}

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b, err := bus.New(bus.Config{})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func waitForAlert(t *testing.T, rec *recordingAlerter, title string) Alert {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, alert := range rec.received() {
			if alert.Title == title {
				return alert
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no alert titled %q arrived", title)
	return Alert{}
}

func TestNotifierKillSwitchActivation(t *testing.T) {
	b := newTestBus(t)
	rec := &recordingAlerter{}
	require.NoError(t, NewNotifier(NewManager(rec)).Subscribe(b))

	require.NoError(t, b.Broadcast("risk_sentinel", "risk.kill_switch", map[string]any{
		"active": true,
		"reason": "Max drawdown exceeded: -12.00%",
	}))
	require.NoError(t, b.Flush())

	alert := waitForAlert(t, rec, "Kill Switch Activated")
	assert.Equal(t, SeverityCritical, alert.Severity)
	assert.Contains(t, alert.Message, "Max drawdown exceeded")
}

func TestNotifierKillSwitchDeactivation(t *testing.T) {
	b := newTestBus(t)
	rec := &recordingAlerter{}
	require.NoError(t, NewNotifier(NewManager(rec)).Subscribe(b))

	require.NoError(t, b.Broadcast("risk_sentinel", "risk.kill_switch", map[string]any{
		"active":   false,
		"operator": "ops",
	}))
	require.NoError(t, b.Flush())

	alert := waitForAlert(t, rec, "Kill Switch Deactivated")
	assert.Equal(t, SeverityInfo, alert.Severity)
	assert.Contains(t, alert.Message, "ops")
}

func TestNotifierSignalApproved(t *testing.T) {
	b := newTestBus(t)
	rec := &recordingAlerter{}
	require.NoError(t, NewNotifier(NewManager(rec)).Subscribe(b))

	require.NoError(t, b.Broadcast("orchestrator", "signal.approved", map[string]any{
		"symbol":     "BTCUSDT",
		"direction":  "LONG",
		"confidence": 0.72,
	}))
	require.NoError(t, b.Flush())

	alert := waitForAlert(t, rec, "Signal Approved")
	assert.Equal(t, SeverityInfo, alert.Severity)
	assert.Contains(t, alert.Message, "BTCUSDT LONG")
	assert.Contains(t, alert.Message, "0.72")
}

func TestNotifierRiskSweepAlert(t *testing.T) {
	b := newTestBus(t)
	rec := &recordingAlerter{}
	require.NoError(t, NewNotifier(NewManager(rec)).Subscribe(b))

	require.NoError(t, b.Broadcast("scheduler", "risk.alert", map[string]any{
		"symbol": "ETHUSDT",
		"flags":  []any{"MAX_POSITIONS_REACHED (5/5)"},
	}))
	require.NoError(t, b.Flush())

	alert := waitForAlert(t, rec, "Risk Flags Raised")
	assert.Equal(t, SeverityWarning, alert.Severity)
	assert.Contains(t, alert.Message, "ETHUSDT")
}
