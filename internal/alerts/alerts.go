// Package alerts delivers operator notifications for the events that
// matter outside the process: kill-switch transitions, approved
// signals and raised risk flags.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one operator notification
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]any
}

// Alerter delivers alerts over one channel
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans an alert out to every configured channel. Channel
// failures are logged; the last error is returned.
type Manager struct {
	alerters []Alerter
	logger   zerolog.Logger
}

// NewManager creates an alert manager over the given channels
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
		logger:   config.NewLogger("alerts"),
	}
}

// Send delivers the alert to all channels
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			m.logger.Error().Err(err).Str("title", alert.Title).Msg("Failed to send alert")
			lastErr = err
		}
	}
	return lastErr
}

// LogAlerter writes alerts to the structured log
type LogAlerter struct {
	logger zerolog.Logger
}

// NewLogAlerter creates a log-backed alert channel
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{logger: config.NewLogger("alerts")}
}

// Send logs the alert at a level matching its severity
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := l.logger.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = l.logger.Error()
	case SeverityWarning:
		event = l.logger.Warn()
	}

	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Msg(alert.Message)

	return nil
}

// Notifier converts bus events into operator alerts
type Notifier struct {
	manager *Manager
	logger  zerolog.Logger
}

// NewNotifier creates the bus-to-alert bridge
func NewNotifier(manager *Manager) *Notifier {
	return &Notifier{
		manager: manager,
		logger:  config.NewLogger("alerts"),
	}
}

// Subscribe attaches the notifier to the event topics
func (n *Notifier) Subscribe(b *bus.Bus) error {
	topics := map[string]func(*bus.Message) Alert{
		"risk.kill_switch": n.killSwitchAlert,
		"signal.approved":  n.signalApprovedAlert,
		"risk.alert":       n.riskAlert,
	}

	for topic, build := range topics {
		build := build
		if _, err := b.Subscribe(topic, func(msg *bus.Message) {
			if err := n.manager.Send(context.Background(), build(msg)); err != nil {
				n.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Alert delivery failed")
			}
		}); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

func (n *Notifier) killSwitchAlert(msg *bus.Message) Alert {
	active, _ := msg.Payload["active"].(bool)
	if active {
		reason, _ := msg.Payload["reason"].(string)
		return Alert{
			Title:    "Kill Switch Activated",
			Message:  fmt.Sprintf("Trading halted: %s", reason),
			Severity: SeverityCritical,
			Metadata: msg.Payload,
		}
	}

	operator, _ := msg.Payload["operator"].(string)
	return Alert{
		Title:    "Kill Switch Deactivated",
		Message:  fmt.Sprintf("Trading resumed by %s", operator),
		Severity: SeverityInfo,
		Metadata: msg.Payload,
	}
}

func (n *Notifier) signalApprovedAlert(msg *bus.Message) Alert {
	symbol, _ := msg.Payload["symbol"].(string)
	direction, _ := msg.Payload["direction"].(string)
	confidence, _ := msg.Payload["confidence"].(float64)

	return Alert{
		Title:    "Signal Approved",
		Message:  fmt.Sprintf("%s %s approved at confidence %.2f", symbol, direction, confidence),
		Severity: SeverityInfo,
		Metadata: msg.Payload,
	}
}

func (n *Notifier) riskAlert(msg *bus.Message) Alert {
	symbol, _ := msg.Payload["symbol"].(string)

	return Alert{
		Title:    "Risk Flags Raised",
		Message:  fmt.Sprintf("Risk sweep flagged %s", symbol),
		Severity: SeverityWarning,
		Metadata: msg.Payload,
	}
}
