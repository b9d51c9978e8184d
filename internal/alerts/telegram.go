package alerts

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/config"
)

// botSender is the Telegram API surface the alerter uses
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter delivers alerts to a Telegram chat. A nil alerter
// is valid and drops everything, so an empty token disables alerting
// without branching at call sites.
type TelegramAlerter struct {
	api    botSender
	chatID int64
	logger zerolog.Logger
}

// NewTelegramAlerter creates the Telegram channel. An empty token
// returns (nil, nil).
func NewTelegramAlerter(cfg config.TelegramConfig) (*TelegramAlerter, error) {
	if cfg.BotToken == "" {
		return nil, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger := config.NewLogger("telegram")
	logger.Info().
		Str("bot_username", api.Self.UserName).
		Int64("chat_id", cfg.ChatID).
		Msg("Telegram alerter initialized")

	return &TelegramAlerter{
		api:    api,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

// Send delivers the alert to the configured chat
func (t *TelegramAlerter) Send(ctx context.Context, alert Alert) error {
	if t == nil || t.api == nil {
		return nil
	}

	msg := tgbotapi.NewMessage(t.chatID, formatAlert(alert))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}

	t.logger.Debug().Str("alert_title", alert.Title).Msg("Telegram alert sent")
	return nil
}

// formatAlert renders an alert as a Markdown Telegram message
func formatAlert(alert Alert) string {
	emoji := "📢"
	switch alert.Severity {
	case SeverityCritical:
		emoji = "🚨"
	case SeverityWarning:
		emoji = "⚠️"
	case SeverityInfo:
		emoji = "ℹ️"
	}

	message := fmt.Sprintf("%s *%s*\n\n%s", emoji, alert.Title, alert.Message)

	if len(alert.Metadata) > 0 {
		message += "\n\n*Details:*"
		for key, value := range alert.Metadata {
			message += fmt.Sprintf("\n• %s: `%v`", key, value)
		}
	}

	message += fmt.Sprintf("\n\n_Time: %s_", alert.Timestamp.Format("2006-01-02 15:04:05"))
	return message
}
