package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/config"
	"github.com/alphastack/equityresearch/internal/models"
)

// TelegramNotifier pushes actionable decisions to a Telegram chat. Only
// BUY-class decisions and vetoed SELLs on held names are worth a ping;
// callers filter before invoking.
type TelegramNotifier struct {
	bot    *bot.Bot
	chatID int64
	logger *logrus.Logger
}

// NewTelegramNotifier returns nil without error when no token is
// configured; the caller treats a nil notifier as "notifications off".
func NewTelegramNotifier(cfg config.TelegramConfig, logger *logrus.Logger) (*TelegramNotifier, error) {
	if cfg.BotToken == "" {
		return nil, nil
	}
	b, err := bot.New(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, chatID: cfg.ChatID, logger: logger}, nil
}

func (n *TelegramNotifier) NotifyDecision(ctx context.Context, d models.Decision) error {
	if n == nil || n.bot == nil {
		return nil
	}

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      formatDecisionMessage(d),
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func formatDecisionMessage(d models.Decision) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*%s* %s\n", d.Symbol, d.Action)
	fmt.Fprintf(&b, "Composite: %.1f  Confidence: %.1f\n", d.CompositeScore, d.Confidence)
	if d.Action.IsBuy() {
		fmt.Fprintf(&b, "Size: %.1f%% of capital\n", d.PositionFraction*100)
		if d.TargetPrice > 0 {
			fmt.Fprintf(&b, "Target: %.2f  Stop: %.2f\n", d.TargetPrice, d.StopPrice)
		}
	}
	if d.Pattern != nil {
		fmt.Fprintf(&b, "Pattern: %s (%.0f)\n", d.Pattern.Type, d.Pattern.Confidence)
	}
	for _, v := range d.Vetoes {
		fmt.Fprintf(&b, "Veto: %s\n", v)
	}
	for _, w := range d.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}

	return b.String()
}
