package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"basegraph.app/autoreply/common/logger"
	"basegraph.app/autoreply/core/config"
	"basegraph.app/autoreply/internal/model"
)

// Notifier pushes an alert to administrators. Callers treat it as best effort.
type Notifier interface {
	NotifyAdmins(ctx context.Context, message string, urgent bool) error
}

type nopNotifier struct{}

// NewNopNotifier is used when no operator channel is configured.
func NewNopNotifier() Notifier {
	return nopNotifier{}
}

func (nopNotifier) NotifyAdmins(ctx context.Context, message string, urgent bool) error {
	slog.DebugContext(ctx, "operator notification dropped, no channel configured", "message", logger.Truncate(message, 256))
	return nil
}

type telegramNotifier struct {
	bot     *bot.Bot
	chatIDs []string
	limiter *rate.Limiter
}

// NewTelegramNotifier sends through the Bot API sendMessage method to every
// configured admin chat. Urgent alerts ring; others are delivered silently.
func NewTelegramNotifier(cfg config.TelegramConfig, httpClient *http.Client) (Notifier, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	opts := []bot.Option{
		// Send-only: no getMe probe at startup, no update polling.
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(time.Minute, httpClient),
	}
	if base := strings.TrimRight(cfg.APIBase, "/"); base != "" {
		opts = append(opts, bot.WithServerURL(base))
	}

	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &telegramNotifier{
		bot:     b,
		chatIDs: cfg.ChatIDs,
		// Bot API allows about one message per second per chat.
		limiter: rate.NewLimiter(rate.Every(time.Second), len(cfg.ChatIDs)+1),
	}, nil
}

func (n *telegramNotifier) NotifyAdmins(ctx context.Context, message string, urgent bool) error {
	text := message
	if urgent {
		text = "🚨 " + message
	}

	var errs []error
	for _, chatID := range n.chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("telegram rate limit: %w", err)
		}
		_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:              chatID,
			Text:                text,
			DisableNotification: !urgent,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("chat %s: %w", chatID, redactURL(err)))
		}
	}
	return errors.Join(errs...)
}

// redactURL drops the request URL from transport errors; it carries the bot token.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("sendMessage: %w", urlErr.Err)
	}
	return err
}

// FormatEscalationAlert is the operator message for a customer asking for a human.
func FormatEscalationAlert(ticket *model.Ticket, message string) string {
	return fmt.Sprintf("Ticket #%d needs a human agent\nSubject: %s\nCustomer message: %s",
		ticket.ID, ticket.Subject, logger.Truncate(message, 1000))
}

// FormatFailureAlert is the operator message for a work item that exhausted its retries.
func FormatFailureAlert(item model.WorkItem, cause string) string {
	return fmt.Sprintf("Auto-reply failed for ticket #%d after %d attempts\nWork item: %d\nError: %s",
		item.TicketID, item.Attempt, item.ID, logger.Truncate(cause, 1000))
}
