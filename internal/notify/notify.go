// Package notify delivers protection transition notifications to webhooks
// and Telegram. Delivery is best-effort: failures are logged and never affect
// the control loop.
package notify

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/uamguard/uamguard/internal/config"
)

// Event describes one protection mode transition.
type Event struct {
	ID             string    `json:"id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Reason         string    `json:"reason"`
	NormalizedLoad float64   `json:"normalized_load"`
	Baseline       *float64  `json:"baseline,omitempty"`
	At             time.Time `json:"at"`
}

// telegramSender abstracts the Telegram bot method used for delivery.
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier fans a transition event out to all configured channels.
type Notifier struct {
	webhooks []config.WebhookConfig
	client   *http.Client

	tg     telegramSender
	chatID int64
}

// New builds a Notifier from configuration. The Telegram channel is enabled
// only when a bot token is configured and the bot handshake succeeds; a failed
// handshake is logged and the remaining channels still work.
func New(cfg config.NotifyConfig) *Notifier {
	n := &Notifier{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		chatID:   cfg.Telegram.ChatID,
	}

	if token := cfg.Telegram.Token(); token != "" {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			slog.Error("notify: telegram init failed, channel disabled", "err", err)
		} else {
			n.tg = bot
		}
	}
	return n
}

// Transition delivers ev to every configured channel. It assigns the event ID
// and runs in the caller's goroutine; callers that must not block should call
// it from their own goroutine.
func (n *Notifier) Transition(ev Event) {
	ev.ID = uuid.NewString()

	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(url, ev)
		case "teams":
			err = n.sendTeams(url, ev)
		case "pagerduty", "http":
			err = n.sendHTTP(url, ev)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"event", ev.ID,
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"event", ev.ID,
				"to", ev.To,
			)
		}
	}

	if n.tg != nil {
		if err := n.sendTelegram(ev); err != nil {
			slog.Error("notify: telegram delivery failed", "event", ev.ID, "err", err)
		}
	}
}

func headline(ev Event) string {
	if ev.To == "active" {
		return "Protection engaged"
	}
	return "Protection lifted"
}

func summary(ev Event) string {
	s := fmt.Sprintf("%s: %s (normalized load %.2f", headline(ev), ev.Reason, ev.NormalizedLoad)
	if ev.Baseline != nil {
		s += fmt.Sprintf(", baseline %.2f", *ev.Baseline)
	}
	return s + ")"
}
