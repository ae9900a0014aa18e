package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/uamguard/uamguard/internal/config"
)

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	return tgbotapi.Message{MessageID: len(b.sent)}, b.err
}

func testEvent() Event {
	baseline := 1.8
	return Event{
		From:           "inactive",
		To:             "active",
		Reason:         "normalized load 4.20 above threshold 3.60",
		NormalizedLoad: 4.2,
		Baseline:       &baseline,
		At:             time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// capture runs a test HTTP server that records the body of each POST and
// wires it into a Notifier via a webhook of the given type.
func capture(t *testing.T, whType string, status int) (*Notifier, *[]string) {
	t.Helper()

	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type: got %q", ct)
		}
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TEST_WEBHOOK_URL", srv.URL)
	n := New(config.NotifyConfig{
		Webhooks: []config.WebhookConfig{{Type: whType, URLEnv: "TEST_WEBHOOK_URL"}},
	})
	return n, &bodies
}

func TestTransition_SlackPayload(t *testing.T) {
	n, bodies := capture(t, "slack", http.StatusOK)

	n.Transition(testEvent())

	if len(*bodies) != 1 {
		t.Fatalf("deliveries: got %d, want 1", len(*bodies))
	}
	var m map[string]string
	if err := json.Unmarshal([]byte((*bodies)[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	text := m["text"]
	if !strings.Contains(text, "[CRITICAL]") {
		t.Errorf("text missing severity label: %q", text)
	}
	if !strings.Contains(text, "Protection engaged") {
		t.Errorf("text missing headline: %q", text)
	}
	if !strings.Contains(text, "baseline 1.80") {
		t.Errorf("text missing baseline: %q", text)
	}
}

func TestTransition_TeamsPayload(t *testing.T) {
	n, bodies := capture(t, "teams", http.StatusOK)

	ev := testEvent()
	ev.From, ev.To = "active", "inactive"
	ev.Reason = "normalized load 0.80 below threshold 0.90"
	ev.NormalizedLoad = 0.8
	n.Transition(ev)

	var m map[string]interface{}
	if err := json.Unmarshal([]byte((*bodies)[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["@type"] != "MessageCard" {
		t.Errorf("@type: got %v", m["@type"])
	}
	if m["summary"] != "Protection lifted" {
		t.Errorf("summary: got %v", m["summary"])
	}
	if m["themeColor"] != "36A64F" {
		t.Errorf("themeColor: got %v", m["themeColor"])
	}
}

func TestTransition_GenericHTTPCarriesEvent(t *testing.T) {
	n, bodies := capture(t, "http", http.StatusOK)

	n.Transition(testEvent())

	var m struct {
		Event Event `json:"event"`
	}
	if err := json.Unmarshal([]byte((*bodies)[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Event.To != "active" {
		t.Errorf("to: got %q, want active", m.Event.To)
	}
	if m.Event.NormalizedLoad != 4.2 {
		t.Errorf("normalized_load: got %v", m.Event.NormalizedLoad)
	}
	if m.Event.ID == "" {
		t.Error("event id: not assigned")
	}
}

func TestTransition_FailedWebhookDoesNotPanic(t *testing.T) {
	n, bodies := capture(t, "slack", http.StatusBadGateway)

	n.Transition(testEvent())

	// Delivery was attempted; the error is logged only.
	if len(*bodies) != 1 {
		t.Fatalf("deliveries: got %d, want 1", len(*bodies))
	}
}

func TestTransition_UnknownTypeSkipped(t *testing.T) {
	n, bodies := capture(t, "carrier-pigeon", http.StatusOK)

	n.Transition(testEvent())

	if len(*bodies) != 0 {
		t.Errorf("deliveries: got %d, want 0", len(*bodies))
	}
}

func TestTransition_MissingURLSkipped(t *testing.T) {
	n := New(config.NotifyConfig{
		Webhooks: []config.WebhookConfig{{Type: "slack", URLEnv: "UNSET_WEBHOOK_URL_VAR"}},
	})
	n.Transition(testEvent()) // must not panic or hang
}

func TestTransition_Telegram(t *testing.T) {
	bot := &fakeBot{}
	n := &Notifier{
		client: http.DefaultClient,
		tg:     bot,
		chatID: 42,
	}

	n.Transition(testEvent())

	if len(bot.sent) != 1 {
		t.Fatalf("telegram sends: got %d, want 1", len(bot.sent))
	}
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent type: %T", bot.sent[0])
	}
	if msg.ChatID != 42 {
		t.Errorf("chat id: got %d, want 42", msg.ChatID)
	}
	if !strings.Contains(msg.Text, "Protection engaged") {
		t.Errorf("text: %q", msg.Text)
	}
}

func TestNew_TelegramDisabledWithoutToken(t *testing.T) {
	n := New(config.NotifyConfig{Telegram: config.TelegramConfig{ChatID: 42}})
	if n.tg != nil {
		t.Error("telegram should be disabled without a token")
	}
}
