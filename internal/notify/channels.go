package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (n *Notifier) sendSlack(url string, ev Event) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", severityLabel(ev), summary(ev)),
	})
	return n.post(url, body)
}

func (n *Notifier) sendTeams(url string, ev Event) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(ev),
		"summary":    headline(ev),
		"title":      fmt.Sprintf("uamguard: %s", headline(ev)),
		"text":       summary(ev),
	}
	body, _ := json.Marshal(payload)
	return n.post(url, body)
}

func (n *Notifier) sendHTTP(url string, ev Event) error {
	body, _ := json.Marshal(map[string]interface{}{"event": ev})
	return n.post(url, body)
}

func (n *Notifier) sendTelegram(ev Event) error {
	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("%s %s", emoji(ev), summary(ev)))
	_, err := n.tg.Send(msg)
	return err
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(ev Event) string {
	if ev.To == "active" {
		return "[CRITICAL]"
	}
	return "[RESOLVED]"
}

func severityColor(ev Event) string {
	if ev.To == "active" {
		return "FF4F6A"
	}
	return "36A64F"
}

func emoji(ev Event) string {
	if ev.To == "active" {
		return "\U0001F6A8" // 🚨
	}
	return "✅" // ✅
}
