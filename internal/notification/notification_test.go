package notification

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewWebhookProvider_Defaults(t *testing.T) {
	p := NewWebhookProvider(WebhookConfig{URL: "http://example.com/hook", Enabled: true})

	if p.config.Method != "POST" {
		t.Errorf("expected default method POST, got %q", p.config.Method)
	}
	if p.config.ContentType != "application/json" {
		t.Errorf("expected default content type application/json, got %q", p.config.ContentType)
	}
	if p.client == nil {
		t.Fatal("expected an HTTP client")
	}
	if p.client.Timeout == 0 {
		t.Error("expected a non-zero client timeout")
	}
}

func TestWebhookProvider_RenderDefaultBody(t *testing.T) {
	p := NewWebhookProvider(WebhookConfig{URL: "http://example.com/hook", Enabled: true})

	body, err := p.renderBody(Event{
		Type:      EventTodoDue,
		Title:     "Todo due",
		Message:   "mow lawn",
		Timestamp: time.Now(),
		Fields:    map[string]string{"todo_id": "7"},
	})
	if err != nil {
		t.Fatalf("failed to render body: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("default template should render valid JSON: %v\n%s", err, body)
	}
	if decoded["event"] != string(EventTodoDue) {
		t.Errorf("expected event %q, got %v", EventTodoDue, decoded["event"])
	}
	if decoded["message"] != "mow lawn" {
		t.Errorf("expected message %q, got %v", "mow lawn", decoded["message"])
	}
}

func TestDiscordProvider_BuildPayload(t *testing.T) {
	p := NewDiscordProvider(DiscordConfig{WebhookURL: "http://example.com/hook", Enabled: true})

	payload := p.buildPayload(Event{
		Type:      EventSystemError,
		Title:     "boom",
		Message:   "something broke",
		Timestamp: time.Now(),
	})

	if payload.Username != "Tasklight" {
		t.Errorf("expected default username Tasklight, got %q", payload.Username)
	}
	if len(payload.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(payload.Embeds))
	}
	if payload.Embeds[0].Color != 0xFF0000 {
		t.Errorf("expected error color, got %#x", payload.Embeds[0].Color)
	}
}

func TestValidateWebhookBody(t *testing.T) {
	if err := ValidateWebhookBody(""); err != nil {
		t.Errorf("empty body should be valid: %v", err)
	}
	if err := ValidateWebhookBody(`{"title": "{{.Title}}"}`); err != nil {
		t.Errorf("valid template rejected: %v", err)
	}
	if err := ValidateWebhookBody(`{{.Title`); err == nil {
		t.Error("expected error for unterminated template")
	}
}
