package notify

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/config"
)

func TestNotifier_Disabled(t *testing.T) {
	n := New(&config.SlackConfig{Enabled: false})
	if n.IsEnabled() {
		t.Error("IsEnabled = true for disabled config")
	}
	// disabled notifier never dials out
	if err := n.RunStarted("run-1", "a", "b", 100); err != nil {
		t.Errorf("RunStarted on disabled notifier: %v", err)
	}
}

func TestNotifier_NilConfig(t *testing.T) {
	n := New(nil)
	if n.IsEnabled() {
		t.Error("IsEnabled = true for nil config")
	}
}

func TestNotifier_SendsWebhook(t *testing.T) {
	var received SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("unmarshal webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(&config.SlackConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		Channel:    "#migrations",
	})

	if err := n.RunFailed("run-1", "migrate", errors.New("connection reset"), 90*time.Second); err != nil {
		t.Fatalf("RunFailed: %v", err)
	}

	if received.Channel != "#migrations" {
		t.Errorf("channel = %q", received.Channel)
	}
	if received.Username != "pg-partition-migrate" {
		t.Errorf("default username = %q", received.Username)
	}
	if len(received.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(received.Attachments))
	}
	att := received.Attachments[0]
	if att.Title != "Partition Migration Failed" || att.Text != "connection reset" {
		t.Errorf("attachment = %+v", att)
	}
}

func TestNotifier_WebhookErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := New(&config.SlackConfig{Enabled: true, WebhookURL: server.URL})
	if err := n.RunCompleted("run-1", time.Minute, 1000, true, 50); err == nil {
		t.Error("expected error for non-200 webhook response")
	}
}
