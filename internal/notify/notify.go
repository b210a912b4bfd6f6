// Package notify sends pipeline lifecycle notifications to Slack.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/config"
)

// Provider defines the notification contract for pipeline events.
// It allows different backends and mock implementations in tests.
type Provider interface {
	// RunStarted sends notification when a pipeline run starts.
	RunStarted(runID, sourceTable, destTable string, totalRows int64) error

	// RunCompleted sends notification when a run completes successfully.
	RunCompleted(runID string, duration time.Duration, rowsMigrated int64, verified bool, avgImprovementPct float64) error

	// RunFailed sends notification when a run fails.
	RunFailed(runID, stage string, err error, duration time.Duration) error
}

// Ensure Notifier implements Provider
var _ Provider = (*Notifier)(nil)

// Notifier sends notifications to Slack
type Notifier struct {
	config     *config.SlackConfig
	httpClient *http.Client
}

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// New creates a new Slack notifier
func New(cfg *config.SlackConfig) *Notifier {
	if cfg == nil {
		cfg = &config.SlackConfig{Enabled: false}
	}
	return &Notifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns true if notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

func (n *Notifier) username() string {
	if n.config.Username != "" {
		return n.config.Username
	}
	return "pg-partition-migrate"
}

// RunStarted sends notification when a pipeline run starts
func (n *Notifier) RunStarted(runID, sourceTable, destTable string, totalRows int64) error {
	if !n.IsEnabled() {
		return nil
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.username(),
		IconEmoji: ":rocket:",
		Attachments: []SlackAttachment{
			{
				Color: "#36a64f",
				Title: "Partition Migration Started",
				Fields: []SlackField{
					{Title: "Run ID", Value: runID, Short: true},
					{Title: "Rows", Value: fmt.Sprintf("%d", totalRows), Short: true},
					{Title: "Source", Value: sourceTable, Short: true},
					{Title: "Destination", Value: destTable, Short: true},
				},
				Footer:    "pg-partition-migrate",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// RunCompleted sends notification when a run completes successfully
func (n *Notifier) RunCompleted(runID string, duration time.Duration, rowsMigrated int64, verified bool, avgImprovementPct float64) error {
	if !n.IsEnabled() {
		return nil
	}

	verification := "passed"
	color := "#36a64f"
	if !verified {
		verification = "FAILED"
		color = "#ff9800"
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.username(),
		IconEmoji: ":white_check_mark:",
		Attachments: []SlackAttachment{
			{
				Color: color,
				Title: "Partition Migration Completed",
				Fields: []SlackField{
					{Title: "Run ID", Value: runID, Short: true},
					{Title: "Duration", Value: duration.Round(time.Second).String(), Short: true},
					{Title: "Rows Migrated", Value: fmt.Sprintf("%d", rowsMigrated), Short: true},
					{Title: "Verification", Value: verification, Short: true},
					{Title: "Avg Query Improvement", Value: fmt.Sprintf("%+.1f%%", avgImprovementPct), Short: true},
				},
				Footer:    "pg-partition-migrate",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

// RunFailed sends notification when a run fails
func (n *Notifier) RunFailed(runID, stage string, err error, duration time.Duration) error {
	if !n.IsEnabled() {
		return nil
	}

	msg := SlackMessage{
		Channel:   n.config.Channel,
		Username:  n.username(),
		IconEmoji: ":x:",
		Attachments: []SlackAttachment{
			{
				Color: "#d32f2f",
				Title: "Partition Migration Failed",
				Text:  err.Error(),
				Fields: []SlackField{
					{Title: "Run ID", Value: runID, Short: true},
					{Title: "Stage", Value: stage, Short: true},
					{Title: "Duration", Value: duration.Round(time.Second).String(), Short: true},
				},
				Footer:    "pg-partition-migrate",
				Timestamp: time.Now().Unix(),
			},
		},
	}

	return n.send(msg)
}

func (n *Notifier) send(msg SlackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	resp, err := n.httpClient.Post(n.config.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}
