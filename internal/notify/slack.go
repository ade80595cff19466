package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
)

// SlackChannel posts scan results to a Slack incoming webhook.
type SlackChannel struct {
	url    string
	client *http.Client
}

// NewSlack creates a SlackChannel from cfg.
func NewSlack(cfg config.SlackConfig) *SlackChannel {
	return &SlackChannel{url: cfg.WebhookURL, client: &http.Client{Timeout: httpTimeout}}
}

func (s *SlackChannel) Name() string       { return "slack" }
func (s *SlackChannel) IsConfigured() bool { return s.url != "" }

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func (s *SlackChannel) Send(ctx context.Context, env Envelope) error {
	evt := env.Event
	att := slackAttachment{
		Color:  statusColor(evt),
		Title:  evt.RepoURL,
		Footer: fmt.Sprintf("devsecwatch scan #%d", evt.ScanID),
		TS:     evt.Timestamp.Unix(),
	}
	if evt.Status == string(models.StatusCompleted) && evt.TotalVulnerabilities > 0 {
		att.Fields = []slackField{
			{Title: "Critical", Value: strconv.Itoa(evt.CriticalCount), Short: true},
			{Title: "High", Value: strconv.Itoa(evt.HighCount), Short: true},
		}
	}
	body, err := json.Marshal(slackMessage{Text: evt.Message, Attachments: []slackAttachment{att}})
	if err != nil {
		return err
	}
	return postJSON(ctx, s.client, "slack webhook", s.url, body, nil)
}

func statusColor(evt Event) string {
	switch {
	case evt.Status == string(models.StatusFailed):
		return "#888888"
	case evt.CriticalCount > 0:
		return "danger"
	case evt.HighCount > 0:
		return "warning"
	default:
		return "good"
	}
}
