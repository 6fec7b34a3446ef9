package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/aman-churiwal/api-sentinel/internal/models"
)

// Sender delivers one breach to one channel type. Implementations must be
// safe for concurrent use.
type Sender interface {
	Type() models.ChannelType
	Send(ctx context.Context, channel models.NotificationChannel, breach *models.RateLimitBreach) error
}

func defaultSenders(client *http.Client) map[models.ChannelType]Sender {
	senders := []Sender{
		&EmailSender{},
		&SlackSender{Client: client},
		&PagerDutySender{Client: client},
		&WebhookSender{Client: client},
		&SMSSender{Client: client},
	}

	byType := make(map[models.ChannelType]Sender, len(senders))
	for _, s := range senders {
		byType[s.Type()] = s
	}
	return byType
}

func breachSummary(b *models.RateLimitBreach) string {
	return fmt.Sprintf("[%s] %s breach from %s on %s %s",
		b.Severity, b.BreachType, b.IP, b.Method, b.Endpoint)
}

// EmailSender delivers via SMTP with a multipart plain+HTML body.
// Config keys: smtp_host, smtp_port, username, password, from, to
// (comma-separated recipients).
type EmailSender struct{}

func (s *EmailSender) Type() models.ChannelType { return models.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, channel models.NotificationChannel, breach *models.RateLimitBreach) error {
	cfg := channel.Config
	host, port := cfg["smtp_host"], cfg["smtp_port"]
	from := cfg["from"]
	to := strings.Split(cfg["to"], ",")
	if host == "" || from == "" || len(to) == 0 || to[0] == "" {
		return fmt.Errorf("email channel missing smtp_host/from/to config")
	}
	if port == "" {
		port = "587"
	}

	var auth smtp.Auth
	if cfg["username"] != "" {
		auth = smtp.PlainAuth("", cfg["username"], cfg["password"], host)
	}

	msg := buildEmailMessage(from, to, breach)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(host+":"+port, auth, from, to, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildEmailMessage(from string, to []string, b *models.RateLimitBreach) []byte {
	boundary := "breach-" + b.ID

	plain := fmt.Sprintf("IP: %s\r\nEndpoint: %s %s\r\nType: %s\r\nSeverity: %s\r\nTime: %s\r\n",
		b.IP, b.Method, b.Endpoint, b.BreachType, b.Severity, b.Timestamp.Format(time.RFC3339))
	for k, v := range b.Details {
		plain += fmt.Sprintf("%s: %s\r\n", k, v)
	}

	html := fmt.Sprintf(`<h3>Rate limit breach</h3>
<table>
<tr><td>IP</td><td>%s</td></tr>
<tr><td>Endpoint</td><td>%s %s</td></tr>
<tr><td>Type</td><td>%s</td></tr>
<tr><td>Severity</td><td><b>%s</b></td></tr>
<tr><td>Time</td><td>%s</td></tr>
</table>`,
		b.IP, b.Method, b.Endpoint, b.BreachType, b.Severity, b.Timestamp.Format(time.RFC3339))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", breachSummary(b))
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, plain)
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, html)
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}

// SlackSender posts an attachment with structured fields to an incoming
// webhook. Config keys: webhook_url.
type SlackSender struct {
	Client *http.Client
}

func (s *SlackSender) Type() models.ChannelType { return models.ChannelSlack }

func (s *SlackSender) Send(ctx context.Context, channel models.NotificationChannel, breach *models.RateLimitBreach) error {
	webhookURL := channel.Config["webhook_url"]
	if webhookURL == "" {
		return fmt.Errorf("slack channel missing webhook_url config")
	}

	fields := []map[string]interface{}{
		{"title": "IP", "value": breach.IP, "short": true},
		{"title": "Endpoint", "value": breach.Method + " " + breach.Endpoint, "short": true},
		{"title": "Type", "value": string(breach.BreachType), "short": true},
		{"title": "Severity", "value": string(breach.Severity), "short": true},
	}
	payload := map[string]interface{}{
		"text": breachSummary(breach),
		"attachments": []map[string]interface{}{{
			"color":  severityColor(breach.Severity),
			"fields": fields,
			"ts":     breach.Timestamp.Unix(),
		}},
	}

	return postJSON(ctx, s.Client, webhookURL, payload)
}

func severityColor(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "#e01e5a"
	case models.SeverityHigh:
		return "#e8912d"
	case models.SeverityMedium:
		return "#ecb22e"
	default:
		return "#2eb67d"
	}
}

// PagerDutySender triggers an Events API v2 alert.
// Config keys: integration_key, optional api_url.
type PagerDutySender struct {
	Client *http.Client
}

func (s *PagerDutySender) Type() models.ChannelType { return models.ChannelPagerDuty }

func (s *PagerDutySender) Send(ctx context.Context, channel models.NotificationChannel, breach *models.RateLimitBreach) error {
	key := channel.Config["integration_key"]
	if key == "" {
		return fmt.Errorf("pagerduty channel missing integration_key config")
	}

	apiURL := channel.Config["api_url"]
	if apiURL == "" {
		apiURL = "https://events.pagerduty.com/v2/enqueue"
	}

	payload := map[string]interface{}{
		"routing_key":  key,
		"event_action": "trigger",
		"dedup_key":    fmt.Sprintf("%s:%s:%s", breach.IP, breach.Endpoint, breach.BreachType),
		"payload": map[string]interface{}{
			"summary":        breachSummary(breach),
			"source":         breach.IP,
			"severity":       pagerdutySeverity(breach.Severity),
			"timestamp":      breach.Timestamp.Format(time.RFC3339),
			"custom_details": breach.Details,
		},
	}

	return postJSON(ctx, s.Client, apiURL, payload)
}

func pagerdutySeverity(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "critical"
	case models.SeverityHigh:
		return "error"
	case models.SeverityMedium:
		return "warning"
	default:
		return "info"
	}
}

// WebhookSender posts the raw breach record as JSON to a generic endpoint.
// Config keys: url.
type WebhookSender struct {
	Client *http.Client
}

func (s *WebhookSender) Type() models.ChannelType { return models.ChannelWebhook }

func (s *WebhookSender) Send(ctx context.Context, channel models.NotificationChannel, breach *models.RateLimitBreach) error {
	target := channel.Config["url"]
	if target == "" {
		return fmt.Errorf("webhook channel missing url config")
	}

	return postJSON(ctx, s.Client, target, breach)
}

// SMSSender posts to an HTTP SMS gateway as a form.
// Config keys: api_url, to (comma-separated numbers), optional api_key.
type SMSSender struct {
	Client *http.Client
}

func (s *SMSSender) Type() models.ChannelType { return models.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, channel models.NotificationChannel, breach *models.RateLimitBreach) error {
	apiURL := channel.Config["api_url"]
	if apiURL == "" {
		return fmt.Errorf("sms channel missing api_url config")
	}

	form := url.Values{}
	form.Set("to", channel.Config["to"])
	form.Set("body", breachSummary(breach))
	if key := channel.Config["api_key"]; key != "" {
		form.Set("api_key", key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, target string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
