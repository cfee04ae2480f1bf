// Package notifications posts call summaries to a Discord channel.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Discord is a simple Discord webhook notifier.
type Discord struct {
	webhookURL string
	logger     *log.Logger
	client     *http.Client
}

// NewDiscord creates a new Discord notifier. If webhookURL is empty,
// notifications are silently skipped.
func NewDiscord(webhookURL string, logger *log.Logger) *Discord {
	return &Discord{
		webhookURL: webhookURL,
		logger:     logger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled returns true if the webhook is configured.
func (d *Discord) Enabled() bool {
	return d != nil && d.webhookURL != ""
}

// discordMessage is the payload for Discord webhook.
type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// send posts a message to Discord webhook asynchronously.
// Errors are logged but don't affect caller.
func (d *Discord) send(ctx context.Context, msg discordMessage) {
	if !d.Enabled() {
		return
	}

	go func() {
		body, err := json.Marshal(msg)
		if err != nil {
			d.logger.Printf("discord: failed to marshal message: %v", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(body))
		if err != nil {
			d.logger.Printf("discord: failed to create request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Printf("discord: failed to send webhook: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			d.logger.Printf("discord: webhook returned status %d", resp.StatusCode)
		}
	}()
}

// CallSummary describes a finished call.
type CallSummary struct {
	CustomerName string
	PhoneNumber  string
	Reason       string
	EndedBy      string
	Duration     time.Duration
	CostCents    int
	LeadSummary  string // empty when no lead was extracted
	Interested   bool
}

// NotifyCallEnded announces a finished call.
func (d *Discord) NotifyCallEnded(ctx context.Context, s CallSummary) {
	name := s.CustomerName
	if name == "" {
		name = "(unknown)"
	}
	color := 0x808080 // Grey
	if s.Interested {
		color = 0x00FF00 // Green
	}

	fields := []embedField{
		{Name: "Customer", Value: name, Inline: true},
		{Name: "Phone", Value: fmt.Sprintf("`%s`", maskPhone(s.PhoneNumber)), Inline: true},
		{Name: "Reason", Value: s.Reason, Inline: true},
		{Name: "Ended by", Value: s.EndedBy, Inline: true},
		{Name: "Duration", Value: s.Duration.Round(time.Second).String(), Inline: true},
		{Name: "Cost", Value: fmt.Sprintf("$%.2f", float64(s.CostCents)/100), Inline: true},
	}
	if s.LeadSummary != "" {
		fields = append(fields, embedField{Name: "Lead", Value: s.LeadSummary})
	}

	d.send(ctx, discordMessage{
		Embeds: []discordEmbed{{
			Title:     "Call ended",
			Color:     color,
			Fields:    fields,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

// NotifyPlacementFailed reports that Exotel rejected an outbound call.
func (d *Discord) NotifyPlacementFailed(ctx context.Context, phone string, err error) {
	d.send(ctx, discordMessage{
		Content: "@here", // Ping everyone
		Embeds: []discordEmbed{{
			Title:       "Outbound call failed",
			Description: err.Error(),
			Color:       0xFF0000, // Red
			Fields: []embedField{
				{Name: "Phone", Value: fmt.Sprintf("`%s`", maskPhone(phone)), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

// NotifyStalePending warns that a placed call has waited too long for its
// media stream. Later streams will be paired with the wrong customer until
// the queue drains.
func (d *Discord) NotifyStalePending(ctx context.Context, pending int, oldestPhone string, age time.Duration) {
	d.send(ctx, discordMessage{
		Embeds: []discordEmbed{{
			Title:       "Pending call not connected",
			Description: "A placed call has not opened its media stream. Streams are paired in order, so the next one may get the wrong customer.",
			Color:       0xFFA500, // Orange
			Fields: []embedField{
				{Name: "Pending", Value: fmt.Sprintf("%d", pending), Inline: true},
				{Name: "Oldest", Value: fmt.Sprintf("`%s`", maskPhone(oldestPhone)), Inline: true},
				{Name: "Waiting", Value: age.Round(time.Second).String(), Inline: true},
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}},
	})
}

// maskPhone keeps the last four digits.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	masked := make([]byte, len(phone))
	for i := range phone {
		if i < len(phone)-4 && phone[i] >= '0' && phone[i] <= '9' {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return string(masked)
}
