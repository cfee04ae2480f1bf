package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDiscordDisabled(t *testing.T) {
	var nilDiscord *Discord
	if nilDiscord.Enabled() {
		t.Error("nil notifier should be disabled")
	}
	d := NewDiscord("", log.New(io.Discard, "", 0))
	if d.Enabled() {
		t.Error("notifier without webhook should be disabled")
	}
	// Should not panic or send anything
	d.NotifyCallEnded(context.Background(), CallSummary{CustomerName: "Ravi"})
}

func TestNotifyCallEnded(t *testing.T) {
	received := make(chan discordMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg discordMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		received <- msg
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, log.New(io.Discard, "", 0))
	d.NotifyCallEnded(context.Background(), CallSummary{
		CustomerName: "Ravi",
		PhoneNumber:  "+919876543210",
		Reason:       "customer_goodbye",
		EndedBy:      "watcher",
		Duration:     95 * time.Second,
		CostCents:    15,
		LeadSummary:  "Wants a 5 lakh personal loan",
		Interested:   true,
	})

	select {
	case msg := <-received:
		if len(msg.Embeds) != 1 {
			t.Fatalf("got %d embeds, want 1", len(msg.Embeds))
		}
		e := msg.Embeds[0]
		if e.Color != 0x00FF00 {
			t.Errorf("color = %#x, want green", e.Color)
		}
		fields := map[string]string{}
		for _, f := range e.Fields {
			fields[f.Name] = f.Value
		}
		want := map[string]string{
			"Customer": "Ravi",
			"Phone":    "`+********3210`",
			"Reason":   "customer_goodbye",
			"Duration": "1m35s",
			"Cost":     "$0.15",
			"Lead":     "Wants a 5 lakh personal loan",
		}
		for k, v := range want {
			if fields[k] != v {
				t.Errorf("field %s = %q, want %q", k, fields[k], v)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestNotifyPlacementFailed(t *testing.T) {
	received := make(chan discordMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg discordMessage
		_ = json.NewDecoder(r.Body).Decode(&msg)
		received <- msg
	}))
	defer srv.Close()

	d := NewDiscord(srv.URL, log.New(io.Discard, "", 0))
	d.NotifyPlacementFailed(context.Background(), "+919876543210", errors.New("Exotel API error (403): forbidden"))

	select {
	case msg := <-received:
		if msg.Content != "@here" {
			t.Errorf("content = %q, want @here", msg.Content)
		}
		if msg.Embeds[0].Description != "Exotel API error (403): forbidden" {
			t.Errorf("description = %q", msg.Embeds[0].Description)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not called")
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"1234", "1234"},
		{"+919876543210", "+********3210"},
		{"98765-43210", "*****-*3210"},
	}
	for _, tt := range tests {
		if got := maskPhone(tt.in); got != tt.want {
			t.Errorf("maskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
