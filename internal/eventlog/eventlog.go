// Package eventlog appends call lifecycle events to the call_events table.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of call event
type EventType string

const (
	EventCallPlaced          EventType = "call_placed"
	EventCallPlacementFailed EventType = "call_placement_failed"
	EventSessionStarted      EventType = "session_started"
	EventCorrelationMiss     EventType = "correlation_miss"
	EventStreamStarted       EventType = "stream_started"
	EventEndCallTool         EventType = "end_call_tool"
	EventTerminationDetected EventType = "termination_detected"
	EventClientDisconnected  EventType = "client_disconnected"
	EventLeadExtracted       EventType = "lead_extracted"
	EventCallEnded           EventType = "call_ended"
)

// Logger writes events to the database. A Logger without a pool drops
// everything.
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, callID string, eventType EventType, data map[string]any) error {
	if l == nil || l.db == nil || callID == "" {
		return nil // Silently skip if no DB or call ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO call_events (call_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, callID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(callID string, eventType EventType, data map[string]any) {
	if l == nil || l.db == nil || callID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, callID, eventType, data)
	}()
}
