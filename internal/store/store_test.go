package store

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digiloans/voicebot/internal/costs"
)

// getTestDB returns a database pool for testing.
// Skips the test if DATABASE_URL is not set.
func getTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

func TestStoreWithoutDatabase(t *testing.T) {
	ctx := context.Background()

	for name, s := range map[string]*Store{"nil store": nil, "nil pool": New(nil)} {
		t.Run(name, func(t *testing.T) {
			if s.Enabled() {
				t.Fatal("Enabled() = true without a database")
			}
			if err := s.Migrate(ctx); err != nil {
				t.Errorf("Migrate: %v", err)
			}
			if err := s.InsertOutboundCall(ctx, OutboundCall{ProviderCallID: "abc"}); err != nil {
				t.Errorf("InsertOutboundCall: %v", err)
			}
			if err := s.CompleteCall(ctx, CallOutcome{SessionID: "x"}); err != nil {
				t.Errorf("CompleteCall: %v", err)
			}
			if err := s.RecordCallCosts(ctx, "x", costs.CallMetrics{}, costs.CallCosts{}); err != nil {
				t.Errorf("RecordCallCosts: %v", err)
			}
			if err := s.InsertLead(ctx, "x", Lead{}); err != nil {
				t.Errorf("InsertLead: %v", err)
			}
			if n, err := s.CountOutboundCalls(ctx, "+919876543210"); err != nil || n != 0 {
				t.Errorf("CountOutboundCalls = %d, %v", n, err)
			}
		})
	}
}

func TestSchemaEmbedded(t *testing.T) {
	schema, err := schemaFS.ReadFile("schema/postgres.sql")
	if err != nil {
		t.Fatalf("schema not embedded: %v", err)
	}
	for _, table := range []string{"calls", "call_sessions", "call_costs", "call_leads", "call_events"} {
		if !strings.Contains(string(schema), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("schema missing table %s", table)
		}
	}
}

func TestCallLifecycle(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	s := New(db)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	phone := "+91" + time.Now().Format("150405") + "0000"
	before, err := s.CountOutboundCalls(ctx, phone)
	if err != nil {
		t.Fatalf("CountOutboundCalls failed: %v", err)
	}
	if err := s.InsertOutboundCall(ctx, OutboundCall{
		ProviderCallID: "unknown",
		FromNumber:     "08047112345",
		ToNumber:       phone,
		CustomerName:   "Ravi",
		Status:         "call_initiated",
	}); err != nil {
		t.Fatalf("InsertOutboundCall failed: %v", err)
	}
	after, err := s.CountOutboundCalls(ctx, phone)
	if err != nil {
		t.Fatalf("CountOutboundCalls failed: %v", err)
	}
	if after != before+1 {
		t.Errorf("count after insert = %d, want %d", after, before+1)
	}

	sessionID := uuid.NewString()
	started := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Millisecond)
	ended := time.Now().UTC().Truncate(time.Millisecond)
	outcome := CallOutcome{
		SessionID:      sessionID,
		ProviderCallID: "c0ffee",
		PhoneNumber:    phone,
		CustomerName:   "Ravi",
		EndReason:      "customer_goodbye",
		EndedBy:        "watcher",
		StartedAt:      started,
		EndedAt:        ended,
		Transcript:     json.RawMessage(`[{"role":"assistant","content":"Hello"}]`),
	}
	if err := s.CompleteCall(ctx, outcome); err != nil {
		t.Fatalf("CompleteCall failed: %v", err)
	}

	m := costs.CallMetrics{CallDurationSeconds: 120, STTDurationSeconds: 120, LLMInputTokens: 5000, LLMOutputTokens: 200, TTSCharacters: 400}
	if err := s.RecordCallCosts(ctx, sessionID, m, costs.CalculateCallCosts(m)); err != nil {
		t.Fatalf("RecordCallCosts failed: %v", err)
	}
	if err := s.InsertLead(ctx, sessionID, Lead{LoanType: "personal loan", LoanAmount: "5 lakh", Interested: true}); err != nil {
		t.Fatalf("InsertLead failed: %v", err)
	}

	got, err := s.GetCallOutcome(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetCallOutcome failed: %v", err)
	}
	if got.EndReason != "customer_goodbye" || got.EndedBy != "watcher" || got.CustomerName != "Ravi" {
		t.Errorf("outcome = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}

	_, _ = db.Exec(ctx, `DELETE FROM call_sessions WHERE id = $1`, sessionID)
	_, _ = db.Exec(ctx, `DELETE FROM calls WHERE to_number = $1`, phone)
}
