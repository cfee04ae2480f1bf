// Package store persists call audit rows in Postgres. A Store without a
// database is valid and turns every write into a no-op.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digiloans/voicebot/internal/costs"
)

//go:embed schema/postgres.sql
var schemaFS embed.FS

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Enabled reports whether writes reach a database.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	schema, err := schemaFS.ReadFile("schema/postgres.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := s.db.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// OutboundCall is the audit row written when a call is placed.
type OutboundCall struct {
	ProviderCallID string    `json:"provider_call_id"`
	FromNumber     string    `json:"from_number"`
	ToNumber       string    `json:"to_number"`
	CustomerName   string    `json:"customer_name"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// CallOutcome is how a media session ended.
type CallOutcome struct {
	SessionID      string          `json:"session_id"`
	ProviderCallID string          `json:"provider_call_id"`
	PhoneNumber    string          `json:"phone_number"`
	CustomerName   string          `json:"customer_name"`
	EndReason      string          `json:"end_reason"`
	EndedBy        string          `json:"ended_by"` // "tool", "watcher" or "disconnect"
	StartedAt      time.Time       `json:"started_at"`
	EndedAt        time.Time       `json:"ended_at"`
	Transcript     json.RawMessage `json:"transcript"`
}

// Lead holds the qualification answers extracted after a call.
type Lead struct {
	LoanType       string `json:"loan_type"`
	LoanAmount     string `json:"loan_amount"`
	MonthlyIncome  string `json:"monthly_income"`
	EmploymentType string `json:"employment_type"`
	Interested     bool   `json:"interested"`
	Language       string `json:"language"`
	Summary        string `json:"summary"`
}

// InsertOutboundCall records a placement. provider_call_id may be "unknown"
// and is not unique.
func (s *Store) InsertOutboundCall(ctx context.Context, c OutboundCall) error {
	if !s.Enabled() {
		return nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO calls (provider, provider_call_id, from_number, to_number, customer_name, status, created_at)
		VALUES ('exotel', $1, $2, $3, $4, $5, $6)
	`, c.ProviderCallID, c.FromNumber, c.ToNumber, c.CustomerName, c.Status, c.CreatedAt)
	return err
}

// CompleteCall stores the outcome of a finished session.
func (s *Store) CompleteCall(ctx context.Context, o CallOutcome) error {
	if !s.Enabled() {
		return nil
	}
	transcript := o.Transcript
	if len(transcript) == 0 {
		transcript = json.RawMessage(`[]`)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO call_sessions (id, provider_call_id, phone_number, customer_name, end_reason, ended_by, started_at, ended_at, transcript)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			end_reason = EXCLUDED.end_reason,
			ended_by = EXCLUDED.ended_by,
			ended_at = EXCLUDED.ended_at,
			transcript = EXCLUDED.transcript
	`, o.SessionID, o.ProviderCallID, o.PhoneNumber, o.CustomerName, o.EndReason, o.EndedBy, o.StartedAt, o.EndedAt, transcript)
	return err
}

// RecordCallCosts saves the cost estimate for a session.
func (s *Store) RecordCallCosts(ctx context.Context, sessionID string, m costs.CallMetrics, c costs.CallCosts) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO call_costs (
			session_id, telephony_cost_cents, stt_cost_cents, llm_cost_cents, tts_cost_cents,
			total_cost_cents, call_duration_seconds, stt_duration_seconds,
			llm_input_tokens, llm_output_tokens, tts_characters
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id) DO UPDATE SET
			telephony_cost_cents = $2, stt_cost_cents = $3, llm_cost_cents = $4,
			tts_cost_cents = $5, total_cost_cents = $6, call_duration_seconds = $7,
			stt_duration_seconds = $8, llm_input_tokens = $9, llm_output_tokens = $10,
			tts_characters = $11
	`, sessionID, c.TelephonyCostCents, c.STTCostCents, c.LLMCostCents,
		c.TTSCostCents, c.TotalCostCents, m.CallDurationSeconds,
		m.STTDurationSeconds, m.LLMInputTokens, m.LLMOutputTokens,
		m.TTSCharacters)
	return err
}

// InsertLead stores the qualification answers for a session.
func (s *Store) InsertLead(ctx context.Context, sessionID string, l Lead) error {
	if !s.Enabled() {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO call_leads (session_id, loan_type, loan_amount, monthly_income, employment_type, interested, language, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			loan_type = EXCLUDED.loan_type,
			loan_amount = EXCLUDED.loan_amount,
			monthly_income = EXCLUDED.monthly_income,
			employment_type = EXCLUDED.employment_type,
			interested = EXCLUDED.interested,
			language = EXCLUDED.language,
			summary = EXCLUDED.summary
	`, sessionID, l.LoanType, l.LoanAmount, l.MonthlyIncome, l.EmploymentType, l.Interested, l.Language, l.Summary)
	return err
}

// GetCallOutcome loads a stored session outcome.
func (s *Store) GetCallOutcome(ctx context.Context, sessionID string) (*CallOutcome, error) {
	if !s.Enabled() {
		return nil, pgx.ErrNoRows
	}
	var o CallOutcome
	err := s.db.QueryRow(ctx, `
		SELECT id::text, provider_call_id, phone_number, customer_name, end_reason, ended_by, started_at, ended_at, transcript
		FROM call_sessions WHERE id = $1
	`, sessionID).Scan(
		&o.SessionID, &o.ProviderCallID, &o.PhoneNumber, &o.CustomerName,
		&o.EndReason, &o.EndedBy, &o.StartedAt, &o.EndedAt, &o.Transcript,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CountOutboundCalls returns how many placements were recorded for a number.
func (s *Store) CountOutboundCalls(ctx context.Context, toNumber string) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM calls WHERE to_number = $1`, toNumber).Scan(&n)
	return n, err
}
