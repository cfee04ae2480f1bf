package session

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/digiloans/voicebot/internal/costs"
	"github.com/digiloans/voicebot/internal/eventlog"
	"github.com/digiloans/voicebot/internal/llm"
	"github.com/digiloans/voicebot/internal/notifications"
	"github.com/digiloans/voicebot/internal/store"
	"github.com/digiloans/voicebot/internal/termination"
	"github.com/digiloans/voicebot/internal/transcript"
)

// Outcome summarises a finished session.
type Outcome struct {
	SessionID    string
	CallSID      string
	PhoneNumber  string
	CustomerName string
	Reason       termination.Reason
	EndedBy      string
	StartedAt    time.Time
	EndedAt      time.Time
	Turns        []transcript.Turn
	Metrics      costs.CallMetrics
}

// LeadExtractor reads qualification answers out of a conversation.
type LeadExtractor interface {
	ExtractLead(ctx context.Context, messages []llm.Message) (*llm.LeadDetails, error)
}

// minUserTurnsForLead is how many customer turns a call needs before lead
// extraction is worth a model call.
const minUserTurnsForLead = 2

// Recorder persists outcomes and announces them. Every field is optional.
type Recorder struct {
	Store   *store.Store
	Leads   LeadExtractor
	Events  *eventlog.Logger
	Discord *notifications.Discord
	Logger  *log.Logger
}

// Report stores the outcome, its cost estimate and any extracted lead, then
// notifies Discord. Failures are logged.
func (r *Recorder) Report(ctx context.Context, o Outcome) {
	m := o.Metrics
	if m.CallDurationSeconds == 0 && !o.EndedAt.IsZero() {
		m.CallDurationSeconds = int(o.EndedAt.Sub(o.StartedAt).Seconds())
	}
	callCosts := costs.CalculateCallCosts(m)

	turns, err := json.Marshal(o.Turns)
	if err != nil {
		turns = []byte("[]")
	}
	if err := r.Store.CompleteCall(ctx, store.CallOutcome{
		SessionID:      o.SessionID,
		ProviderCallID: o.CallSID,
		PhoneNumber:    o.PhoneNumber,
		CustomerName:   o.CustomerName,
		EndReason:      string(o.Reason),
		EndedBy:        o.EndedBy,
		StartedAt:      o.StartedAt,
		EndedAt:        o.EndedAt,
		Transcript:     turns,
	}); err != nil {
		r.logf("session: failed to store outcome for %s: %v", o.SessionID, err)
	} else if err := r.Store.RecordCallCosts(ctx, o.SessionID, m, callCosts); err != nil {
		r.logf("session: failed to store costs for %s: %v", o.SessionID, err)
	}

	lead := r.extractLead(ctx, o)

	r.Events.LogAsync(o.SessionID, eventlog.EventCallEnded, map[string]any{
		"reason":           string(o.Reason),
		"ended_by":         o.EndedBy,
		"duration_seconds": m.CallDurationSeconds,
		"total_cost_cents": callCosts.TotalCostCents,
	})

	summary := notifications.CallSummary{
		CustomerName: o.CustomerName,
		PhoneNumber:  o.PhoneNumber,
		Reason:       string(o.Reason),
		EndedBy:      o.EndedBy,
		Duration:     time.Duration(m.CallDurationSeconds) * time.Second,
		CostCents:    callCosts.TotalCostCents,
	}
	if lead != nil {
		summary.LeadSummary = lead.Summary
		summary.Interested = lead.Interested
	}
	r.Discord.NotifyCallEnded(context.Background(), summary)
}

func (r *Recorder) extractLead(ctx context.Context, o Outcome) *llm.LeadDetails {
	if r.Leads == nil {
		return nil
	}
	userTurns := 0
	msgs := make([]llm.Message, 0, len(o.Turns))
	for _, t := range o.Turns {
		if t.Role == transcript.RoleUser {
			userTurns++
		}
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	if userTurns < minUserTurnsForLead {
		return nil
	}

	lead, err := r.Leads.ExtractLead(ctx, msgs)
	if err != nil {
		r.logf("session: lead extraction failed for %s: %v", o.SessionID, err)
		return nil
	}
	r.logf("session: lead for %s: %s (interested=%t)", o.SessionID, lead.Summary, lead.Interested)

	if err := r.Store.InsertLead(ctx, o.SessionID, store.Lead{
		LoanType:       lead.LoanType,
		LoanAmount:     lead.LoanAmount,
		MonthlyIncome:  lead.MonthlyIncome,
		EmploymentType: lead.EmploymentType,
		Interested:     lead.Interested,
		Language:       lead.Language,
		Summary:        lead.Summary,
	}); err != nil {
		r.logf("session: failed to store lead for %s: %v", o.SessionID, err)
	}
	r.Events.LogAsync(o.SessionID, eventlog.EventLeadExtracted, map[string]any{
		"interested": lead.Interested,
		"loan_type":  lead.LoanType,
	})
	return lead
}

func (r *Recorder) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}
