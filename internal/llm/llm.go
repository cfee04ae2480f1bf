package llm

import "context"

// Message represents a conversation message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Tool is a function the model may call, described with a JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a completed function call requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// Usage is token accounting reported at the end of a stream.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Chunk is one streamed piece of a response. Exactly one field is set.
type Chunk struct {
	Text     string
	ToolCall *ToolCall
	Usage    *Usage
}

// LeadDetails are the qualification answers collected during a call.
type LeadDetails struct {
	LoanType       string `json:"loan_type"`       // "personal loan", "home loan" or ""
	LoanAmount     string `json:"loan_amount"`     // as spoken, e.g. "5 lakh"
	MonthlyIncome  string `json:"monthly_income"`  // as spoken
	EmploymentType string `json:"employment_type"` // "salaried", "self-employed" or ""
	Interested     bool   `json:"interested"`
	Language       string `json:"language"` // dominant language of the customer
	Summary        string `json:"summary"`
}

// Client defines the interface for LLM providers.
type Client interface {
	// StreamResponse generates the next assistant turn. Text and tool calls
	// arrive on the channel, which is closed when the response is complete.
	StreamResponse(ctx context.Context, messages []Message, tools []Tool) (<-chan Chunk, error)

	// ExtractLead reads a finished conversation and returns the collected answers.
	ExtractLead(ctx context.Context, messages []Message) (*LeadDetails, error)
}
