package termination

import (
	"encoding/json"

	"github.com/digiloans/voicebot/internal/llm"
)

const EndCallToolName = "end_call"

// EndCallTool is the function the model calls to hang up.
func EndCallTool() llm.Tool {
	enum := make([]string, 0, len(Reasons))
	for _, r := range Reasons {
		enum = append(enum, string(r))
	}
	return llm.Tool{
		Name: EndCallToolName,
		Description: "End the phone call. Call this IMMEDIATELY after you say any goodbye. " +
			"Use it when the customer says goodbye, says they are not interested, " +
			"when all qualification details are collected and confirmed, " +
			"or when you reach the wrong person.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"enum":        enum,
					"description": "Why the call is ending.",
				},
			},
			"required": []string{"reason"},
		},
	}
}

// EndCallResult is returned to the model after end_call runs.
type EndCallResult struct {
	Status string `json:"status"`
	Reason Reason `json:"reason"`
}

// ParseEndCall reads the reason out of end_call arguments. Malformed
// arguments yield ReasonUnknown.
func ParseEndCall(arguments string) Reason {
	var args struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ReasonUnknown
	}
	return ParseReason(args.Reason)
}

func NewEndCallResult(r Reason) EndCallResult {
	return EndCallResult{Status: "call_ended", Reason: r}
}
