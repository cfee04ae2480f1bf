// Package costs estimates what a single outbound call cost in provider fees.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in US cents per unit for precision). Defaults are list
// prices and can be overridden via environment variables.
var (
	// ExotelCentsPerMinute is the per-leg rate for outbound calls.
	// Default: ~INR 1.00/min = 1.2 cents/min
	ExotelCentsPerMinute = getEnvFloat("COST_EXOTEL_CENTS_PER_MIN", 1.2)

	// DeepgramCentsPerMinute is the cost per minute for Deepgram Nova-3 multilingual streaming.
	// Default: $0.0092/min = 0.92 cents/min
	DeepgramCentsPerMinute = getEnvFloat("COST_DEEPGRAM_CENTS_PER_MIN", 0.92)

	// OpenAICentsPerThousandInputTokens is the cost per 1K input tokens for GPT-4o.
	// Default: $2.50/1M = 0.25 cents/1K tokens
	OpenAICentsPerThousandInputTokens = getEnvFloat("COST_OPENAI_INPUT_CENTS_PER_1K", 0.25)

	// OpenAICentsPerThousandOutputTokens is the cost per 1K output tokens for GPT-4o.
	// Default: $10/1M = 1 cent/1K tokens
	OpenAICentsPerThousandOutputTokens = getEnvFloat("COST_OPENAI_OUTPUT_CENTS_PER_1K", 1.0)

	// ElevenLabsCentsPerThousandChars is the cost per 1K characters for ElevenLabs TTS.
	// Default: $0.18/1K chars = 18 cents/1K chars
	ElevenLabsCentsPerThousandChars = getEnvFloat("COST_ELEVENLABS_CENTS_PER_1K_CHARS", 18.0)
)

// A connect call bills the bot leg and the customer leg.
const legsPerCall = 2

// CallMetrics contains the raw metrics from a call used for cost calculation.
type CallMetrics struct {
	CallDurationSeconds int // Media stream duration
	STTDurationSeconds  int // Audio sent to STT
	LLMInputTokens      int
	LLMOutputTokens     int
	TTSCharacters       int
}

// CallCosts contains the calculated costs for a call in cents.
type CallCosts struct {
	TelephonyCostCents int `json:"telephony_cost_cents"`
	STTCostCents       int `json:"stt_cost_cents"`
	LLMCostCents       int `json:"llm_cost_cents"`
	TTSCostCents       int `json:"tts_cost_cents"`
	TotalCostCents     int `json:"total_cost_cents"`
}

// CalculateCallCosts computes the costs for a call based on usage metrics.
func CalculateCallCosts(m CallMetrics) CallCosts {
	callMinutes := float64(m.CallDurationSeconds) / 60.0
	sttMinutes := float64(m.STTDurationSeconds) / 60.0

	telephonyCents := callMinutes * legsPerCall * ExotelCentsPerMinute
	sttCents := sttMinutes * DeepgramCentsPerMinute

	llmInputCents := (float64(m.LLMInputTokens) / 1000.0) * OpenAICentsPerThousandInputTokens
	llmOutputCents := (float64(m.LLMOutputTokens) / 1000.0) * OpenAICentsPerThousandOutputTokens
	llmCents := llmInputCents + llmOutputCents

	ttsCents := (float64(m.TTSCharacters) / 1000.0) * ElevenLabsCentsPerThousandChars

	// Round to nearest cent (we store as integers)
	costs := CallCosts{
		TelephonyCostCents: roundToInt(telephonyCents),
		STTCostCents:       roundToInt(sttCents),
		LLMCostCents:       roundToInt(llmCents),
		TTSCostCents:       roundToInt(ttsCents),
	}
	costs.TotalCostCents = costs.TelephonyCostCents + costs.STTCostCents + costs.LLMCostCents + costs.TTSCostCents

	return costs
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
