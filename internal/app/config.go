package app

import (
	"os"
	"strconv"
	"time"

	"github.com/digiloans/voicebot/internal/llm"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string // optional; persistence is off without it
	LogEnv        string

	// Error reporting
	SentryDSN   string
	Environment string

	// Exotel
	ExotelSID         string
	ExotelAPIKey      string
	ExotelAPIToken    string
	ExotelSubdomain   string
	ExotelPhoneNumber string

	// Outbound placement
	OutboundCallsPerMinute int    // 0 means unlimited
	StartJWTSecret         string // optional bearer auth on POST /start

	// Voice AI providers
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	// STT settings
	STTLanguage       string
	STTEndpointingMs  int
	STTUtteranceEndMs int

	// LLM
	OpenAIModel string

	// Voice settings
	TTSVoiceID    string
	TTSStability  float64
	TTSSimilarity float64

	// Persona
	AgentName   string
	CompanyName string

	// Termination
	TerminationRulesFile string
	WatchInterval        time.Duration

	// Pending-call register monitoring
	PendingAlertAfter time.Duration

	// Notifications
	DiscordWebhookURL string
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":7860"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:7860"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		LogEnv:        getenv("LOG_ENV", "development"),

		SentryDSN:   getenv("SENTRY_DSN", ""),
		Environment: getenv("ENVIRONMENT", "development"),

		ExotelSID:         getenv("EXOTEL_SID", ""),
		ExotelAPIKey:      getenv("EXOTEL_API_KEY", ""),
		ExotelAPIToken:    getenv("EXOTEL_API_TOKEN", ""),
		ExotelSubdomain:   getenv("EXOTEL_SUBDOMAIN", "api.exotel.com"),
		ExotelPhoneNumber: getenv("EXOTEL_PHONE_NUMBER", ""),

		OutboundCallsPerMinute: getenvIntClamped("OUTBOUND_CALLS_PER_MINUTE", 0, 0, 600),
		StartJWTSecret:         os.Getenv("START_JWT_SECRET"),

		DeepgramAPIKey:   getenv("DEEPGRAM_API_KEY", ""),
		OpenAIAPIKey:     getenv("OPENAI_API_KEY", ""),
		ElevenLabsAPIKey: getenv("ELEVENLABS_API_KEY", ""),

		// "multi" lets Deepgram follow Hinglish code-switching.
		STTLanguage:       getenv("STT_LANGUAGE", "multi"),
		STTEndpointingMs:  getenvIntClamped("STT_ENDPOINTING_MS", 300, 10, 5000),
		STTUtteranceEndMs: getenvIntClamped("STT_UTTERANCE_END_MS", 1000, 1000, 5000),

		OpenAIModel: getenv("OPENAI_MODEL", "gpt-4o"),

		TTSVoiceID:    getenv("TTS_VOICE_ID", ""),
		TTSStability:  getenvFloatClamped("TTS_STABILITY", 0.5, 0, 1),
		TTSSimilarity: getenvFloatClamped("TTS_SIMILARITY", 0.75, 0, 1),

		AgentName:   getenv("AGENT_NAME", llm.DefaultAgentName),
		CompanyName: getenv("COMPANY_NAME", llm.DefaultCompanyName),

		TerminationRulesFile: getenv("TERMINATION_RULES_FILE", ""),
		WatchInterval:        time.Duration(getenvIntClamped("WATCH_INTERVAL_MS", 500, 50, 10000)) * time.Millisecond,

		PendingAlertAfter: time.Duration(getenvIntClamped("PENDING_ALERT_AFTER_SECONDS", 120, 10, 3600)) * time.Second,

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntClamped parses k as an int and clamps it to [min, max]. Unset or
// unparsable values yield def.
func getenvIntClamped(k string, def, min, max int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func getenvFloatClamped(k string, def, min, max float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}
