package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digiloans/voicebot/internal/callqueue"
	"github.com/digiloans/voicebot/internal/eventlog"
	"github.com/digiloans/voicebot/internal/exotel"
	"github.com/digiloans/voicebot/internal/httpapi"
	"github.com/digiloans/voicebot/internal/jobs"
	"github.com/digiloans/voicebot/internal/llm"
	"github.com/digiloans/voicebot/internal/notifications"
	"github.com/digiloans/voicebot/internal/outbound"
	"github.com/digiloans/voicebot/internal/pipeline"
	"github.com/digiloans/voicebot/internal/session"
	"github.com/digiloans/voicebot/internal/store"
	"github.com/digiloans/voicebot/internal/stt"
	"github.com/digiloans/voicebot/internal/termination"
	"github.com/digiloans/voicebot/internal/tts"
)

type App struct {
	cfg         Config
	logger      *log.Logger
	db          *pgxpool.Pool
	store       *store.Store
	eventLog    *eventlog.Logger
	discord     *notifications.Discord
	register    *callqueue.Register
	initiator   *outbound.Initiator
	rules       *termination.Rules
	recorder    *session.Recorder
	monitor     *jobs.PendingMonitor
	jobsStarted bool
	tts         tts.Client
	httpClient  *http.Client // Shared HTTP client with connection pooling for OpenAI and TTS
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		logger.Printf("app: DATABASE_URL not set, call outcomes will not be persisted")
	}

	s := store.New(db)
	if s.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	el := eventlog.New(db)

	rules := termination.DefaultRules()
	if cfg.TerminationRulesFile != "" {
		loaded, err := termination.LoadRules(cfg.TerminationRulesFile)
		if err != nil {
			if db != nil {
				db.Close()
			}
			return nil, fmt.Errorf("termination rules: %w", err)
		}
		rules = loaded
		logger.Printf("app: loaded %d termination rules from %s", rules.Len(), cfg.TerminationRulesFile)
	}

	// Keeps TCP connections alive to reduce latency for repeated calls to
	// OpenAI and ElevenLabs.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	discord := notifications.NewDiscord(cfg.DiscordWebhookURL, logger)
	register := callqueue.New()

	placer := exotel.New(exotel.Config{
		AccountSID: cfg.ExotelSID,
		APIKey:     cfg.ExotelAPIKey,
		APIToken:   cfg.ExotelAPIToken,
		CallerID:   cfg.ExotelPhoneNumber,
		Subdomain:  cfg.ExotelSubdomain,
	})
	if err := placer.Validate(); err != nil {
		// The server still starts; /start reports the error per request.
		logger.Printf("app: WARNING %v", err)
	}

	initiator := outbound.New(outbound.Config{
		Placer:         placer,
		Register:       register,
		CallerID:       cfg.ExotelPhoneNumber,
		CallsPerMinute: cfg.OutboundCallsPerMinute,
		Store:          s,
		Events:         el,
		Discord:        discord,
		Logger:         logger,
	})

	recorder := &session.Recorder{
		Store:   s,
		Events:  el,
		Discord: discord,
		Logger:  logger,
	}
	if cfg.OpenAIAPIKey != "" {
		recorder.Leads = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			HTTPClient: httpClient,
		})
	}

	speech := tts.NewElevenLabsClient(tts.ElevenLabsConfig{
		APIKey:     cfg.ElevenLabsAPIKey,
		VoiceID:    cfg.TTSVoiceID,
		Stability:  cfg.TTSStability,
		Similarity: cfg.TTSSimilarity,
		HTTPClient: httpClient,
	})

	return &App{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      s,
		eventLog:   el,
		discord:    discord,
		register:   register,
		initiator:  initiator,
		rules:      rules,
		recorder:   recorder,
		monitor:    jobs.NewPendingMonitor(register, discord, logger, 0, cfg.PendingAlertAfter),
		tts:        speech,
		httpClient: httpClient,
	}, nil
}

func (a *App) Router(calls *httpapi.CallRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		StartJWTSecret: a.cfg.StartJWTSecret,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.initiator, a.runSession, calls)
}

// runSession drives one Exotel media stream from connect to teardown.
func (a *App) runSession(ctx context.Context, conn *websocket.Conn) error {
	s := session.New(session.Config{
		Register:      a.register,
		Rules:         a.rules,
		WatchInterval: a.cfg.WatchInterval,
		Reporter:      a.recorder,
		Events:        a.eventLog,
		Logger:        a.logger,
		Build: func(s *session.Session) (session.Pipeline, error) {
			p, err := a.buildPipeline(conn, s)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	})
	return s.Run(ctx)
}

// buildPipeline wires the voice pipeline for s. The system prompt and
// greeting depend on the customer claimed from the register, so the LLM
// client is per session.
func (a *App) buildPipeline(conn pipeline.Conn, s *session.Session) (*pipeline.Task, error) {
	if missing := a.missingVoiceKeys(); len(missing) > 0 {
		return nil, errors.New("voice AI not configured: missing " + strings.Join(missing, ", "))
	}

	agent, company := a.cfg.AgentName, a.cfg.CompanyName
	customer := s.CustomerName()

	return pipeline.NewTask(pipeline.Config{
		Conn:   conn,
		NewSTT: a.newSTT,
		LLM: llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:       a.cfg.OpenAIAPIKey,
			Model:        a.cfg.OpenAIModel,
			SystemPrompt: llm.SystemPromptFor(agent, company, customer),
			HTTPClient:   a.httpClient,
		}),
		TTS:        a.tts,
		Transcript: s.Transcript(),
		Greeting:   llm.Greeting(agent, company, customer),
		Tools:      []llm.Tool{termination.EndCallTool()},
		Hooks:      s.PipelineHooks(),
		Logger:     a.logger,
	}), nil
}

func (a *App) newSTT(ctx context.Context) (stt.Client, error) {
	c, err := stt.NewDeepgramClient(ctx, stt.DeepgramConfig{
		APIKey:         a.cfg.DeepgramAPIKey,
		Language:       a.cfg.STTLanguage,
		Punctuate:      true,
		Endpointing:    a.cfg.STTEndpointingMs,
		UtteranceEndMs: a.cfg.STTUtteranceEndMs,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *App) missingVoiceKeys() []string {
	var missing []string
	if a.cfg.DeepgramAPIKey == "" {
		missing = append(missing, "DEEPGRAM_API_KEY")
	}
	if a.cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if a.cfg.ElevenLabsAPIKey == "" {
		missing = append(missing, "ELEVENLABS_API_KEY")
	}
	return missing
}

// StartJobs starts background jobs. Close stops them.
func (a *App) StartJobs() {
	a.monitor.Start()
	a.jobsStarted = true
}

func (a *App) Close() error {
	if a.jobsStarted {
		a.monitor.Stop()
		a.jobsStarted = false
	}
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
