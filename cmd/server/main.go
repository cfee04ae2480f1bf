package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/digiloans/voicebot/internal/app"
	"github.com/digiloans/voicebot/internal/httpapi"
	"github.com/digiloans/voicebot/internal/logging"
)

// drainTimeout bounds how long in-flight calls may run after SIGTERM.
const drainTimeout = 10 * time.Minute

func main() {
	// Real environment variables win over .env.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	cfg := app.LoadConfigFromEnv()

	zl, err := logging.New(cfg.LogEnv)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	undo := logging.Install(zl)
	defer undo()
	logger := logging.Std(zl)

	// Initialize Sentry for error monitoring
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		})
		if err != nil {
			logger.Printf("sentry init failed: %v", err)
		} else {
			logger.Printf("sentry initialized")
			defer sentry.Flush(2 * time.Second)
		}
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if cfg.SentryDSN != "" {
			sentry.CaptureException(err)
			sentry.Flush(2 * time.Second)
		}
		logger.Fatalf("init app: %v", err)
	}

	a.StartJobs()

	calls := httpapi.NewCallRegistry()
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(calls),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()

	// Refuse new calls, let live ones finish, then stop the listener.
	calls.StartDraining()
	logger.Printf("draining: waiting for %d active calls", calls.ActiveCount())
	drained := make(chan struct{})
	go func() {
		calls.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Printf("draining: all calls finished")
	case <-time.After(drainTimeout):
		logger.Printf("draining: timed out with %d calls still active", calls.ActiveCount())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = a.Close()
}
