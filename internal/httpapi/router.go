package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"

	"github.com/digiloans/voicebot/internal/outbound"
)

type RouterConfig struct {
	// Optional HMAC secret for bearer tokens on POST /start.
	StartJWTSecret string
}

// Initiator places outbound calls. *outbound.Initiator implements it.
type Initiator interface {
	Initiate(ctx context.Context, req outbound.Request) (outbound.Result, error)
	Pending() int
}

// SessionRunner drives one media stream until the call is over.
type SessionRunner func(ctx context.Context, conn *websocket.Conn) error

type Router struct {
	cfg        RouterConfig
	logger     *log.Logger
	initiator  Initiator
	runSession SessionRunner
	calls      *CallRegistry
	mux        *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, initiator Initiator, runSession SessionRunner, calls *CallRegistry) http.Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if calls == nil {
		calls = NewCallRegistry()
	}
	r := &Router{
		cfg:        cfg,
		logger:     logger,
		initiator:  initiator,
		runSession: runSession,
		calls:      calls,
		mux:        http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	r.mux.HandleFunc("POST /start", r.withStartAuth(r.handleStart))
	r.mux.HandleFunc("GET /ws", r.handleMediaWS)
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz fails once draining starts so the load balancer stops
// routing new calls here.
func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.initiator != nil {
		w.Header().Set("X-Pending-Calls", strconv.Itoa(r.initiator.Pending()))
	}
	w.Header().Set("X-Active-Calls", strconv.FormatInt(r.calls.ActiveCount(), 10))
	if r.calls.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error body of the form {"detail": "..."}.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"detail": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
