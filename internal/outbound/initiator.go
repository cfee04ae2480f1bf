// Package outbound places calls and leaves their context in the pending-call
// register for the media stream that follows.
package outbound

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/digiloans/voicebot/internal/callqueue"
	"github.com/digiloans/voicebot/internal/eventlog"
	"github.com/digiloans/voicebot/internal/exotel"
	"github.com/digiloans/voicebot/internal/notifications"
	"github.com/digiloans/voicebot/internal/store"
)

var (
	// ErrRateLimited is returned when the placement budget is spent. No
	// request reaches the provider.
	ErrRateLimited = errors.New("outbound: rate limit exceeded")
	// ErrMissingPhoneNumber is returned for a request without a destination.
	ErrMissingPhoneNumber = errors.New("outbound: phone number is required")
)

// Placer places one outbound call. *exotel.Client implements it.
type Placer interface {
	Validate() error
	Connect(ctx context.Context, to string) (*exotel.ConnectResult, error)
}

type Config struct {
	Placer         Placer
	Register       *callqueue.Register
	CallerID       string // recorded as from_number
	CallsPerMinute int    // 0 means unlimited
	Store          *store.Store
	Events         *eventlog.Logger
	Discord        *notifications.Discord
	Logger         *log.Logger
}

type Request struct {
	PhoneNumber  string
	CustomerName string
}

type Result struct {
	CallSID      string `json:"call_sid"`
	PhoneNumber  string `json:"phone_number"`
	CustomerName string `json:"customer_name"`
}

type Initiator struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *log.Logger
}

func New(cfg Config) *Initiator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	i := &Initiator{cfg: cfg, logger: logger}
	if cfg.CallsPerMinute > 0 {
		i.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.CallsPerMinute)), cfg.CallsPerMinute)
	}
	return i
}

// Pending reports how many placed calls have not been claimed by a stream yet.
func (i *Initiator) Pending() int {
	return i.cfg.Register.Len()
}

// Initiate places the call and, on success, pushes its context onto the
// register whether or not a call SID could be read from the response.
func (i *Initiator) Initiate(ctx context.Context, req Request) (Result, error) {
	if req.PhoneNumber == "" {
		return Result{}, ErrMissingPhoneNumber
	}
	if err := i.cfg.Placer.Validate(); err != nil {
		i.logger.Printf("outbound: %v", err)
		return Result{}, err
	}
	if i.limiter != nil && !i.limiter.Allow() {
		i.logger.Printf("outbound: rate limited call to %s", req.PhoneNumber)
		return Result{}, ErrRateLimited
	}

	res, err := i.cfg.Placer.Connect(ctx, req.PhoneNumber)
	if err != nil {
		i.logger.Printf("outbound: failed to place call to %s: %v", req.PhoneNumber, err)
		i.cfg.Events.LogAsync(req.PhoneNumber, eventlog.EventCallPlacementFailed, map[string]any{"error": err.Error()})
		i.cfg.Discord.NotifyPlacementFailed(context.Background(), req.PhoneNumber, err)
		return Result{}, err
	}
	if !res.SIDFound {
		i.logger.Printf("outbound: WARNING could not extract call SID for %s, using %q", req.PhoneNumber, res.CallSID)
	}

	i.cfg.Register.Push(callqueue.CallContext{
		PhoneNumber:  req.PhoneNumber,
		CustomerName: req.CustomerName,
		PlacedAt:     time.Now().UTC(),
	})
	i.logger.Printf("outbound: call %s placed to %s for %q (%d pending)", res.CallSID, req.PhoneNumber, req.CustomerName, i.cfg.Register.Len())

	if err := i.cfg.Store.InsertOutboundCall(ctx, store.OutboundCall{
		ProviderCallID: res.CallSID,
		FromNumber:     i.cfg.CallerID,
		ToNumber:       req.PhoneNumber,
		CustomerName:   req.CustomerName,
		Status:         "call_initiated",
	}); err != nil {
		i.logger.Printf("outbound: failed to record call %s: %v", res.CallSID, err)
	}
	i.cfg.Events.LogAsync(res.CallSID, eventlog.EventCallPlaced, map[string]any{
		"phone_number":  req.PhoneNumber,
		"customer_name": req.CustomerName,
	})

	return Result{
		CallSID:      res.CallSID,
		PhoneNumber:  req.PhoneNumber,
		CustomerName: req.CustomerName,
	}, nil
}
