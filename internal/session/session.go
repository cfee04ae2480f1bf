// Package session drives one connected call: it claims the oldest pending
// call context, runs the dialogue pipeline, arms both termination paths and
// tears the pipeline down exactly once.
package session

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/digiloans/voicebot/internal/callqueue"
	"github.com/digiloans/voicebot/internal/costs"
	"github.com/digiloans/voicebot/internal/eventlog"
	"github.com/digiloans/voicebot/internal/pipeline"
	"github.com/digiloans/voicebot/internal/termination"
	"github.com/digiloans/voicebot/internal/transcript"
)

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateEnding:
		return "ENDING"
	case StateEnded:
		return "ENDED"
	}
	return "UNKNOWN"
}

// Who ended the session.
const (
	EndedByTool       = "tool"
	EndedByWatcher    = "watcher"
	EndedByDisconnect = "disconnect"
	EndedByPipeline   = "pipeline"
)

// Pipeline is what the session needs from a running dialogue pipeline.
type Pipeline interface {
	Run(ctx context.Context) error
	QueueFrame(f pipeline.Frame) error
	Cancel() error
}

// Builder constructs the pipeline for s once its call context is known.
// It should wire s.PipelineHooks into the pipeline.
type Builder func(s *Session) (Pipeline, error)

// Reporter receives the outcome after the session ends.
type Reporter interface {
	Report(ctx context.Context, o Outcome)
}

type Config struct {
	Register      *callqueue.Register
	Build         Builder
	Rules         *termination.Rules
	WatchInterval time.Duration
	Reporter      Reporter // optional
	Events        *eventlog.Logger
	Logger        *log.Logger
}

// Session is one websocket-connected call.
type Session struct {
	cfg    Config
	logger *log.Logger
	id     string
	tr     *transcript.Transcript

	ending    atomic.Bool
	endedCh   chan struct{}
	endedOnce sync.Once

	mu          sync.Mutex
	call        callqueue.CallContext
	callSID     string
	state       State
	ended       bool
	reason      termination.Reason
	endedBy     string
	startedAt   time.Time
	pipe        Pipeline
	cancelWatch context.CancelFunc
}

func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		cfg:     cfg,
		logger:  logger,
		id:      uuid.NewString(),
		tr:      transcript.New(),
		state:   StateConnecting,
		endedCh: make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Transcript() *transcript.Transcript { return s.tr }

// CustomerName is empty until Run claims a call context, and stays empty
// when none was pending.
func (s *Session) CustomerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call.CustomerName
}

func (s *Session) PhoneNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.call.PhoneNumber
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Reason is why the session ended, or "" while it is live.
func (s *Session) Reason() termination.Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) EndedBy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedBy
}

// PipelineHooks routes pipeline lifecycle events into the session.
func (s *Session) PipelineHooks() pipeline.Hooks {
	return pipeline.Hooks{
		OnStarted: s.streamStarted,
		OnEndCall: func(r termination.Reason) bool {
			s.cfg.Events.LogAsync(s.id, eventlog.EventEndCallTool, map[string]any{"reason": string(r)})
			return s.terminate(r, EndedByTool)
		},
		OnClientDisconnected: func() { s.Disconnect() },
	}
}

// Run claims the oldest pending call context, builds and runs the pipeline
// and returns after the pipeline has stopped and the watcher has exited.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	cc, ok := s.cfg.Register.Pop()
	if ok {
		s.mu.Lock()
		s.call = cc
		s.mu.Unlock()
		s.logger.Printf("session: %s claimed pending call for %q", s.id, cc.CustomerName)
	} else {
		s.logger.Printf("session: %s found no pending call context, continuing without a customer name", s.id)
		s.cfg.Events.LogAsync(s.id, eventlog.EventCorrelationMiss, nil)
	}
	s.cfg.Events.LogAsync(s.id, eventlog.EventSessionStarted, map[string]any{
		"customer_name": cc.CustomerName,
		"phone_number":  cc.PhoneNumber,
	})

	p, err := s.cfg.Build(s)
	if err != nil {
		s.markEnded(termination.ReasonUnknown, EndedByPipeline)
		return err
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	s.mu.Lock()
	s.pipe = p
	s.cancelWatch = cancelWatch
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w := termination.Watcher{Rules: s.cfg.Rules, Interval: s.cfg.WatchInterval, Logger: s.logger}
		w.Watch(watchCtx, s.tr, func(r termination.Reason) {
			s.cfg.Events.LogAsync(s.id, eventlog.EventTerminationDetected, map[string]any{"reason": string(r)})
			s.terminate(r, EndedByWatcher)
		})
	}()

	runErr := p.Run(ctx)
	if runErr != nil {
		s.logger.Printf("session: %s pipeline error: %v", s.id, runErr)
	}

	cancelWatch()
	wg.Wait()

	// The pipeline stopped on its own.
	if s.ending.CompareAndSwap(false, true) {
		s.markEnded(termination.ReasonUnknown, EndedByPipeline)
	}
	<-s.endedCh

	s.logger.Printf("session: %s ended (%s by %s)", s.id, s.Reason(), s.EndedBy())
	s.report(p)
	return runErr
}

// End tears the session down for reason. Only the first End or Disconnect
// does anything; later calls return false.
func (s *Session) End(reason termination.Reason) bool {
	return s.terminate(reason, EndedByTool)
}

// Disconnect ends the session because the peer went away.
func (s *Session) Disconnect() bool {
	s.cfg.Events.LogAsync(s.id, eventlog.EventClientDisconnected, nil)
	return s.terminate(termination.ReasonUnknown, EndedByDisconnect)
}

func (s *Session) terminate(reason termination.Reason, by string) bool {
	if !s.ending.CompareAndSwap(false, true) {
		s.logger.Printf("session: %s already ending, ignoring %s (%s)", s.id, reason, by)
		return false
	}

	s.mu.Lock()
	s.state = StateEnding
	s.reason = reason
	s.endedBy = by
	p := s.pipe
	cancelWatch := s.cancelWatch
	s.mu.Unlock()

	s.logger.Printf("session: %s ending: %s (%s)", s.id, reason, by)

	if p != nil {
		if err := p.QueueFrame(pipeline.EndFrame{}); err != nil {
			s.logger.Printf("session: %s end frame not queued: %v", s.id, err)
		}
		if err := p.Cancel(); err != nil {
			s.logger.Printf("session: %s cancel failed: %v", s.id, err)
		}
	}
	if cancelWatch != nil {
		cancelWatch()
	}

	s.mu.Lock()
	s.ended = true
	s.state = StateEnded
	s.mu.Unlock()
	s.endedOnce.Do(func() { close(s.endedCh) })
	return true
}

func (s *Session) markEnded(reason termination.Reason, by string) {
	s.ending.Store(true)
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
		s.endedBy = by
	}
	s.ended = true
	s.state = StateEnded
	s.mu.Unlock()
	s.endedOnce.Do(func() { close(s.endedCh) })
}

// MarkActive moves CONNECTING to ACTIVE. It has no effect in other states.
func (s *Session) MarkActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateConnecting {
		s.state = StateActive
	}
}

func (s *Session) streamStarted(streamSID, callSID string) {
	s.mu.Lock()
	s.callSID = callSID
	name := s.call.CustomerName
	s.mu.Unlock()

	// Correlation is by order only; log the pairing so a mismatch can be traced.
	s.logger.Printf("session: %s stream %s call %s paired with customer %q", s.id, streamSID, callSID, name)
	s.cfg.Events.LogAsync(s.id, eventlog.EventStreamStarted, map[string]any{
		"stream_sid": streamSID,
		"call_sid":   callSID,
	})
	s.MarkActive()
}

type metricsReporter interface {
	Metrics() costs.CallMetrics
}

func (s *Session) report(p Pipeline) {
	if s.cfg.Reporter == nil {
		return
	}
	var m costs.CallMetrics
	if mr, ok := p.(metricsReporter); ok {
		m = mr.Metrics()
	}

	s.mu.Lock()
	o := Outcome{
		SessionID:    s.id,
		CallSID:      s.callSID,
		PhoneNumber:  s.call.PhoneNumber,
		CustomerName: s.call.CustomerName,
		Reason:       s.reason,
		EndedBy:      s.endedBy,
		StartedAt:    s.startedAt,
		EndedAt:      time.Now().UTC(),
		Turns:        s.tr.Turns(),
		Metrics:      m,
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.cfg.Reporter.Report(ctx, o)
}
