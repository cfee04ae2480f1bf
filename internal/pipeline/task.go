package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/digiloans/voicebot/internal/costs"
	"github.com/digiloans/voicebot/internal/exotel"
	"github.com/digiloans/voicebot/internal/llm"
	"github.com/digiloans/voicebot/internal/stt"
	"github.com/digiloans/voicebot/internal/termination"
	"github.com/digiloans/voicebot/internal/transcript"
	"github.com/digiloans/voicebot/internal/tts"
)

var (
	// ErrTaskFinished is returned when frames or cancels arrive after the task stopped.
	ErrTaskFinished = errors.New("pipeline: task finished")
	// ErrQueueFull is returned when the frame queue has no room.
	ErrQueueFull = errors.New("pipeline: frame queue full")
)

const defaultQueueSize = 32

// STTFactory opens a speech-to-text stream once the media stream starts.
type STTFactory func(ctx context.Context) (stt.Client, error)

// Hooks let the owner of a task observe its lifecycle. All are optional.
type Hooks struct {
	// OnStarted runs when Exotel sends the start event.
	OnStarted func(streamSID, callSID string)
	// OnEndCall runs after the model called end_call and its reply was
	// spoken. It reports whether this call ended the session.
	OnEndCall func(reason termination.Reason) bool
	// OnClientDisconnected runs when Exotel stops the stream or the socket drops.
	OnClientDisconnected func()
}

type Config struct {
	Conn       Conn
	NewSTT     STTFactory // nil disables speech recognition
	LLM        llm.Client
	TTS        tts.Client
	Transcript *transcript.Transcript
	Greeting   string
	Tools      []llm.Tool
	Hooks      Hooks
	Logger     *log.Logger
	QueueSize  int
}

// Task runs one call's pipeline. Frames are processed sequentially.
type Task struct {
	cfg    Config
	logger *log.Logger
	frames chan Frame

	ctx    context.Context
	cancel context.CancelFunc

	conn   Conn
	connMu sync.Mutex
	closed bool

	mu          sync.Mutex
	sid         string
	callSID     string
	speaking    bool
	interruptFn context.CancelFunc
	markSeq     int

	startedAt time.Time
	sttBytes  atomic.Int64
	ttsChars  atomic.Int64
	tokensIn  atomic.Int64
	tokensOut atomic.Int64
}

func NewTask(cfg Config) *Task {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	if cfg.Transcript == nil {
		cfg.Transcript = transcript.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, size),
		ctx:    ctx,
		cancel: cancel,
		conn:   cfg.Conn,
	}
}

// Run reads the media stream until the peer leaves or the task is
// cancelled, then closes the socket. Cancelling ctx cancels the task.
func (t *Task) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, t.cancel)
	defer stop()

	t.mu.Lock()
	t.startedAt = time.Now()
	t.mu.Unlock()

	// Unblocks ReadMessage when the task is cancelled.
	stopClose := context.AfterFunc(t.ctx, t.closeConn)
	defer stopClose()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.processFrames()
	}()

	err := t.readLoop()

	t.cancel()
	t.closeConn()
	wg.Wait()
	return err
}

// QueueFrame enqueues f without blocking.
func (t *Task) QueueFrame(f Frame) error {
	if t.ctx.Err() != nil {
		return ErrTaskFinished
	}
	select {
	case t.frames <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel stops the task immediately, dropping queued frames.
func (t *Task) Cancel() error {
	if t.ctx.Err() != nil {
		return ErrTaskFinished
	}
	t.cancel()
	return nil
}

// Metrics reports usage so far for cost estimation.
func (t *Task) Metrics() costs.CallMetrics {
	t.mu.Lock()
	started := t.startedAt
	t.mu.Unlock()

	var seconds int
	if !started.IsZero() {
		seconds = int(time.Since(started).Seconds())
	}
	return costs.CallMetrics{
		CallDurationSeconds: seconds,
		STTDurationSeconds:  int(exotel.AudioSeconds(int(t.sttBytes.Load()))),
		LLMInputTokens:      int(t.tokensIn.Load()),
		LLMOutputTokens:     int(t.tokensOut.Load()),
		TTSCharacters:       int(t.ttsChars.Load()),
	}
}

// CallSID is the provider call id from the start event, if seen.
func (t *Task) CallSID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callSID
}

func (t *Task) streamSID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sid
}

func (t *Task) readLoop() error {
	var sttClient stt.Client
	defer func() {
		if sttClient != nil {
			sttClient.Close()
		}
	}()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Printf("pipeline: connection closed by peer")
			} else {
				t.logger.Printf("pipeline: read error: %v", err)
			}
			t.disconnected()
			return nil
		}

		msg, err := exotel.ParseMessage(data)
		if err != nil {
			t.logger.Printf("pipeline: %v", err)
			continue
		}

		switch msg.Event {
		case exotel.EventConnected:
			t.logger.Printf("pipeline: exotel connected")

		case exotel.EventStart:
			client, err := t.handleStart(msg)
			if err != nil {
				return err
			}
			sttClient = client

		case exotel.EventMedia:
			if sttClient == nil {
				continue
			}
			audio, err := msg.Audio()
			if err != nil {
				t.logger.Printf("pipeline: %v", err)
				continue
			}
			t.sttBytes.Add(int64(len(audio)))
			if err := sttClient.StreamAudio(t.ctx, audio); err != nil {
				t.logger.Printf("pipeline: media error: %v", err)
			}

		case exotel.EventMark:
			t.setSpeaking(false)

		case exotel.EventDTMF:
			if msg.DTMF != nil {
				t.logger.Printf("pipeline: dtmf %s", msg.DTMF.Digit)
			}

		case exotel.EventStop:
			t.logger.Printf("pipeline: stream stopped")
			t.disconnected()
			return nil
		}
	}
}

func (t *Task) disconnected() {
	if t.ctx.Err() != nil {
		return
	}
	if fn := t.cfg.Hooks.OnClientDisconnected; fn != nil {
		fn()
	}
}

func (t *Task) handleStart(msg exotel.Message) (stt.Client, error) {
	var callSID string
	if msg.Start != nil {
		callSID = msg.Start.CallSID
	}

	t.mu.Lock()
	t.sid = msg.StreamSID
	t.callSID = callSID
	t.mu.Unlock()

	t.logger.Printf("pipeline: stream started - StreamSid: %s, CallSid: %s", msg.StreamSID, callSID)

	var client stt.Client
	if t.cfg.NewSTT != nil {
		c, err := t.cfg.NewSTT(t.ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to start speech recognition: %w", err)
		}
		client = c
		go t.processSTTResults(client)
	}

	if fn := t.cfg.Hooks.OnStarted; fn != nil {
		fn(msg.StreamSID, callSID)
	}

	if t.cfg.Greeting != "" {
		if err := t.QueueFrame(TextFrame{Text: t.cfg.Greeting}); err != nil {
			t.logger.Printf("pipeline: greeting not queued: %v", err)
		}
	}
	return client, nil
}

func (t *Task) processSTTResults(client stt.Client) {
	var utterance strings.Builder

	for {
		select {
		case <-t.ctx.Done():
			return

		case err, ok := <-client.Errors():
			if !ok {
				return
			}
			t.logger.Printf("pipeline: STT error: %v", err)
			return

		case result, ok := <-client.Results():
			if !ok {
				return
			}

			if result.IsFinal && result.Text != "" {
				if utterance.Len() > 0 {
					utterance.WriteString(" ")
				}
				utterance.WriteString(result.Text)

				if t.isSpeaking() {
					t.logger.Printf("pipeline: BARGE-IN detected - caller said: %s", result.Text)
					t.interrupt()
				}
			}

			if !result.SpeechFinal {
				continue
			}
			text := strings.TrimSpace(utterance.String())
			utterance.Reset()
			if text == "" {
				continue
			}

			t.logger.Printf("pipeline: caller said: %s", text)
			if err := t.QueueFrame(UserTurnFrame{Text: text}); err != nil {
				t.logger.Printf("pipeline: user turn dropped: %v", err)
			}
		}
	}
}

func (t *Task) processFrames() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case f := <-t.frames:
			switch f := f.(type) {
			case TextFrame:
				t.speakTurn(f.Text)
			case UserTurnFrame:
				t.cfg.Transcript.Append(transcript.RoleUser, f.Text)
				t.respond()
			case EndFrame:
				t.logger.Printf("pipeline: end frame reached")
				t.cancel()
				return
			}
		}
	}
}

func (t *Task) isSpeaking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speaking
}

func (t *Task) setSpeaking(v bool) {
	t.mu.Lock()
	t.speaking = v
	t.mu.Unlock()
}

// beginTurn marks the bot as speaking and returns a context cancelled on barge-in.
func (t *Task) beginTurn() (context.Context, func()) {
	ctx, cancel := context.WithCancel(t.ctx)
	t.mu.Lock()
	t.speaking = true
	t.interruptFn = cancel
	seq := t.markSeq
	t.mu.Unlock()
	return ctx, func() {
		t.mu.Lock()
		t.interruptFn = nil
		// Nothing was sent, so no mark will clear the flag.
		if t.markSeq == seq {
			t.speaking = false
		}
		t.mu.Unlock()
		cancel()
	}
}

// interrupt stops the turn being spoken and flushes Exotel's buffer.
func (t *Task) interrupt() {
	t.mu.Lock()
	fn := t.interruptFn
	t.speaking = false
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
	if err := t.clearAudio(); err != nil {
		t.logger.Printf("pipeline: %v", err)
	}
}
