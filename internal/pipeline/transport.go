package pipeline

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/digiloans/voicebot/internal/exotel"
)

// Conn is the subset of *websocket.Conn the task needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

func (t *Task) send(msg exotel.Message) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.closed {
		return ErrTaskFinished
	}
	return t.conn.WriteJSON(msg)
}

// closeConn sends a normal close frame and closes the socket. Safe to call
// more than once.
func (t *Task) closeConn() {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.closed {
		return
	}
	t.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended")
	if err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.logger.Printf("pipeline: close frame not sent: %v", err)
	}
	if err := t.conn.Close(); err != nil {
		t.logger.Printf("pipeline: close error: %v", err)
	}
}

// clearAudio asks Exotel to drop audio it has buffered (barge-in).
func (t *Task) clearAudio() error {
	if err := t.send(exotel.ClearMessage(t.streamSID())); err != nil {
		return fmt.Errorf("failed to send clear: %w", err)
	}
	t.logger.Printf("pipeline: sent clear command (barge-in)")
	return nil
}
