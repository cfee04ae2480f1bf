// Package pipeline bridges an Exotel media stream to speech-to-text, the
// language model and text-to-speech. Work is queued as frames and handled
// one at a time by the task's frame loop.
package pipeline

// Frame is a unit of work queued on a Task.
type Frame interface {
	frame()
}

// TextFrame is spoken verbatim and recorded as an assistant turn.
type TextFrame struct {
	Text string
}

// UserTurnFrame carries a finished customer utterance; the task records it
// and generates the next assistant turn.
type UserTurnFrame struct {
	Text string
}

// EndFrame asks the task to stop once the frames queued before it are done.
type EndFrame struct{}

func (TextFrame) frame()     {}
func (UserTurnFrame) frame() {}
func (EndFrame) frame()      {}
