package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/digiloans/voicebot/internal/exotel"
	"github.com/digiloans/voicebot/internal/llm"
	"github.com/digiloans/voicebot/internal/termination"
	"github.com/digiloans/voicebot/internal/transcript"
)

// speakTurn speaks fixed text, such as the greeting.
func (t *Task) speakTurn(text string) {
	ctx, done := t.beginTurn()
	defer done()

	t.logger.Printf("pipeline: speaking: %s", text)
	if err := t.speakText(ctx, text); err != nil {
		t.logger.Printf("pipeline: TTS error: %v", err)
	}
	t.cfg.Transcript.Append(transcript.RoleAssistant, text)
}

// respond streams the model's reply sentence by sentence into TTS, records
// what was said, then reports an end_call if the model asked for one.
func (t *Task) respond() {
	ctx, done := t.beginTurn()
	defer done()

	chunks, err := t.cfg.LLM.StreamResponse(ctx, history(t.cfg.Transcript.Turns()), t.cfg.Tools)
	if err != nil {
		t.logger.Printf("pipeline: LLM error: %v", err)
		return
	}

	var spoken, buffer strings.Builder
	var endReason termination.Reason
	sentenceCount := 0

	speak := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" || ctx.Err() != nil {
			return
		}
		sentenceCount++
		if sentenceCount == 1 {
			t.logger.Printf("pipeline: streaming first sentence: %s", text)
		}
		if err := t.speakText(ctx, text); err != nil {
			t.logger.Printf("pipeline: TTS error: %v", err)
			return
		}
		if spoken.Len() > 0 {
			spoken.WriteString(" ")
		}
		spoken.WriteString(text)
	}

	for chunk := range chunks {
		switch {
		case chunk.Usage != nil:
			t.tokensIn.Add(int64(chunk.Usage.PromptTokens))
			t.tokensOut.Add(int64(chunk.Usage.CompletionTokens))

		case chunk.ToolCall != nil:
			if chunk.ToolCall.Name != termination.EndCallToolName {
				t.logger.Printf("pipeline: ignoring unknown tool %q", chunk.ToolCall.Name)
				continue
			}
			endReason = termination.ParseEndCall(chunk.ToolCall.Arguments)

		default:
			buffer.WriteString(chunk.Text)
			complete, remaining := extractCompleteSentences(buffer.String())
			if complete != "" {
				speak(complete)
				buffer.Reset()
				buffer.WriteString(remaining)
			}
		}
	}
	speak(buffer.String())

	if ctx.Err() != nil && t.ctx.Err() == nil {
		t.logger.Printf("pipeline: response interrupted after %d sentence(s)", sentenceCount)
	}

	if reply := spoken.String(); reply != "" {
		t.logger.Printf("pipeline: agent response (full): %s", reply)
		t.cfg.Transcript.Append(transcript.RoleAssistant, reply)
	}

	if endReason == "" {
		return
	}
	result, _ := json.Marshal(termination.NewEndCallResult(endReason))
	t.logger.Printf("pipeline: %s -> %s", termination.EndCallToolName, result)
	if fn := t.cfg.Hooks.OnEndCall; fn != nil && !fn(endReason) {
		t.logger.Printf("pipeline: %s ignored, session already ending", termination.EndCallToolName)
	}
}

// speakText synthesizes text and streams it to Exotel in 100ms chunks,
// followed by a mark so playback completion is reported back.
func (t *Task) speakText(ctx context.Context, text string) error {
	audio, err := t.cfg.TTS.SynthesizeStream(ctx, text)
	if err != nil {
		return err
	}
	t.ttsChars.Add(int64(len([]rune(text))))

	sid := t.streamSID()
	var chunker exotel.Chunker
	for pcm := range audio {
		if ctx.Err() != nil {
			// Drain so the synthesizer goroutine can exit.
			for range audio {
			}
			return nil
		}
		for _, c := range chunker.Write(pcm) {
			if err := t.send(exotel.MediaMessage(sid, c)); err != nil {
				for range audio {
				}
				return fmt.Errorf("failed to send audio: %w", err)
			}
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if tail := chunker.Flush(); tail != nil {
		if err := t.send(exotel.MediaMessage(sid, tail)); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}

	t.mu.Lock()
	t.markSeq++
	name := fmt.Sprintf("response-%d", t.markSeq)
	t.mu.Unlock()
	return t.send(exotel.MarkMessage(sid, name))
}

// history converts transcript turns into model messages.
func history(turns []transcript.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		msgs = append(msgs, llm.Message{Role: string(turn.Role), Content: turn.Content})
	}
	return msgs
}
