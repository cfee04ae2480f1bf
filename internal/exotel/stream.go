package exotel

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Media stream events exchanged over the Voicebot applet websocket.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventDTMF      = "dtmf"
	EventMark      = "mark"
	EventClear     = "clear"
	EventStop      = "stop"
)

// Stream audio is raw 16-bit little-endian PCM, mono, 8kHz.
const (
	SampleRate     = 8000
	BytesPerSample = 2

	// Outbound media payloads must be a multiple of 320 bytes (20ms).
	frameBytes = 320
	// ChunkBytes is 100ms of audio, the size recommended for outbound media.
	ChunkBytes = 3200
)

// Message is one websocket frame in either direction.
type Message struct {
	Event     string `json:"event"`
	StreamSID string `json:"stream_sid,omitempty"`
	Start     *Start `json:"start,omitempty"`
	Media     *Media `json:"media,omitempty"`
	Mark      *Mark  `json:"mark,omitempty"`
	DTMF      *DTMF  `json:"dtmf,omitempty"`
	Stop      *Stop  `json:"stop,omitempty"`
}

type Start struct {
	StreamSID        string         `json:"stream_sid"`
	CallSID          string         `json:"call_sid"`
	AccountSID       string         `json:"account_sid"`
	From             string         `json:"from"`
	To               string         `json:"to"`
	CustomParameters map[string]any `json:"custom_parameters,omitempty"`
	MediaFormat      struct {
		Encoding string `json:"encoding"`
		BitRate  string `json:"bit_rate"`
	} `json:"media_format"`
}

type Media struct {
	Payload string `json:"payload"` // base64 PCM
}

type Mark struct {
	Name string `json:"name"`
}

type DTMF struct {
	Digit string `json:"digit"`
}

type Stop struct {
	CallSID string `json:"call_sid"`
	Reason  string `json:"reason"`
}

// ParseMessage decodes one inbound frame.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("exotel: failed to parse message: %w", err)
	}
	if m.StreamSID == "" && m.Start != nil {
		m.StreamSID = m.Start.StreamSID
	}
	return m, nil
}

// Audio decodes the PCM carried by a media frame.
func (m Message) Audio() ([]byte, error) {
	if m.Media == nil {
		return nil, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(m.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("exotel: failed to decode audio: %w", err)
	}
	return pcm, nil
}

func MediaMessage(streamSID string, pcm []byte) Message {
	return Message{
		Event:     EventMedia,
		StreamSID: streamSID,
		Media:     &Media{Payload: base64.StdEncoding.EncodeToString(pcm)},
	}
}

func MarkMessage(streamSID, name string) Message {
	return Message{Event: EventMark, StreamSID: streamSID, Mark: &Mark{Name: name}}
}

// ClearMessage asks Exotel to drop audio it has buffered but not yet played.
func ClearMessage(streamSID string) Message {
	return Message{Event: EventClear, StreamSID: streamSID}
}

// Chunker regroups arbitrarily sized PCM into ChunkBytes pieces.
type Chunker struct {
	buf []byte
}

// Write appends pcm and returns every complete chunk now available.
func (c *Chunker) Write(pcm []byte) [][]byte {
	c.buf = append(c.buf, pcm...)
	var out [][]byte
	for len(c.buf) >= ChunkBytes {
		chunk := make([]byte, ChunkBytes)
		copy(chunk, c.buf[:ChunkBytes])
		out = append(out, chunk)
		c.buf = c.buf[ChunkBytes:]
	}
	return out
}

// Flush returns the remainder padded with silence to a 320-byte boundary,
// or nil when nothing is buffered.
func (c *Chunker) Flush() []byte {
	if len(c.buf) == 0 {
		return nil
	}
	n := len(c.buf)
	if rem := n % frameBytes; rem != 0 {
		n += frameBytes - rem
	}
	out := make([]byte, n)
	copy(out, c.buf)
	c.buf = c.buf[:0]
	return out
}

// AudioSeconds converts a PCM byte count into seconds of audio.
func AudioSeconds(n int) float64 {
	return float64(n) / float64(SampleRate*BytesPerSample)
}
