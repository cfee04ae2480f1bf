package tts

import "context"

// Client defines the interface for text-to-speech providers.
type Client interface {
	// SynthesizeStream converts text to speech and streams audio chunks.
	// Audio is 16-bit little-endian PCM at 8kHz, ready for a telephony stream.
	SynthesizeStream(ctx context.Context, text string) (<-chan []byte, error)
}
