package exotel

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestParseMessage_Start(t *testing.T) {
	raw := `{"event":"start","sequence_number":1,"stream_sid":"st-1","start":{"stream_sid":"st-1","call_sid":"call-9","account_sid":"acc","from":"0804","to":"+91123","custom_parameters":{},"media_format":{"encoding":"base64","sample_rate":"8000","bit_rate":"128kbps"}}}`

	m, err := ParseMessage([]byte(raw))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.Event != EventStart || m.StreamSID != "st-1" {
		t.Errorf("message = %+v", m)
	}
	if m.Start == nil || m.Start.CallSID != "call-9" {
		t.Fatalf("Start = %+v, want call_sid call-9", m.Start)
	}
}

func TestParseMessage_MediaRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	out, err := json.Marshal(MediaMessage("st-1", pcm))
	if err != nil {
		t.Fatal(err)
	}

	m, err := ParseMessage(out)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	got, err := m.Audio()
	if err != nil {
		t.Fatalf("Audio() error = %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("Audio() = %v, want %v", got, pcm)
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	if _, err := ParseMessage([]byte("{not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestClearMessageShape(t *testing.T) {
	out, _ := json.Marshal(ClearMessage("st-1"))
	if string(out) != `{"event":"clear","stream_sid":"st-1"}` {
		t.Errorf("clear = %s", out)
	}
}

func TestChunker(t *testing.T) {
	var c Chunker

	if got := c.Write(make([]byte, 1000)); len(got) != 0 {
		t.Fatalf("Write(1000) produced %d chunks, want 0", len(got))
	}
	got := c.Write(make([]byte, 6000))
	if len(got) != 2 {
		t.Fatalf("Write(6000) produced %d chunks, want 2", len(got))
	}
	for _, ch := range got {
		if len(ch) != ChunkBytes {
			t.Errorf("chunk len = %d, want %d", len(ch), ChunkBytes)
		}
	}

	// 7000 - 6400 = 600 left, padded to 640.
	tail := c.Flush()
	if len(tail) != 640 {
		t.Errorf("Flush() len = %d, want 640", len(tail))
	}
	if c.Flush() != nil {
		t.Error("second Flush() should return nil")
	}
}

func TestAudioSeconds(t *testing.T) {
	if got := AudioSeconds(16000); got != 1.0 {
		t.Errorf("AudioSeconds(16000) = %v, want 1", got)
	}
}
