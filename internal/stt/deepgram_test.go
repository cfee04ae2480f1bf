package stt

import (
	"net/url"
	"strings"
	"testing"
)

func TestListenURL(t *testing.T) {
	u := listenURL(DeepgramConfig{
		Model:          "nova-3",
		Language:       "multi",
		Encoding:       "linear16",
		SampleRate:     8000,
		Channels:       1,
		Punctuate:      true,
		Endpointing:    300,
		UtteranceEndMs: 1000,
	})

	if !strings.HasPrefix(u, deepgramWSURL+"?") {
		t.Fatalf("url = %q", u)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatal(err)
	}
	q := parsed.Query()
	want := map[string]string{
		"model":            "nova-3",
		"language":         "multi",
		"encoding":         "linear16",
		"sample_rate":      "8000",
		"channels":         "1",
		"punctuate":        "true",
		"endpointing":      "300",
		"utterance_end_ms": "1000",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestListenURL_OmitsZeroTimeouts(t *testing.T) {
	q, _ := url.ParseQuery(strings.SplitN(listenURL(DeepgramConfig{Model: "nova-3"}), "?", 2)[1])
	if q.Has("endpointing") || q.Has("utterance_end_ms") {
		t.Errorf("unexpected timeouts in %v", q)
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		ok     bool
		result TranscriptResult
	}{
		{
			name:   "final speech",
			msg:    `{"type":"Results","channel":{"alternatives":[{"transcript":"nahi chahiye","confidence":0.92}]},"is_final":true,"speech_final":true}`,
			ok:     true,
			result: TranscriptResult{Text: "nahi chahiye", Confidence: 0.92, IsFinal: true, SpeechFinal: true},
		},
		{
			name:   "interim",
			msg:    `{"type":"Results","channel":{"alternatives":[{"transcript":"hel","confidence":0.5}]},"is_final":false}`,
			ok:     true,
			result: TranscriptResult{Text: "hel", Confidence: 0.5},
		},
		{
			name: "empty interim dropped",
			msg:  `{"type":"Results","channel":{"alternatives":[{"transcript":""}]},"is_final":false}`,
		},
		{
			name:   "utterance end",
			msg:    `{"type":"UtteranceEnd","last_word_end":2.1}`,
			ok:     true,
			result: TranscriptResult{IsFinal: true, SpeechFinal: true},
		},
		{
			name: "metadata ignored",
			msg:  `{"type":"Metadata","request_id":"x"}`,
		},
		{
			name: "garbage",
			msg:  `{`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseResponse([]byte(tt.msg))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.result {
				t.Errorf("result = %+v, want %+v", got, tt.result)
			}
		})
	}
}
