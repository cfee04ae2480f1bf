package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewOpenAIClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{
			APIKey: "test-key",
		})

		if client.model != "gpt-4o" {
			t.Errorf("model = %q, want %q", client.model, "gpt-4o")
		}
		if client.systemPrompt != SystemPrompt("") {
			t.Error("systemPrompt should default to SystemPrompt(\"\")")
		}
		if client.apiURL != openaiAPIURL {
			t.Errorf("apiURL = %q, want %q", client.apiURL, openaiAPIURL)
		}
	})

	t.Run("custom system prompt", func(t *testing.T) {
		customPrompt := "Custom system prompt for testing"
		client := NewOpenAIClient(OpenAIConfig{
			APIKey:       "test-key",
			SystemPrompt: customPrompt,
		})

		if client.systemPrompt != customPrompt {
			t.Errorf("systemPrompt = %q, want %q", client.systemPrompt, customPrompt)
		}
	})
}

func TestSetSystemPrompt(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})

	client.SetSystemPrompt("New custom prompt")
	if client.GetSystemPrompt() != "New custom prompt" {
		t.Errorf("systemPrompt = %q", client.GetSystemPrompt())
	}

	client.SetSystemPrompt("")
	if client.GetSystemPrompt() != "New custom prompt" {
		t.Error("empty prompt should not change current prompt")
	}
}

const sampleStream = `data: {"choices":[{"delta":{"role":"assistant","content":""},"finish_reason":null}]}

data: {"choices":[{"delta":{"content":"Okay, no problem. "},"finish_reason":null}]}

data: {"choices":[{"delta":{"content":"Goodbye."},"finish_reason":null}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"end_call","arguments":""}}]},"finish_reason":null}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"reason\":"}}]},"finish_reason":null}]}

data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"customer_not_interested\"}"}}]},"finish_reason":null}]}

data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}

data: {"choices":[],"usage":{"prompt_tokens":812,"completion_tokens":24}}

data: [DONE]
`

func TestReadStream(t *testing.T) {
	var chunks []Chunk
	readStream(strings.NewReader(sampleStream), func(c Chunk) bool {
		chunks = append(chunks, c)
		return true
	})

	var text strings.Builder
	var calls []*ToolCall
	var usage *Usage
	for _, c := range chunks {
		text.WriteString(c.Text)
		if c.ToolCall != nil {
			calls = append(calls, c.ToolCall)
		}
		if c.Usage != nil {
			usage = c.Usage
		}
	}

	if text.String() != "Okay, no problem. Goodbye." {
		t.Errorf("text = %q", text.String())
	}
	if len(calls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(calls))
	}
	if calls[0].ID != "call_1" || calls[0].Name != "end_call" {
		t.Errorf("tool call = %+v", calls[0])
	}
	if calls[0].Arguments != `{"reason":"customer_not_interested"}` {
		t.Errorf("arguments = %q", calls[0].Arguments)
	}
	if usage == nil || usage.PromptTokens != 812 || usage.CompletionTokens != 24 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestReadStream_StopEarly(t *testing.T) {
	n := 0
	readStream(strings.NewReader(sampleStream), func(c Chunk) bool {
		n++
		return false
	})
	if n != 1 {
		t.Errorf("emit called %d times after returning false, want 1", n)
	}
}

func TestStreamResponse_SendsTools(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sampleStream))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", APIURL: srv.URL})
	ch, err := client.StreamResponse(context.Background(), []Message{{Role: "user", Content: "no thanks"}}, []Tool{{
		Name:        "end_call",
		Description: "End the call",
		Parameters:  map[string]any{"type": "object"},
	}})
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}

	var sawTool bool
	for c := range ch {
		if c.ToolCall != nil && c.ToolCall.Name == "end_call" {
			sawTool = true
		}
	}
	if !sawTool {
		t.Error("expected end_call tool call on the stream")
	}

	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("request carried %d tools, want 1", len(tools))
	}
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "end_call" {
		t.Errorf("tool name = %v", fn["name"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("request carried %d messages, want system + user", len(msgs))
	}
}

func TestStreamResponse_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "bad", APIURL: srv.URL})
	if _, err := client.StreamResponse(context.Background(), nil, nil); err == nil {
		t.Error("expected error on 401")
	}
}

func TestExtractLead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []any{map[string]any{
				"message": map[string]any{
					"content": "```json\n{\"loan_type\":\"personal loan\",\"loan_amount\":\"5 lakh\",\"monthly_income\":\"40,000\",\"employment_type\":\"salaried\",\"interested\":true,\"language\":\"english\",\"summary\":\"Qualified lead\"}\n```",
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", APIURL: srv.URL})
	lead, err := client.ExtractLead(context.Background(), []Message{{Role: "user", Content: "personal loan"}})
	if err != nil {
		t.Fatalf("ExtractLead() error = %v", err)
	}
	if lead.LoanType != "personal loan" || lead.EmploymentType != "salaried" || !lead.Interested {
		t.Errorf("lead = %+v", lead)
	}
}

func TestGreeting(t *testing.T) {
	tests := []struct {
		name     string
		customer string
		want     string
	}{
		{"known customer", "Ravi", "Hello, am I speaking with Ravi?"},
		{"trimmed", "  Ravi ", "Hello, am I speaking with Ravi?"},
		{"anonymous", "", "Hello, I'm Shruti from Digi Loans. May I know your name please?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Greeting(DefaultAgentName, DefaultCompanyName, tt.customer); got != tt.want {
				t.Errorf("Greeting() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSystemPromptMentionsCustomer(t *testing.T) {
	p := SystemPrompt("Ravi")
	if !strings.Contains(p, "Ravi") {
		t.Error("prompt should mention the customer name")
	}
	if !strings.Contains(p, "end_call") {
		t.Error("prompt should instruct the model to use end_call")
	}
	if strings.Contains(SystemPrompt(""), "on record") {
		t.Error("anonymous prompt should not claim a customer on record")
	}
}
