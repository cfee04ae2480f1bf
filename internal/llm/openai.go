package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient implements the Client interface using OpenAI's API.
type OpenAIClient struct {
	apiKey       string
	model        string
	apiURL       string
	systemPrompt string
	httpClient   *http.Client
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	APIKey       string
	Model        string // e.g., "gpt-4o"
	SystemPrompt string // Optional custom system prompt
	APIURL       string // Optional, for tests
	HTTPClient   *http.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = SystemPrompt("")
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = openaiAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIClient{
		apiKey:       cfg.APIKey,
		model:        model,
		apiURL:       apiURL,
		systemPrompt: systemPrompt,
		httpClient:   httpClient,
	}
}

// SetSystemPrompt sets a custom system prompt for this client.
func (c *OpenAIClient) SetSystemPrompt(prompt string) {
	if prompt != "" {
		c.systemPrompt = prompt
	}
}

// GetSystemPrompt returns the current system prompt.
func (c *OpenAIClient) GetSystemPrompt() string {
	return c.systemPrompt
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Tools          []chatTool     `json:"tools,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	StreamOptions  *streamOptions `json:"stream_options,omitempty"`
	Temperature    float64        `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// chatResponse covers both the plain and the streamed (delta) shapes.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func (c *OpenAIClient) buildMessages(messages []Message) []chatMessage {
	chatMsgs := []chatMessage{
		{Role: "system", Content: c.systemPrompt},
	}
	for _, m := range messages {
		chatMsgs = append(chatMsgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	return chatMsgs
}

func (c *OpenAIClient) post(ctx context.Context, req chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("OpenAI API error: %s - %s", resp.Status, string(respBody))
	}
	return resp, nil
}

// ExtractLead asks the model for the qualification answers as JSON.
func (c *OpenAIClient) ExtractLead(ctx context.Context, messages []Message) (*LeadDetails, error) {
	chatMsgs := c.buildMessages(messages)
	chatMsgs = append(chatMsgs, chatMessage{
		Role:    "user",
		Content: LeadExtractionPrompt,
	})

	req := chatRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Temperature: 0.2,
		MaxTokens:   300,
	}
	req.ResponseFormat = &struct {
		Type string `json:"type"`
	}{Type: "json_object"}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	// Handle potential markdown code blocks
	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var lead LeadDetails
	if err := json.Unmarshal([]byte(content), &lead); err != nil {
		return nil, fmt.Errorf("failed to parse lead details: %w (content: %s)", err, content)
	}
	return &lead, nil
}

// StreamResponse generates the next assistant turn with the given tools available.
func (c *OpenAIClient) StreamResponse(ctx context.Context, messages []Message, tools []Tool) (<-chan Chunk, error) {
	req := chatRequest{
		Model:         c.model,
		Messages:      c.buildMessages(messages),
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
		Temperature:   0.5,
		MaxTokens:     150,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		readStream(resp.Body, func(chunk Chunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- chunk:
				return true
			}
		})
	}()

	return ch, nil
}

// readStream parses an SSE completion stream. Tool call fragments are
// assembled by index and emitted once the model finishes calling tools.
func readStream(r io.Reader, emit func(Chunk) bool) {
	pending := make(map[int]*ToolCall)

	flushTools := func() bool {
		if len(pending) == 0 {
			return true
		}
		idx := make([]int, 0, len(pending))
		for i := range pending {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		for _, i := range idx {
			if !emit(Chunk{ToolCall: pending[i]}) {
				return false
			}
		}
		pending = make(map[int]*ToolCall)
		return true
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// Skip empty lines and non-data lines
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var streamResp chatResponse
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			continue
		}

		if streamResp.Usage != nil {
			if !emit(Chunk{Usage: &Usage{
				PromptTokens:     streamResp.Usage.PromptTokens,
				CompletionTokens: streamResp.Usage.CompletionTokens,
			}}) {
				return
			}
		}

		if len(streamResp.Choices) == 0 {
			continue
		}
		choice := streamResp.Choices[0]

		if choice.Delta.Content != "" {
			if !emit(Chunk{Text: choice.Delta.Content}) {
				return
			}
		}

		for _, d := range choice.Delta.ToolCalls {
			tc, ok := pending[d.Index]
			if !ok {
				tc = &ToolCall{}
				pending[d.Index] = tc
			}
			if d.ID != "" {
				tc.ID = d.ID
			}
			if d.Function.Name != "" {
				tc.Name = d.Function.Name
			}
			tc.Arguments += d.Function.Arguments
		}

		if choice.FinishReason != nil && *choice.FinishReason == "tool_calls" {
			if !flushTools() {
				return
			}
		}
	}

	flushTools()
}
