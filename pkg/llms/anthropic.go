package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	anthropicHost    = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider implements Provider against the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey string
	model  string
	host   string
	client *http.Client
}

// AnthropicOption configures the provider.
type AnthropicOption func(*AnthropicProvider)

// WithHost overrides the API host (tests point this at a local server).
func WithHost(host string) AnthropicOption {
	return func(p *AnthropicProvider) { p.host = host }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) { p.client = client }
}

// NewAnthropicProvider creates a provider for the given key and model.
func NewAnthropicProvider(apiKey, model string, opts ...AnthropicOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	p := &AnthropicProvider{
		apiKey: apiKey,
		model:  model,
		host:   anthropicHost,
		client: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ModelName returns the configured model.
func (p *AnthropicProvider) ModelName() string { return p.model }

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Tools       []ToolDefinition   `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate performs one blocking Messages API call.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (resp *Response, err error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	start := time.Now()
	defer func() {
		var usage Usage
		if resp != nil {
			usage = resp.Usage
		}
		observeGenerate(model, err, usage, time.Since(start))
	}()
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	payload := anthropicRequest{
		Model:       model,
		System:      req.System,
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Tools:       req.Tools,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read LLM response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode LLM response (HTTP %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("LLM error (%s): %s", parsed.Error.Type, parsed.Error.Message)
		}
		return nil, fmt.Errorf("LLM returned HTTP %d", httpResp.StatusCode)
	}

	msg := Message{Role: RoleAssistant}
	for _, c := range parsed.Content {
		msg.Content = append(msg.Content, ContentBlock{
			Type:  c.Type,
			Text:  c.Text,
			ID:    c.ID,
			Name:  c.Name,
			Input: c.Input,
		})
	}

	return &Response{
		Message:    msg,
		StopReason: parsed.StopReason,
		Usage:      Usage{InputTokens: parsed.Usage.InputTokens, OutputTokens: parsed.Usage.OutputTokens},
	}, nil
}

func toWireMessages(messages []Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		wire := anthropicMessage{Role: m.Role}
		for _, b := range m.Content {
			wire.Content = append(wire.Content, anthropicContent{
				Type:      b.Type,
				Text:      b.Text,
				ID:        b.ID,
				Name:      b.Name,
				Input:     b.Input,
				ToolUseID: b.ToolUseID,
				Content:   b.Content,
				IsError:   b.IsError,
			})
		}
		out = append(out, wire)
	}
	return out
}

var _ Provider = (*AnthropicProvider)(nil)
