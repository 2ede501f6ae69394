// Package anthropic implements the marvin Provider interface against the
// Anthropic messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/zoobzio/capitan"

	"github.com/jbn/marvin"
)

// Provider implements the marvin Provider interface for the Anthropic API.
type Provider struct {
	apiKey     string
	model      string
	version    string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	name       string
}

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey    string
	Model     string        // e.g. "claude-sonnet-4-20250514"
	Version   string        // API version, defaults to "2023-06-01"
	BaseURL   string        // Optional, defaults to "https://api.anthropic.com/v1"
	MaxTokens int           // Optional, defaults to 4096 (the API requires a cap)
	Timeout   time.Duration // Optional, defaults to 30s
}

// New creates a new Anthropic provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.Version == "" {
		config.Version = "2023-06-01"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Provider{
		apiKey:    config.APIKey,
		model:     config.Model,
		version:   config.Version,
		baseURL:   config.BaseURL,
		maxTokens: config.MaxTokens,
		name:      "anthropic",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends a chat request to Anthropic and returns the response envelope.
// System messages are lifted into the top-level system field; tool results
// become tool_result content blocks, as the messages API requires.
func (p *Provider) Call(ctx context.Context, request *marvin.ChatRequest) (*marvin.Envelope, error) {
	startTime := time.Now()

	model := request.Model
	if model == "" {
		model = p.model
	}

	capitan.Emit(ctx, marvin.ProviderCallStarted,
		marvin.ProviderKey.Field(p.name),
		marvin.ModelKey.Field(model),
	)

	system, wireMessages := encodeMessages(request.Messages)

	requestBody := messagesRequest{
		Model:     model,
		MaxTokens: p.maxTokens,
		System:    system,
		Messages:  wireMessages,
		Tools:     encodeTools(request.Tools),
	}
	if len(request.Tools) > 0 {
		requestBody.ToolChoice = encodeToolChoice(request.ToolChoice)
	}
	if request.MaxTokens > 0 {
		requestBody.MaxTokens = request.MaxTokens
	}
	if request.Temperature != 0 && request.Temperature != marvin.TemperatureUnset {
		t := request.Temperature
		requestBody.Temperature = &t
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", p.version)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", marvin.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", marvin.ErrRemoteUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.callFailed(ctx, model, resp.StatusCode, body, startTime)
	}

	var messagesResp messagesResponse
	if err := json.Unmarshal(body, &messagesResp); err != nil {
		return nil, fmt.Errorf("%w: %v", marvin.ErrResponseParse, err)
	}

	duration := time.Since(startTime)
	totalTokens := messagesResp.Usage.InputTokens + messagesResp.Usage.OutputTokens

	fields := []capitan.Field{
		marvin.ProviderKey.Field(p.name),
		marvin.ModelKey.Field(messagesResp.Model),
		marvin.PromptTokensKey.Field(messagesResp.Usage.InputTokens),
		marvin.CompletionTokensKey.Field(messagesResp.Usage.OutputTokens),
		marvin.TotalTokensKey.Field(totalTokens),
		marvin.DurationMsKey.Field(int(duration.Milliseconds())),
		marvin.HTTPStatusCodeKey.Field(resp.StatusCode),
		marvin.ResponseIDKey.Field(messagesResp.ID),
	}
	if messagesResp.StopReason != "" {
		fields = append(fields, marvin.ResponseFinishReasonKey.Field(messagesResp.StopReason))
	}
	capitan.Emit(ctx, marvin.ProviderCallCompleted, fields...)

	envelope := &marvin.Envelope{
		Role: marvin.RoleAssistant,
		Usage: marvin.TokenUsage{
			Prompt:     messagesResp.Usage.InputTokens,
			Completion: messagesResp.Usage.OutputTokens,
			Total:      totalTokens,
		},
	}
	for _, block := range messagesResp.Content {
		switch block.Type {
		case "text":
			envelope.Content += block.Text
		case "tool_use":
			if envelope.ToolCall == nil {
				envelope.ToolCall = &marvin.ToolCall{
					ID:        block.ID,
					Name:      block.Name,
					Arguments: block.Input,
				}
			}
		}
	}

	if envelope.Content == "" && envelope.ToolCall == nil {
		return nil, fmt.Errorf("%w: no content in response", marvin.ErrResponseParse)
	}

	return envelope, nil
}

// callFailed emits the failure hook and builds the call error.
func (p *Provider) callFailed(ctx context.Context, model string, status int, body []byte, startTime time.Time) error {
	duration := time.Since(startTime)

	fields := []capitan.Field{
		marvin.ProviderKey.Field(p.name),
		marvin.ModelKey.Field(model),
		marvin.HTTPStatusCodeKey.Field(status),
		marvin.DurationMsKey.Field(int(duration.Milliseconds())),
	}

	var errorResp errorResponse
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		fields = append(fields,
			marvin.ErrorKey.Field(errorResp.Error.Message),
			marvin.APIErrorTypeKey.Field(errorResp.Error.Type),
		)
		capitan.Emit(ctx, marvin.ProviderCallFailed, fields...)

		if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: anthropic error (%d): %s", marvin.ErrRemoteUnavailable, status, errorResp.Error.Message)
		}
		return fmt.Errorf("anthropic error (%d): %s", status, errorResp.Error.Message)
	}

	fields = append(fields, marvin.ErrorKey.Field(fmt.Sprintf("status %d", status)))
	capitan.Emit(ctx, marvin.ProviderCallFailed, fields...)

	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: anthropic error: status %d", marvin.ErrRemoteUnavailable, status)
	}
	return fmt.Errorf("anthropic error: status %d", status)
}

// encodeMessages converts transcript messages to the wire format, lifting
// system fragments into the top-level system field.
func encodeMessages(messages []marvin.Message) (string, []message) {
	var system string
	out := make([]message, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case marvin.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case marvin.RoleTool:
			out = append(out, message{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case marvin.RoleAssistant:
			blocks := []contentBlock{}
			if m.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			}
			if m.ToolCall != nil {
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    m.ToolCall.ID,
					Name:  m.ToolCall.Name,
					Input: m.ToolCall.Arguments,
				})
			}
			out = append(out, message{Role: "assistant", Content: blocks})
		default:
			out = append(out, message{
				Role:    "user",
				Content: []contentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}

	return system, out
}

// encodeToolChoice maps the directive to the messages API form: "auto" and
// "none" become bare type objects, any other non-empty value forces the
// named tool.
func encodeToolChoice(choice string) *toolChoice {
	switch choice {
	case "":
		return nil
	case "auto", "none":
		return &toolChoice{Type: choice}
	default:
		return &toolChoice{Type: "tool", Name: choice}
	}
}

// encodeTools converts tool descriptors to the wire format.
func encodeTools(tools []marvin.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return out
}

// Request/Response types for Anthropic API

type messagesRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	System      string      `json:"system,omitempty"`
	Temperature *float32    `json:"temperature,omitempty"`
	Messages    []message   `json:"messages"`
	Tools       []tool      `json:"tools,omitempty"`
	ToolChoice  *toolChoice `json:"tool_choice,omitempty"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

type messagesResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Content    []responseBlock `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Usage      usage           `json:"usage"`
}

type responseBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
