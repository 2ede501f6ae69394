// Package azure implements the marvin Provider interface against the Azure
// OpenAI Service. The wire format matches OpenAI chat completions; only the
// URL layout and auth header differ.
package azure

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

// Provider implements the marvin Provider interface for Azure OpenAI.
type Provider struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	httpClient *http.Client
	name       string
}

// Config holds configuration for the Azure provider.
type Config struct {
	Endpoint   string        // Azure OpenAI endpoint (https://{your-resource}.openai.azure.com)
	APIKey     string        // Azure API key
	Deployment string        // Deployment name
	APIVersion string        // API version, defaults to "2024-02-01"
	Timeout    time.Duration // Optional, defaults to 30s
}

// New creates a new Azure OpenAI provider.
func New(config Config) *Provider {
	if config.APIVersion == "" {
		config.APIVersion = "2024-02-01"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Provider{
		endpoint:   config.Endpoint,
		apiKey:     config.APIKey,
		deployment: config.Deployment,
		apiVersion: config.APIVersion,
		name:       "azure",
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Call sends a chat request to Azure OpenAI and returns the response
// envelope. The deployment, not the request, selects the model.
func (p *Provider) Call(ctx context.Context, request *marvin.ChatRequest) (*marvin.Envelope, error) {
	startTime := time.Now()

	capitan.Emit(ctx, marvin.ProviderCallStarted,
		marvin.ProviderKey.Field(p.name),
		marvin.ModelKey.Field(p.deployment),
	)

	requestBody := chatCompletionRequest{
		Messages: encodeMessages(request.Messages),
		Tools:    encodeTools(request.Tools),
	}
	if request.Temperature != 0 && request.Temperature != marvin.TemperatureUnset {
		t := request.Temperature
		requestBody.Temperature = &t
	}
	if request.MaxTokens > 0 {
		requestBody.MaxTokens = request.MaxTokens
	}
	if len(request.Tools) > 0 {
		requestBody.ToolChoice = encodeToolChoice(request.ToolChoice)
	} else {
		requestBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, p.deployment, p.apiVersion)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", p.apiKey)

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
		return nil, p.callFailed(ctx, resp.StatusCode, body, startTime)
	}

	var completionResp chatCompletionResponse
	if err := json.Unmarshal(body, &completionResp); err != nil {
		return nil, fmt.Errorf("%w: %v", marvin.ErrResponseParse, err)
	}

	if len(completionResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no response choices returned", marvin.ErrResponseParse)
	}

	duration := time.Since(startTime)
	chosen := completionResp.Choices[0]

	fields := []capitan.Field{
		marvin.ProviderKey.Field(p.name),
		marvin.ModelKey.Field(completionResp.Model),
		marvin.PromptTokensKey.Field(completionResp.Usage.PromptTokens),
		marvin.CompletionTokensKey.Field(completionResp.Usage.CompletionTokens),
		marvin.TotalTokensKey.Field(completionResp.Usage.TotalTokens),
		marvin.DurationMsKey.Field(int(duration.Milliseconds())),
		marvin.HTTPStatusCodeKey.Field(resp.StatusCode),
		marvin.ResponseIDKey.Field(completionResp.ID),
	}
	if chosen.FinishReason != "" {
		fields = append(fields, marvin.ResponseFinishReasonKey.Field(chosen.FinishReason))
	}
	capitan.Emit(ctx, marvin.ProviderCallCompleted, fields...)

	envelope := &marvin.Envelope{
		Role:    marvin.RoleAssistant,
		Content: chosen.Message.Content,
		Usage: marvin.TokenUsage{
			Prompt:     completionResp.Usage.PromptTokens,
			Completion: completionResp.Usage.CompletionTokens,
			Total:      completionResp.Usage.TotalTokens,
		},
	}
	if len(chosen.Message.ToolCalls) > 0 {
		tc := chosen.Message.ToolCalls[0]
		envelope.ToolCall = &marvin.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}
	}

	return envelope, nil
}

// callFailed emits the failure hook and builds the call error.
func (p *Provider) callFailed(ctx context.Context, status int, body []byte, startTime time.Time) error {
	duration := time.Since(startTime)

	fields := []capitan.Field{
		marvin.ProviderKey.Field(p.name),
		marvin.ModelKey.Field(p.deployment),
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
			return fmt.Errorf("%w: azure error (%d): %s", marvin.ErrRemoteUnavailable, status, errorResp.Error.Message)
		}
		return fmt.Errorf("azure error (%d): %s", status, errorResp.Error.Message)
	}

	fields = append(fields, marvin.ErrorKey.Field(fmt.Sprintf("status %d", status)))
	capitan.Emit(ctx, marvin.ProviderCallFailed, fields...)

	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: azure error: status %d", marvin.ErrRemoteUnavailable, status)
	}
	return fmt.Errorf("azure error: status %d", status)
}

// encodeMessages converts transcript messages to the wire format.
func encodeMessages(messages []marvin.Message) []message {
	out := make([]message, 0, len(messages))
	for _, m := range messages {
		wire := message{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		if m.ToolCall != nil {
			wire.ToolCalls = []toolCall{{
				ID:   m.ToolCall.ID,
				Type: "function",
				Function: functionCall{
					Name:      m.ToolCall.Name,
					Arguments: string(m.ToolCall.Arguments),
				},
			}}
		}
		out = append(out, wire)
	}
	return out
}

// encodeToolChoice converts the tool-choice directive to the wire format.
// "auto" and "none" are API keywords and pass through as strings; any other
// non-empty value names a specific tool, which the API only accepts in
// object form.
func encodeToolChoice(choice string) any {
	switch choice {
	case "":
		return nil
	case "auto", "none":
		return choice
	default:
		return namedToolChoice{
			Type:     "function",
			Function: toolChoiceFunction{Name: choice},
		}
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
			Type: "function",
			Function: function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// Request/Response types (OpenAI-compatible wire format)

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Messages       []message       `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Tools          []tool          `json:"tools,omitempty"`
	ToolChoice     any             `json:"tool_choice,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type namedToolChoice struct {
	Type     string             `json:"type"`
	Function toolChoiceFunction `json:"function"`
}

type toolChoiceFunction struct {
	Name string `json:"name"`
}

type message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
}

type tool struct {
	Type     string   `json:"type"`
	Function function `json:"function"`
}

type function struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
