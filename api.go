// Package marvin provides typed LLM orchestration built from composable prompt
// fragments, a frozen-configuration invoker, and a bounded tool-dispatch loop.
//
// Four capabilities cover the common interaction patterns:
//
//   - Extractor[T]: pull structured data of type T out of unstructured text
//   - Classifier[T]: zero-shot selection from a closed set of labeled choices
//   - Func[A, T]: a specification-only function whose body is model inference
//   - Application: a stateful conversational app with tools and a state document
//
// All capabilities are built by explicit composition: a factory function takes
// a description and a Provider and returns a callable object. Reliability
// options (retry, timeout, circuit breaker, rate limiting) compose over the
// provider call, and every request emits observability hooks.
//
// Basic usage:
//
//	provider := openai.New(openai.Config{APIKey: key, Model: "gpt-4o-mini"})
//	clf, _ := marvin.NewClassifier("Classify the sentiment", []marvin.Choice[string]{
//	    {Label: "Positive", Value: "positive"},
//	    {Label: "Negative", Value: "negative"},
//	}, provider)
//	label, _ := clf.Classify(ctx, "Great!")
package marvin

import (
	"context"
	"encoding/json"
)

// Role constants for message types.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single concrete message in a conversation. Tool-role messages
// carry the originating call's name and ID so providers can pair results with
// requests.
type Message struct {
	Role       string    // RoleSystem, RoleUser, RoleAssistant, or RoleTool
	Content    string    // The message content
	Name       string    // Tool name, set on RoleTool messages
	ToolCallID string    // ID of the call this message answers, set on RoleTool messages
	ToolCall   *ToolCall // Call requested by the assistant, echoed back into history
}

// ToolCall is a model-requested invocation of a registered tool.
type ToolCall struct {
	ID        string          // Provider-assigned call identifier
	Name      string          // Tool name to resolve against a Registry
	Arguments json.RawMessage // JSON-encoded arguments
}

// TokenUsage contains token counts from a provider response.
type TokenUsage struct {
	Prompt     int // Tokens used by the prompt/messages
	Completion int // Tokens used by the completion/response
	Total      int // Total tokens used
}

// Envelope is the response from a provider call. A terminal reply has
// Content, a dispatch request has ToolCall, and some providers populate both.
type Envelope struct {
	Role     string     // Usually RoleAssistant
	Content  string     // Text response, may be empty when a tool call is requested
	ToolCall *ToolCall  // Requested call, nil for terminal replies
	Usage    TokenUsage // Token usage statistics
}

// Provider defines the interface for LLM providers.
// Providers accept a merged chat request and return a response envelope.
// Transport failures must be reported by wrapping ErrRemoteUnavailable and
// malformed payloads by wrapping ErrResponseParse.
type Provider interface {
	// Call sends the request to the LLM and returns the response envelope.
	// Messages are in chronological order (oldest first).
	Call(ctx context.Context, req *ChatRequest) (*Envelope, error)

	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
}

// ConstrainedChooser is an optional provider capability for constrained
// choice selection. Providers that can force the model to pick exactly one of
// the given labels (logit biasing, grammar-constrained decoding) implement
// this; Classifier falls back to explicit enumeration plus validation when
// the provider does not.
type ConstrainedChooser interface {
	// Choose returns the zero-based index of the selected label.
	Choose(ctx context.Context, req *ChatRequest, labels []string) (int, error)
}

// Validator is implemented by response types that can check their own
// invariants after JSON decoding. Typed capabilities validate responses that
// implement it and reject the call otherwise.
type Validator interface {
	Validate() error
}

// Default temperature constants for the built-in capabilities.
// Temperature controls the randomness/creativity of LLM responses.
const (
	// TemperatureUnset indicates that no temperature has been explicitly set.
	// A zero-value float32 is also treated as unset for ergonomic struct
	// initialization.
	TemperatureUnset float32 = -1

	// TemperatureZero provides an explicitly near-zero temperature for
	// maximum determinism. Use this instead of 0.0 since zero is treated as
	// "unset".
	TemperatureZero float32 = 0.0001

	// DefaultTemperatureDeterministic is used for tasks requiring consistent,
	// precise outputs with minimal variation (extraction, function inference).
	DefaultTemperatureDeterministic float32 = 0.1

	// DefaultTemperatureAnalytical is used for tasks requiring consistent
	// analysis with some flexibility (classification).
	DefaultTemperatureAnalytical float32 = 0.2

	// DefaultTemperatureCreative is used for open-ended conversation
	// (applications).
	DefaultTemperatureCreative float32 = 0.3
)

// CallRequest flows through the pipz pipeline wrapped by an Invoker.
// It carries the merged chat request in and the response envelope out.
type CallRequest struct {
	// Input fields
	Request *ChatRequest // Merged frozen + per-call request

	// Metadata fields
	RequestID    string // Unique identifier for this request
	Capability   string // Capability issuing the call (extractor, classifier, ...)
	ProviderName string // Name of the provider being used

	// Output fields (populated by the terminal processor)
	Envelope *Envelope // Provider response
}
