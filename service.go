package marvin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// Service provides typed model interactions for a specific response type T.
// It renders a fragment sequence, invokes the provider, and JSON-decodes the
// response into T. Responses implementing Validator are validated before the
// session is updated.
type Service[T any] struct {
	invoker            *Invoker
	capability         string
	defaultTemperature float32
}

// NewService creates a Service bound to an invoker.
// The default temperature is used when a call leaves temperature unset.
func NewService[T any](invoker *Invoker, capability string, defaultTemperature float32) *Service[T] {
	return &Service[T]{
		invoker:            invoker,
		capability:         capability,
		defaultTemperature: defaultTemperature,
	}
}

// GetPipeline returns the internal pipeline for composition.
// This is used by WithFallback to combine pipelines.
func (s *Service[T]) GetPipeline() pipz.Chainable[*CallRequest] {
	return s.invoker.GetPipeline()
}

// Execute renders the sequence with the given variables, sends it through
// the invoker, and returns the decoded response.
//
// Temperature resolution: if the provided temperature is 0 or
// TemperatureUnset, the service's default temperature is used instead.
//
// The session (may be nil for stateless calls) is only updated after a
// successful parse and validation, so pipeline retries never corrupt
// session state. Session history is spliced in after any leading system
// fragment.
func (s *Service[T]) Execute(ctx context.Context, session *Session, seq Sequence, vars map[string]string, temperature float32) (T, error) {
	var result T

	if temperature == TemperatureUnset || temperature == 0 {
		temperature = s.defaultTemperature
	}

	rendered, err := seq.Render(vars)
	if err != nil {
		return result, fmt.Errorf("render prompt: %w", err)
	}

	messages := spliceHistory(rendered, session)
	requestID := uuid.New().String()

	capitan.Info(ctx, RequestStarted,
		RequestIDKey.Field(requestID),
		CapabilityKey.Field(s.capability),
		ProviderKey.Field(s.invoker.ProviderName()),
		InputKey.Field(lastUserContent(rendered)),
		TemperatureKey.Field(float64(temperature)),
	)

	envelope, err := s.invoker.invoke(ctx, ChatRequest{
		Temperature: temperature,
		Messages:    messages,
	}, s.capability, requestID)
	if err != nil {
		capitan.Error(ctx, RequestFailed,
			RequestIDKey.Field(requestID),
			CapabilityKey.Field(s.capability),
			ProviderKey.Field(s.invoker.ProviderName()),
			ErrorKey.Field(err.Error()),
		)
		return result, err
	}

	if envelope.Content == "" {
		return result, fmt.Errorf("%w: no content in response", ErrResponseParse)
	}

	if parseErr := json.Unmarshal([]byte(envelope.Content), &result); parseErr != nil {
		capitan.Error(ctx, ResponseParseFailed,
			RequestIDKey.Field(requestID),
			CapabilityKey.Field(s.capability),
			ProviderKey.Field(s.invoker.ProviderName()),
			ResponseKey.Field(envelope.Content),
			ErrorKey.Field(parseErr.Error()),
			ErrorTypeKey.Field("parse_error"),
		)
		return result, fmt.Errorf("%w: %v", ErrResponseParse, parseErr)
	}

	// Validate when T opts in
	if v, ok := any(result).(Validator); ok {
		if validationErr := v.Validate(); validationErr != nil {
			capitan.Error(ctx, ResponseParseFailed,
				RequestIDKey.Field(requestID),
				CapabilityKey.Field(s.capability),
				ProviderKey.Field(s.invoker.ProviderName()),
				ResponseKey.Field(envelope.Content),
				ErrorKey.Field(validationErr.Error()),
				ErrorTypeKey.Field("validation_error"),
			)
			return result, fmt.Errorf("invalid response: %w", validationErr)
		}
	}

	// Success - update session with conversation and usage.
	// Transactional: only happens after successful parsing and validation.
	if session != nil {
		for _, m := range rendered {
			if m.Role != RoleSystem {
				session.AppendMessage(m)
			}
		}
		session.Append(RoleAssistant, envelope.Content)
		session.SetUsage(&envelope.Usage)
	}

	outputJSON, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		// Cannot fail after a successful unmarshal of the same shape
		outputJSON = []byte("{}")
	}

	capitan.Info(ctx, RequestCompleted,
		RequestIDKey.Field(requestID),
		CapabilityKey.Field(s.capability),
		ProviderKey.Field(s.invoker.ProviderName()),
		OutputKey.Field(string(outputJSON)),
		ResponseKey.Field(envelope.Content),
	)

	return result, nil
}

// spliceHistory merges session history into freshly rendered messages:
// a leading system fragment stays first, history follows, then the new
// messages.
func spliceHistory(rendered []Message, session *Session) []Message {
	if session == nil || session.Len() == 0 {
		return rendered
	}

	history := session.Messages()
	out := make([]Message, 0, len(rendered)+len(history))

	rest := rendered
	if len(rendered) > 0 && rendered[0].Role == RoleSystem {
		out = append(out, rendered[0])
		rest = rendered[1:]
	}
	out = append(out, history...)
	out = append(out, rest...)
	return out
}

// lastUserContent returns the content of the last user-role message, for
// hook emission.
func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
