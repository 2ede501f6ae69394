package marvin

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// Invoker sends merged chat requests to a provider through a pipz pipeline.
// The frozen request supplied at construction acts as a read-only default for
// every call: frozen Messages and Tools are prepended, scalar keys are
// overridden by set per-call values. Invokers are safe to share across
// concurrent goroutines.
type Invoker struct {
	provider     Provider
	frozen       ChatRequest
	pipeline     pipz.Chainable[*CallRequest]
	providerName string
}

// NewInvoker creates an invoker bound to a provider. Reliability options
// wrap the provider call from the inside out.
func NewInvoker(provider Provider, frozen ChatRequest, opts ...Option) *Invoker {
	pipeline := NewTerminal(provider)
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}

	return &Invoker{
		provider:     provider,
		frozen:       frozen,
		pipeline:     pipeline,
		providerName: provider.Name(),
	}
}

// NewTerminal creates the terminal processor that performs the provider call.
// All capabilities share this processor at the bottom of their pipelines.
func NewTerminal(provider Provider) pipz.Chainable[*CallRequest] {
	return pipz.Apply("llm-call", func(ctx context.Context, req *CallRequest) (*CallRequest, error) {
		envelope, err := provider.Call(ctx, req.Request)
		if err != nil {
			return req, err
		}
		req.Envelope = envelope
		return req, nil
	})
}

// Provider returns the provider this invoker wraps.
func (inv *Invoker) Provider() Provider {
	return inv.provider
}

// ProviderName returns the wrapped provider's identifier.
func (inv *Invoker) ProviderName() string {
	return inv.providerName
}

// GetPipeline returns the internal pipeline for composition.
func (inv *Invoker) GetPipeline() pipz.Chainable[*CallRequest] {
	return inv.pipeline
}

// Invoke merges the frozen request with the per-call request, sends it
// through the pipeline, and returns the response envelope. The only
// suspension point is the provider round trip; cancellation via ctx aborts
// there.
func (inv *Invoker) Invoke(ctx context.Context, call ChatRequest) (*Envelope, error) {
	return inv.invoke(ctx, call, "invoker", "")
}

// invoke is the capability-aware variant of Invoke. Capabilities pass their
// own request ID so hook events correlate across layers.
func (inv *Invoker) invoke(ctx context.Context, call ChatRequest, capability, requestID string) (*Envelope, error) {
	merged := inv.frozen.Merge(call)

	if requestID == "" {
		requestID = uuid.New().String()
	}

	request := &CallRequest{
		Request:      &merged,
		RequestID:    requestID,
		Capability:   capability,
		ProviderName: inv.providerName,
	}

	processed, err := inv.pipeline.Process(ctx, request)
	if err != nil {
		return nil, err
	}

	if processed.Envelope == nil {
		capitan.Error(ctx, ResponseParseFailed,
			RequestIDKey.Field(request.RequestID),
			CapabilityKey.Field(capability),
			ProviderKey.Field(inv.providerName),
			ErrorTypeKey.Field("empty_envelope"),
		)
		return nil, fmt.Errorf("%w: provider returned no envelope", ErrResponseParse)
	}

	return processed.Envelope, nil
}
