package marvin

import "github.com/zoobzio/capitan"

// Signals for hook events.
const (
	RequestStarted        = capitan.Signal("marvin.request.started")
	RequestCompleted      = capitan.Signal("marvin.request.completed")
	RequestFailed         = capitan.Signal("marvin.request.failed")
	ProviderCallStarted   = capitan.Signal("marvin.provider.call.started")
	ProviderCallCompleted = capitan.Signal("marvin.provider.call.completed")
	ProviderCallFailed    = capitan.Signal("marvin.provider.call.failed")
	ResponseParseFailed   = capitan.Signal("marvin.response.failed")
	ToolDispatched        = capitan.Signal("marvin.tool.dispatched")
	ToolFailed            = capitan.Signal("marvin.tool.failed")
	LoopCompleted         = capitan.Signal("marvin.loop.completed")
)

// Keys for hook event fields.
var (
	// Request identification.
	RequestIDKey   = capitan.NewStringKey("marvin.request.id")
	CapabilityKey  = capitan.NewStringKey("marvin.capability")
	TemperatureKey = capitan.NewFloat64Key("marvin.temperature")

	// Input/Output data.
	InputKey  = capitan.NewStringKey("marvin.input")
	OutputKey = capitan.NewStringKey("marvin.output")

	// Response data.
	ResponseKey = capitan.NewStringKey("marvin.response")

	// Error information.
	ErrorKey     = capitan.NewStringKey("marvin.error")
	ErrorTypeKey = capitan.NewStringKey("marvin.error.type")

	// Provider information.
	ProviderKey = capitan.NewStringKey("marvin.provider")
	ModelKey    = capitan.NewStringKey("marvin.model")

	// Provider metrics.
	PromptTokensKey     = capitan.NewIntKey("marvin.tokens.prompt")
	CompletionTokensKey = capitan.NewIntKey("marvin.tokens.completion")
	TotalTokensKey      = capitan.NewIntKey("marvin.tokens.total")
	DurationMsKey       = capitan.NewIntKey("marvin.duration.ms")

	// HTTP/API metadata.
	HTTPStatusCodeKey = capitan.NewIntKey("marvin.http.status.code")
	APIErrorTypeKey   = capitan.NewStringKey("marvin.api.error.type")
	APIErrorCodeKey   = capitan.NewStringKey("marvin.api.error.code")

	// Response metadata.
	ResponseIDKey           = capitan.NewStringKey("marvin.response.id")
	ResponseFinishReasonKey = capitan.NewStringKey("marvin.response.finish.reason")

	// Executor loop data.
	ToolNameKey   = capitan.NewStringKey("marvin.tool.name")
	ToolCallIDKey = capitan.NewStringKey("marvin.tool.call.id")
	IterationKey  = capitan.NewIntKey("marvin.loop.iteration")
	IncompleteKey = capitan.NewIntKey("marvin.loop.incomplete")
)
