package marvin

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// DefaultMaxIterations bounds the executor loop when no explicit budget is
// configured.
const DefaultMaxIterations = 10

// RunResult is the outcome of an executor loop.
type RunResult struct {
	Messages   []Message // Full transcript including tool traffic
	Final      *Envelope // Terminal envelope; nil when the loop was cut short
	Iterations int       // Number of provider calls made
	Incomplete bool      // True when the iteration budget was exhausted
}

// Executor drives the bounded tool-dispatch loop: it sends the conversation
// to the model, resolves requested tool calls against a registry, feeds the
// results back, and repeats until the model replies with plain content or the
// iteration budget runs out.
//
// The loop is strictly sequential; each model call completes before the next
// dispatch because the conversation is linear and stateful. Unknown tools and
// tool failures are absorbed into the transcript so the model can
// self-correct; only provider errors are surfaced to the caller.
type Executor struct {
	invoker       *Invoker
	registry      *Registry
	maxIterations int
}

// NewExecutor creates an executor bound to an invoker and a tool registry.
// A non-positive maxIterations falls back to DefaultMaxIterations.
func NewExecutor(invoker *Invoker, registry *Registry, maxIterations int) *Executor {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Executor{
		invoker:       invoker,
		registry:      registry,
		maxIterations: maxIterations,
	}
}

// Run executes the loop starting from the given conversation.
// When the budget is exhausted the partial transcript is returned with
// Incomplete set and a nil error; that outcome is terminal but non-fatal.
func (e *Executor) Run(ctx context.Context, messages []Message) (*RunResult, error) {
	transcript := slices.Clone(messages)
	tools := e.registry.Tools()
	runID := uuid.New().String()

	for i := 0; i < e.maxIterations; i++ {
		// Cooperative cancellation before the next suspension point.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		envelope, err := e.invoker.invoke(ctx, ChatRequest{
			Messages:   transcript,
			Tools:      tools,
			ToolChoice: "auto",
		}, "executor", runID)
		if err != nil {
			return nil, err
		}

		if envelope.ToolCall == nil {
			// Plain content: terminal reply.
			transcript = append(transcript, Message{
				Role:    RoleAssistant,
				Content: envelope.Content,
			})
			capitan.Info(ctx, LoopCompleted,
				RequestIDKey.Field(runID),
				ProviderKey.Field(e.invoker.ProviderName()),
				IterationKey.Field(i+1),
				IncompleteKey.Field(0),
			)
			return &RunResult{
				Messages:   transcript,
				Final:      envelope,
				Iterations: i + 1,
			}, nil
		}

		// Echo the assistant turn, then dispatch and feed the result back.
		transcript = append(transcript, Message{
			Role:     RoleAssistant,
			Content:  envelope.Content,
			ToolCall: envelope.ToolCall,
		})
		transcript = append(transcript, e.dispatch(ctx, runID, envelope.ToolCall))
	}

	capitan.Info(ctx, LoopCompleted,
		RequestIDKey.Field(runID),
		ProviderKey.Field(e.invoker.ProviderName()),
		IterationKey.Field(e.maxIterations),
		IncompleteKey.Field(1),
	)
	return &RunResult{
		Messages:   transcript,
		Iterations: e.maxIterations,
		Incomplete: true,
	}, nil
}

// dispatch resolves and executes one tool call, always producing a tool-role
// message for the transcript. Failures are described to the model instead of
// being propagated.
func (e *Executor) dispatch(ctx context.Context, runID string, call *ToolCall) Message {
	msg := Message{
		Role:       RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
	}

	tool, ok := e.registry.Lookup(call.Name)
	if !ok {
		msg.Content = fmt.Sprintf("unknown tool %q; available tools: %s",
			call.Name, strings.Join(e.toolNames(), ", "))
		capitan.Error(ctx, ToolFailed,
			RequestIDKey.Field(runID),
			ToolNameKey.Field(call.Name),
			ToolCallIDKey.Field(call.ID),
			ErrorTypeKey.Field("unknown_tool"),
		)
		return msg
	}

	start := time.Now()
	result, err := safeInvoke(ctx, tool, call)
	duration := time.Since(start)

	if err != nil {
		msg.Content = fmt.Sprintf("tool %s failed: %v", call.Name, err)
		capitan.Error(ctx, ToolFailed,
			RequestIDKey.Field(runID),
			ToolNameKey.Field(call.Name),
			ToolCallIDKey.Field(call.ID),
			DurationMsKey.Field(int(duration.Milliseconds())),
			ErrorKey.Field(err.Error()),
			ErrorTypeKey.Field("execution_error"),
		)
		return msg
	}

	msg.Content = result
	capitan.Info(ctx, ToolDispatched,
		RequestIDKey.Field(runID),
		ToolNameKey.Field(call.Name),
		ToolCallIDKey.Field(call.ID),
		DurationMsKey.Field(int(duration.Milliseconds())),
	)
	return msg
}

// safeInvoke runs a tool handler, converting panics into errors so a
// misbehaving tool cannot take down the loop.
func safeInvoke(ctx context.Context, tool Tool, call *ToolCall) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Handler(ctx, call.Arguments)
}

// toolNames returns the registered tool names for feedback messages.
func (e *Executor) toolNames() []string {
	tools := e.registry.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
