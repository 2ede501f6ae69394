package marvin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func newTestRegistry(t *testing.T, tools ...Tool) *Registry {
	t.Helper()
	registry, err := NewRegistry(tools...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return registry
}

func TestExecutorRun(t *testing.T) {
	t.Run("terminal reply without tools", func(t *testing.T) {
		provider := NewMockProviderWithScript(
			&Envelope{Role: RoleAssistant, Content: "done"},
		)
		registry := newTestRegistry(t)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 5)

		result, err := executor.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "hello"},
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if result.Incomplete {
			t.Error("Expected complete run")
		}
		if result.Iterations != 1 {
			t.Errorf("Expected 1 iteration, got %d", result.Iterations)
		}
		if result.Final == nil || result.Final.Content != "done" {
			t.Errorf("Unexpected final envelope: %+v", result.Final)
		}

		last := result.Messages[len(result.Messages)-1]
		if last.Role != RoleAssistant || last.Content != "done" {
			t.Errorf("Transcript missing terminal reply: %+v", last)
		}
	})

	t.Run("tool roundtrip", func(t *testing.T) {
		var invoked bool
		echo := NewTool("echo", "Echo.",
			func(_ context.Context, args echoArgs) (string, error) {
				invoked = true
				return "echoed: " + args.Text, nil
			})

		provider := NewMockProviderWithScript(
			&Envelope{Role: RoleAssistant, ToolCall: &ToolCall{
				ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`),
			}},
			&Envelope{Role: RoleAssistant, Content: "final"},
		)
		registry := newTestRegistry(t, echo)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 5)

		result, err := executor.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "call echo"},
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if !invoked {
			t.Error("Tool handler was not invoked")
		}
		if result.Iterations != 2 {
			t.Errorf("Expected 2 iterations, got %d", result.Iterations)
		}

		// user, assistant tool call, tool result, assistant final
		if len(result.Messages) != 4 {
			t.Fatalf("Expected 4 transcript messages, got %d", len(result.Messages))
		}
		toolMsg := result.Messages[2]
		if toolMsg.Role != RoleTool || toolMsg.ToolCallID != "call-1" {
			t.Errorf("Unexpected tool message: %+v", toolMsg)
		}
		if toolMsg.Content != "echoed: hi" {
			t.Errorf("Unexpected tool result: %q", toolMsg.Content)
		}
	})

	t.Run("unknown tool fed back", func(t *testing.T) {
		echo := NewTool("echo", "Echo.",
			func(_ context.Context, args echoArgs) (string, error) { return args.Text, nil })

		provider := NewMockProviderWithScript(
			&Envelope{Role: RoleAssistant, ToolCall: &ToolCall{
				ID: "call-1", Name: "nonexistent", Arguments: json.RawMessage(`{}`),
			}},
			&Envelope{Role: RoleAssistant, Content: "recovered"},
		)
		registry := newTestRegistry(t, echo)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 5)

		result, err := executor.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "go"},
		})
		if err != nil {
			t.Fatalf("Run should absorb unknown tools, got: %v", err)
		}

		toolMsg := result.Messages[2]
		if !strings.Contains(toolMsg.Content, `unknown tool "nonexistent"`) {
			t.Errorf("Feedback missing unknown-tool notice: %q", toolMsg.Content)
		}
		if !strings.Contains(toolMsg.Content, "echo") {
			t.Errorf("Feedback missing available tools: %q", toolMsg.Content)
		}
		if result.Final == nil || result.Final.Content != "recovered" {
			t.Error("Loop did not continue after unknown tool")
		}
	})

	t.Run("tool error fed back", func(t *testing.T) {
		failing := NewTool("fail", "Always fails.",
			func(_ context.Context, args echoArgs) (string, error) {
				return "", fmt.Errorf("boom")
			})

		provider := NewMockProviderWithScript(
			&Envelope{Role: RoleAssistant, ToolCall: &ToolCall{
				ID: "call-1", Name: "fail", Arguments: json.RawMessage(`{}`),
			}},
			&Envelope{Role: RoleAssistant, Content: "ok"},
		)
		registry := newTestRegistry(t, failing)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 5)

		result, err := executor.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "go"},
		})
		if err != nil {
			t.Fatalf("Run should absorb tool failures, got: %v", err)
		}

		toolMsg := result.Messages[2]
		if !strings.Contains(toolMsg.Content, "boom") {
			t.Errorf("Feedback missing tool error: %q", toolMsg.Content)
		}
	})

	t.Run("panicking tool absorbed", func(t *testing.T) {
		panicky := NewTool("panic", "Panics.",
			func(_ context.Context, args echoArgs) (string, error) {
				panic("unreachable state")
			})

		provider := NewMockProviderWithScript(
			&Envelope{Role: RoleAssistant, ToolCall: &ToolCall{
				ID: "call-1", Name: "panic", Arguments: json.RawMessage(`{}`),
			}},
			&Envelope{Role: RoleAssistant, Content: "ok"},
		)
		registry := newTestRegistry(t, panicky)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 5)

		result, err := executor.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "go"},
		})
		if err != nil {
			t.Fatalf("Run should absorb panics, got: %v", err)
		}
		if !strings.Contains(result.Messages[2].Content, "panic") {
			t.Errorf("Feedback missing panic notice: %q", result.Messages[2].Content)
		}
	})

	t.Run("budget exhaustion is incomplete not fatal", func(t *testing.T) {
		echo := NewTool("echo", "Echo.",
			func(_ context.Context, args echoArgs) (string, error) { return "r", nil })

		// The script's last envelope repeats: every iteration requests a tool.
		provider := NewMockProviderWithScript(
			&Envelope{Role: RoleAssistant, ToolCall: &ToolCall{
				ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"text":"x"}`),
			}},
		)
		registry := newTestRegistry(t, echo)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 3)

		result, err := executor.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "loop"},
		})
		if err != nil {
			t.Fatalf("Budget exhaustion must not be an error, got: %v", err)
		}

		if !result.Incomplete {
			t.Error("Expected incomplete result")
		}
		if result.Final != nil {
			t.Error("Incomplete run must not carry a final envelope")
		}
		if result.Iterations != 3 {
			t.Errorf("Expected 3 iterations, got %d", result.Iterations)
		}
		// user + 3x (assistant call + tool result)
		if len(result.Messages) != 7 {
			t.Errorf("Expected 7 transcript messages, got %d", len(result.Messages))
		}
	})

	t.Run("provider error is fatal", func(t *testing.T) {
		provider := NewMockProvider()
		provider.SetAvailable(false)
		registry := newTestRegistry(t)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 5)

		_, err := executor.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "go"},
		})
		if err == nil {
			t.Fatal("Expected provider error to surface")
		}
	})

	t.Run("cancellation", func(t *testing.T) {
		provider := NewMockProviderWithResponse("done")
		registry := newTestRegistry(t)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 5)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := executor.Run(ctx, []Message{{Role: RoleUser, Content: "go"}})
		if err == nil {
			t.Fatal("Expected cancellation error")
		}
		if provider.Calls() != 0 {
			t.Error("Provider called after cancellation")
		}
	})

	t.Run("default budget", func(t *testing.T) {
		provider := NewMockProvider()
		registry := newTestRegistry(t)
		executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 0)

		if executor.maxIterations != DefaultMaxIterations {
			t.Errorf("Expected default budget %d, got %d", DefaultMaxIterations, executor.maxIterations)
		}
	})
}

func TestExecutorToolsExposed(t *testing.T) {
	echo := NewTool("echo", "Echo.",
		func(_ context.Context, args echoArgs) (string, error) { return args.Text, nil })

	provider := NewMockProviderWithResponse("done")
	registry := newTestRegistry(t, echo)
	executor := NewExecutor(NewInvoker(provider, ChatRequest{}), registry, 5)

	_, err := executor.Run(context.Background(), []Message{{Role: RoleUser, Content: "go"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	req := provider.LastRequest()
	if req == nil {
		t.Fatal("Provider received no request")
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "echo" {
		t.Errorf("Tools not exposed to provider: %+v", req.Tools)
	}
	if req.ToolChoice != "auto" {
		t.Errorf("Expected tool choice auto, got %q", req.ToolChoice)
	}
}
