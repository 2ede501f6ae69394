package marvin

import "testing"

func TestChatRequestMerge(t *testing.T) {
	t.Run("messages concatenate frozen first", func(t *testing.T) {
		frozen := ChatRequest{Messages: []Message{{Role: RoleSystem, Content: "s"}}}
		call := ChatRequest{Messages: []Message{{Role: RoleUser, Content: "u"}}}

		merged := frozen.Merge(call)
		if len(merged.Messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(merged.Messages))
		}
		if merged.Messages[0].Content != "s" || merged.Messages[1].Content != "u" {
			t.Error("Messages not concatenated frozen-first")
		}
	})

	t.Run("tools concatenate frozen first", func(t *testing.T) {
		frozen := ChatRequest{Tools: []Tool{{Name: "a"}}}
		call := ChatRequest{Tools: []Tool{{Name: "b"}}}

		merged := frozen.Merge(call)
		if len(merged.Tools) != 2 || merged.Tools[0].Name != "a" || merged.Tools[1].Name != "b" {
			t.Errorf("Tools not concatenated frozen-first: %+v", merged.Tools)
		}
	})

	t.Run("per-call scalars override", func(t *testing.T) {
		frozen := ChatRequest{Model: "frozen-model", Temperature: 0.5, MaxTokens: 100}
		call := ChatRequest{Model: "call-model", Temperature: 1.0, MaxTokens: 200}

		merged := frozen.Merge(call)
		if merged.Model != "call-model" {
			t.Errorf("Expected call model to win, got %s", merged.Model)
		}
		if merged.Temperature != 1.0 {
			t.Errorf("Expected call temperature to win, got %f", merged.Temperature)
		}
		if merged.MaxTokens != 200 {
			t.Errorf("Expected call max tokens to win, got %d", merged.MaxTokens)
		}
	})

	t.Run("unset scalars fall back to frozen", func(t *testing.T) {
		frozen := ChatRequest{Model: "frozen-model", Temperature: 0.5, MaxTokens: 100, ToolChoice: "auto"}

		merged := frozen.Merge(ChatRequest{})
		if merged.Model != "frozen-model" || merged.Temperature != 0.5 || merged.MaxTokens != 100 {
			t.Errorf("Frozen scalars lost: %+v", merged)
		}
		if merged.ToolChoice != "auto" {
			t.Errorf("Frozen tool choice lost: %s", merged.ToolChoice)
		}
	})

	t.Run("inputs not mutated", func(t *testing.T) {
		frozen := ChatRequest{Messages: []Message{{Role: RoleSystem, Content: "s"}}}
		call := ChatRequest{Messages: []Message{{Role: RoleUser, Content: "u"}}}

		merged := frozen.Merge(call)
		merged.Messages[0].Content = "changed"

		if frozen.Messages[0].Content != "s" {
			t.Error("Merge shares backing storage with frozen request")
		}
		if call.Messages[0].Content != "u" {
			t.Error("Merge shares backing storage with call request")
		}
	})

	t.Run("explicit near-zero temperature survives", func(t *testing.T) {
		frozen := ChatRequest{Temperature: 0.7}
		call := ChatRequest{Temperature: TemperatureZero}

		merged := frozen.Merge(call)
		if merged.Temperature != TemperatureZero {
			t.Errorf("Expected TemperatureZero to win, got %f", merged.Temperature)
		}
	})
}
