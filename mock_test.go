package marvin

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMockProvider(t *testing.T) {
	t.Run("fixed response", func(t *testing.T) {
		provider := NewMockProviderWithResponse(`{"ok": true}`)

		envelope, err := provider.Call(context.Background(), &ChatRequest{})
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if envelope.Content != `{"ok": true}` {
			t.Errorf("Unexpected content: %q", envelope.Content)
		}

		// Fixed responses repeat.
		envelope, _ = provider.Call(context.Background(), &ChatRequest{})
		if envelope.Content != `{"ok": true}` {
			t.Error("Fixed response did not repeat")
		}
	})

	t.Run("scripted responses in order", func(t *testing.T) {
		provider := NewMockProviderWithScript(
			&Envelope{Role: RoleAssistant, Content: "first"},
			&Envelope{Role: RoleAssistant, Content: "second"},
		)

		a, _ := provider.Call(context.Background(), &ChatRequest{})
		b, _ := provider.Call(context.Background(), &ChatRequest{})
		c, _ := provider.Call(context.Background(), &ChatRequest{})

		if a.Content != "first" || b.Content != "second" {
			t.Errorf("Script out of order: %q, %q", a.Content, b.Content)
		}
		if c.Content != "second" {
			t.Errorf("Last scripted envelope should repeat, got %q", c.Content)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		provider := NewMockProvider()
		provider.SetAvailable(false)

		_, err := provider.Call(context.Background(), &ChatRequest{})
		if !errors.Is(err, ErrRemoteUnavailable) {
			t.Errorf("Expected ErrRemoteUnavailable, got %v", err)
		}
	})

	t.Run("records requests", func(t *testing.T) {
		provider := NewMockProvider()

		_, _ = provider.Call(context.Background(), &ChatRequest{Model: "a"})
		_, _ = provider.Call(context.Background(), &ChatRequest{Model: "b"})

		if provider.Calls() != 2 {
			t.Errorf("Expected 2 calls, got %d", provider.Calls())
		}
		if provider.LastRequest().Model != "b" {
			t.Errorf("LastRequest wrong: %s", provider.LastRequest().Model)
		}
		if requests := provider.Requests(); len(requests) != 2 || requests[0].Model != "a" {
			t.Errorf("Requests wrong: %+v", requests)
		}
	})

	t.Run("callback", func(t *testing.T) {
		provider := NewMockProviderWithCallback(func(_ context.Context, req *ChatRequest) (*Envelope, error) {
			if req.Model == "bad" {
				return nil, fmt.Errorf("no such model")
			}
			return &Envelope{Role: RoleAssistant, Content: req.Model}, nil
		})

		envelope, err := provider.Call(context.Background(), &ChatRequest{Model: "good"})
		if err != nil {
			t.Fatalf("Callback call failed: %v", err)
		}
		if envelope.Content != "good" {
			t.Errorf("Unexpected content: %q", envelope.Content)
		}

		if _, err := provider.Call(context.Background(), &ChatRequest{Model: "bad"}); err == nil {
			t.Error("Expected callback error")
		}
	})
}
