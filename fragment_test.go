package marvin

import (
	"errors"
	"strings"
	"testing"
)

func TestFragmentConstructors(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		f := System("be helpful")
		if f.Role != RoleSystem {
			t.Errorf("Expected role %s, got %s", RoleSystem, f.Role)
		}
		if f.Template != "be helpful" {
			t.Errorf("Unexpected template: %s", f.Template)
		}
	})

	t.Run("roles", func(t *testing.T) {
		if User("u").Role != RoleUser {
			t.Error("User fragment has wrong role")
		}
		if Assistant("a").Role != RoleAssistant {
			t.Error("Assistant fragment has wrong role")
		}
	})
}

func TestFragmentWithDefaults(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		f := User("hello {name}").WithDefaults(map[string]string{"name": "world"})

		defaults := f.Defaults()
		if defaults["name"] != "world" {
			t.Errorf("Expected default name=world, got %q", defaults["name"])
		}
	})

	t.Run("derived copy", func(t *testing.T) {
		base := User("hello {name}")
		derived := base.WithDefaults(map[string]string{"name": "world"})

		if len(base.Defaults()) != 0 {
			t.Error("WithDefaults mutated the receiver")
		}
		if len(derived.Defaults()) != 1 {
			t.Error("Derived fragment missing defaults")
		}
	})

	t.Run("layering", func(t *testing.T) {
		f := User("{a} {b}").
			WithDefaults(map[string]string{"a": "1", "b": "2"}).
			WithDefaults(map[string]string{"b": "3"})

		defaults := f.Defaults()
		if defaults["a"] != "1" || defaults["b"] != "3" {
			t.Errorf("Unexpected layered defaults: %v", defaults)
		}
	})
}

func TestSequenceRender(t *testing.T) {
	t.Run("simple", func(t *testing.T) {
		seq := NewSequence(
			System("You are {persona}."),
			User("{question}"),
		)

		messages, err := seq.Render(map[string]string{
			"persona":  "a pirate",
			"question": "Where is the treasure?",
		})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}

		if len(messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(messages))
		}
		if messages[0].Role != RoleSystem || messages[0].Content != "You are a pirate." {
			t.Errorf("Unexpected first message: %+v", messages[0])
		}
		if messages[1].Role != RoleUser || messages[1].Content != "Where is the treasure?" {
			t.Errorf("Unexpected second message: %+v", messages[1])
		}
	})

	t.Run("variables override defaults", func(t *testing.T) {
		seq := NewSequence(
			User("hello {name}").WithDefaults(map[string]string{"name": "default"}),
		)

		messages, err := seq.Render(map[string]string{"name": "override"})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if messages[0].Content != "hello override" {
			t.Errorf("Expected override to win, got %q", messages[0].Content)
		}

		messages, err = seq.Render(nil)
		if err != nil {
			t.Fatalf("Render with defaults failed: %v", err)
		}
		if messages[0].Content != "hello default" {
			t.Errorf("Expected default, got %q", messages[0].Content)
		}
	})

	t.Run("missing variable", func(t *testing.T) {
		seq := NewSequence(
			System("stable"),
			User("hello {name}"),
		)

		_, err := seq.Render(nil)
		if err == nil {
			t.Fatal("Expected error for missing variable")
		}

		var missing *MissingVariableError
		if !errors.As(err, &missing) {
			t.Fatalf("Expected MissingVariableError, got %T", err)
		}
		if missing.Name != "name" {
			t.Errorf("Expected variable 'name', got %q", missing.Name)
		}
		if missing.Fragment != 1 {
			t.Errorf("Expected fragment index 1, got %d", missing.Fragment)
		}
	})

	t.Run("repeatable", func(t *testing.T) {
		seq := NewSequence(User("{a}-{a}-{b}"))
		vars := map[string]string{"a": "x", "b": "y"}

		first, err := seq.Render(vars)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		second, err := seq.Render(vars)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if first[0].Content != second[0].Content {
			t.Error("Render is not repeatable")
		}
		if first[0].Content != "x-x-y" {
			t.Errorf("Unexpected render: %q", first[0].Content)
		}
	})
}

func TestFragmentEscapes(t *testing.T) {
	t.Run("literal braces", func(t *testing.T) {
		seq := NewSequence(User("return {{json}} with {value}"))

		messages, err := seq.Render(map[string]string{"value": "42"})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if messages[0].Content != "return {json} with 42" {
			t.Errorf("Unexpected escape handling: %q", messages[0].Content)
		}
	})

	t.Run("values are not re-scanned", func(t *testing.T) {
		seq := NewSequence(User("{text}"))

		messages, err := seq.Render(map[string]string{"text": "braces {inside} stay"})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if messages[0].Content != "braces {inside} stay" {
			t.Errorf("Substituted value was re-scanned: %q", messages[0].Content)
		}
	})

	t.Run("malformed placeholder is literal", func(t *testing.T) {
		seq := NewSequence(User("a { b } c {1x}"))

		messages, err := seq.Render(nil)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		if messages[0].Content != "a { b } c {1x}" {
			t.Errorf("Malformed placeholders altered: %q", messages[0].Content)
		}
	})
}

func TestSequenceJoin(t *testing.T) {
	t.Run("order", func(t *testing.T) {
		a := NewSequence(System("s"))
		b := NewSequence(User("u"), Assistant("a"))

		joined := a.Join(b)
		if joined.Len() != 3 {
			t.Fatalf("Expected 3 fragments, got %d", joined.Len())
		}

		fragments := joined.Fragments()
		if fragments[0].Role != RoleSystem || fragments[1].Role != RoleUser || fragments[2].Role != RoleAssistant {
			t.Error("Join did not preserve order")
		}
	})

	t.Run("associative", func(t *testing.T) {
		a := NewSequence(System("1"))
		b := NewSequence(User("2"))
		c := NewSequence(User("3"))

		left, err := a.Join(b).Join(c).Render(nil)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		right, err := a.Join(b.Join(c)).Render(nil)
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}

		if len(left) != len(right) {
			t.Fatal("Associativity broken: different lengths")
		}
		for i := range left {
			if left[i] != right[i] {
				t.Errorf("Associativity broken at %d: %+v vs %+v", i, left[i], right[i])
			}
		}
	})

	t.Run("receivers unchanged", func(t *testing.T) {
		a := NewSequence(System("s"))
		b := NewSequence(User("u"))

		_ = a.Join(b)
		_ = a.Append(Assistant("x"))

		if a.Len() != 1 || b.Len() != 1 {
			t.Error("Join or Append mutated a receiver")
		}
	})
}

func TestSequenceRenderLongTemplate(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString("chunk {v} ")
	}
	seq := NewSequence(User(sb.String()))

	messages, err := seq.Render(map[string]string{"v": "x"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Count(messages[0].Content, "chunk x") != 100 {
		t.Error("Not every placeholder was substituted")
	}
}
