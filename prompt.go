package marvin

import (
	"fmt"
	"sort"
	"strings"
)

// TaskPrompt is the canonical structured body for capability prompts.
// It enforces a consistent section ordering across all capability types; the
// rendered text becomes the content of a user fragment.
type TaskPrompt struct {
	Task        string              // Required: what the model should do
	Input       string              // The main content to process
	Context     string              // Optional: additional context
	Choices     []string            // For classifiers: the closed option set
	Arguments   string              // For functions: JSON-encoded argument values
	Examples    map[string][]string // Label->examples
	Schema      string              // Required: JSON schema for the response
	Constraints []string            // Rules and constraints
}

// Render converts the structured prompt to a string for the model.
func (p *TaskPrompt) Render() string {
	var sections []string

	// Task is always first
	if p.Task != "" {
		sections = append(sections, "Task: "+p.Task)
	}

	// Input is always second
	if p.Input != "" {
		sections = append(sections, "Input: "+p.Input)
	}

	// Optional context
	if p.Context != "" {
		sections = append(sections, "Context: "+p.Context)
	}

	// Choices (for classification); numbering is 1-based and referenced by
	// the index response schema.
	if len(p.Choices) > 0 {
		choices := "Choices:\n"
		for i, c := range p.Choices {
			choices += fmt.Sprintf("  %d. %s\n", i+1, c)
		}
		sections = append(sections, strings.TrimSpace(choices))
	}

	// Argument values (for function inference)
	if p.Arguments != "" {
		sections = append(sections, "Arguments:\n"+p.Arguments)
	}

	// Examples (if provided); labels sorted so the rendered prompt is stable
	// across calls.
	if len(p.Examples) > 0 {
		labels := make([]string, 0, len(p.Examples))
		for label := range p.Examples {
			labels = append(labels, label)
		}
		sort.Strings(labels)

		examples := "Examples:\n"
		for _, label := range labels {
			exs := p.Examples[label]
			if len(exs) > 0 {
				examples += fmt.Sprintf("  %s:\n", label)
				for _, ex := range exs {
					examples += fmt.Sprintf("    - %s\n", ex)
				}
			}
		}
		sections = append(sections, strings.TrimSpace(examples))
	}

	// Schema - always required
	if p.Schema != "" {
		sections = append(sections, "Return JSON:\n"+p.Schema)
	}

	// Constraints - always last
	if len(p.Constraints) > 0 {
		con := "Constraints:\n"
		for _, c := range p.Constraints {
			con += "- " + c + "\n"
		}
		sections = append(sections, strings.TrimSpace(con))
	}

	return strings.Join(sections, "\n\n")
}

// Validate checks if the prompt has required fields.
func (p *TaskPrompt) Validate() error {
	if p.Task == "" {
		return fmt.Errorf("prompt missing required Task field")
	}
	if p.Input == "" && p.Arguments == "" {
		return fmt.Errorf("prompt missing required Input or Arguments field")
	}
	if p.Schema == "" {
		return fmt.Errorf("prompt missing required Schema field")
	}
	return nil
}
