package marvin

import (
	"context"
	"fmt"

	"github.com/zoobzio/pipz"
)

// extractorSystem is the system fragment template shared by all extractors.
const extractorSystem = "You extract structured data from unstructured text. " +
	"Respond with a single JSON object matching the requested schema and nothing else. " +
	"Use null for values the text does not provide.{instructions}"

// ExtractorInput contains rich input structure for extraction.
type ExtractorInput struct {
	Text         string   // The text to extract from
	Context      string   // Additional context
	Instructions string   // Free-form steering instructions
	Examples     []string // Example extractions
	Temperature  float32  // Temperature setting for this specific request
}

// Extractor pulls structured data of type T out of unstructured text.
// Construct one with NewExtractor and reuse it across calls; extractors are
// stateless and safe for concurrent use.
type Extractor[T any] struct {
	what     string
	schema   string // Pre-computed JSON schema
	seq      Sequence
	defaults ExtractorInput
	service  *Service[T]
}

// NewExtractor creates an extractor bound to a provider. The type parameter T
// defines the structure to extract; "what" names it for the model.
// Returns an error if the JSON schema cannot be generated.
//
// Example:
//
//	type Contact struct {
//	    Name  string `json:"name"`
//	    Email string `json:"email"`
//	}
//
//	ex, err := marvin.NewExtractor[Contact]("contact information", provider)
//	contact, err := ex.Extract(ctx, "John Doe can be reached at john@example.com")
func NewExtractor[T any](what string, provider Provider, opts ...Option) (*Extractor[T], error) {
	schema, err := generateJSONSchema[T]()
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}

	invoker := NewInvoker(provider, ChatRequest{}, opts...)

	return &Extractor[T]{
		what:   what,
		schema: schema,
		seq: NewSequence(
			System(extractorSystem).WithDefaults(map[string]string{"instructions": ""}),
			User("{task}"),
		),
		service: NewService[T](invoker, "extractor", DefaultTemperatureDeterministic),
	}, nil
}

// GetPipeline returns the internal pipeline for composition.
// Implements PipelineProvider.
func (e *Extractor[T]) GetPipeline() pipz.Chainable[*CallRequest] {
	return e.service.GetPipeline()
}

// WithDefaults sets default input values merged with user input at
// execution time.
func (e *Extractor[T]) WithDefaults(defaults ExtractorInput) *Extractor[T] {
	e.defaults = defaults
	return e
}

// Extract runs the extraction against text.
func (e *Extractor[T]) Extract(ctx context.Context, text string) (T, error) {
	return e.ExtractWithInput(ctx, ExtractorInput{Text: text})
}

// ExtractWithInput runs the extraction with rich input structure.
func (e *Extractor[T]) ExtractWithInput(ctx context.Context, input ExtractorInput) (T, error) {
	merged := e.mergeInputs(input)
	prompt := e.buildPrompt(merged)

	vars := map[string]string{"task": prompt.Render()}
	if merged.Instructions != "" {
		vars["instructions"] = "\n\nInstructions: " + merged.Instructions
	}

	return e.service.Execute(ctx, nil, e.seq, vars, merged.Temperature)
}

// mergeInputs combines defaults with user input.
func (e *Extractor[T]) mergeInputs(input ExtractorInput) ExtractorInput {
	merged := e.defaults

	if input.Text != "" {
		merged.Text = input.Text
	}
	if input.Context != "" {
		merged.Context = input.Context
	}
	if input.Instructions != "" {
		merged.Instructions = input.Instructions
	}
	if len(input.Examples) > 0 {
		combined := make([]string, 0, len(merged.Examples)+len(input.Examples))
		combined = append(combined, merged.Examples...)
		combined = append(combined, input.Examples...)
		merged.Examples = combined
	}
	if input.Temperature != 0 && input.Temperature != TemperatureUnset {
		merged.Temperature = input.Temperature
	}

	return merged
}

// buildPrompt constructs the task prompt from the merged input.
func (e *Extractor[T]) buildPrompt(input ExtractorInput) *TaskPrompt {
	prompt := &TaskPrompt{
		Task:    fmt.Sprintf("Extract %s", e.what),
		Input:   input.Text,
		Context: input.Context,
		Schema:  e.schema,
	}

	if len(input.Examples) > 0 {
		prompt.Examples = map[string][]string{
			"examples": input.Examples,
		}
	}

	prompt.Constraints = []string{
		fmt.Sprintf("extract only %s", e.what),
		"use null for missing values",
		"match exact JSON structure",
	}

	return prompt
}
