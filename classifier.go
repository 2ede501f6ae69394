package marvin

import (
	"context"
	"fmt"

	"github.com/zoobzio/pipz"
)

// classifierSystem is the system fragment template shared by all classifiers.
const classifierSystem = "You are a precise classifier. Select the single best " +
	"option from the numbered choices and respond with JSON matching the " +
	"requested schema, nothing else.{instructions}"

// Choice is one labeled option in a classifier's closed set. The label is
// shown to the model; the value is returned to the caller when the label is
// selected.
type Choice[T any] struct {
	Label string
	Value T
}

// ClassifierInput contains rich input structure for classification.
type ClassifierInput struct {
	Subject      string              // The main item being classified
	Context      string              // Background information
	Instructions string              // Free-form steering instructions
	Examples     map[string][]string // Label->examples
	Temperature  float32             // Temperature setting for this specific request
}

// ChoiceResponse is the enumeration-fallback response: the model names the
// 1-based index of the selected choice.
type ChoiceResponse struct {
	Index      int      `json:"index"`      // 1-based index into the choice list
	Confidence float64  `json:"confidence"` // Confidence in the selection
	Reasoning  []string `json:"reasoning"`  // Explanation of the selection
}

// Validate checks if the response is valid.
func (r ChoiceResponse) Validate() error {
	if r.Index < 1 {
		return fmt.Errorf("index must be 1-based, got %d", r.Index)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be 0-1, got %f", r.Confidence)
	}
	if len(r.Reasoning) == 0 {
		return fmt.Errorf("reasoning required but empty")
	}
	return nil
}

// Classifier selects one choice from a closed set for each input.
//
// When the provider implements ConstrainedChooser the selection is delegated
// to it (logit biasing, grammar-constrained decoding); otherwise the
// classifier falls back to explicit enumeration: choices are numbered in the
// prompt and the returned index is validated against the set.
type Classifier[T any] struct {
	question string
	choices  []Choice[T]
	labels   []string
	schema   string
	seq      Sequence
	defaults ClassifierInput
	service  *Service[ChoiceResponse]
	chooser  ConstrainedChooser
}

// NewClassifier creates a classifier bound to a provider.
//
// Example:
//
//	clf, err := marvin.NewClassifier("What type of error is this?",
//	    []marvin.Choice[string]{
//	        {Label: "network", Value: "network"},
//	        {Label: "database", Value: "database"},
//	        {Label: "auth", Value: "auth"},
//	    }, provider, marvin.WithTimeout(10*time.Second))
//	kind, err := clf.Classify(ctx, "Connection refused on port 5432")
func NewClassifier[T any](question string, choices []Choice[T], provider Provider, opts ...Option) (*Classifier[T], error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("classifier: at least one choice required")
	}

	schema, err := generateJSONSchema[ChoiceResponse]()
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	labels := make([]string, len(choices))
	for i, c := range choices {
		labels[i] = c.Label
	}

	invoker := NewInvoker(provider, ChatRequest{}, opts...)
	chooser, _ := provider.(ConstrainedChooser)

	return &Classifier[T]{
		question: question,
		choices:  choices,
		labels:   labels,
		schema:   schema,
		seq: NewSequence(
			System(classifierSystem).WithDefaults(map[string]string{"instructions": ""}),
			User("{task}"),
		),
		service: NewService[ChoiceResponse](invoker, "classifier", DefaultTemperatureAnalytical),
		chooser: chooser,
	}, nil
}

// GetPipeline returns the internal pipeline for composition.
// Implements PipelineProvider.
func (c *Classifier[T]) GetPipeline() pipz.Chainable[*CallRequest] {
	return c.service.GetPipeline()
}

// WithDefaults sets default input values merged with user input at
// execution time.
func (c *Classifier[T]) WithDefaults(defaults ClassifierInput) *Classifier[T] {
	c.defaults = defaults
	return c
}

// Classify selects the best choice for a simple string input and returns its
// value.
func (c *Classifier[T]) Classify(ctx context.Context, input string) (T, error) {
	return c.ClassifyWithInput(ctx, ClassifierInput{Subject: input})
}

// ClassifyWithInput selects the best choice with rich input structure.
func (c *Classifier[T]) ClassifyWithInput(ctx context.Context, input ClassifierInput) (T, error) {
	var zero T

	merged := c.mergeInputs(input)
	prompt := c.buildPrompt(merged)

	vars := map[string]string{"task": prompt.Render()}
	if merged.Instructions != "" {
		vars["instructions"] = "\n\nInstructions: " + merged.Instructions
	}

	if c.chooser != nil {
		index, err := c.choose(ctx, vars)
		if err != nil {
			return zero, err
		}
		return c.choices[index].Value, nil
	}

	response, err := c.service.Execute(ctx, nil, c.seq, vars, merged.Temperature)
	if err != nil {
		return zero, err
	}
	if response.Index > len(c.choices) {
		return zero, fmt.Errorf("invalid response: index %d out of range (%d choices)",
			response.Index, len(c.choices))
	}

	return c.choices[response.Index-1].Value, nil
}

// Map classifies each input in order. Inputs are processed sequentially;
// the first error aborts the remainder.
func (c *Classifier[T]) Map(ctx context.Context, inputs []string) ([]T, error) {
	return c.MapWithInput(ctx, inputs, ClassifierInput{})
}

// MapWithInput classifies each input in order with shared rich input
// structure (context, instructions, examples, temperature). The Subject
// field is replaced by each element in turn.
func (c *Classifier[T]) MapWithInput(ctx context.Context, inputs []string, input ClassifierInput) ([]T, error) {
	out := make([]T, 0, len(inputs))
	for _, subject := range inputs {
		input.Subject = subject
		v, err := c.ClassifyWithInput(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("classify %q: %w", subject, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// choose delegates selection to the provider's constrained-choice capability.
func (c *Classifier[T]) choose(ctx context.Context, vars map[string]string) (int, error) {
	messages, err := c.seq.Render(vars)
	if err != nil {
		return 0, fmt.Errorf("render prompt: %w", err)
	}

	index, err := c.chooser.Choose(ctx, &ChatRequest{
		Temperature: TemperatureZero,
		Messages:    messages,
	}, c.labels)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(c.choices) {
		return 0, fmt.Errorf("invalid response: chooser index %d out of range (%d choices)",
			index, len(c.choices))
	}
	return index, nil
}

// mergeInputs combines defaults with user input.
func (c *Classifier[T]) mergeInputs(input ClassifierInput) ClassifierInput {
	merged := c.defaults

	if input.Subject != "" {
		merged.Subject = input.Subject
	}
	if input.Context != "" {
		merged.Context = input.Context
	}
	if input.Instructions != "" {
		merged.Instructions = input.Instructions
	}
	if len(input.Examples) > 0 {
		combined := make(map[string][]string, len(merged.Examples)+len(input.Examples))
		for label, exs := range merged.Examples {
			combined[label] = exs
		}
		for label, exs := range input.Examples {
			combined[label] = append(combined[label], exs...)
		}
		merged.Examples = combined
	}
	if input.Temperature != 0 && input.Temperature != TemperatureUnset {
		merged.Temperature = input.Temperature
	}

	return merged
}

// buildPrompt constructs the task prompt from the merged input.
func (c *Classifier[T]) buildPrompt(input ClassifierInput) *TaskPrompt {
	return &TaskPrompt{
		Task:     c.question,
		Input:    input.Subject,
		Context:  input.Context,
		Choices:  c.labels,
		Examples: input.Examples,
		Schema:   c.schema,
		Constraints: []string{
			"index: required, 1-based position in the choices list",
			"confidence: 0.0 to 1.0",
			"reasoning: ordered steps explaining the selection",
		},
	}
}
