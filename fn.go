package marvin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zoobzio/pipz"
)

// funcSystem is the system fragment template shared by all inferred functions.
const funcSystem = "You predict the return value of a function from its " +
	"specification. The function is never actually executed: given its " +
	"description, parameter schema, and argument values, respond with only " +
	"the JSON-encoded return value.{instructions}"

// FuncInput contains rich input structure for function inference.
type FuncInput struct {
	Context      string  // Additional context
	Instructions string  // Free-form steering instructions
	Temperature  float32 // Temperature setting for this specific request
}

// Func is a specification-only function: a name, a description, a typed
// argument struct A, and a return type T. Calling it runs model inference in
// place of a body.
type Func[A, T any] struct {
	name        string
	description string
	paramsJSON  string
	returnsJSON string
	seq         Sequence
	defaults    FuncInput
	service     *Service[T]
}

// NewFunc creates an inferred function bound to a provider. The description
// plays the role of a docstring: it is the entire specification of the
// behavior.
//
// Example:
//
//	type SentenceArgs struct {
//	    Words []string `json:"words"`
//	}
//	order, err := marvin.NewFunc[SentenceArgs, []string](
//	    "sort_by_length", "Sort the words by length, shortest first.", provider)
//	sorted, err := order.Call(ctx, SentenceArgs{Words: words})
func NewFunc[A, T any](name, description string, provider Provider, opts ...Option) (*Func[A, T], error) {
	if name == "" {
		return nil, fmt.Errorf("func: name required")
	}
	if description == "" {
		return nil, fmt.Errorf("func %s: description required", name)
	}

	paramsJSON, err := marshalSchema(GenerateSchema[A]())
	if err != nil {
		return nil, fmt.Errorf("func %s: parameters: %w", name, err)
	}
	returnsJSON, err := marshalSchema(GenerateSchema[T]())
	if err != nil {
		return nil, fmt.Errorf("func %s: returns: %w", name, err)
	}

	invoker := NewInvoker(provider, ChatRequest{}, opts...)

	return &Func[A, T]{
		name:        name,
		description: description,
		paramsJSON:  paramsJSON,
		returnsJSON: returnsJSON,
		seq: NewSequence(
			System(funcSystem).WithDefaults(map[string]string{"instructions": ""}),
			User("{task}"),
		),
		service: NewService[T](invoker, "func", DefaultTemperatureDeterministic),
	}, nil
}

// GetPipeline returns the internal pipeline for composition.
// Implements PipelineProvider.
func (f *Func[A, T]) GetPipeline() pipz.Chainable[*CallRequest] {
	return f.service.GetPipeline()
}

// Name returns the function name.
func (f *Func[A, T]) Name() string {
	return f.name
}

// Description returns the function specification text.
func (f *Func[A, T]) Description() string {
	return f.description
}

// WithDefaults sets default input values merged with user input at
// execution time.
func (f *Func[A, T]) WithDefaults(defaults FuncInput) *Func[A, T] {
	f.defaults = defaults
	return f
}

// Call infers the function's return value for the given arguments.
func (f *Func[A, T]) Call(ctx context.Context, args A) (T, error) {
	return f.CallWithInput(ctx, args, FuncInput{})
}

// CallWithInput infers the return value with rich input structure.
func (f *Func[A, T]) CallWithInput(ctx context.Context, args A, input FuncInput) (T, error) {
	var zero T

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return zero, fmt.Errorf("func %s: encode arguments: %w", f.name, err)
	}

	merged := f.mergeInputs(input)
	prompt := f.buildPrompt(merged, string(argsJSON))

	vars := map[string]string{"task": prompt.Render()}
	if merged.Instructions != "" {
		vars["instructions"] = "\n\nInstructions: " + merged.Instructions
	}

	return f.service.Execute(ctx, nil, f.seq, vars, merged.Temperature)
}

// AsTool exposes the inferred function to an executor loop. The tool's
// handler runs the inference and returns the JSON-encoded result.
func (f *Func[A, T]) AsTool() Tool {
	return Tool{
		Name:        f.name,
		Description: f.description,
		Parameters:  GenerateSchema[A](),
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args A
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("decode %s arguments: %w", f.name, err)
				}
			}
			result, err := f.Call(ctx, args)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(result)
			if err != nil {
				return "", fmt.Errorf("encode %s result: %w", f.name, err)
			}
			return string(out), nil
		},
	}
}

// mergeInputs combines defaults with user input.
func (f *Func[A, T]) mergeInputs(input FuncInput) FuncInput {
	merged := f.defaults

	if input.Context != "" {
		merged.Context = input.Context
	}
	if input.Instructions != "" {
		merged.Instructions = input.Instructions
	}
	if input.Temperature != 0 && input.Temperature != TemperatureUnset {
		merged.Temperature = input.Temperature
	}

	return merged
}

// buildPrompt constructs the task prompt for one call.
func (f *Func[A, T]) buildPrompt(input FuncInput, argsJSON string) *TaskPrompt {
	return &TaskPrompt{
		Task: fmt.Sprintf("Predict the return value of %s: %s\n\nParameters:\n%s",
			f.name, f.description, f.paramsJSON),
		Context:   input.Context,
		Arguments: argsJSON,
		Schema:    f.returnsJSON,
		Constraints: []string{
			"respond with the return value only",
			"match the return value schema exactly",
			"never explain or apologize",
		},
	}
}

// marshalSchema renders a derived JSON Schema for embedding in a prompt.
func marshalSchema(schema any) (string, error) {
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
