package marvin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zoobzio/capitan"
)

// applicationSystem is the system fragment template for applications.
// The state document is re-rendered on every turn so the model always sees
// its latest edits.
const applicationSystem = `You are {name}: {description}

You maintain a state document describing everything you need to remember
between turns. Keep it up to date with the update_state tool whenever the
conversation changes it. Current state:

{state}

Respond to the user conversationally. Use tools when they help; reply with
plain text when you are done.`

// updateStateArgs are the arguments of the built-in update_state tool.
type updateStateArgs struct {
	Path  string          `json:"path" jsonschema_description:"Dot-notation path into the state document, e.g. tasks.0.done."`
	Value json.RawMessage `json:"value" jsonschema_description:"JSON value to write at the path."`
}

// Application is a stateful conversational app: a session, a JSON state
// document, and a tool registry driven by the executor loop. Each Say turn
// renders the system fragment with the current state, runs the loop, and
// appends the resulting transcript to the session.
type Application struct {
	name        string
	description string
	seq         Sequence
	session     *Session
	state       *State
	registry    *Registry
	executor    *Executor
	invoker     *Invoker
}

// AppOption configures an Application at construction time.
type AppOption func(*appConfig)

type appConfig struct {
	tools         []Tool
	initialState  any
	session       *Session
	maxIterations int
	invokerOpts   []Option
	frozen        ChatRequest
}

// WithTools registers tools the model may call during a turn.
func WithTools(tools ...Tool) AppOption {
	return func(cfg *appConfig) {
		cfg.tools = append(cfg.tools, tools...)
	}
}

// WithState sets the initial state document.
func WithState(initial any) AppOption {
	return func(cfg *appConfig) {
		cfg.initialState = initial
	}
}

// WithSession attaches an existing session instead of starting a fresh one.
func WithSession(session *Session) AppOption {
	return func(cfg *appConfig) {
		cfg.session = session
	}
}

// WithMaxIterations bounds the tool-dispatch loop per turn.
func WithMaxIterations(n int) AppOption {
	return func(cfg *appConfig) {
		cfg.maxIterations = n
	}
}

// WithInvokerOptions adds reliability options to the provider pipeline.
func WithInvokerOptions(opts ...Option) AppOption {
	return func(cfg *appConfig) {
		cfg.invokerOpts = append(cfg.invokerOpts, opts...)
	}
}

// WithFrozenRequest sets frozen request defaults (model, temperature, token
// cap) merged into every provider call.
func WithFrozenRequest(frozen ChatRequest) AppOption {
	return func(cfg *appConfig) {
		cfg.frozen = frozen
	}
}

// NewApplication creates a stateful conversational application.
//
// Example:
//
//	app, err := marvin.NewApplication("todo", "A todo list manager.", provider,
//	    marvin.WithState(map[string]any{"tasks": []any{}}),
//	    marvin.WithTools(remindTool),
//	)
//	result, err := app.Say(ctx, "remind me to buy milk tomorrow")
func NewApplication(name, description string, provider Provider, opts ...AppOption) (*Application, error) {
	if name == "" {
		return nil, fmt.Errorf("application: name required")
	}

	cfg := appConfig{maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&cfg)
	}

	state, err := NewState(cfg.initialState)
	if err != nil {
		return nil, fmt.Errorf("application %s: %w", name, err)
	}

	tools := append([]Tool{updateStateTool(state)}, cfg.tools...)
	registry, err := NewRegistry(tools...)
	if err != nil {
		return nil, fmt.Errorf("application %s: %w", name, err)
	}

	session := cfg.session
	if session == nil {
		session = NewSession()
	}

	if cfg.frozen.Temperature == 0 {
		cfg.frozen.Temperature = DefaultTemperatureCreative
	}
	invoker := NewInvoker(provider, cfg.frozen, cfg.invokerOpts...)

	return &Application{
		name:        name,
		description: description,
		seq: NewSequence(
			System(applicationSystem),
			User("{input}"),
		),
		session:  session,
		state:    state,
		registry: registry,
		executor: NewExecutor(invoker, registry, cfg.maxIterations),
		invoker:  invoker,
	}, nil
}

// updateStateTool builds the built-in state-editing tool bound to a state
// document.
func updateStateTool(state *State) Tool {
	return NewTool("update_state",
		"Write a JSON value at a dot-notation path in the state document.",
		func(_ context.Context, args updateStateArgs) (string, error) {
			if args.Path == "" {
				return "", fmt.Errorf("path required")
			}
			if err := state.SetRaw(args.Path, args.Value); err != nil {
				return "", err
			}
			return "state updated", nil
		})
}

// Session returns the application's conversation session.
func (a *Application) Session() *Session {
	return a.session
}

// State returns the application's state document.
func (a *Application) State() *State {
	return a.state
}

// Registry returns the application's tool registry. Additional tools may be
// registered between turns.
func (a *Application) Registry() *Registry {
	return a.registry
}

// Say runs one conversational turn: the system fragment is rendered with the
// current state, session history is spliced in, and the executor loop drives
// tool dispatch until the model replies with plain content or the iteration
// budget runs out.
//
// The session is updated with the turn's transcript, including tool traffic,
// even when the result is incomplete; check RunResult.Incomplete before
// trusting Final.
func (a *Application) Say(ctx context.Context, input string) (*RunResult, error) {
	rendered, err := a.seq.Render(map[string]string{
		"name":        a.name,
		"description": a.description,
		"state":       a.state.Document(),
		"input":       input,
	})
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}

	messages := spliceHistory(rendered, a.session)

	capitan.Info(ctx, RequestStarted,
		CapabilityKey.Field("application"),
		ProviderKey.Field(a.invoker.ProviderName()),
		InputKey.Field(input),
	)

	result, err := a.executor.Run(ctx, messages)
	if err != nil {
		capitan.Error(ctx, RequestFailed,
			CapabilityKey.Field("application"),
			ProviderKey.Field(a.invoker.ProviderName()),
			ErrorKey.Field(err.Error()),
		)
		return nil, err
	}

	// Append the turn's new messages: the rendered user input and everything
	// the loop produced after it.
	start := len(messages) - 1
	for _, m := range result.Messages[start:] {
		a.session.AppendMessage(m)
	}
	if result.Final != nil {
		a.session.SetUsage(&result.Final.Usage)
	}

	capitan.Info(ctx, RequestCompleted,
		CapabilityKey.Field("application"),
		ProviderKey.Field(a.invoker.ProviderName()),
		InputKey.Field(input),
		OutputKey.Field(finalContent(result)),
	)

	return result, nil
}

// finalContent extracts the terminal reply text, empty for incomplete runs.
func finalContent(result *RunResult) string {
	if result.Final == nil {
		return ""
	}
	return result.Final.Content
}
