package marvin

// ChatRequest is the payload of one provider call. The same type serves as a
// frozen configuration: an Invoker is constructed with a frozen request whose
// values act as defaults for every call.
type ChatRequest struct {
	Model       string    // Model identifier, provider default when empty
	Temperature float32   // Sampling temperature; zero and TemperatureUnset mean unset
	MaxTokens   int       // Completion token cap, provider default when zero
	Messages    []Message // Conversation in chronological order
	Tools       []Tool    // Tool descriptors exposed to the model
	ToolChoice  string    // "", "auto", "none", or a tool name to force
}

// Merge combines the frozen request with a per-call request and returns the
// request to send. Messages and Tools concatenate, frozen values first. All
// other keys are override-only: a set per-call value wins, an unset one falls
// back to the frozen default. Neither input is mutated.
func (c ChatRequest) Merge(call ChatRequest) ChatRequest {
	out := ChatRequest{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		ToolChoice:  c.ToolChoice,
	}

	if call.Model != "" {
		out.Model = call.Model
	}
	if call.Temperature != 0 && call.Temperature != TemperatureUnset {
		out.Temperature = call.Temperature
	}
	if call.MaxTokens != 0 {
		out.MaxTokens = call.MaxTokens
	}
	if call.ToolChoice != "" {
		out.ToolChoice = call.ToolChoice
	}

	out.Messages = make([]Message, 0, len(c.Messages)+len(call.Messages))
	out.Messages = append(out.Messages, c.Messages...)
	out.Messages = append(out.Messages, call.Messages...)

	if n := len(c.Tools) + len(call.Tools); n > 0 {
		out.Tools = make([]Tool, 0, n)
		out.Tools = append(out.Tools, c.Tools...)
		out.Tools = append(out.Tools, call.Tools...)
	}

	return out
}
