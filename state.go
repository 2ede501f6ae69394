package marvin

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// State is a mutex-guarded JSON document holding an application's structured
// state. The model edits it through the built-in update_state tool using
// dot-notation paths (e.g. "tasks.0.done"); the current document is rendered
// into the system prompt on every turn.
//
// States are safe for concurrent use by multiple goroutines.
type State struct {
	mu  sync.RWMutex
	doc string
}

// NewState creates a state initialized from the given value.
// A nil initial value produces an empty document.
func NewState(initial any) (*State, error) {
	if initial == nil {
		return &State{doc: "{}"}, nil
	}

	raw, err := json.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("encode initial state: %w", err)
	}
	return &State{doc: string(raw)}, nil
}

// Document returns the current JSON document.
func (s *State) Document() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Get returns the value at a dot-notation path.
func (s *State) Get(path string) gjson.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gjson.Get(s.doc, path)
}

// Set writes a Go value at a dot-notation path, creating intermediate
// objects as needed.
func (s *State) Set(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.Set(s.doc, path, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	s.doc = doc
	return nil
}

// SetRaw writes pre-encoded JSON at a dot-notation path.
func (s *State) SetRaw(path string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.SetRaw(s.doc, path, string(raw))
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	s.doc = doc
	return nil
}

// Delete removes the value at a dot-notation path.
func (s *State) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := sjson.Delete(s.doc, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	s.doc = doc
	return nil
}

// Unmarshal decodes the entire document into v.
func (s *State) Unmarshal(v any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Unmarshal([]byte(s.doc), v)
}
