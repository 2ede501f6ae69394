package marvin

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Session manages conversation state across multiple capability calls.
// It stores message history, including tool-call metadata, and enables
// multi-turn conversations.
//
// Sessions are safe for concurrent use by multiple goroutines.
type Session struct {
	id        string
	messages  []Message
	lastUsage *TokenUsage
	mu        sync.RWMutex
}

// NewSession creates a new conversation session with a unique ID.
// Each session maintains its own message history independent of other
// sessions.
func NewSession() *Session {
	return &Session{
		id:       uuid.New().String(),
		messages: make([]Message, 0),
	}
}

// ID returns the unique identifier for this session.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Messages returns a copy of all messages in the session.
// The returned slice is safe to modify without affecting the session.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]Message, len(s.messages))
	copy(messages, s.messages)
	return messages
}

// Append adds a plain message to the session.
func (s *Session) Append(role, content string) {
	s.AppendMessage(Message{Role: role, Content: content})
}

// AppendMessage adds a full message to the session, preserving tool-call
// metadata. This is typically called internally by capabilities after
// successful calls, but can be used directly for manual session management.
func (s *Session) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Clear removes all messages from the session.
// Use this to start a fresh conversation in the same session.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]Message, 0)
}

// Prune removes the last n message pairs (user + assistant) from the session.
// Each pair consists of 2 messages, so n=1 removes 2 messages.
// If n would remove more messages than exist, all messages are removed.
func (s *Session) Prune(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 {
		return fmt.Errorf("prune count must be non-negative, got %d", n)
	}

	messagesToRemove := n * 2
	if messagesToRemove >= len(s.messages) {
		s.messages = make([]Message, 0)
		return nil
	}

	s.messages = s.messages[:len(s.messages)-messagesToRemove]
	return nil
}

// Len returns the number of messages in the session.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastUsage returns the token usage from the most recent provider call.
// Returns nil if no calls have been made yet.
func (s *Session) LastUsage() *TokenUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastUsage == nil {
		return nil
	}
	usage := *s.lastUsage
	return &usage
}

// SetUsage updates the session's last usage statistics.
func (s *Session) SetUsage(usage *TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if usage != nil {
		u := *usage
		s.lastUsage = &u
	}
}

// At returns the message at the given index.
// Returns an error if the index is out of bounds.
func (s *Session) At(index int) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.messages) {
		return Message{}, fmt.Errorf("index %d out of bounds (len=%d)", index, len(s.messages))
	}
	return s.messages[index], nil
}

// Remove deletes the message at the given index.
// Returns an error if the index is out of bounds.
func (s *Session) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.messages) {
		return fmt.Errorf("index %d out of bounds (len=%d)", index, len(s.messages))
	}

	// Clone before mutation to prevent aliasing issues with any external
	// slice references.
	s.messages = slices.Clone(s.messages)
	s.messages = slices.Delete(s.messages, index, index+1)
	return nil
}

// Replace swaps the message at the given index with a new message.
// Returns an error if the index is out of bounds.
func (s *Session) Replace(index int, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.messages) {
		return fmt.Errorf("index %d out of bounds (len=%d)", index, len(s.messages))
	}

	s.messages[index] = msg
	return nil
}

// Truncate keeps only the first keepFirst messages and the last keepLast
// messages, removing everything in between.
func (s *Session) Truncate(keepFirst, keepLast int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keepFirst < 0 || keepLast < 0 {
		return fmt.Errorf("keepFirst and keepLast must be non-negative")
	}

	total := len(s.messages)
	if keepFirst+keepLast >= total {
		return nil
	}

	newMessages := make([]Message, 0, keepFirst+keepLast)
	newMessages = append(newMessages, s.messages[:keepFirst]...)
	newMessages = append(newMessages, s.messages[total-keepLast:]...)
	s.messages = newMessages
	return nil
}

// Insert adds a message at the given index, shifting subsequent messages.
// If index equals Len(), the message is appended.
func (s *Session) Insert(index int, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index > len(s.messages) {
		return fmt.Errorf("index %d out of bounds (len=%d)", index, len(s.messages))
	}

	s.messages = slices.Insert(s.messages, index, msg)
	return nil
}

// SetMessages replaces the entire message history.
// This is useful for external context management strategies.
func (s *Session) SetMessages(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]Message, len(msgs))
	copy(s.messages, msgs)
}
