package marvin

import "strings"

// Fragment is one templated, role-tagged prompt segment. Templates use
// {name} placeholders; {{ and }} escape literal braces. Fragments are
// immutable once constructed: WithDefaults returns a derived copy and the
// defaults map is never shared.
type Fragment struct {
	Role     string // RoleSystem, RoleUser, or RoleAssistant
	Template string // Text with {name} placeholders
	defaults map[string]string
}

// System creates a system-role fragment from a template.
func System(template string) Fragment {
	return Fragment{Role: RoleSystem, Template: template}
}

// User creates a user-role fragment from a template.
func User(template string) Fragment {
	return Fragment{Role: RoleUser, Template: template}
}

// Assistant creates an assistant-role fragment from a template.
func Assistant(template string) Fragment {
	return Fragment{Role: RoleAssistant, Template: template}
}

// WithDefaults returns a copy of the fragment with default values for
// placeholders. Defaults apply first; caller-supplied variables at render
// time always override them.
func (f Fragment) WithDefaults(vars map[string]string) Fragment {
	merged := make(map[string]string, len(f.defaults)+len(vars))
	for k, v := range f.defaults {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}
	f.defaults = merged
	return f
}

// Defaults returns a copy of the fragment's default variable values.
func (f Fragment) Defaults() map[string]string {
	out := make(map[string]string, len(f.defaults))
	for k, v := range f.defaults {
		out[k] = v
	}
	return out
}

// render resolves the fragment's placeholders against caller variables and
// fragment defaults. Substitution is single-pass: braces inside substituted
// values are never re-scanned.
func (f Fragment) render(vars map[string]string, index int) (string, error) {
	var b strings.Builder
	tpl := f.Template

	for i := 0; i < len(tpl); {
		c := tpl[i]

		switch {
		case c == '{' && i+1 < len(tpl) && tpl[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(tpl) && tpl[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			name, width := scanPlaceholder(tpl[i:])
			if name == "" {
				// Not a well-formed placeholder, keep the brace literal.
				b.WriteByte('{')
				i++
				continue
			}
			value, ok := vars[name]
			if !ok {
				value, ok = f.defaults[name]
			}
			if !ok {
				return "", &MissingVariableError{Name: name, Fragment: index}
			}
			b.WriteString(value)
			i += width
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), nil
}

// scanPlaceholder reads a {name} placeholder at the start of s.
// Returns the placeholder name and total width including braces, or ("", 0)
// if s does not start a well-formed placeholder.
func scanPlaceholder(s string) (string, int) {
	// s[0] is '{'
	end := strings.IndexByte(s, '}')
	if end <= 1 {
		return "", 0
	}
	name := s[1:end]
	if !isIdentifier(name) {
		return "", 0
	}
	return name, end + 1
}

// isIdentifier reports whether s is a valid placeholder name:
// [A-Za-z_][A-Za-z0-9_]*.
func isIdentifier(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return len(s) > 0
}

// Sequence is an ordered composition of fragments forming a conversation
// skeleton. The zero value is an empty sequence. Sequences are value types:
// Join and Append return new sequences and never mutate their receivers.
type Sequence struct {
	fragments []Fragment
}

// NewSequence creates a sequence from fragments in order.
func NewSequence(fragments ...Fragment) Sequence {
	out := make([]Fragment, len(fragments))
	copy(out, fragments)
	return Sequence{fragments: out}
}

// Join returns a new sequence with other's fragments appended after the
// receiver's. Join is associative: a.Join(b).Join(c) equals a.Join(b.Join(c)).
func (s Sequence) Join(other Sequence) Sequence {
	out := make([]Fragment, 0, len(s.fragments)+len(other.fragments))
	out = append(out, s.fragments...)
	out = append(out, other.fragments...)
	return Sequence{fragments: out}
}

// Append returns a new sequence with the given fragments appended.
func (s Sequence) Append(fragments ...Fragment) Sequence {
	return s.Join(NewSequence(fragments...))
}

// Len returns the number of fragments in the sequence.
func (s Sequence) Len() int {
	return len(s.fragments)
}

// Fragments returns a copy of the sequence's fragments in order.
func (s Sequence) Fragments() []Fragment {
	out := make([]Fragment, len(s.fragments))
	copy(out, s.fragments)
	return out
}

// Render resolves every fragment against the variable mapping, producing one
// message per fragment in composition order. Fragment-local defaults apply
// first and caller-supplied variables override them. Rendering is pure and
// repeatable: the same sequence and variables always yield identical output.
// A placeholder with neither a default nor a supplied value fails with
// *MissingVariableError.
func (s Sequence) Render(vars map[string]string) ([]Message, error) {
	messages := make([]Message, 0, len(s.fragments))

	for i, f := range s.fragments {
		content, err := f.render(vars, i)
		if err != nil {
			return nil, err
		}
		messages = append(messages, Message{
			Role:    f.Role,
			Content: content,
		})
	}

	return messages, nil
}
