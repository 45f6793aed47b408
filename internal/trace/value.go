package trace

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// Value is an opaque serialized runtime value crossing the interpreter
// boundary: a JSON scalar, array, or object as emitted by the tracer. The
// traced language's type system is not modeled; comparison and filtering
// operate on the serialized form only.
type Value struct {
	raw string
}

// NewValue builds a Value from a raw JSON fragment. Intended for tests.
func NewValue(raw string) Value {
	return Value{raw: raw}
}

// UnmarshalJSON stores the raw fragment verbatim.
func (v *Value) UnmarshalJSON(data []byte) error {
	v.raw = string(data)
	return nil
}

// MarshalJSON emits the raw fragment verbatim.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.raw == "" {
		return []byte("null"), nil
	}
	return []byte(v.raw), nil
}

// Raw returns the serialized form.
func (v Value) Raw() string {
	if v.raw == "" {
		return "null"
	}
	return v.raw
}

// Display returns a human-readable rendering: strings are unquoted,
// everything else is the serialized form.
func (v Value) Display() string {
	raw := v.Raw()
	if len(raw) >= 2 && raw[0] == '"' {
		if s, err := strconv.Unquote(raw); err == nil {
			return s
		}
	}
	return raw
}

// Equal reports whether two values have the same canonical serialization.
// Equality is structural, never reference identity.
func (v Value) Equal(other Value) bool {
	return v.canonical() == other.canonical()
}

// canonical re-encodes the fragment through encoding/json so that key
// order and insignificant whitespace do not affect comparison.
func (v Value) canonical() string {
	raw := v.Raw()
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return raw
	}
	return string(encoded)
}

// callablePattern matches the textual markers the tracer emits for function
// objects, bound methods, classes, and modules.
var callablePattern = regexp.MustCompile(`^<(function|built-in function|bound method|class|module|method) .*>$`)

// IsCallable reports whether the value is the serialized marker of a
// callable object. Callables are hidden from variable listings.
func (v Value) IsCallable() bool {
	raw := v.Raw()
	if len(raw) < 2 || raw[0] != '"' {
		return false
	}
	s, err := strconv.Unquote(raw)
	if err != nil {
		return false
	}
	return callablePattern.MatchString(s)
}
