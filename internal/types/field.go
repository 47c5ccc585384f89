package types

import "strings"

// Field is an extracted value that remembers whether the source markup had it at all.
// The zero value is absent, which is different from a present but blank value.
type Field struct {
	Value   string `json:"value"`
	Present bool   `json:"present"`
}

// Absent returns the "not available" field.
func Absent() Field { return Field{} }

// Text returns a present field holding s.
func Text(s string) Field { return Field{Value: s, Present: true} }

// Has reports whether the field is present and not blank.
func (f Field) Has() bool { return f.Present && strings.TrimSpace(f.Value) != "" }

// Or returns the field's value, or def when the field is absent or blank.
func (f Field) Or(def string) string {
	if f.Has() {
		return strings.TrimSpace(f.Value)
	}
	return def
}

// String implements fmt.Stringer.
func (f Field) String() string {
	if !f.Present {
		return "N/A"
	}
	return f.Value
}
