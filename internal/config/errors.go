package config

import "fmt"

// FieldError carries the field path and the reason so the CLI can point the
// user at the offending line.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// pluginField renders plugin-level field paths as Plugins[name].Field.
func pluginField(name, field string) string {
	if name == "" {
		return fmt.Sprintf("Plugins[].%s", field)
	}
	return fmt.Sprintf("Plugins[%s].%s", name, field)
}
