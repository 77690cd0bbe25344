package txn

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/engine"
)

// ErrReinitialized is returned when Init or InitDetached is called on an
// object that already has storage. The object keeps its prior state.
var ErrReinitialized = errors.New("already initialized")

// CompareNames orders two header names ignoring ASCII case, strcmp-style.
func CompareNames(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// EqualNames reports whether two header names match ignoring ASCII case.
func EqualNames(a, b string) bool {
	return strings.EqualFold(a, b)
}

func normalizeName(name string) string {
	return strings.ToLower(name)
}

type headersMode int

const (
	headersUnset headersMode = iota
	headersAttached
	headersDetached
)

// Headers is a case-insensitive ordered multi-map over header fields. In
// attached mode every access goes through the engine, so mutations made by
// other parts of the engine are always visible and field order is the
// engine's. In detached mode the instance owns an insertion-ordered store
// with a lowercased-name index; this mode backs requests and responses that
// were built standalone and never seen by the engine.
//
// The zero value is valid but inert: reads return empty results until Init
// or InitDetached is called.
type Headers struct {
	eng  engine.Engine
	log  logrus.FieldLogger
	mode headersMode
	buf  engine.Buffer
	hdr  engine.Loc

	// Detached store: fields preserves insertion order, index maps the
	// lowercased name to its values for O(1) lookup.
	fields []engine.Field
	index  map[string][]string
}

func (h *Headers) logger() logrus.FieldLogger {
	if h.log == nil {
		return logrus.StandardLogger()
	}
	return h.log
}

// Init attaches the view to engine-owned storage. Calling it on an already
// initialized instance logs, leaves the instance untouched, and returns
// ErrReinitialized.
func (h *Headers) Init(eng engine.Engine, buf engine.Buffer, hdr engine.Loc) error {
	if h.mode != headersUnset {
		h.logger().WithFields(logrus.Fields{
			"action":        "headers_init",
			"current_buf":   h.buf,
			"current_hdr":   h.hdr,
			"attempted_buf": buf,
			"attempted_hdr": hdr,
		}).Error("headers reinitialization rejected")
		return ErrReinitialized
	}
	h.eng = eng
	h.mode = headersAttached
	h.buf = buf
	h.hdr = hdr
	return nil
}

// InitDetached switches the instance to standalone storage. Same
// reinitialization guard as Init.
func (h *Headers) InitDetached() error {
	if h.mode != headersUnset {
		h.logger().WithField("action", "headers_init_detached").
			Error("headers reinitialization rejected")
		return ErrReinitialized
	}
	h.mode = headersDetached
	h.index = make(map[string][]string)
	return nil
}

// Initialized reports whether the instance has storage of either mode.
func (h *Headers) Initialized() bool {
	return h.mode != headersUnset
}

// Values returns every value carried under name, matched case-insensitively,
// in stable order. Engine failures are logged and degrade to nil.
func (h *Headers) Values(name string) []string {
	switch h.mode {
	case headersAttached:
		values, err := h.eng.FieldValues(h.buf, h.hdr, name)
		if err != nil {
			h.logger().WithError(err).WithField("name", name).Error("field lookup failed")
			return nil
		}
		return values
	case headersDetached:
		values := h.index[normalizeName(name)]
		if len(values) == 0 {
			return nil
		}
		return append([]string(nil), values...)
	}
	return nil
}

// Value returns the first value for name, or "".
func (h *Headers) Value(name string) string {
	values := h.Values(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Set replaces every field named name with a single field.
func (h *Headers) Set(name, value string) error {
	switch h.mode {
	case headersAttached:
		return h.eng.FieldSet(h.buf, h.hdr, name, value)
	case headersDetached:
		h.removeDetached(name)
		h.appendDetached(name, value)
		return nil
	}
	return errors.New("headers not initialized")
}

// Append adds a field after the existing ones.
func (h *Headers) Append(name, value string) error {
	switch h.mode {
	case headersAttached:
		return h.eng.FieldAppend(h.buf, h.hdr, name, value)
	case headersDetached:
		h.appendDetached(name, value)
		return nil
	}
	return errors.New("headers not initialized")
}

// Remove drops every field named name.
func (h *Headers) Remove(name string) error {
	switch h.mode {
	case headersAttached:
		return h.eng.FieldRemove(h.buf, h.hdr, name)
	case headersDetached:
		h.removeDetached(name)
		return nil
	}
	return errors.New("headers not initialized")
}

// Len reports the number of fields, counting repeated names individually.
func (h *Headers) Len() int {
	switch h.mode {
	case headersAttached:
		n, err := h.eng.FieldCount(h.buf, h.hdr)
		if err != nil {
			h.logger().WithError(err).Error("field count failed")
			return 0
		}
		return n
	case headersDetached:
		return len(h.fields)
	}
	return 0
}

// All returns every field in stable order: engine order when attached,
// insertion order when detached.
func (h *Headers) All() []engine.Field {
	switch h.mode {
	case headersAttached:
		fields, err := h.eng.FieldsAll(h.buf, h.hdr)
		if err != nil {
			h.logger().WithError(err).Error("field iteration failed")
			return nil
		}
		return fields
	case headersDetached:
		return append([]engine.Field(nil), h.fields...)
	}
	return nil
}

func (h *Headers) appendDetached(name, value string) {
	h.fields = append(h.fields, engine.Field{Name: name, Value: value})
	key := normalizeName(name)
	h.index[key] = append(h.index[key], value)
}

func (h *Headers) removeDetached(name string) {
	key := normalizeName(name)
	if _, ok := h.index[key]; !ok {
		return
	}
	delete(h.index, key)
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !EqualNames(f.Name, name) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}
