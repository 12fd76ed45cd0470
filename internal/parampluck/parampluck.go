// Package parampluck destructures an RPC request's untyped params JSON
// object into the individual fields a handler actually needs, per §9's
// "small typed param pluck library". Every accessor returns an
// *InvalidParamsError on failure so dispatcher can classify it uniformly.
package parampluck

import (
	"encoding/json"
	"fmt"
)

// InvalidParamsError mirrors the wire-visible INVALID_PARAMS message shape:
// "missing `key`" for an absent required field, "invalid `key`: reason"
// for a present-but-malformed one.
type InvalidParamsError struct {
	Key    string
	Reason string // empty for "missing"
}

func (e *InvalidParamsError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing `%s`", e.Key)
	}
	return fmt.Sprintf("invalid `%s`: %s", e.Key, e.Reason)
}

func missing(key string) error {
	return &InvalidParamsError{Key: key}
}

func invalid(key, reason string) error {
	return &InvalidParamsError{Key: key, Reason: reason}
}

// Params wraps a parsed JSON object for field-by-field plucking. A nil or
// non-object Params behaves as an empty object: every required accessor
// fails with "missing", every optional accessor returns its zero value.
type Params struct {
	fields map[string]json.RawMessage
}

// Parse decodes raw (the RPC request's "params" value) into a Params. An
// empty or null raw is treated as an empty object, not an error.
func Parse(raw json.RawMessage) (Params, error) {
	if len(raw) == 0 {
		return Params{}, nil
	}
	trimmed := trimSpace(raw)
	if string(trimmed) == "null" {
		return Params{}, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Params{}, fmt.Errorf("params must be a JSON object: %w", err)
	}
	return Params{fields: fields}, nil
}

func trimSpace(b json.RawMessage) json.RawMessage {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func (p Params) raw(key string) (json.RawMessage, bool) {
	if p.fields == nil {
		return nil, false
	}
	v, ok := p.fields[key]
	return v, ok
}

// RequiredString returns the string value of key, or InvalidParamsError if
// it is absent, null, empty, or not a string.
func (p Params) RequiredString(key string) (string, error) {
	raw, ok := p.raw(key)
	if !ok || string(raw) == "null" {
		return "", missing(key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(key, "expected a string")
	}
	if s == "" {
		return "", invalid(key, "must not be empty")
	}
	return s, nil
}

// OptionalString returns the string value of key, or def if absent/null.
func (p Params) OptionalString(key, def string) (string, error) {
	raw, ok := p.raw(key)
	if !ok || string(raw) == "null" {
		return def, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalid(key, "expected a string")
	}
	return s, nil
}

// RequiredBool returns the bool value of key.
func (p Params) RequiredBool(key string) (bool, error) {
	raw, ok := p.raw(key)
	if !ok || string(raw) == "null" {
		return false, missing(key)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, invalid(key, "expected a bool")
	}
	return b, nil
}

// OptionalBool returns the bool value of key, or def if absent/null.
func (p Params) OptionalBool(key string, def bool) (bool, error) {
	raw, ok := p.raw(key)
	if !ok || string(raw) == "null" {
		return def, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, invalid(key, "expected a bool")
	}
	return b, nil
}

// OptionalU32Bounded returns the unsigned integer value of key, defaulting
// to def if absent, and rejecting values outside [0, max].
func (p Params) OptionalU32Bounded(key string, def uint32, max uint32) (uint32, error) {
	raw, ok := p.raw(key)
	if !ok || string(raw) == "null" {
		return def, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, invalid(key, "expected a number")
	}
	if n < 0 || n != float64(uint32(n)) {
		return 0, invalid(key, "expected a non-negative integer")
	}
	v := uint32(n)
	if v > max {
		return 0, invalid(key, fmt.Sprintf("must be <= %d", max))
	}
	return v, nil
}

// RequiredU32Bounded is OptionalU32Bounded without a default: the field
// must be present and non-null.
func (p Params) RequiredU32Bounded(key string, max uint32) (uint32, error) {
	if raw, ok := p.raw(key); !ok || string(raw) == "null" {
		return 0, missing(key)
	}
	return p.OptionalU32Bounded(key, 0, max)
}

// OptionalStringArray returns the string-array value of key, or nil if
// absent/null.
func (p Params) OptionalStringArray(key string) ([]string, error) {
	raw, ok := p.raw(key)
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, invalid(key, "expected an array of strings")
	}
	return arr, nil
}

// RequiredRaw returns the raw JSON value of key unmodified, for fields the
// handler forwards verbatim to the child rather than interpreting itself.
func (p Params) RequiredRaw(key string) (json.RawMessage, error) {
	raw, ok := p.raw(key)
	if !ok || string(raw) == "null" {
		return nil, missing(key)
	}
	return raw, nil
}

// OptionalRaw returns the raw JSON value of key, or nil if absent/null.
func (p Params) OptionalRaw(key string) json.RawMessage {
	raw, ok := p.raw(key)
	if !ok {
		return nil
	}
	return raw
}

// Has reports whether key is present and non-null.
func (p Params) Has(key string) bool {
	raw, ok := p.raw(key)
	return ok && string(raw) != "null"
}

// Common pagination bounds referenced across list operations (§7).
const (
	MaxLimit    = 500
	MaxDays     = 366
	MaxDepth    = 64
	MaxPRNumber = 10_000_000
)
