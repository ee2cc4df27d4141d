package validation

import (
	"context"
	"fmt"

	"certgate/internal/csr"
	"certgate/internal/identity"
)

// Input is everything a validator may inspect for one request. Validators
// must treat it as read-only.
type Input struct {
	Request *csr.Request
	Caller  identity.Caller
	// ClientAddr is the submitting client's address as reported by the
	// request-handling collaborator. Empty when unknown.
	ClientAddr string
}

// Validator is a single unit check against a parsed request. Implementations
// must be stateless, side-effect-free, and deterministic for identical
// inputs; network-backed validators delegate retry policy to their
// collaborator and bound their wait with the context.
type Validator interface {
	Name() string
	Check(ctx context.Context, in Input) Outcome
}

// Params carries the validator parameters declared by a policy step.
type Params map[string]any

// StringSlice extracts a list-of-strings parameter. Missing keys yield an
// empty slice; wrong element types are a policy authoring error.
func (p Params) StringSlice(key string) ([]string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		// yaml may decode a homogeneous list directly
		if typed, ok := raw.([]string); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("parameter %q: expected a list of strings", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q: expected a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// Int extracts an integer parameter, with ok reporting presence.
func (p Params) Int(key string) (int, bool, error) {
	raw, present := p[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	default:
		return 0, false, fmt.Errorf("parameter %q: expected an integer", key)
	}
}

// Bool extracts a boolean parameter, defaulting to false when absent.
func (p Params) Bool(key string) (bool, error) {
	raw, present := p[key]
	if !present || raw == nil {
		return false, nil
	}
	v, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q: expected a boolean", key)
	}
	return v, nil
}

// StringMap extracts a map-of-strings parameter.
func (p Params) StringMap(key string) (map[string]string, error) {
	raw, present := p[key]
	if !present || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		if typed, ok := raw.(map[string]string); ok {
			return typed, nil
		}
		return nil, fmt.Errorf("parameter %q: expected a string map", key)
	}
	out := make(map[string]string, len(m))
	for k, item := range m {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q: expected a string map", key)
		}
		out[k] = s
	}
	return out, nil
}
