package graph

import (
	"encoding/json"
	"fmt"
)

// Delta is a partial state update produced by a node, keyed by field name.
// The engine interprets deltas against the run's merge Schema; fields absent
// from a delta are left untouched.
type Delta map[string]any

// Policy declares how a field in a delta is merged into the state.
type Policy int

const (
	// Replace overwrites the previous value. Last writer wins.
	Replace Policy = iota

	// Append concatenates sequence values, preserving order. Used for
	// append-only fields such as logs and conversation messages.
	Append

	// Sum adds numeric values.
	Sum
)

func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	case Sum:
		return "sum"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Schema maps state field names (their JSON keys) to merge policies.
// Fields not present in the schema are rejected, which catches typos in
// node deltas early.
type Schema map[string]Policy

// Apply merges a delta into state under the schema and returns the new state.
// The previous state is not mutated.
//
// Merging goes through a JSON round-trip so a single implementation covers
// any JSON-serializable state type: the state is flattened to a field map,
// each delta entry is merged per its policy, and the result is decoded back.
func Apply[S any](state S, delta Delta, schema Schema) (S, error) {
	var zero S
	if len(delta) == 0 {
		return state, nil
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("marshal state: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, fmt.Errorf("state is not an object: %w", err)
	}

	for key, value := range delta {
		policy, ok := schema[key]
		if !ok {
			return zero, fmt.Errorf("%w: %q", ErrUnknownField, key)
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			return zero, fmt.Errorf("marshal delta field %q: %w", key, err)
		}

		switch policy {
		case Replace:
			fields[key] = encoded
		case Append:
			merged, err := appendArrays(fields[key], encoded)
			if err != nil {
				return zero, fmt.Errorf("append field %q: %w", key, err)
			}
			fields[key] = merged
		case Sum:
			merged, err := sumNumbers(fields[key], encoded)
			if err != nil {
				return zero, fmt.Errorf("sum field %q: %w", key, err)
			}
			fields[key] = merged
		}
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("marshal merged state: %w", err)
	}
	var out S
	if err := json.Unmarshal(merged, &out); err != nil {
		return zero, fmt.Errorf("decode merged state: %w", err)
	}
	return out, nil
}

func appendArrays(prev, next json.RawMessage) (json.RawMessage, error) {
	var prevItems, nextItems []json.RawMessage
	if len(prev) > 0 && string(prev) != "null" {
		if err := json.Unmarshal(prev, &prevItems); err != nil {
			return nil, fmt.Errorf("previous value is not an array: %w", err)
		}
	}
	if len(next) > 0 && string(next) != "null" {
		if err := json.Unmarshal(next, &nextItems); err != nil {
			return nil, fmt.Errorf("delta value is not an array: %w", err)
		}
	}
	return json.Marshal(append(prevItems, nextItems...))
}

func sumNumbers(prev, next json.RawMessage) (json.RawMessage, error) {
	var a, b float64
	if len(prev) > 0 && string(prev) != "null" {
		if err := json.Unmarshal(prev, &a); err != nil {
			return nil, fmt.Errorf("previous value is not a number: %w", err)
		}
	}
	if len(next) > 0 && string(next) != "null" {
		if err := json.Unmarshal(next, &b); err != nil {
			return nil, fmt.Errorf("delta value is not a number: %w", err)
		}
	}
	return json.Marshal(a + b)
}
