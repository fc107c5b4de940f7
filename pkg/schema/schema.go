// Package schema validates the structure of a memory payload before it is
// accepted for storage.
package schema

import (
	"errors"
	"fmt"
)

// RequiredKeys is the fixed field set every memory payload must carry.
// Presence is checked by key existence only; the types of the list-valued
// fields are deliberately not enforced so records stored before stricter
// clients existed keep validating.
var RequiredKeys = []string{
	"session_name",
	"agent",
	"status",
	"outcome",
	"built",
	"decisions",
	"next_steps",
	"files",
	"blockers",
	"conversation_context",
	"roster",
	"metadata",
}

// Outcomes is the closed enum for the outcome field.
var Outcomes = []string{"succeeded", "failed", "partial", "in_progress"}

// ErrInvalidPayload is the base error for every validation failure.
var ErrInvalidPayload = errors.New("schema: invalid payload")

// Validate checks a decoded payload against the required field set and
// the outcome enum. There is no partial acceptance: the first failing key
// rejects the whole payload, with the reason in the error.
func Validate(payload map[string]any) error {
	if payload == nil {
		return fmt.Errorf("%w: payload is not an object", ErrInvalidPayload)
	}

	for _, key := range RequiredKeys {
		if _, ok := payload[key]; !ok {
			return fmt.Errorf("%w: missing required key %q", ErrInvalidPayload, key)
		}
	}

	outcome, ok := payload["outcome"].(string)
	if !ok {
		return fmt.Errorf("%w: outcome is not a string", ErrInvalidPayload)
	}
	for _, allowed := range Outcomes {
		if outcome == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: outcome %q is not one of %v", ErrInvalidPayload, outcome, Outcomes)
}
