// Package canonical produces the deterministic byte representation of a
// memory payload that is used as the signed message.
//
// Only the top level of the document is canonicalized: the keys of the
// outermost object are sorted lexicographically and re-emitted in compact
// form, while the raw bytes of every nested value are preserved as they
// appeared in the input. Two payloads with identical top-level keys but
// differently ordered nested maps therefore produce different canonical
// bytes. This matches the signatures already issued against the original
// wire format; full recursive canonicalization would invalidate them, so it
// must not be introduced without a versioned migration.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNotObject is returned when the payload is not a JSON object.
var ErrNotObject = errors.New("canonical: payload is not a JSON object")

// Marshal returns the canonical bytes of a JSON object: compact JSON with
// the top-level keys sorted. Nested objects keep the key order of the input
// document. A later duplicate of a top-level key overwrites the earlier one.
func Marshal(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("canonical: decode payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	values := make(map[string]json.RawMessage)
	keys := make([]string, 0, 16)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("canonical: decode key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("canonical: unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("canonical: decode value of %q: %w", key, err)
		}

		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = raw
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("canonical: decode payload: %w", err)
	}
	if dec.More() {
		return nil, errors.New("canonical: trailing data after payload")
	}

	sort.Strings(keys)

	var out bytes.Buffer
	out.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			out.WriteByte(',')
		}
		if err := writeString(&out, key); err != nil {
			return nil, err
		}
		out.WriteByte(':')
		if err := json.Compact(&out, values[key]); err != nil {
			return nil, fmt.Errorf("canonical: compact value of %q: %w", key, err)
		}
	}
	out.WriteByte('}')

	return out.Bytes(), nil
}

// writeString emits a JSON string without HTML escaping, matching the
// encoding the signatures were originally issued over.
func writeString(out *bytes.Buffer, s string) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canonical: encode key: %w", err)
	}
	// Encode terminates with a newline; the caller wants none.
	out.Truncate(out.Len() - 1)
	return nil
}
