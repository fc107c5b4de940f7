// Package backup exports and restores a palace's capsules as an
// xz-compressed JSON-lines stream.
package backup

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/cuer-ai/memory-palace/pkg/types"
)

// Export writes one JSON line per capsule through an xz writer. Capsule
// ciphertexts stay exactly as stored, so an export of encrypted capsules
// is as opaque as the store itself.
func Export(w io.Writer, capsules []types.Capsule) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("backup: init xz writer: %w", err)
	}

	enc := json.NewEncoder(xw)
	for i := range capsules {
		if err := enc.Encode(&capsules[i]); err != nil {
			return fmt.Errorf("backup: encode capsule %q: %w", capsules[i].ShortID, err)
		}
	}

	if err := xw.Close(); err != nil {
		return fmt.Errorf("backup: close xz writer: %w", err)
	}
	return nil
}

// Import reads an export stream back into capsule records. It stops at
// the first malformed line rather than restoring a partial record.
func Import(r io.Reader) ([]types.Capsule, error) {
	xr, err := xz.NewReader(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("backup: init xz reader: %w", err)
	}

	var capsules []types.Capsule
	dec := json.NewDecoder(xr)
	for {
		var capsule types.Capsule
		if err := dec.Decode(&capsule); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("backup: decode capsule %d: %w", len(capsules), err)
		}
		capsules = append(capsules, capsule)
	}
	return capsules, nil
}
