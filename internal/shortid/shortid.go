// Package shortid generates the short, URL-safe, human-typeable capsule
// identifiers that QR codes resolve through.
package shortid

import (
	"crypto/rand"
	"fmt"
)

// Length is the number of characters in a short id.
const Length = 7

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// New returns a fresh short id. The generator itself gives no uniqueness
// guarantee; the storage layer rejects duplicate ids at insert and the
// caller regenerates.
func New() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("shortid: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
