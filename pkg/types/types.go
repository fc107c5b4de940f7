// Package types defines the stored records of the memory palace: palaces,
// guest credentials and capsules.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Permission is the access level of a guest credential.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

// Valid reports whether p is one of the three known levels.
func (p Permission) Valid() bool {
	switch p {
	case PermissionRead, PermissionWrite, PermissionAdmin:
		return true
	}
	return false
}

// CanWrite reports whether the credential may store memories.
func (p Permission) CanWrite() bool {
	return p == PermissionWrite || p == PermissionAdmin
}

// Algorithm identifies how a capsule's content is protected. It is
// resolved once when the record is loaded; the rest of the system
// branches on the variant, not on wire strings.
type Algorithm int

const (
	// AlgorithmPlaintext marks capsules stored through the plaintext
	// ingestion path. They carry no signature at all.
	AlgorithmPlaintext Algorithm = iota
	// AlgorithmHMACUnverified marks capsules whose producer tagged them
	// HMAC-SHA256. The server never holds the symmetric key, so these
	// are accepted but never verified server-side and must always be
	// surfaced as unverified.
	AlgorithmHMACUnverified
	// AlgorithmEd25519 marks capsules signed with the palace keypair and
	// verifiable against the registered public key.
	AlgorithmEd25519
)

// ParseAlgorithm resolves a wire tag into its variant.
func ParseAlgorithm(tag string) (Algorithm, error) {
	switch tag {
	case "plaintext":
		return AlgorithmPlaintext, nil
	case "HMAC-SHA256":
		return AlgorithmHMACUnverified, nil
	case "Ed25519":
		return AlgorithmEd25519, nil
	}
	return 0, fmt.Errorf("types: unknown algorithm tag %q", tag)
}

// String returns the wire tag of the variant.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmPlaintext:
		return "plaintext"
	case AlgorithmHMACUnverified:
		return "HMAC-SHA256"
	case AlgorithmEd25519:
		return "Ed25519"
	default:
		return "unknown"
	}
}

// ServerVerifiable reports whether the server can check the signature.
func (a Algorithm) ServerVerifiable() bool {
	return a == AlgorithmEd25519
}

// Palace is a tenant boundary. Its id doubles as the bearer credential
// for administrative access.
type Palace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PublicKey string    `json:"public_key,omitempty"` // hex SPKI DER, empty for plaintext-only palaces
	CreatedAt time.Time `json:"created_at"`
}

// Agent is a scoped, revocable guest credential bound to one palace and
// one named agent identity. Revocation is a soft state transition so the
// audit history survives.
type Agent struct {
	ID          string     `json:"id"`
	PalaceID    string     `json:"palace_id"`
	Name        string     `json:"agent_name"`
	GuestKey    string     `json:"guest_key"`
	Permissions Permission `json:"permissions"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Capsule is one stored memory record. Ciphertext is either JSON-encoded
// plaintext or a packed iv:authTag:ciphertext envelope; whether it parses
// as JSON is the only discriminator, there is no separate encrypted flag.
// A capsule is immutable after insert except for the best-effort ImageURL
// set by a later upload step.
type Capsule struct {
	ID          string    `json:"id"`
	ShortID     string    `json:"short_id"`
	PalaceID    string    `json:"palace_id"`
	Agent       string    `json:"agent"`
	SessionName string    `json:"session_name"`
	ImageURL    string    `json:"image_url,omitempty"`
	Ciphertext  string    `json:"ciphertext"`
	Signature   string    `json:"signature,omitempty"` // hex Ed25519, empty on the plaintext path
	Algorithm   string    `json:"algorithm"`
	CreatedAt   time.Time `json:"created_at"`
}

// PlaintextPayload returns the decoded payload if the ciphertext field
// holds JSON plaintext, or ok=false for an encrypted envelope.
func (c *Capsule) PlaintextPayload() (map[string]any, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(c.Ciphertext), &payload); err != nil {
		return nil, false
	}
	return payload, true
}
