// Package keys handles the palace signing keypair: Ed25519 generation,
// hex-encoded DER exchange (PKCS#8 private, SPKI public), signing and
// verification over raw message bytes.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrMalformedKey marks key material that could not be decoded. It is a
// structural failure and must never be reported as a failed verification:
// a caller holding a corrupt public key cannot tell whether a capsule was
// tampered with.
var ErrMalformedKey = errors.New("keys: malformed key material")

// Keypair is a freshly generated palace identity in wire encoding.
type Keypair struct {
	// PalaceKey is the hex-encoded PKCS#8 DER private key. It never
	// leaves the owning principal.
	PalaceKey string
	// PublicKey is the hex-encoded SPKI DER public key registered with
	// the server at palace creation.
	PublicKey string
}

// Generate creates a new Ed25519 palace keypair.
func Generate() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: generate: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return Keypair{}, fmt.Errorf("keys: marshal public key: %w", err)
	}

	return Keypair{
		PalaceKey: hex.EncodeToString(privDER),
		PublicKey: hex.EncodeToString(pubDER),
	}, nil
}

// ParsePrivateKey decodes a hex PKCS#8 DER Ed25519 private key.
func ParsePrivateKey(privateKeyHex string) (ed25519.PrivateKey, error) {
	der, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: decode hex: %v", ErrMalformedKey, err)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse PKCS#8: %v", ErrMalformedKey, err)
	}

	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an Ed25519 private key", ErrMalformedKey)
	}
	return priv, nil
}

// ParsePublicKey decodes a hex SPKI DER Ed25519 public key.
func ParsePublicKey(publicKeyHex string) (ed25519.PublicKey, error) {
	der, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: decode hex: %v", ErrMalformedKey, err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse SPKI: %v", ErrMalformedKey, err)
	}

	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an Ed25519 public key", ErrMalformedKey)
	}
	return pub, nil
}

// Sign signs the canonical message bytes and returns the signature
// hex-encoded for the wire. Ed25519 is deterministic: signing the same
// bytes with the same key always yields the same signature.
func Sign(privateKeyHex string, message []byte) (string, error) {
	priv, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ed25519.Sign(priv, message)), nil
}

// Verify reports whether signatureHex is a valid signature over message.
// A structural error (bad key, undecodable signature hex) is returned
// separately so callers never conflate "cannot verify" with "tampered".
func Verify(publicKeyHex, signatureHex string, message []byte) (bool, error) {
	pub, err := ParsePublicKey(publicKeyHex)
	if err != nil {
		return false, err
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("%w: decode signature hex: %v", ErrMalformedKey, err)
	}

	return ed25519.Verify(pub, message, sig), nil
}
