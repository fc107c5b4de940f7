// Package envelope implements the symmetric half of the capsule trust
// chain: HKDF key derivation from the palace signing key and AES-256-GCM
// seal/open, packed into the iv:authTag:ciphertext wire format.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the derived AES-256 key size in bytes.
const KeySize = 32

// NonceSize is the GCM nonce size in bytes (96 bits).
const NonceSize = 12

// hkdfInfo binds derived keys to this application. Changing it orphans
// every stored capsule.
const hkdfInfo = "memory_palace_encryption"

var (
	// ErrMalformedEnvelope marks a packed envelope that is structurally
	// broken: wrong segment count or undecodable base64. Distinct from a
	// failed open so callers never report corruption as tampering.
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

	// ErrDecryptFailed marks an authentication-tag mismatch. The envelope
	// was well formed but its content cannot be trusted; no partial
	// plaintext is ever returned.
	ErrDecryptFailed = errors.New("envelope: decryption failed")
)

// Sealed is the output of one AES-256-GCM seal: three standard-base64
// segments that join into the stored wire form.
type Sealed struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// DeriveKey derives the palace encryption key from the hex private key
// material via HKDF-SHA256. The palace id is the salt, which is public:
// confidentiality rests entirely on the private key, an accepted
// trade-off that leaves the owner with a single secret to protect.
func DeriveKey(privateKeyHex, palaceID string) ([]byte, error) {
	ikm, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("envelope: decode key material: %w", err)
	}

	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, ikm, []byte(palaceID), []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("envelope: derive key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext under key with a fresh random 96-bit IV.
func Seal(key, plaintext []byte) (Sealed, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return Sealed{}, err
	}

	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return Sealed{}, fmt.Errorf("envelope: generate iv: %w", err)
	}

	out := aead.Seal(nil, iv, plaintext, nil)
	ciphertext := out[:len(out)-aead.Overhead()]
	authTag := out[len(out)-aead.Overhead():]

	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(authTag),
	}, nil
}

// Open decrypts a sealed envelope. It fails closed: any tag mismatch
// returns ErrDecryptFailed and no plaintext.
func Open(key []byte, sealed Sealed) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	iv, err := base64.StdEncoding.DecodeString(sealed.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: decode iv: %v", ErrMalformedEnvelope, err)
	}
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: iv is %d bytes, want %d", ErrMalformedEnvelope, len(iv), NonceSize)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrMalformedEnvelope, err)
	}
	authTag, err := base64.StdEncoding.DecodeString(sealed.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("%w: decode auth tag: %v", ErrMalformedEnvelope, err)
	}

	plaintext, err := aead.Open(nil, iv, append(ciphertext, authTag...), nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Pack joins the envelope into the stored iv:authTag:ciphertext string.
func (s Sealed) Pack() string {
	return s.IV + ":" + s.AuthTag + ":" + s.Ciphertext
}

// Split parses a stored envelope string. Exactly three segments are
// required; anything else is structural, not a trust failure.
func Split(packed string) (Sealed, error) {
	parts := strings.Split(packed, ":")
	if len(parts) != 3 {
		return Sealed{}, fmt.Errorf("%w: %d segments, want 3", ErrMalformedEnvelope, len(parts))
	}
	return Sealed{IV: parts[0], AuthTag: parts[1], Ciphertext: parts[2]}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("envelope: key is %d bytes, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: init gcm: %w", err)
	}
	return aead, nil
}
