// Package fhe provides the confidential value substrate: encrypted unsigned
// integers and booleans whose magnitudes stay hidden from application code,
// with arithmetic, comparison, and selection evaluated privately by the
// scheme. Reveals and preconditions are funneled through named boundaries so
// every plaintext exit is auditable.
package fhe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
)

// RevealAuditor records every plaintext exit from the encrypted domain.
// Implementations must be safe for concurrent use.
type RevealAuditor interface {
	RecordReveal(boundary, detail string)
}

// nopAuditor is used when no auditor is configured.
type nopAuditor struct{}

func (nopAuditor) RecordReveal(string, string) {}

// Options configures a Scheme.
type Options struct {
	// Passphrase and Salt derive the scheme key. Salt must be at least
	// 16 bytes; both are required.
	Passphrase string
	Salt       []byte

	// ExactRatio enables the scalar multiply-then-divide primitive. Leave
	// false on substrates where multiplicative depth is unreliable; ratio
	// consumers then fall back to shift-and-add approximation.
	ExactRatio bool

	// Auditor receives one record per reveal boundary crossing. Optional.
	Auditor RevealAuditor
}

// Scheme holds the master key and evaluates operations over ciphertexts.
// All methods are safe for concurrent use; the key never leaves the scheme.
type Scheme struct {
	aead       cipher.AEAD
	exactRatio bool
	auditor    RevealAuditor
}

// NewScheme derives the scheme key from the passphrase with
// PBKDF2-HMAC-SHA256 and prepares the AES-256-GCM evaluator.
func NewScheme(opts Options) (*Scheme, error) {
	if opts.Passphrase == "" {
		return nil, errors.New("fhe: passphrase must not be empty")
	}
	if len(opts.Salt) < saltLen {
		return nil, fmt.Errorf("fhe: salt must be at least %d bytes, got %d", saltLen, len(opts.Salt))
	}

	key := pbkdf2.Key([]byte(opts.Passphrase), opts.Salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	auditor := opts.Auditor
	if auditor == nil {
		auditor = nopAuditor{}
	}

	return &Scheme{aead: aead, exactRatio: opts.ExactRatio, auditor: auditor}, nil
}

// SupportsExactRatio reports whether MulDivScalar is available on this
// substrate. Callers choose their ratio strategy at wiring time based on it.
func (s *Scheme) SupportsExactRatio() bool { return s.exactRatio }

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fhe: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fhe: creating GCM: %w", err)
	}
	return gcm, nil
}

// seal encrypts plaintext with a fresh random nonce, producing nonce||ct.
// Every call yields a distinct ciphertext even for equal plaintexts.
func sealBytes(aead cipher.AEAD, plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("fhe: generating nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func openBytes(aead cipher.AEAD, blob, aad []byte) ([]byte, error) {
	if len(blob) < aead.NonceSize() {
		return nil, errors.New("fhe: ciphertext too short")
	}
	nonce, ct := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("fhe: ciphertext rejected: %w", err)
	}
	return plaintext, nil
}
