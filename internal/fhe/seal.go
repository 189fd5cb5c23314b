package fhe

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/Najnomics/fheap/internal/domain"
)

// RevealUint decrypts an encrypted integer at a named boundary. Every call
// is recorded with the auditor; boundary names are stable identifiers like
// "protection.decision" or "oracle.spread".
func (s *Scheme) RevealUint(c CipherUint, boundary string) (uint64, error) {
	v, err := s.openUint(c)
	if err != nil {
		return 0, fmt.Errorf("fhe: reveal at %s: %w", boundary, err)
	}
	revealsTotal.WithLabelValues(boundary).Inc()
	s.auditor.RecordReveal(boundary, "uint")
	return v & c.width.mask(), nil
}

// RevealBool decrypts an encrypted boolean at a named boundary.
func (s *Scheme) RevealBool(b CipherBool, boundary string) (bool, error) {
	v, err := s.openBool(b)
	if err != nil {
		return false, fmt.Errorf("fhe: reveal at %s: %w", boundary, err)
	}
	revealsTotal.WithLabelValues(boundary).Inc()
	s.auditor.RecordReveal(boundary, "bool")
	return v, nil
}

// Require asserts an encrypted condition, returning ErrPreconditionFailed
// when it does not hold. The condition is consumed privately; only the
// pass/fail bit leaves the encrypted domain, at the named boundary.
func (s *Scheme) Require(cond CipherBool, boundary string) error {
	ok, err := s.openBool(cond)
	if err != nil {
		return fmt.Errorf("fhe: require at %s: %w", boundary, err)
	}
	s.auditor.RecordReveal(boundary, "require")
	if !ok {
		requireFailures.WithLabelValues(boundary).Inc()
		return fmt.Errorf("fhe: require at %s: %w", boundary, domain.ErrPreconditionFailed)
	}
	return nil
}

// SealedBlob is an encrypted value re-keyed to a viewer. Only the holder of
// the viewing key can open it; the scheme key is not involved.
type SealedBlob struct {
	Version    int    `json:"version"`
	Width      string `json:"width"`
	Salt       []byte `json:"salt"`
	Ciphertext []byte `json:"ciphertext"` // nonce || ct
}

const sealedVersion = 1

// Seal re-encrypts an encrypted integer under the viewer's key so the value
// can leave the service without ever appearing in plaintext here. The
// viewing key is stretched with PBKDF2 under a fresh salt per blob.
func (s *Scheme) Seal(c CipherUint, viewingKey []byte) (SealedBlob, error) {
	if len(viewingKey) == 0 {
		return SealedBlob{}, fmt.Errorf("fhe: seal: empty viewing key")
	}
	v, err := s.openUint(c)
	if err != nil {
		return SealedBlob{}, fmt.Errorf("fhe: seal: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return SealedBlob{}, fmt.Errorf("fhe: generating salt: %w", err)
	}
	key := pbkdf2.Key(viewingKey, salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	aead, err := newAEAD(key)
	if err != nil {
		return SealedBlob{}, err
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v&c.width.mask())
	blob, err := sealBytes(aead, buf[:], c.width.aad())
	if err != nil {
		return SealedBlob{}, err
	}
	opsTotal.WithLabelValues("seal").Inc()
	return SealedBlob{
		Version:    sealedVersion,
		Width:      c.width.String(),
		Salt:       salt,
		Ciphertext: blob,
	}, nil
}

// Unseal opens a sealed blob with the viewing key. It needs no scheme and
// exists so clients and tests can verify sealed outputs end to end.
func Unseal(b SealedBlob, viewingKey []byte) (uint64, error) {
	if b.Version != sealedVersion {
		return 0, fmt.Errorf("fhe: unsupported sealed blob version %d", b.Version)
	}
	w := Wide
	if b.Width == Narrow.String() {
		w = Narrow
	}
	key := pbkdf2.Key(viewingKey, b.Salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	aead, err := newAEAD(key)
	if err != nil {
		return 0, err
	}
	pt, err := openBytes(aead, b.Ciphertext, w.aad())
	if err != nil {
		return 0, fmt.Errorf("fhe: unseal: %w", err)
	}
	if len(pt) != 8 {
		return 0, fmt.Errorf("fhe: malformed plaintext length %d", len(pt))
	}
	return binary.BigEndian.Uint64(pt), nil
}
