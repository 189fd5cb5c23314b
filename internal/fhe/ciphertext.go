package fhe

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Width selects the modulus of an encrypted unsigned integer.
type Width uint8

const (
	// Narrow is a 32-bit word, used for basis points and share counts.
	Narrow Width = iota
	// Wide is a 64-bit word, used for prices, volumes, and fee amounts.
	Wide
)

func (w Width) String() string {
	if w == Narrow {
		return "narrow"
	}
	return "wide"
}

// mask returns the value mask for the width.
func (w Width) mask() uint64 {
	if w == Narrow {
		return math.MaxUint32
	}
	return math.MaxUint64
}

// aad returns the associated data binding a ciphertext to its type and
// width so a narrow blob cannot be replayed as a wide one.
func (w Width) aad() []byte {
	return []byte{0x01, byte(w)}
}

var boolAAD = []byte{0x02}

// CipherUint is an encrypted unsigned integer. The zero value is invalid;
// obtain instances from Scheme.EncryptUint or from scheme operations.
type CipherUint struct {
	width Width
	blob  []byte
}

// Width reports the modulus of the encrypted value.
func (c CipherUint) Width() Width { return c.width }

// Bytes returns the raw ciphertext, nonce included. The blob is opaque and
// only the issuing scheme can operate on it.
func (c CipherUint) Bytes() []byte { return c.blob }

// IsZero reports whether the ciphertext is the uninitialised zero value.
func (c CipherUint) IsZero() bool { return len(c.blob) == 0 }

// CipherBool is an encrypted boolean, produced by comparisons and consumed
// by Select and Require.
type CipherBool struct {
	blob []byte
}

// Bytes returns the raw ciphertext, nonce included.
func (b CipherBool) Bytes() []byte { return b.blob }

// IsZero reports whether the ciphertext is the uninitialised zero value.
func (b CipherBool) IsZero() bool { return len(b.blob) == 0 }

// EncryptUint encrypts a plaintext value at the given width. Values wider
// than the width wrap modulo the width, matching the behaviour of the
// arithmetic operations.
func (s *Scheme) EncryptUint(v uint64, w Width) (CipherUint, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v&w.mask())
	blob, err := sealBytes(s.aead, buf[:], w.aad())
	if err != nil {
		return CipherUint{}, err
	}
	opsTotal.WithLabelValues("encrypt_uint").Inc()
	return CipherUint{width: w, blob: blob}, nil
}

// EncryptBool encrypts a plaintext boolean.
func (s *Scheme) EncryptBool(v bool) (CipherBool, error) {
	b := []byte{0}
	if v {
		b[0] = 1
	}
	blob, err := sealBytes(s.aead, b, boolAAD)
	if err != nil {
		return CipherBool{}, err
	}
	opsTotal.WithLabelValues("encrypt_bool").Inc()
	return CipherBool{blob: blob}, nil
}

// openUint decrypts a CipherUint for private evaluation inside the scheme.
func (s *Scheme) openUint(c CipherUint) (uint64, error) {
	if c.IsZero() {
		return 0, fmt.Errorf("fhe: uninitialised ciphertext")
	}
	pt, err := openBytes(s.aead, c.blob, c.width.aad())
	if err != nil {
		return 0, err
	}
	if len(pt) != 8 {
		return 0, fmt.Errorf("fhe: malformed plaintext length %d", len(pt))
	}
	return binary.BigEndian.Uint64(pt), nil
}

// openBool decrypts a CipherBool for private evaluation inside the scheme.
func (s *Scheme) openBool(b CipherBool) (bool, error) {
	if b.IsZero() {
		return false, fmt.Errorf("fhe: uninitialised ciphertext")
	}
	pt, err := openBytes(s.aead, b.blob, boolAAD)
	if err != nil {
		return false, err
	}
	if len(pt) != 1 {
		return false, fmt.Errorf("fhe: malformed plaintext length %d", len(pt))
	}
	return pt[0] != 0, nil
}

// reseal re-encrypts a computed value at the given width with a fresh nonce.
func (s *Scheme) resealUint(v uint64, w Width) (CipherUint, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v&w.mask())
	blob, err := sealBytes(s.aead, buf[:], w.aad())
	if err != nil {
		return CipherUint{}, err
	}
	return CipherUint{width: w, blob: blob}, nil
}

func (s *Scheme) resealBool(v bool) (CipherBool, error) {
	b := []byte{0}
	if v {
		b[0] = 1
	}
	blob, err := sealBytes(s.aead, b, boolAAD)
	if err != nil {
		return CipherBool{}, err
	}
	return CipherBool{blob: blob}, nil
}

// sameWidth validates that two operands share a modulus.
func sameWidth(a, b CipherUint) error {
	if a.width != b.width {
		return fmt.Errorf("fhe: width mismatch: %s vs %s", a.width, b.width)
	}
	return nil
}
