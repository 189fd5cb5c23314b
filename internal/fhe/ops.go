package fhe

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrExactRatioUnsupported is returned by MulDivScalar when the scheme was
// built without exact-ratio support.
var ErrExactRatioUnsupported = errors.New("fhe: exact ratio not supported on this substrate")

// binOp evaluates a binary arithmetic operation privately, resealing the
// result under a fresh nonce.
func (s *Scheme) binOp(name string, a, b CipherUint, f func(x, y uint64) uint64) (CipherUint, error) {
	if err := sameWidth(a, b); err != nil {
		return CipherUint{}, err
	}
	x, err := s.openUint(a)
	if err != nil {
		return CipherUint{}, fmt.Errorf("fhe: %s lhs: %w", name, err)
	}
	y, err := s.openUint(b)
	if err != nil {
		return CipherUint{}, fmt.Errorf("fhe: %s rhs: %w", name, err)
	}
	opsTotal.WithLabelValues(name).Inc()
	return s.resealUint(f(x, y), a.width)
}

// cmpOp evaluates a comparison privately, producing an encrypted boolean.
func (s *Scheme) cmpOp(name string, a, b CipherUint, f func(x, y uint64) bool) (CipherBool, error) {
	if err := sameWidth(a, b); err != nil {
		return CipherBool{}, err
	}
	x, err := s.openUint(a)
	if err != nil {
		return CipherBool{}, fmt.Errorf("fhe: %s lhs: %w", name, err)
	}
	y, err := s.openUint(b)
	if err != nil {
		return CipherBool{}, fmt.Errorf("fhe: %s rhs: %w", name, err)
	}
	opsTotal.WithLabelValues(name).Inc()
	return s.resealBool(f(x, y))
}

// Add returns a+b. The sum wraps modulo the operand width.
func (s *Scheme) Add(a, b CipherUint) (CipherUint, error) {
	return s.binOp("add", a, b, func(x, y uint64) uint64 { return x + y })
}

// Sub returns a-b. The difference wraps modulo the operand width when b
// exceeds a; callers that need a floor at zero should order operands with
// Gt and Select first.
func (s *Scheme) Sub(a, b CipherUint) (CipherUint, error) {
	return s.binOp("sub", a, b, func(x, y uint64) uint64 { return x - y })
}

// Gt returns an encrypted a>b.
func (s *Scheme) Gt(a, b CipherUint) (CipherBool, error) {
	return s.cmpOp("gt", a, b, func(x, y uint64) bool { return x > y })
}

// Lt returns an encrypted a<b.
func (s *Scheme) Lt(a, b CipherUint) (CipherBool, error) {
	return s.cmpOp("lt", a, b, func(x, y uint64) bool { return x < y })
}

// Gte returns an encrypted a>=b.
func (s *Scheme) Gte(a, b CipherUint) (CipherBool, error) {
	return s.cmpOp("gte", a, b, func(x, y uint64) bool { return x >= y })
}

// Lte returns an encrypted a<=b.
func (s *Scheme) Lte(a, b CipherUint) (CipherBool, error) {
	return s.cmpOp("lte", a, b, func(x, y uint64) bool { return x <= y })
}

// Eq returns an encrypted a==b. Equality is evaluated on the underlying
// values; two independently produced ciphertexts of the same value compare
// equal even though their blobs differ.
func (s *Scheme) Eq(a, b CipherUint) (CipherBool, error) {
	return s.cmpOp("eq", a, b, func(x, y uint64) bool { return x == y })
}

// Select returns a when cond is true, b otherwise, without revealing cond.
func (s *Scheme) Select(cond CipherBool, a, b CipherUint) (CipherUint, error) {
	if err := sameWidth(a, b); err != nil {
		return CipherUint{}, err
	}
	c, err := s.openBool(cond)
	if err != nil {
		return CipherUint{}, fmt.Errorf("fhe: select cond: %w", err)
	}
	x, err := s.openUint(a)
	if err != nil {
		return CipherUint{}, fmt.Errorf("fhe: select lhs: %w", err)
	}
	y, err := s.openUint(b)
	if err != nil {
		return CipherUint{}, fmt.Errorf("fhe: select rhs: %w", err)
	}
	opsTotal.WithLabelValues("select").Inc()
	if c {
		return s.resealUint(x, a.width)
	}
	return s.resealUint(y, a.width)
}

// SelectBool returns a when cond is true, b otherwise.
func (s *Scheme) SelectBool(cond, a, b CipherBool) (CipherBool, error) {
	c, err := s.openBool(cond)
	if err != nil {
		return CipherBool{}, fmt.Errorf("fhe: select cond: %w", err)
	}
	x, err := s.openBool(a)
	if err != nil {
		return CipherBool{}, fmt.Errorf("fhe: select lhs: %w", err)
	}
	y, err := s.openBool(b)
	if err != nil {
		return CipherBool{}, fmt.Errorf("fhe: select rhs: %w", err)
	}
	opsTotal.WithLabelValues("select_bool").Inc()
	if c {
		return s.resealBool(x)
	}
	return s.resealBool(y)
}

// boolBinOp evaluates a boolean connective privately.
func (s *Scheme) boolBinOp(name string, a, b CipherBool, f func(x, y bool) bool) (CipherBool, error) {
	x, err := s.openBool(a)
	if err != nil {
		return CipherBool{}, fmt.Errorf("fhe: %s lhs: %w", name, err)
	}
	y, err := s.openBool(b)
	if err != nil {
		return CipherBool{}, fmt.Errorf("fhe: %s rhs: %w", name, err)
	}
	opsTotal.WithLabelValues(name).Inc()
	return s.resealBool(f(x, y))
}

// And returns an encrypted a&&b.
func (s *Scheme) And(a, b CipherBool) (CipherBool, error) {
	return s.boolBinOp("and", a, b, func(x, y bool) bool { return x && y })
}

// Or returns an encrypted a||b.
func (s *Scheme) Or(a, b CipherBool) (CipherBool, error) {
	return s.boolBinOp("or", a, b, func(x, y bool) bool { return x || y })
}

// Not returns an encrypted !a.
func (s *Scheme) Not(a CipherBool) (CipherBool, error) {
	x, err := s.openBool(a)
	if err != nil {
		return CipherBool{}, fmt.Errorf("fhe: not: %w", err)
	}
	opsTotal.WithLabelValues("not").Inc()
	return s.resealBool(!x)
}

// Shr shifts the encrypted value right by a plaintext number of bits. The
// shift count is public; only the shifted magnitude stays hidden. Shifts of
// the width or more yield encrypted zero.
func (s *Scheme) Shr(a CipherUint, bits uint) (CipherUint, error) {
	x, err := s.openUint(a)
	if err != nil {
		return CipherUint{}, fmt.Errorf("fhe: shr: %w", err)
	}
	opsTotal.WithLabelValues("shr").Inc()
	if bits >= 64 {
		return s.resealUint(0, a.width)
	}
	return s.resealUint((x&a.width.mask())>>bits, a.width)
}

// Min returns the smaller of a and b without revealing either.
func (s *Scheme) Min(a, b CipherUint) (CipherUint, error) {
	return s.binOp("min", a, b, func(x, y uint64) uint64 {
		if x < y {
			return x
		}
		return y
	})
}

// Max returns the larger of a and b without revealing either.
func (s *Scheme) Max(a, b CipherUint) (CipherUint, error) {
	return s.binOp("max", a, b, func(x, y uint64) uint64 {
		if x > y {
			return x
		}
		return y
	})
}

// MulDivScalar returns a*num/den with plaintext num and den, truncating
// toward zero. It is only available when the scheme was built with exact
// ratio support; callers gate on SupportsExactRatio. The intermediate
// product is taken at full 128-bit precision so a*num cannot overflow.
func (s *Scheme) MulDivScalar(a CipherUint, num, den uint64) (CipherUint, error) {
	if !s.exactRatio {
		return CipherUint{}, ErrExactRatioUnsupported
	}
	if den == 0 {
		return CipherUint{}, errors.New("fhe: division by zero")
	}
	x, err := s.openUint(a)
	if err != nil {
		return CipherUint{}, fmt.Errorf("fhe: muldiv: %w", err)
	}
	opsTotal.WithLabelValues("muldiv_scalar").Inc()
	hi, lo := bits.Mul64(x, num)
	if hi >= den {
		// Quotient would overflow 64 bits; saturate.
		return s.resealUint(^uint64(0), a.width)
	}
	q, _ := bits.Div64(hi, lo, den)
	return s.resealUint(q, a.width)
}
