// Package secretshare splits a secret into three shares, any two of which
// reconstruct it, using degree-1 polynomials over GF(257).
//
// Each byte position is shared independently: f(x) = secret + c*x mod 257 with
// one uniformly random coefficient c per position, evaluated at x = 1, 2, 3.
// A single share is consistent with every possible secret byte, so on its own
// it reveals nothing. The package holds no state and is safe for concurrent use.
package secretshare

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Prime is the field modulus. It exceeds the byte range, so every non-zero
// residue has an inverse.
const Prime = 257

// Shares are produced at these x coordinates.
const (
	NumShares = 3
	Threshold = 2
)

var (
	ErrInvalidShareFormat  = errors.New("invalid share format")
	ErrShareLengthMismatch = errors.New("share length mismatch")
	ErrDuplicateShareID    = errors.New("duplicate share id")
	ErrNotInvertible       = errors.New("value not invertible")
)

// Share is one evaluation of the sharing polynomials. Values are field
// elements in [0, 256], one per secret byte.
type Share struct {
	ID     int
	Values []uint16
}

// Engine splits and reconstructs secrets. The zero value draws coefficients
// from crypto/rand.
type Engine struct {
	Rand io.Reader
}

// Split is Engine{}.Split.
func Split(secret []byte) ([NumShares]Share, error) {
	return Engine{}.Split(secret)
}

// Reconstruct is Engine{}.Reconstruct.
func Reconstruct(a, b Share) ([]byte, error) {
	return Engine{}.Reconstruct(a, b)
}

// Split produces three shares of secret. The coefficient vector is drawn once
// and used for all three shares so that any pair forms a consistent system.
func (e Engine) Split(secret []byte) ([NumShares]Share, error) {
	r := e.Rand
	if r == nil {
		r = rand.Reader
	}
	coeffs, err := randomCoefficients(r, len(secret))
	if err != nil {
		return [NumShares]Share{}, fmt.Errorf("draw coefficients: %w", err)
	}
	return splitWith(secret, coeffs), nil
}

func splitWith(secret []byte, coeffs []uint16) [NumShares]Share {
	var shares [NumShares]Share
	for i := range shares {
		x := i + 1
		values := make([]uint16, len(secret))
		for pos, s := range secret {
			values[pos] = uint16((int(s) + int(coeffs[pos])*x) % Prime)
		}
		shares[i] = Share{ID: x, Values: values}
	}
	return shares
}

// Reconstruct interpolates the two shares at x = 0. Errors never identify the
// offending position.
func (Engine) Reconstruct(a, b Share) ([]byte, error) {
	if !validID(a.ID) || !validID(b.ID) {
		return nil, ErrInvalidShareFormat
	}
	if a.ID == b.ID {
		return nil, ErrDuplicateShareID
	}
	if len(a.Values) != len(b.Values) {
		return nil, ErrShareLengthMismatch
	}
	inv, err := inverse(mod(b.ID - a.ID))
	if err != nil {
		return nil, err
	}
	secret := make([]byte, len(a.Values))
	for pos := range a.Values {
		ya, yb := int(a.Values[pos]), int(b.Values[pos])
		if ya >= Prime || yb >= Prime {
			return nil, ErrInvalidShareFormat
		}
		v := mod(mod(ya*b.ID-yb*a.ID) * inv)
		if v > 0xff {
			// Shares from different splits interpolate outside the byte range.
			return nil, ErrInvalidShareFormat
		}
		secret[pos] = byte(v)
	}
	return secret, nil
}

func validID(id int) bool { return id >= 1 && id <= NumShares }

func mod(v int) int {
	v %= Prime
	if v < 0 {
		v += Prime
	}
	return v
}

// inverse returns a^-1 mod Prime using the extended Euclidean algorithm.
func inverse(a int) (int, error) {
	oldR, r := mod(a), Prime
	oldS, s := 1, 0
	for r != 0 {
		q := oldR / r
		oldR, r = r, oldR-q*r
		oldS, s = s, oldS-q*s
	}
	if oldR != 1 {
		return 0, ErrNotInvertible
	}
	return mod(oldS), nil
}

// randomCoefficients draws n field elements uniformly from [0, Prime) by
// rejection sampling 9-bit values.
func randomCoefficients(r io.Reader, n int) ([]uint16, error) {
	out := make([]uint16, 0, n)
	buf := make([]byte, 2*n+16)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(buf) && len(out) < n; i += 2 {
			v := (uint16(buf[i])<<8 | uint16(buf[i+1])) & 0x1ff
			if v < Prime {
				out = append(out, v)
			}
		}
	}
	return out, nil
}
