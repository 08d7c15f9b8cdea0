// transcript.go - Fiat–Shamir hashing and fixed-width encoders.
//
// Every challenge in the core is SHA-256 over the plain concatenation of its
// parts, read big-endian and reduced modulo the group order. A zero result is
// replaced by one so no challenge can vanish.

package transcript

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"mockmonero/internal/group"
)

// Digest returns SHA-256 over the concatenated parts.
func Digest(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashToScalar hashes the parts into [1, order).
func HashToScalar(order *big.Int, parts ...[]byte) *big.Int {
	d := Digest(parts...)
	e := new(big.Int).SetBytes(d[:])
	e.Mod(e, order)
	if e.Sign() == 0 {
		e.SetInt64(1)
	}
	return e
}

// Challenge is HashToScalar over the group's order.
func Challenge(g group.Group, parts ...[]byte) *big.Int {
	return HashToScalar(g.Order(), parts...)
}

// Scalar encodes k as 32 big-endian bytes. k must be non-negative and fit.
func Scalar(k *big.Int) []byte {
	return k.FillBytes(make([]byte, group.PointSize))
}

// Int encodes a small non-negative integer as 32 big-endian bytes.
func Int(v int) []byte {
	return Scalar(big.NewInt(int64(v)))
}

// Point returns the 32-byte encoding of p.
func Point(p group.Point) []byte {
	b := p.Bytes()
	return b[:]
}

// Points concatenates the encodings of ps.
func Points(ps []group.Point) []byte {
	out := make([]byte, 0, len(ps)*group.PointSize)
	for _, p := range ps {
		b := p.Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// Uint16 encodes v as 2 big-endian bytes.
func Uint16(v int) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return b[:]
}
