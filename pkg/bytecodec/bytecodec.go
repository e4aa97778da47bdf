// Package bytecodec provides byte-order and slicing primitives for raw
// Bitcoin header and transaction encodings.
package bytecodec

import (
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrOutOfRange is returned when a requested slice exceeds the buffer.
var ErrOutOfRange = errors.New("slice out of range")

// maxUintBytes bounds BytesToUint input to a 256-bit value.
const maxUintBytes = 32

// Slice returns data[offset:offset+length] without copying.
func Slice(data []byte, offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(data) {
		return nil, ErrOutOfRange
	}
	return data[offset : offset+length], nil
}

// Flip returns a copy of b with its byte order reversed. Bitcoin encodes
// hashes and header fields little-endian on the wire; comparisons and
// arithmetic here use the flipped, big-endian form.
func Flip(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// BytesToUint interprets b as a big-endian unsigned integer of at most
// 32 bytes.
func BytesToUint(b []byte) (*big.Int, error) {
	if len(b) > maxUintBytes {
		return nil, ErrOutOfRange
	}
	return new(big.Int).SetBytes(b), nil
}

// EqualBytes reports whether a and b hold the same bytes.
func EqualBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// DoubleSha256Flip computes SHA-256 twice over data and reverses the
// result. This is the canonical Bitcoin block/transaction hash in its
// big-endian display form.
func DoubleSha256Flip(data []byte) []byte {
	return Flip(chainhash.DoubleHashB(data))
}
