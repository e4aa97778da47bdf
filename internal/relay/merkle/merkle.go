// Package merkle reconstructs Merkle roots from inclusion proofs and
// checks them against stored headers.
package merkle

import (
	"errors"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/store"
	"github.com/goodnatureofminers/btcrelay7000-backend/pkg/bytecodec"
)

const (
	hashLen = model.HashLength
	// maxProofBytes bounds proof iteration; caller-supplied input must
	// never drive unbounded work.
	maxProofBytes = 1024
)

var (
	// ErrInvalidProofShape is returned for proofs that are not a single
	// hash or a power-of-two byte string above 64 bytes.
	ErrInvalidProofShape = errors.New("invalid merkle proof shape")
	// ErrInvalidTxID is returned for the all-zero transaction id.
	ErrInvalidTxID = errors.New("invalid transaction id")
	// ErrInsufficientConfirmations is returned when the block is not
	// buried deep enough under the tip.
	ErrInsufficientConfirmations = errors.New("insufficient confirmations")
)

// Verifier checks transaction inclusion against the header ledger.
type Verifier struct {
	store store.Store
}

// NewVerifier constructs a Verifier reading from s.
func NewVerifier(s store.Store) *Verifier {
	return &Verifier{store: s}
}

// ComputeRoot folds a proof into a Merkle root. A 32-byte proof is a
// coinbase-only block: the proof is the root. Otherwise the proof is the
// leaf hash followed by sibling hashes; its length must be a power of
// two above 64 bytes. The leaf index's parity decides concatenation
// order at every level.
func ComputeRoot(txIndex uint32, proof []byte) ([]byte, error) {
	if len(proof) == hashLen {
		return append([]byte(nil), proof...), nil
	}
	if len(proof) <= 2*hashLen || len(proof) > maxProofBytes || !isPowerOfTwo(len(proof)) {
		return nil, ErrInvalidProofShape
	}

	acc := append([]byte(nil), proof[:hashLen]...)
	index := txIndex
	for offset := hashLen; offset < len(proof); offset += hashLen {
		sibling := proof[offset : offset+hashLen]
		if index%2 == 1 {
			acc = bytecodec.DoubleSha256Flip(concat(sibling, acc))
		} else {
			acc = bytecodec.DoubleSha256Flip(concat(acc, sibling))
		}
		index /= 2
	}
	return acc, nil
}

// VerifyInclusion reports whether txid at txIndex is included in the
// stored block at blockHeight, requiring the block to be buried under at
// least confirmations blocks.
func (v *Verifier) VerifyInclusion(txid [hashLen]byte, blockHeight, txIndex uint32, proof []byte, confirmations uint32) (bool, error) {
	if txid == [hashLen]byte{} {
		return false, ErrInvalidTxID
	}

	tip, err := v.store.Tip()
	if err != nil {
		return false, err
	}
	if tip.Height < blockHeight || tip.Height-blockHeight < confirmations {
		return false, ErrInsufficientConfirmations
	}

	rec, err := v.store.Get(blockHeight)
	if err != nil {
		return false, err
	}

	root, err := ComputeRoot(txIndex, proof)
	if err != nil {
		return false, err
	}

	want := model.HeaderMerkleRoot(rec.RawHeader[:])
	return bytecodec.EqualBytes(root, want[:]), nil
}

func concat(a, b []byte) []byte {
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
