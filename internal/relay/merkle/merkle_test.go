package merkle

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/store"
	"github.com/goodnatureofminers/btcrelay7000-backend/pkg/bytecodec"
)

// Mainnet block 2 is coinbase-only: its Merkle root is the coinbase txid.
const (
	header2Hex = "010000004860eb18bf1b1620e37e9490fc8a427514416fd75159ab86688e9a83" +
		"00000000d5fdcc541e25de1c7a5addedf24858b8bb665c9f36ef744ee42c3160" +
		"22c90f9bb0bc6649ffff001d08d2bd61"
	coinbase2Hex = "9b0fc92260312ce44e74ef369f5c66bbb85848f2eddd5a7a1cde251e54ccfdd5"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func repeated(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestComputeRoot_SingleHashIsRoot(t *testing.T) {
	t.Parallel()

	proof := repeated(0xab)
	root, err := ComputeRoot(0, proof)
	require.NoError(t, err)
	require.Equal(t, proof, root)

	// The returned root is a copy, not an alias.
	root[0] = 0x00
	require.EqualValues(t, 0xab, proof[0])
}

func TestComputeRoot_Shape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "short", size: 31},
		{name: "two hashes", size: 64},
		{name: "not power of two", size: 96},
		{name: "odd length", size: 129},
		{name: "above cap", size: 2048},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeRoot(0, make([]byte, tt.size))
			require.ErrorIs(t, err, ErrInvalidProofShape)
		})
	}
}

func TestComputeRoot_FoldsSiblingsByParity(t *testing.T) {
	t.Parallel()

	proof := bytes.Join([][]byte{
		repeated(0xaa), repeated(0xbb), repeated(0xcc), repeated(0xdd),
	}, nil)

	tests := []struct {
		name    string
		txIndex uint32
		want    string
	}{
		{
			name:    "even path",
			txIndex: 0,
			want:    "2792a845a9e64df69dc3b5ece9b53018981011eeda27a45d4cc48e5b27e6c3e4",
		},
		{
			name:    "mixed parity path",
			txIndex: 5,
			want:    "0df810f31252c51e84666591fb31274cebc42bbf5b7ffab3ff1d01662b7559fa",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			root, err := ComputeRoot(tt.txIndex, proof)
			require.NoError(t, err)
			require.Equal(t, tt.want, hex.EncodeToString(root))
		})
	}
}

func TestComputeRoot_MatchesManualFold(t *testing.T) {
	t.Parallel()

	leaf := repeated(0x11)
	s1 := repeated(0x22)
	s2 := repeated(0x33)
	s3 := repeated(0x44)
	proof := bytes.Join([][]byte{leaf, s1, s2, s3}, nil)

	// Index 1: odd, then even, even.
	step1 := bytecodec.DoubleSha256Flip(append(append([]byte{}, s1...), leaf...))
	step2 := bytecodec.DoubleSha256Flip(append(append([]byte{}, step1...), s2...))
	want := bytecodec.DoubleSha256Flip(append(append([]byte{}, step2...), s3...))

	root, err := ComputeRoot(1, proof)
	require.NoError(t, err)
	require.Equal(t, want, root)
}

func seededStore(t *testing.T) *store.Memory {
	t.Helper()

	headers := []string{
		"0100000000000000000000000000000000000000000000000000000000000000" +
			"000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa" +
			"4b1e5e4a29ab5f49ffff001d1dac2b7c",
		"010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d61900" +
			"00000000982051fd1e4ba744bbbe680e1fee14677ba1a3c3540bf7b1cdb606e8" +
			"57233e0e61bc6649ffff001d01e36299",
		header2Hex,
	}

	s := store.NewMemory()
	for height, h := range headers {
		raw := mustHex(t, h)
		rec := model.HeaderRecord{
			Height:    uint32(height),
			ChainWork: big.NewInt(int64(height) + 1),
		}
		copy(rec.BlockHash[:], bytecodec.DoubleSha256Flip(raw))
		copy(rec.RawHeader[:], raw)
		require.NoError(t, s.PutAndAdvance(rec))
	}
	return s
}

func TestVerifyInclusion(t *testing.T) {
	t.Parallel()

	var txid [32]byte
	copy(txid[:], mustHex(t, coinbase2Hex))
	proof := mustHex(t, coinbase2Hex)

	t.Run("known mainnet coinbase verifies", func(t *testing.T) {
		v := NewVerifier(seededStore(t))
		ok, err := v.VerifyInclusion(txid, 2, 0, proof, 0)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("single altered byte fails", func(t *testing.T) {
		v := NewVerifier(seededStore(t))
		bad := append([]byte(nil), proof...)
		bad[7] ^= 0x01

		ok, err := v.VerifyInclusion(txid, 2, 0, bad, 0)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("zero txid rejected", func(t *testing.T) {
		v := NewVerifier(seededStore(t))
		_, err := v.VerifyInclusion([32]byte{}, 2, 0, proof, 0)
		require.ErrorIs(t, err, ErrInvalidTxID)
	})

	t.Run("insufficient confirmations", func(t *testing.T) {
		v := NewVerifier(seededStore(t))
		_, err := v.VerifyInclusion(txid, 2, 0, proof, 1)
		require.ErrorIs(t, err, ErrInsufficientConfirmations)

		// The tip block itself clears a zero-confirmation requirement.
		ok, err := v.VerifyInclusion(txid, 2, 0, proof, 0)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("unknown height", func(t *testing.T) {
		v := NewVerifier(seededStore(t))
		_, err := v.VerifyInclusion(txid, 9, 0, proof, 0)
		require.ErrorIs(t, err, ErrInsufficientConfirmations)
	})
}
