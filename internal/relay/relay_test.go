package relay

import (
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/store"
)

// First mainnet headers and their block hashes.
const (
	genesisHeaderHex = "0100000000000000000000000000000000000000000000000000000000000000" +
		"000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa" +
		"4b1e5e4a29ab5f49ffff001d1dac2b7c"
	header1Hex = "010000006fe28c0ab6f1b372c1a6a246ae63f74f931e8365e15a089c68d61900" +
		"00000000982051fd1e4ba744bbbe680e1fee14677ba1a3c3540bf7b1cdb606e8" +
		"57233e0e61bc6649ffff001d01e36299"
	header2Hex = "010000004860eb18bf1b1620e37e9490fc8a427514416fd75159ab86688e9a83" +
		"00000000d5fdcc541e25de1c7a5addedf24858b8bb665c9f36ef744ee42c3160" +
		"22c90f9bb0bc6649ffff001d08d2bd61"

	genesisHashHex = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	hash1Hex       = "00000000839a8e6886ab5951d76f411475428afc90947ee320161bbf18eb6048"
	hash2Hex       = "000000006a625f06636b8bb6ac7b960a8d03705d1ace08b1a19da3fdcc99ddbd"

	genesisTime = 1231006505
)

type nopMetrics struct{}

func (nopMetrics) Observe(string, error, time.Time) {}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func mustHash(t *testing.T, s string) [model.HashLength]byte {
	t.Helper()
	var out [model.HashLength]byte
	copy(out[:], mustHex(t, s))
	return out
}

func newTestRelay(t *testing.T) (*Relay, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	r, err := New(s, zap.NewNop(), nopMetrics{}, nil)
	require.NoError(t, err)
	return r, s
}

func initGenesis(t *testing.T, r *Relay) [model.HashLength]byte {
	t.Helper()
	hash, err := r.Initialize(mustHex(t, genesisHeaderHex), 0, big.NewInt(1), genesisTime)
	require.NoError(t, err)
	return hash
}

func TestRelay_Initialize(t *testing.T) {
	t.Parallel()

	r, s := newTestRelay(t)

	hash := initGenesis(t, r)
	require.Equal(t, mustHash(t, genesisHashHex), hash)

	tip, err := s.Tip()
	require.NoError(t, err)
	require.Equal(t, hash, tip.Hash)
	require.EqualValues(t, 0, tip.Height)
	require.EqualValues(t, 1, tip.ChainWork.Int64())

	_, err = r.Initialize(mustHex(t, genesisHeaderHex), 0, big.NewInt(1), genesisTime)
	require.ErrorIs(t, err, ErrAlreadyInitialized)

	_, err = r.Initialize([]byte{0x01}, 0, big.NewInt(1), genesisTime)
	require.ErrorIs(t, err, ErrInvalidHeaderLength)
}

func TestRelay_SubmitHeaderExtendsChain(t *testing.T) {
	t.Parallel()

	r, _ := newTestRelay(t)
	initGenesis(t, r)

	hash, err := r.SubmitHeader(mustHex(t, header1Hex), 1, "relayer-1")
	require.NoError(t, err)
	require.Equal(t, mustHash(t, hash1Hex), hash)

	tip, err := r.Tip()
	require.NoError(t, err)
	require.EqualValues(t, 1, tip.Height)
	require.Equal(t, hash, tip.Hash)
	// Difficulty-1 header adds exactly one unit of work.
	require.EqualValues(t, 2, tip.ChainWork.Int64())

	hash2, err := r.SubmitHeader(mustHex(t, header2Hex), 2, "relayer-2")
	require.NoError(t, err)
	require.Equal(t, mustHash(t, hash2Hex), hash2)

	tip, err = r.Tip()
	require.NoError(t, err)
	require.EqualValues(t, 2, tip.Height)
	require.EqualValues(t, 3, tip.ChainWork.Int64())

	rec, err := r.GetHeader(hash2)
	require.NoError(t, err)
	require.EqualValues(t, 2, rec.Height)
	require.Equal(t, "relayer-2", rec.Submitter)
	require.EqualValues(t, genesisTime, rec.LastRetargetTime)
}

func TestRelay_SubmitHeaderDuplicate(t *testing.T) {
	t.Parallel()

	r, _ := newTestRelay(t)
	initGenesis(t, r)

	_, err := r.SubmitHeader(mustHex(t, header1Hex), 1, "relayer-1")
	require.NoError(t, err)

	before, err := r.Tip()
	require.NoError(t, err)

	_, err = r.SubmitHeader(mustHex(t, header1Hex), 1, "relayer-2")
	require.ErrorIs(t, err, ErrDuplicateBlock)

	after, err := r.Tip()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRelay_SubmitHeaderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(t *testing.T, raw []byte) []byte
		height  uint32
		wantErr error
	}{
		{
			name: "wrong length",
			mutate: func(_ *testing.T, raw []byte) []byte {
				return raw[:79]
			},
			height:  1,
			wantErr: ErrInvalidHeaderLength,
		},
		{
			name: "no predecessor at height",
			mutate: func(_ *testing.T, raw []byte) []byte {
				return raw
			},
			height:  5,
			wantErr: ErrPrevBlockNotFound,
		},
		{
			name: "prev hash mismatch",
			mutate: func(_ *testing.T, raw []byte) []byte {
				out := append([]byte(nil), raw...)
				out[model.PrevHashOffset] ^= 0xff
				return out
			},
			height:  1,
			wantErr: ErrPrevBlockNotFound,
		},
		{
			name: "tampered nonce fails proof of work",
			mutate: func(_ *testing.T, raw []byte) []byte {
				out := append([]byte(nil), raw...)
				out[79] ^= 0xff
				return out
			},
			height:  1,
			wantErr: ErrLowDifficulty,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRelay(t)
			initGenesis(t, r)

			raw := tt.mutate(t, mustHex(t, header1Hex))
			_, err := r.SubmitHeader(raw, tt.height, "relayer-1")
			require.ErrorIs(t, err, tt.wantErr)

			// Failures leave the ledger untouched.
			tip, tipErr := r.Tip()
			require.NoError(t, tipErr)
			require.EqualValues(t, 0, tip.Height)
		})
	}
}

func TestRelay_SubmitHeaderNotMainChain(t *testing.T) {
	t.Parallel()

	r, s := newTestRelay(t)
	initGenesis(t, r)

	// Simulate a tip whose accumulated work already exceeds anything a
	// single difficulty-1 extension can reach.
	tip, err := s.Tip()
	require.NoError(t, err)
	require.NoError(t, s.AdvanceTip(tip.Hash, tip.Height, big.NewInt(1000)))

	_, err = r.SubmitHeader(mustHex(t, header1Hex), 1, "relayer-1")
	require.ErrorIs(t, err, ErrNotMainChain)
}

func TestRelay_SubmitBeforeInitialize(t *testing.T) {
	t.Parallel()

	r, _ := newTestRelay(t)

	_, err := r.SubmitHeader(mustHex(t, header1Hex), 1, "relayer-1")
	require.ErrorIs(t, err, ErrPrevBlockNotFound)
}

func TestRelay_GetHeaderUnknownHash(t *testing.T) {
	t.Parallel()

	r, _ := newTestRelay(t)
	initGenesis(t, r)

	_, err := r.GetHeader([model.HashLength]byte{0x01})
	require.ErrorIs(t, err, store.ErrNotFound)
}
