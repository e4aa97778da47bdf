// Package relay validates raw Bitcoin block headers against consensus
// rules and maintains a trusted, append-only view of the best chain.
package relay

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/store"
	"github.com/goodnatureofminers/btcrelay7000-backend/internal/reward"
	"github.com/goodnatureofminers/btcrelay7000-backend/pkg/bytecodec"
)

type (
	// Metrics records relay operation outcomes.
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)

// Relay is the header validator. Mutations are serialized by an internal
// mutex; reads go straight to the store.
type Relay struct {
	mu      sync.Mutex
	store   store.Store
	logger  *zap.Logger
	metrics Metrics
	rewards reward.Recorder
}

// New constructs a Relay with its dependencies.
func New(s store.Store, logger *zap.Logger, metrics Metrics, rewards reward.Recorder) (*Relay, error) {
	if s == nil {
		return nil, errors.New("store is required")
	}
	if metrics == nil {
		return nil, errors.New("relay metrics is required")
	}
	if rewards == nil {
		rewards = reward.Nop{}
	}
	return &Relay{
		store:   s,
		logger:  logger,
		metrics: metrics,
		rewards: rewards,
	}, nil
}

// Initialize seeds the ledger with a trusted genesis header. Fails if
// any record already exists.
func (r *Relay) Initialize(rawHeader []byte, height uint32, chainWork *big.Int, lastRetargetTime uint32) (blockHash [model.HashLength]byte, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("initialize", err, started)
	}()

	if len(rawHeader) != model.HeaderLength {
		return blockHash, ErrInvalidHeaderLength
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	empty, err := r.store.Empty()
	if err != nil {
		return blockHash, fmt.Errorf("check store: %w", err)
	}
	if !empty {
		return blockHash, ErrAlreadyInitialized
	}

	copy(blockHash[:], bytecodec.DoubleSha256Flip(rawHeader))

	rec := model.HeaderRecord{
		Height:           height,
		BlockHash:        blockHash,
		ChainWork:        new(big.Int).Set(chainWork),
		LastRetargetTime: lastRetargetTime,
	}
	copy(rec.RawHeader[:], rawHeader)

	if err = r.store.PutAndAdvance(rec); err != nil {
		return blockHash, fmt.Errorf("store genesis: %w", err)
	}

	r.logger.Info("relay initialized",
		zap.Uint32("height", height),
		zap.String("block_hash", hex.EncodeToString(blockHash[:])),
	)
	return blockHash, nil
}

// SubmitHeader validates a raw header extending the stored best chain
// and, on success, appends it and advances the tip. payoutAccount is
// recorded for the reward layer.
func (r *Relay) SubmitHeader(rawHeader []byte, claimedHeight uint32, payoutAccount string) (blockHash [model.HashLength]byte, err error) {
	started := time.Now()
	defer func() {
		r.metrics.Observe("submit_header", err, started)
	}()

	if len(rawHeader) != model.HeaderLength {
		return blockHash, ErrInvalidHeaderLength
	}

	prevHash := model.HeaderPrevHash(rawHeader)
	copy(blockHash[:], bytecodec.DoubleSha256Flip(rawHeader))

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err = r.store.Get(claimedHeight); err == nil {
		return blockHash, ErrDuplicateBlock
	} else if !errors.Is(err, store.ErrNotFound) {
		return blockHash, fmt.Errorf("check height %d: %w", claimedHeight, err)
	}

	if claimedHeight == 0 {
		return blockHash, ErrPrevBlockNotFound
	}
	pred, err := r.store.Get(claimedHeight - 1)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return blockHash, ErrPrevBlockNotFound
		}
		return blockHash, fmt.Errorf("load predecessor: %w", err)
	}
	if pred.BlockHash != prevHash {
		return blockHash, ErrPrevBlockNotFound
	}

	target, err := NBitsToTarget(model.HeaderBits(rawHeader))
	if err != nil {
		return blockHash, err
	}

	hashValue, err := bytecodec.BytesToUint(blockHash[:])
	if err != nil {
		return blockHash, fmt.Errorf("hash value: %w", err)
	}
	if target.Sign() == 0 || hashValue.Cmp(target) > 0 {
		return blockHash, ErrLowDifficulty
	}

	if err = correctDifficultyTarget(pred, claimedHeight, target); err != nil {
		return blockHash, err
	}

	difficulty := new(big.Int).Quo(maxTarget, target)
	chainWork := new(big.Int).Add(pred.ChainWork, difficulty)

	tip, err := r.store.Tip()
	if err != nil {
		return blockHash, fmt.Errorf("load tip: %w", err)
	}
	if chainWork.Cmp(tip.ChainWork) <= 0 {
		return blockHash, ErrNotMainChain
	}

	lastRetargetTime := pred.LastRetargetTime
	if DifficultyShouldRetarget(claimedHeight) {
		lastRetargetTime = model.HeaderTime(rawHeader)
	}

	rec := model.HeaderRecord{
		Height:           claimedHeight,
		BlockHash:        blockHash,
		ChainWork:        chainWork,
		LastRetargetTime: lastRetargetTime,
		Submitter:        payoutAccount,
	}
	copy(rec.RawHeader[:], rawHeader)

	if err = r.store.PutAndAdvance(rec); err != nil {
		return blockHash, fmt.Errorf("store header: %w", err)
	}

	r.rewards.Record(claimedHeight, blockHash, payoutAccount)
	r.logger.Info("header accepted",
		zap.Uint32("height", claimedHeight),
		zap.String("block_hash", hex.EncodeToString(blockHash[:])),
		zap.String("submitter", payoutAccount),
	)
	return blockHash, nil
}

// GetHeader returns the stored record with the given block hash.
func (r *Relay) GetHeader(hash [model.HashLength]byte) (model.HeaderRecord, error) {
	return r.store.GetByHash(hash)
}

// Tip returns the current best-chain head.
func (r *Relay) Tip() (model.ChainTip, error) {
	return r.store.Tip()
}
