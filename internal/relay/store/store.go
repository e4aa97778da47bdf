// Package store persists the height-indexed header ledger and the chain
// tip singleton.
package store

import (
	"errors"
	"math/big"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
)

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("header record not found")
	// ErrDuplicateBlock is returned by Put when the height is already
	// occupied. Records are first-writer-wins and never overwritten.
	ErrDuplicateBlock = errors.New("duplicate block at height")
	// ErrNoTip is returned by Tip on an uninitialized store.
	ErrNoTip = errors.New("chain tip not set")
)

// Store is the header ledger. Put and AdvanceTip perform no validation
// beyond occupancy: ordering, linkage and chain-work checks are the
// validator's responsibility.
type Store interface {
	Get(height uint32) (model.HeaderRecord, error)
	GetByHash(hash [model.HashLength]byte) (model.HeaderRecord, error)
	Put(height uint32, rec model.HeaderRecord) error
	Tip() (model.ChainTip, error)
	// AdvanceTip moves the tip. The caller must already have validated
	// strictly greater chain-work.
	AdvanceTip(hash [model.HashLength]byte, height uint32, chainWork *big.Int) error
	// PutAndAdvance applies a record write and a tip advance as one
	// atomic mutation.
	PutAndAdvance(rec model.HeaderRecord) error
	Empty() (bool, error)
	Close() error
}
