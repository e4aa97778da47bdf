package relay

import (
	"errors"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/store"
)

var (
	// ErrAlreadyInitialized is returned by Initialize on a non-empty ledger.
	ErrAlreadyInitialized = errors.New("relay already initialized")
	// ErrInvalidHeaderLength is returned for headers that are not 80 bytes.
	ErrInvalidHeaderLength = errors.New("invalid header length")
	// ErrDuplicateBlock is returned when the claimed height is occupied.
	ErrDuplicateBlock = store.ErrDuplicateBlock
	// ErrPrevBlockNotFound is returned when the predecessor is missing or
	// its hash does not match the header's previous-hash field.
	ErrPrevBlockNotFound = errors.New("previous block not found")
	// ErrLowDifficulty is returned when the header hash exceeds its target.
	ErrLowDifficulty = errors.New("insufficient proof of work")
	// ErrDifficultyMismatch is returned when the embedded target does not
	// match the expected (possibly retargeted) difficulty.
	ErrDifficultyMismatch = errors.New("difficulty target mismatch")
	// ErrNotMainChain is returned for extensions whose accumulated work
	// does not exceed the current tip. Forks are rejected outright.
	ErrNotMainChain = errors.New("not extending main chain")
)
