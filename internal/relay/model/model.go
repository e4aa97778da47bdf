// Package model defines domain models for the header relay.
package model

import "math/big"

// HeaderLength is the size of a raw Bitcoin block header.
const HeaderLength = 80

// Raw header field offsets, per the Bitcoin wire encoding.
const (
	PrevHashOffset   = 4
	MerkleRootOffset = 36
	TimeOffset       = 68
	BitsOffset       = 72
	HashLength       = 32
)

// HeaderRecord is one accepted block header, keyed by height.
type HeaderRecord struct {
	Height    uint32
	BlockHash [HashLength]byte
	RawHeader [HeaderLength]byte
	// ChainWork accumulates expected hashing effort up to and including
	// this header.
	ChainWork *big.Int
	// LastRetargetTime is the timestamp of the most recent retarget
	// boundary at or below this height.
	LastRetargetTime uint32
	// Submitter is the payout account credited for relaying this header.
	// Consumed by the reward layer; the relay core only records it.
	Submitter string
}

// ChainTip is the current best-chain head. Owned exclusively by the
// chain store; advanced only after a validated submission.
type ChainTip struct {
	Hash      [HashLength]byte
	Height    uint32
	ChainWork *big.Int
}
