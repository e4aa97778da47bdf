package model

import (
	"encoding/binary"

	"github.com/goodnatureofminers/btcrelay7000-backend/pkg/bytecodec"
)

// HeaderPrevHash returns the previous-block hash field in big-endian
// display order.
func HeaderPrevHash(raw []byte) [HashLength]byte {
	var out [HashLength]byte
	copy(out[:], bytecodec.Flip(raw[PrevHashOffset:PrevHashOffset+HashLength]))
	return out
}

// HeaderMerkleRoot returns the Merkle-root field in big-endian display
// order.
func HeaderMerkleRoot(raw []byte) [HashLength]byte {
	var out [HashLength]byte
	copy(out[:], bytecodec.Flip(raw[MerkleRootOffset:MerkleRootOffset+HashLength]))
	return out
}

// HeaderTime returns the header timestamp.
func HeaderTime(raw []byte) uint32 {
	return binary.LittleEndian.Uint32(raw[TimeOffset : TimeOffset+4])
}

// HeaderBits returns the compact difficulty target (nBits).
func HeaderBits(raw []byte) uint32 {
	return binary.LittleEndian.Uint32(raw[BitsOffset : BitsOffset+4])
}
