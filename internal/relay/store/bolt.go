package store

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
)

var (
	bucketHeaders = []byte("headers_by_height")
	bucketHashIdx = []byte("height_by_hash")
	bucketTip     = []byte("tip")
)

var tipKey = []byte("tip")

// Bolt is a Store backed by a bbolt database. Every mutation runs in a
// single write transaction, so a record write and a tip advance commit
// together or not at all.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the ledger database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHeaders, bucketHashIdx, bucketTip} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// Get returns the record stored at height.
func (s *Bolt) Get(height uint32) (model.HeaderRecord, error) {
	var rec model.HeaderRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketHeaders).Get(heightKey(height))
		if raw == nil {
			return ErrNotFound
		}
		var err error
		rec, err = decodeRecord(raw)
		return err
	})
	return rec, err
}

// GetByHash returns the record with the given block hash.
func (s *Bolt) GetByHash(hash [model.HashLength]byte) (model.HeaderRecord, error) {
	var rec model.HeaderRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		heightRaw := tx.Bucket(bucketHashIdx).Get(hash[:])
		if heightRaw == nil {
			return ErrNotFound
		}
		raw := tx.Bucket(bucketHeaders).Get(heightRaw)
		if raw == nil {
			return ErrNotFound
		}
		var err error
		rec, err = decodeRecord(raw)
		return err
	})
	return rec, err
}

// Put stores rec at height, failing if the height is occupied.
func (s *Bolt) Put(height uint32, rec model.HeaderRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putRecord(tx, height, rec)
	})
}

// Tip returns the current chain tip.
func (s *Bolt) Tip() (model.ChainTip, error) {
	var tip model.ChainTip
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTip).Get(tipKey)
		if raw == nil {
			return ErrNoTip
		}
		var err error
		tip, err = decodeTip(raw)
		return err
	})
	return tip, err
}

// AdvanceTip moves the tip without validation.
func (s *Bolt) AdvanceTip(hash [model.HashLength]byte, height uint32, chainWork *big.Int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return writeTip(tx, hash, height, chainWork)
	})
}

// PutAndAdvance writes rec and advances the tip in one transaction.
func (s *Bolt) PutAndAdvance(rec model.HeaderRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putRecord(tx, rec.Height, rec); err != nil {
			return err
		}
		return writeTip(tx, rec.BlockHash, rec.Height, rec.ChainWork)
	})
}

// Empty reports whether no records are stored.
func (s *Bolt) Empty() (bool, error) {
	var empty bool
	err := s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketHeaders).Cursor().First()
		empty = k == nil
		return nil
	})
	return empty, err
}

// Close releases the underlying database.
func (s *Bolt) Close() error {
	return s.db.Close()
}

func putRecord(tx *bolt.Tx, height uint32, rec model.HeaderRecord) error {
	key := heightKey(height)
	headers := tx.Bucket(bucketHeaders)
	if headers.Get(key) != nil {
		return ErrDuplicateBlock
	}
	if err := headers.Put(key, encodeRecord(rec)); err != nil {
		return fmt.Errorf("put header record: %w", err)
	}
	if err := tx.Bucket(bucketHashIdx).Put(rec.BlockHash[:], key); err != nil {
		return fmt.Errorf("put hash index: %w", err)
	}
	return nil
}

func writeTip(tx *bolt.Tx, hash [model.HashLength]byte, height uint32, chainWork *big.Int) error {
	if err := tx.Bucket(bucketTip).Put(tipKey, encodeTip(hash, height, chainWork)); err != nil {
		return fmt.Errorf("put tip: %w", err)
	}
	return nil
}

func heightKey(height uint32) []byte {
	var key [4]byte
	binary.BigEndian.PutUint32(key[:], height)
	return key[:]
}

// Record layout: height(4) | blockHash(32) | rawHeader(80) |
// lastRetargetTime(4) | submitterLen(2) | submitter | chainWork.
func encodeRecord(rec model.HeaderRecord) []byte {
	submitter := []byte(rec.Submitter)
	work := rec.ChainWork.Bytes()

	out := make([]byte, 0, 4+model.HashLength+model.HeaderLength+4+2+len(submitter)+len(work))
	out = binary.BigEndian.AppendUint32(out, rec.Height)
	out = append(out, rec.BlockHash[:]...)
	out = append(out, rec.RawHeader[:]...)
	out = binary.BigEndian.AppendUint32(out, rec.LastRetargetTime)
	out = binary.BigEndian.AppendUint16(out, uint16(len(submitter)))
	out = append(out, submitter...)
	out = append(out, work...)
	return out
}

func decodeRecord(raw []byte) (model.HeaderRecord, error) {
	const fixed = 4 + model.HashLength + model.HeaderLength + 4 + 2
	if len(raw) < fixed {
		return model.HeaderRecord{}, fmt.Errorf("header record too short: %d bytes", len(raw))
	}

	var rec model.HeaderRecord
	rec.Height = binary.BigEndian.Uint32(raw[0:4])
	copy(rec.BlockHash[:], raw[4:4+model.HashLength])
	copy(rec.RawHeader[:], raw[4+model.HashLength:4+model.HashLength+model.HeaderLength])
	off := 4 + model.HashLength + model.HeaderLength
	rec.LastRetargetTime = binary.BigEndian.Uint32(raw[off : off+4])
	off += 4
	submitterLen := int(binary.BigEndian.Uint16(raw[off : off+2]))
	off += 2
	if len(raw) < off+submitterLen {
		return model.HeaderRecord{}, fmt.Errorf("header record truncated submitter")
	}
	rec.Submitter = string(raw[off : off+submitterLen])
	off += submitterLen
	rec.ChainWork = new(big.Int).SetBytes(raw[off:])
	return rec, nil
}

// Tip layout: hash(32) | height(4) | chainWork.
func encodeTip(hash [model.HashLength]byte, height uint32, chainWork *big.Int) []byte {
	work := chainWork.Bytes()
	out := make([]byte, 0, model.HashLength+4+len(work))
	out = append(out, hash[:]...)
	out = binary.BigEndian.AppendUint32(out, height)
	out = append(out, work...)
	return out
}

func decodeTip(raw []byte) (model.ChainTip, error) {
	if len(raw) < model.HashLength+4 {
		return model.ChainTip{}, fmt.Errorf("tip record too short: %d bytes", len(raw))
	}
	var tip model.ChainTip
	copy(tip.Hash[:], raw[:model.HashLength])
	tip.Height = binary.BigEndian.Uint32(raw[model.HashLength : model.HashLength+4])
	tip.ChainWork = new(big.Int).SetBytes(raw[model.HashLength+4:])
	return tip, nil
}
