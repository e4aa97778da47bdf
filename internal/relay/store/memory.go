package store

import (
	"math/big"
	"sync"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
)

// Memory is an in-process Store backed by maps. Safe for concurrent
// readers; mutations take the write lock.
type Memory struct {
	mu       sync.RWMutex
	byHeight map[uint32]model.HeaderRecord
	byHash   map[[model.HashLength]byte]uint32
	tip      *model.ChainTip
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byHeight: make(map[uint32]model.HeaderRecord),
		byHash:   make(map[[model.HashLength]byte]uint32),
	}
}

// Get returns the record stored at height.
func (m *Memory) Get(height uint32) (model.HeaderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byHeight[height]
	if !ok {
		return model.HeaderRecord{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

// GetByHash returns the record with the given block hash.
func (m *Memory) GetByHash(hash [model.HashLength]byte) (model.HeaderRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	height, ok := m.byHash[hash]
	if !ok {
		return model.HeaderRecord{}, ErrNotFound
	}
	return copyRecord(m.byHeight[height]), nil
}

// copyRecord detaches the returned record's ChainWork from the stored
// one so callers cannot mutate ledger state.
func copyRecord(rec model.HeaderRecord) model.HeaderRecord {
	rec.ChainWork = new(big.Int).Set(rec.ChainWork)
	return rec
}

// Put stores rec at height, failing if the height is occupied.
func (m *Memory) Put(height uint32, rec model.HeaderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.put(height, rec)
}

func (m *Memory) put(height uint32, rec model.HeaderRecord) error {
	if _, ok := m.byHeight[height]; ok {
		return ErrDuplicateBlock
	}
	rec.ChainWork = new(big.Int).Set(rec.ChainWork)
	m.byHeight[height] = rec
	m.byHash[rec.BlockHash] = height
	return nil
}

// Tip returns the current chain tip.
func (m *Memory) Tip() (model.ChainTip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.tip == nil {
		return model.ChainTip{}, ErrNoTip
	}
	return model.ChainTip{
		Hash:      m.tip.Hash,
		Height:    m.tip.Height,
		ChainWork: new(big.Int).Set(m.tip.ChainWork),
	}, nil
}

// AdvanceTip moves the tip without validation.
func (m *Memory) AdvanceTip(hash [model.HashLength]byte, height uint32, chainWork *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setTip(hash, height, chainWork)
	return nil
}

func (m *Memory) setTip(hash [model.HashLength]byte, height uint32, chainWork *big.Int) {
	m.tip = &model.ChainTip{
		Hash:      hash,
		Height:    height,
		ChainWork: new(big.Int).Set(chainWork),
	}
}

// PutAndAdvance writes rec and advances the tip under a single lock
// hold, so readers never observe one without the other.
func (m *Memory) PutAndAdvance(rec model.HeaderRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.put(rec.Height, rec); err != nil {
		return err
	}
	m.setTip(rec.BlockHash, rec.Height, rec.ChainWork)
	return nil
}

// Empty reports whether no records are stored.
func (m *Memory) Empty() (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.byHeight) == 0, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
