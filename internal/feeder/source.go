package feeder

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/ratelimit"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
	"github.com/goodnatureofminers/btcrelay7000-backend/pkg/safe"
)

type (
	// RPCMetrics records metrics for node RPC calls.
	RPCMetrics interface {
		Observe(operation string, err error, started time.Time)
	}

	// NodeClient is the subset of the btcd rpcclient used by the feeder.
	NodeClient interface {
		GetBlockCount() (int64, error)
		GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
		GetBlockHeader(blockHash *chainhash.Hash) (*wire.BlockHeader, error)
	}
)

// NodeSource is a HeaderSource backed by a Bitcoin node RPC client,
// instrumented and rate limited.
type NodeSource struct {
	client     NodeClient
	rpcMetrics RPCMetrics
	limiter    ratelimit.Limiter
}

// NewNodeSource constructs a NodeSource capped at rps calls per second.
func NewNodeSource(client NodeClient, rpcMetrics RPCMetrics, rps int) *NodeSource {
	if rps < 1 {
		rps = 1
	}
	return &NodeSource{
		client:     client,
		rpcMetrics: rpcMetrics,
		limiter:    ratelimit.New(rps),
	}
}

// LatestHeight returns the node's best block height.
func (s *NodeSource) LatestHeight(ctx context.Context) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.limiter.Take()

	started := time.Now()
	count, err := s.client.GetBlockCount()
	s.rpcMetrics.Observe("get_block_count", err, started)
	if err != nil {
		return 0, fmt.Errorf("get block count: %w", err)
	}
	return safe.Uint32(count)
}

// FetchHeader returns the raw 80-byte header at height.
func (s *NodeSource) FetchHeader(ctx context.Context, height uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.limiter.Take()

	started := time.Now()
	hash, err := s.client.GetBlockHash(int64(height))
	s.rpcMetrics.Observe("get_block_hash", err, started)
	if err != nil {
		return nil, fmt.Errorf("get block hash %d: %w", height, err)
	}

	s.limiter.Take()
	started = time.Now()
	header, err := s.client.GetBlockHeader(hash)
	s.rpcMetrics.Observe("get_block_header", err, started)
	if err != nil {
		return nil, fmt.Errorf("get block header %s: %w", hash, err)
	}

	var buf bytes.Buffer
	buf.Grow(model.HeaderLength)
	if err := header.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize header %s: %w", hash, err)
	}
	return buf.Bytes(), nil
}
