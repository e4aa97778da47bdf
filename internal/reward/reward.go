// Package reward is the seam between the relay core and the economic
// incentive layer. The core only reports accepted submissions; pool
// funding and payout accounting live outside this repository.
package reward

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"go.uber.org/zap"
)

// Recorder is notified once per accepted header submission.
type Recorder interface {
	Record(height uint32, blockHash [32]byte, account string)
}

// Nop discards all notifications.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(uint32, [32]byte, string) {}

// LogRecorder logs accepted submissions together with the configured
// per-header reward. Stands in for the external payout ledger.
type LogRecorder struct {
	logger *zap.Logger
	amount btcutil.Amount
}

// NewLogRecorder constructs a LogRecorder.
func NewLogRecorder(logger *zap.Logger, amount btcutil.Amount) *LogRecorder {
	return &LogRecorder{logger: logger, amount: amount}
}

// Record implements Recorder.
func (r *LogRecorder) Record(height uint32, blockHash [32]byte, account string) {
	r.logger.Info("header reward earned",
		zap.Uint32("height", height),
		zap.String("block_hash", hex.EncodeToString(blockHash[:])),
		zap.String("account", account),
		zap.String("amount", r.amount.String()),
	)
}
