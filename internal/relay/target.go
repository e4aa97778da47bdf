package relay

import (
	"fmt"
	"math/big"

	"github.com/goodnatureofminers/btcrelay7000-backend/internal/relay/model"
)

const (
	// retargetPeriod is the difficulty adjustment interval in blocks.
	retargetPeriod = 2016
	// targetTimespan is the expected duration of one retarget epoch.
	targetTimespan = 14 * 24 * 60 * 60
)

var (
	// maxTarget is the difficulty-1 target (compact 0x1d00ffff); the
	// divisor for per-block difficulty and chain-work.
	maxTarget = new(big.Int).Lsh(big.NewInt(0xffff), 208)
	// unroundedMaxTarget caps retarget results at 2^224 - 1.
	unroundedMaxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 224), big.NewInt(1))

	minTimespan = big.NewInt(targetTimespan / 4)
	maxTimespan = big.NewInt(targetTimespan * 4)
)

// NBitsToTarget expands Bitcoin's compact target encoding:
// target = coefficient * 2^(8*(exponent-3)).
func NBitsToTarget(nBits uint32) (*big.Int, error) {
	exponent := nBits >> 24
	if exponent < 3 {
		return nil, fmt.Errorf("nbits exponent %d below 3: %w", exponent, ErrDifficultyMismatch)
	}
	coefficient := big.NewInt(int64(nBits & 0xffffff))
	return coefficient.Lsh(coefficient, uint(8*(exponent-3))), nil
}

// DifficultyShouldRetarget reports whether height is a retarget boundary.
func DifficultyShouldRetarget(height uint32) bool {
	return height%retargetPeriod == 0
}

// ComputeNewTarget recomputes the difficulty target at a retarget
// boundary from the observed epoch duration. Integer division truncates,
// matching consensus; the result is capped at 2^224 - 1.
func ComputeNewTarget(prevTime, startTime uint32, prevTarget *big.Int) *big.Int {
	span := new(big.Int).Sub(
		new(big.Int).SetUint64(uint64(prevTime)),
		new(big.Int).SetUint64(uint64(startTime)),
	)
	if span.Cmp(minTimespan) < 0 {
		span.Set(minTimespan)
	}
	if span.Cmp(maxTimespan) > 0 {
		span.Set(maxTimespan)
	}

	newTarget := span.Mul(span, prevTarget)
	newTarget.Quo(newTarget, big.NewInt(targetTimespan))
	if newTarget.Cmp(unroundedMaxTarget) > 0 {
		newTarget.Set(unroundedMaxTarget)
	}
	return newTarget
}

// correctDifficultyTarget checks the submitted target against the
// predecessor record. Off-boundary heights must carry the predecessor's
// target verbatim; boundary heights must carry the recomputed one.
func correctDifficultyTarget(pred model.HeaderRecord, height uint32, target *big.Int) error {
	prevBits := model.HeaderBits(pred.RawHeader[:])

	if !DifficultyShouldRetarget(height) {
		// A zero predecessor target is the uninitialized genesis
		// placeholder; any successor target is accepted then.
		if prevBits == 0 {
			return nil
		}
		prevTarget, err := NBitsToTarget(prevBits)
		if err != nil {
			return err
		}
		if prevTarget.Sign() != 0 && target.Cmp(prevTarget) != 0 {
			return ErrDifficultyMismatch
		}
		return nil
	}

	prevTarget, err := NBitsToTarget(prevBits)
	if err != nil {
		return err
	}

	expected := ComputeNewTarget(model.HeaderTime(pred.RawHeader[:]), pred.LastRetargetTime, prevTarget)
	if target.Cmp(expected) != 0 {
		return ErrDifficultyMismatch
	}
	return nil
}
