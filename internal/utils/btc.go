// Package utils holds small Bitcoin value helpers.
package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
)

// BtcToSatoshis converts a BTC amount to satoshis, rejecting negatives.
func BtcToSatoshis(value float64) (uint64, error) {
	amt, err := btcutil.NewAmount(value)
	if err != nil {
		return 0, err
	}
	if amt < 0 {
		return 0, fmt.Errorf("negative amount: %d", amt)
	}
	return uint64(amt), nil
}

// ParseBits parses a hexadecimal compact-target (nBits) string, with or
// without a 0x prefix.
func ParseBits(value string) (uint32, error) {
	value = strings.TrimPrefix(value, "0x")
	parsed, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(parsed), nil
}
