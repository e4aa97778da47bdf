// Package feeder follows a Bitcoin node and pushes raw headers into the
// relay, acting as the off-chain submitter the relay design assumes.
package feeder

import (
	"context"
	"time"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// HeaderSource exposes the Bitcoin node the feeder follows.
	HeaderSource interface {
		LatestHeight(ctx context.Context) (uint32, error)
		FetchHeader(ctx context.Context, height uint32) ([]byte, error)
	}

	// Submitter is the relay endpoint headers are pushed to.
	Submitter interface {
		TipHeight(ctx context.Context) (uint32, error)
		Submit(ctx context.Context, rawHeader []byte, height uint32, payoutAccount string) error
	}

	// Metrics records feeder loop outcomes.
	Metrics interface {
		ObserveSync(err error, started time.Time)
		ObserveSubmit(err error)
		ObserveBatch(size int)
	}
)
