package feeder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goodnatureofminers/btcrelay7000-backend/pkg/workerpool"
)

// Service drives the feed loop: find the relay tip, fetch the missing
// headers from the node, submit them in height order.
type Service struct {
	logger            *zap.Logger
	metrics           Metrics
	source            HeaderSource
	submitter         Submitter
	payoutAccount     string
	sleep             func(context.Context, time.Duration) error
	sleepDuration     time.Duration
	longSleepDuration time.Duration
	workerCount       int
	batchSize         uint32
}

// New builds a feeder Service with dependencies.
func New(
	source HeaderSource,
	submitter Submitter,
	metrics Metrics,
	payoutAccount string,
	logger *zap.Logger,
) (*Service, error) {
	if source == nil {
		return nil, errors.New("header source is required")
	}
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if metrics == nil {
		return nil, errors.New("feeder metrics is required")
	}

	return &Service{
		logger:            logger,
		metrics:           metrics,
		source:            source,
		submitter:         submitter,
		payoutAccount:     payoutAccount,
		sleep:             sleepContext,
		sleepDuration:     sleepDuration,
		longSleepDuration: longSleepDuration,
		workerCount:       defaultWorkerCount,
		batchSize:         defaultBatchSize,
	}, nil
}

// Run executes the feed loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.run(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Warn("sync iteration failed, backing off",
				zap.Error(err), zap.Duration("sleep", s.sleepDuration))
			if sleepErr := s.sleep(ctx, s.sleepDuration); sleepErr != nil {
				return sleepErr
			}
		}
	}
}

func (s *Service) run(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveSync(err, started)
	}()

	relayTip, err := s.submitter.TipHeight(ctx)
	if err != nil {
		return fmt.Errorf("relay tip height: %w", err)
	}

	nodeHeight, err := s.source.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("node height: %w", err)
	}

	if nodeHeight <= relayTip {
		s.logger.Debug("relay caught up with node",
			zap.Uint32("height", relayTip), zap.Duration("sleep", s.longSleepDuration))
		return s.sleep(ctx, s.longSleepDuration)
	}

	heights := missingHeights(relayTip, nodeHeight, s.batchSize)
	s.metrics.ObserveBatch(len(heights))
	s.logger.Info("fetching headers",
		zap.Uint32("from", heights[0]), zap.Uint32("to", heights[len(heights)-1]))

	headers, err := workerpool.Map(ctx, s.workerCount, heights,
		func(ctx context.Context, height uint32) ([]byte, error) {
			return s.source.FetchHeader(ctx, height)
		})
	if err != nil {
		return fmt.Errorf("fetch headers: %w", err)
	}

	// Submissions must land in height order: each header links to its
	// accepted predecessor.
	for i, raw := range headers {
		submitErr := s.submitter.Submit(ctx, raw, heights[i], s.payoutAccount)
		s.metrics.ObserveSubmit(submitErr)
		if submitErr != nil {
			return fmt.Errorf("submit header %d: %w", heights[i], submitErr)
		}
	}

	return s.sleep(ctx, s.sleepDuration)
}

func missingHeights(relayTip, nodeHeight, batchSize uint32) []uint32 {
	count := nodeHeight - relayTip
	if count > batchSize {
		count = batchSize
	}
	heights := make([]uint32, 0, count)
	for h := relayTip + 1; h <= relayTip+count; h++ {
		heights = append(heights, h)
	}
	return heights
}
