package monitor

import (
	"context"
	"time"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
)

// Source supplies stored transactions that have not been scored yet.
type Source interface {
	ListUnscored(ctx context.Context, limit int) ([]domain.Transaction, error)
}

// Processor is the part of the pipeline the scheduler drives.
type Processor interface {
	Process(ctx context.Context, txns []domain.Transaction) (*BatchResult, error)
}

// Scheduler periodically scores whatever the source still has pending.
type Scheduler struct {
	source    Source
	processor Processor
	interval  time.Duration
	batchSize int
}

func NewScheduler(source Source, processor Processor, interval time.Duration, batchSize int) *Scheduler {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Scheduler{source: source, processor: processor, interval: interval, batchSize: batchSize}
}

// RunOnce drains the source one batch at a time and returns how many
// transactions were scored.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		txns, err := s.source.ListUnscored(ctx, s.batchSize)
		if err != nil {
			return total, err
		}
		if len(txns) == 0 {
			return total, nil
		}
		res, err := s.processor.Process(ctx, txns)
		if err != nil {
			return total, err
		}
		total += len(res.Assessments)
		if len(res.Assessments) == 0 || len(txns) < s.batchSize {
			return total, nil
		}
	}
}

// Run ticks until ctx is cancelled. Errors are logged and the next tick
// retries.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info("[scheduler] started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("[scheduler] stopped")
			return
		case <-ticker.C:
			n, err := s.RunOnce(ctx)
			if err != nil {
				logger.Error("[scheduler] scoring pass failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("[scheduler] scored pending transactions", "count", n)
			}
		}
	}
}
