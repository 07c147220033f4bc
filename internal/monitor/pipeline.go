// Package monitor wires the scorer, the profile store and the alerting
// collaborators into a batch pipeline, and hosts the operator-facing alert
// and investigation workflows.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/metrics"
	"github.com/udtms/txmonitor/internal/profile"
	"github.com/udtms/txmonitor/internal/risk"
)

// AssessmentStore is the persistence the pipeline needs for assessments.
// Saved assessments stay unsettled until MarkSettled, and only settled ones
// count as done.
type AssessmentStore interface {
	SettledIDs(ctx context.Context, ids []string) (map[string]bool, error)
	Unsettled(ctx context.Context, ids []string) (map[string]domain.RiskAssessment, error)
	Save(ctx context.Context, a domain.RiskAssessment) (bool, error)
	MarkSettled(ctx context.Context, ids []string) error
}

type PipelineConfig struct {
	// Workers bounds how many customers are scored concurrently.
	Workers    int
	AlertFloor domain.Severity
	// Retention is how far back profile observations are kept.
	Retention time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:    4,
		AlertFloor: domain.SeverityHigh,
		Retention:  24 * time.Hour,
	}
}

// BatchResult reports what one call to Process did.
type BatchResult struct {
	Assessments []domain.RiskAssessment `json:"assessments"`
	Skipped     int                     `json:"skipped"`
	Alerts      int                     `json:"alerts"`
}

type Pipeline struct {
	scorer      *risk.Scorer
	profiles    profile.Store
	assessments AssessmentStore
	notifier    Notifier
	metrics     *metrics.Metrics
	cfg         PipelineConfig
	now         func() time.Time

	// Batches are applied one at a time so profile snapshots never go stale
	// between the read and the write step.
	mu sync.Mutex
}

func NewPipeline(
	scorer *risk.Scorer,
	profiles profile.Store,
	assessments AssessmentStore,
	notifier Notifier,
	m *metrics.Metrics,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.AlertFloor == "" {
		cfg.AlertFloor = domain.SeverityHigh
	}
	return &Pipeline{
		scorer:      scorer,
		profiles:    profiles,
		assessments: assessments,
		notifier:    notifier,
		metrics:     m,
		cfg:         cfg,
		now:         time.Now,
	}
}

// customerBatch is the slice of a batch belonging to one customer, in
// arrival order.
type customerBatch struct {
	customerID string
	indexes    []int
	final      *domain.CustomerProfile
}

// Process scores a batch and applies its side effects. Transactions whose
// assessment is already settled are skipped, so re-running a batch is safe.
//
// Assessments are stored unsettled before any alert or profile write and
// settled after the last one. A batch that fails in between leaves them
// unsettled; the next run reuses the stored assessments instead of scoring
// again, replays them into the profile and sends the alerts it missed.
func (p *Pipeline) Process(ctx context.Context, txns []domain.Transaction) (*BatchResult, error) {
	for i := range txns {
		if err := txns[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pending, skipped, err := p.pending(ctx, txns)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Skipped: skipped}
	if len(pending) == 0 {
		return result, nil
	}

	ids := make([]string, len(pending))
	for k, i := range pending {
		ids[k] = txns[i].ID
	}
	stored, err := p.assessments.Unsettled(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load unsettled assessments: %w", err)
	}
	if len(stored) > 0 {
		logger.Warn("[monitor] resuming unsettled assessments", "count", len(stored))
	}

	groups := groupByCustomer(txns, pending)
	assessed := make([]domain.RiskAssessment, len(txns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, grp := range groups {
		grp := grp
		g.Go(func() error {
			current, err := p.profiles.Get(gctx, grp.customerID)
			if err != nil {
				return fmt.Errorf("load profile %s: %w", grp.customerID, err)
			}
			for _, i := range grp.indexes {
				a, ok := stored[txns[i].ID]
				if !ok {
					a, err = p.scorer.Score(txns[i], current)
					if err != nil {
						return err
					}
				}
				assessed[i] = a
				current = profile.Observe(current, txns[i], p.cfg.Retention)
			}
			grp.final = current
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	assessedAt := p.now()
	for _, i := range pending {
		if _, ok := stored[txns[i].ID]; ok {
			continue
		}
		assessed[i].AssessedAt = assessedAt
		if _, err := p.assessments.Save(ctx, assessed[i]); err != nil {
			return nil, err
		}
	}

	alerts := 0
	for _, i := range pending {
		a := assessed[i]
		if p.notifier == nil || !a.Severity.AtLeast(p.cfg.AlertFloor) {
			continue
		}
		if err := p.notifier.Notify(ctx, txns[i], a); err != nil {
			return nil, fmt.Errorf("notify %s: %w", a.TransactionID, err)
		}
		alerts++
	}

	for _, grp := range groups {
		if err := p.profiles.Put(ctx, grp.final); err != nil {
			return nil, fmt.Errorf("store profile %s: %w", grp.customerID, err)
		}
	}

	if err := p.assessments.MarkSettled(ctx, ids); err != nil {
		return nil, err
	}

	result.Alerts = alerts
	for _, i := range pending {
		p.metrics.ObserveAssessment(assessed[i])
		result.Assessments = append(result.Assessments, assessed[i])
	}

	logger.Info("[monitor] batch processed",
		"received", len(txns),
		"scored", len(result.Assessments),
		"resumed", len(stored),
		"skipped", result.Skipped,
		"alerts", result.Alerts,
	)
	return result, nil
}

// Preview scores a transaction against the stored profile without any side
// effects.
func (p *Pipeline) Preview(ctx context.Context, txn domain.Transaction) (domain.RiskAssessment, error) {
	current, err := p.profiles.Get(ctx, txn.CustomerID)
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("load profile %s: %w", txn.CustomerID, err)
	}
	a, err := p.scorer.Score(txn, current)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	a.AssessedAt = p.now()
	return a, nil
}

// pending returns the indexes of transactions that still need scoring. A
// repeated id within the batch is only scored once.
func (p *Pipeline) pending(ctx context.Context, txns []domain.Transaction) ([]int, int, error) {
	ids := make([]string, len(txns))
	for i := range txns {
		ids[i] = txns[i].ID
	}
	existing, err := p.assessments.SettledIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("check settled assessments: %w", err)
	}

	seen := make(map[string]bool, len(txns))
	var out []int
	skipped := 0
	for i, id := range ids {
		if existing[id] || seen[id] {
			skipped++
			continue
		}
		seen[id] = true
		out = append(out, i)
	}
	return out, skipped, nil
}

func groupByCustomer(txns []domain.Transaction, pending []int) []*customerBatch {
	var groups []*customerBatch
	byID := make(map[string]*customerBatch)
	for _, i := range pending {
		id := txns[i].CustomerID
		grp, ok := byID[id]
		if !ok {
			grp = &customerBatch{customerID: id}
			byID[id] = grp
			groups = append(groups, grp)
		}
		grp.indexes = append(grp.indexes, i)
	}
	return groups
}
