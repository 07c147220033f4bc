package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/metrics"
	"github.com/udtms/txmonitor/internal/repository"
)

// Config holds the matcher defaults used when a request does not override
// them.
type Config struct {
	Strategy   string
	Tolerance  decimal.Decimal
	TimeBucket time.Duration
}

func DefaultConfig() Config {
	return Config{
		Strategy:   StrategyReference,
		Tolerance:  decimal.Zero,
		TimeBucket: time.Minute,
	}
}

// RunRequest is one reconciliation of ledger A against ledger B.
type RunRequest struct {
	Strategy string               `json:"strategy"`
	SourceA  []domain.LedgerEntry `json:"source_a"`
	SourceB  []domain.LedgerEntry `json:"source_b"`
}

// RunReport is what a completed run returns to the caller.
type RunReport struct {
	Run            domain.ReconciliationRun `json:"run"`
	Platforms      []PlatformSummary        `json:"platforms"`
	Investigations int                      `json:"investigations"`
	Result         *Result                  `json:"result"`
}

// Service runs reconciliations and persists their outcome.
type Service struct {
	repo    *repository.ReconciliationRepo
	cfg     Config
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo *repository.ReconciliationRepo, cfg Config, m *metrics.Metrics) *Service {
	return &Service{repo: repo, cfg: cfg, metrics: m, now: time.Now}
}

func (s *Service) Config() Config {
	return s.cfg
}

// Run validates both ledgers, matches them and stores the run, its records
// and the investigations raised for every exception in one transaction.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunReport, error) {
	for i := range req.SourceA {
		if err := req.SourceA[i].Validate(); err != nil {
			return nil, fmt.Errorf("source a row %d: %w", i, err)
		}
	}
	for i := range req.SourceB {
		if err := req.SourceB[i].Validate(); err != nil {
			return nil, fmt.Errorf("source b row %d: %w", i, err)
		}
	}

	name := req.Strategy
	if name == "" {
		name = s.cfg.Strategy
	}
	strategy, err := StrategyByName(name, s.cfg.TimeBucket)
	if err != nil {
		return nil, err
	}

	started := s.now()
	res := NewMatcher(strategy, s.cfg.Tolerance).Reconcile(req.SourceA, req.SourceB)
	if err := res.Check(len(req.SourceA), len(req.SourceB)); err != nil {
		return nil, fmt.Errorf("reconciliation invariant: %w", err)
	}
	completed := s.now()

	run := domain.ReconciliationRun{
		ID:             uuid.NewString(),
		Strategy:       res.Strategy,
		SourceACount:   len(req.SourceA),
		SourceBCount:   len(req.SourceB),
		Matched:        len(res.Matched),
		Discrepant:     len(res.Discrepant),
		Unmatched:      len(res.Unmatched),
		Duplicates:     len(res.Duplicates),
		DiscrepancyAbs: discrepancyTotal(res.Discrepant),
		StartedAt:      started,
		CompletedAt:    completed,
	}
	invs := s.investigations(run.ID, res, completed)

	if err := s.repo.SaveRun(ctx, run, res.Records(), invs); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	s.metrics.ObserveRun(run)

	logger.Info("[reconciliation] run complete",
		"run_id", run.ID,
		"strategy", run.Strategy,
		"matched", run.Matched,
		"discrepant", run.Discrepant,
		"unmatched", run.Unmatched,
		"duplicates", run.Duplicates,
		"investigations", len(invs),
	)
	if run.Duplicates > 0 {
		logger.Warn("[reconciliation] duplicate keys in source ledgers", "run_id", run.ID, "count", run.Duplicates)
	}

	return &RunReport{
		Run:            run,
		Platforms:      Summarize(res),
		Investigations: len(invs),
		Result:         res,
	}, nil
}

func (s *Service) investigations(runID string, res *Result, at time.Time) []domain.Investigation {
	var out []domain.Investigation
	add := func(rec domain.ReconciliationRecord, issue domain.IssueType, priority domain.Severity, desc string) {
		e := rec.Entry()
		out = append(out, domain.Investigation{
			ID:          uuid.NewString(),
			RunID:       runID,
			IssueType:   issue,
			Key:         rec.Key,
			Reference:   e.Reference,
			Platform:    e.Platform,
			Amount:      e.Amount,
			Delta:       rec.AmountDelta,
			Priority:    priority,
			Status:      domain.InvestigationOpen,
			Description: desc,
			CreatedAt:   at,
		})
	}

	for _, rec := range res.Discrepant {
		a := rec.SourceA.Amount
		add(rec, domain.IssueAmountMismatch, mismatchSeverity(a, rec.AmountDelta),
			fmt.Sprintf("Amount mismatch for %s: ledger A %s, ledger B %s (delta %s)",
				rec.SourceA.Reference, a.StringFixed(2), rec.SourceB.Amount.StringFixed(2), rec.AmountDelta.StringFixed(2)))
	}
	for _, rec := range res.Unmatched {
		e := rec.Entry()
		if rec.Orphan == domain.SideA {
			add(rec, domain.IssueMissingCounterpart, severityByAmount(e.Amount),
				fmt.Sprintf("Entry %s (%s) has no counterpart in ledger B", label(e), e.Amount.StringFixed(2)))
			continue
		}
		add(rec, domain.IssueUnexpectedEntry, domain.SeverityHigh,
			fmt.Sprintf("Entry %s (%s) in ledger B matches nothing in ledger A", label(e), e.Amount.StringFixed(2)))
	}
	for _, rec := range res.Duplicates {
		e := rec.Entry()
		add(rec, domain.IssueDuplicateEntry, domain.SeverityMedium,
			fmt.Sprintf("Duplicate key %q in ledger %s (%s)", rec.Key, rec.Orphan, e.Amount.StringFixed(2)))
	}
	return out
}

func discrepancyTotal(recs []domain.ReconciliationRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.AmountDelta.Abs())
	}
	return total
}

func label(e *domain.LedgerEntry) string {
	if e.Reference != "" {
		return e.Reference
	}
	return e.Timestamp.UTC().Format(time.RFC3339)
}

// --- helpers ---

// Thresholds are in the base currency.
var (
	highAmount     = decimal.NewFromInt(5000)
	mediumAmount   = decimal.NewFromInt(1000)
	criticalDelta  = decimal.NewFromInt(5000)
	highDeltaRatio = decimal.RequireFromString("0.02")
)

func severityByAmount(amount decimal.Decimal) domain.Severity {
	switch {
	case amount.GreaterThan(highAmount):
		return domain.SeverityHigh
	case amount.GreaterThan(mediumAmount):
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func mismatchSeverity(expected, delta decimal.Decimal) domain.Severity {
	abs := delta.Abs()
	if abs.GreaterThan(criticalDelta) {
		return domain.SeverityCritical
	}
	if expected.IsZero() || abs.Div(expected.Abs()).GreaterThan(highDeltaRatio) {
		return domain.SeverityHigh
	}
	return domain.SeverityMedium
}
