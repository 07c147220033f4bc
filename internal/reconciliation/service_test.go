package reconciliation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/metrics"
	"github.com/udtms/txmonitor/internal/repository"
)

func newTestService(t *testing.T) (*Service, *repository.ReconciliationRepo, *repository.InvestigationRepo) {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m, err := metrics.New("test", "test")
	require.NoError(t, err)

	repo := repository.NewReconciliationRepo(db)
	return NewService(repo, DefaultConfig(), m), repo, repository.NewInvestigationRepo(db)
}

func TestService_RunPersistsRunAndInvestigations(t *testing.T) {
	ctx := context.Background()
	svc, repo, invRepo := newTestService(t)

	report, err := svc.Run(ctx, RunRequest{
		SourceA: []domain.LedgerEntry{
			entry("M1", "100"), entry("M2", "200"), entry("M3", "9000"), entry("M1", "100"),
		},
		SourceB: []domain.LedgerEntry{
			entry("M1", "100"), entry("M2", "150"), entry("X9", "10"),
		},
	})
	require.NoError(t, err)

	run := report.Run
	assert.Equal(t, StrategyReference, run.Strategy)
	assert.Equal(t, 4, run.SourceACount)
	assert.Equal(t, 3, run.SourceBCount)
	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, 1, run.Discrepant)
	assert.Equal(t, 2, run.Unmatched)
	assert.Equal(t, 1, run.Duplicates)
	assert.True(t, run.DiscrepancyAbs.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 4, report.Investigations)

	stored, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Matched, stored.Matched)

	recs, err := repo.ListRecords(ctx, run.ID, "")
	require.NoError(t, err)
	assert.Len(t, recs, 5)

	invs, total, err := invRepo.List(ctx, repository.InvestigationFilter{RunID: run.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	byType := map[domain.IssueType]domain.Investigation{}
	for _, inv := range invs {
		byType[inv.IssueType] = inv
	}
	mismatch := byType[domain.IssueAmountMismatch]
	assert.Equal(t, domain.SeverityHigh, mismatch.Priority)
	assert.True(t, mismatch.Delta.Equal(decimal.NewFromInt(50)))

	missing := byType[domain.IssueMissingCounterpart]
	assert.Equal(t, "M3", missing.Reference)
	assert.Equal(t, domain.SeverityHigh, missing.Priority)

	assert.Equal(t, "X9", byType[domain.IssueUnexpectedEntry].Reference)
	assert.Equal(t, domain.SeverityMedium, byType[domain.IssueDuplicateEntry].Priority)
}

func TestService_RunRejectsInvalidEntries(t *testing.T) {
	svc, repo, _ := newTestService(t)

	bad := entry("M1", "-5")
	_, err := svc.Run(context.Background(), RunRequest{SourceA: []domain.LedgerEntry{bad}})
	assert.ErrorIs(t, err, domain.ErrInvalidLedgerEntry)

	_, total, err := repo.ListRuns(context.Background(), repository.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestService_RunUnknownStrategy(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Run(context.Background(), RunRequest{Strategy: "phonetic"})
	assert.Error(t, err)
}

func TestService_FuzzyRun(t *testing.T) {
	svc, _, _ := newTestService(t)

	a := entry("", "25")
	a.Counterparty = "Ama Owusu"
	b := entry("", "25.00")
	b.Counterparty = "ama  owusu"
	b.Timestamp = a.Timestamp.Add(20 * time.Second)

	report, err := svc.Run(context.Background(), RunRequest{
		Strategy: StrategyFuzzy,
		SourceA:  []domain.LedgerEntry{a},
		SourceB:  []domain.LedgerEntry{b},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Run.Matched)
	assert.Zero(t, report.Investigations)
}

func TestMismatchSeverity(t *testing.T) {
	assert.Equal(t, domain.SeverityCritical, mismatchSeverity(decimal.NewFromInt(20000), decimal.NewFromInt(6000)))
	assert.Equal(t, domain.SeverityHigh, mismatchSeverity(decimal.NewFromInt(100), decimal.NewFromInt(5)))
	assert.Equal(t, domain.SeverityMedium, mismatchSeverity(decimal.NewFromInt(1000), decimal.NewFromInt(-10)))
	assert.Equal(t, domain.SeverityHigh, mismatchSeverity(decimal.Zero, decimal.NewFromInt(1)))
}

func TestSeverityByAmount(t *testing.T) {
	assert.Equal(t, domain.SeverityLow, severityByAmount(decimal.NewFromInt(1000)))
	assert.Equal(t, domain.SeverityMedium, severityByAmount(decimal.NewFromInt(1001)))
	assert.Equal(t, domain.SeverityHigh, severityByAmount(decimal.NewFromInt(5001)))
}
