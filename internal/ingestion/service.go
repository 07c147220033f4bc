package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/metrics"
	"github.com/udtms/txmonitor/internal/monitor"
	"github.com/udtms/txmonitor/internal/repository"
)

const (
	FormatCSV  = "csv"
	FormatPSV  = "psv"
	FormatJSON = "json"
)

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	FeedHash          string `json:"feed_hash,omitempty"`
	AlreadyIngested   bool   `json:"already_ingested"`
	Received          int    `json:"received"`
	RecordsIngested   int    `json:"records_ingested"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	Scored            int    `json:"scored"`
	AlertsRaised      int    `json:"alerts_raised"`
}

// Service stores incoming transactions and hands them to the scoring
// pipeline.
type Service struct {
	txnRepo  *repository.TransactionRepo
	pipeline monitor.Processor
	metrics  *metrics.Metrics
}

func NewService(txnRepo *repository.TransactionRepo, pipeline monitor.Processor, m *metrics.Metrics) *Service {
	return &Service{txnRepo: txnRepo, pipeline: pipeline, metrics: m}
}

// IngestFeed parses a transaction feed file and ingests it. A file whose
// content hash was already ingested is acknowledged without side effects.
//
// format must be one of: csv, json
func (s *Service) IngestFeed(ctx context.Context, data []byte, name, format string) (*IngestResult, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.txnRepo.FeedExistsByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		logger.Info("[ingestion] feed already ingested", "name", name, "hash", hash)
		return &IngestResult{FeedHash: hash, AlreadyIngested: true}, nil
	}

	var txns []domain.Transaction
	switch strings.ToLower(format) {
	case FormatCSV:
		txns, err = ParseTransactionCSV(data)
	case FormatJSON, "":
		txns, err = ParseTransactionJSON(data)
	default:
		return nil, fmt.Errorf("%w: unsupported feed format %q", domain.ErrInvalidTransaction, format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}

	res, err := s.Ingest(ctx, txns)
	if err != nil {
		return nil, err
	}
	if err := s.txnRepo.RecordFeed(ctx, hash, name, len(txns)); err != nil {
		return nil, fmt.Errorf("record feed: %w", err)
	}
	res.FeedHash = hash
	return res, nil
}

// Ingest validates, stores and scores a batch of transactions. Nothing is
// stored if any transaction is invalid.
func (s *Service) Ingest(ctx context.Context, txns []domain.Transaction) (*IngestResult, error) {
	for i := range txns {
		if err := txns[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	inserted, err := s.txnRepo.BulkInsert(ctx, txns)
	if err != nil {
		return nil, fmt.Errorf("insert transactions: %w", err)
	}
	s.metrics.Ingested("transactions", inserted)

	batch, err := s.pipeline.Process(ctx, txns)
	if err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}

	logger.Info("[ingestion] ingested transactions",
		"received", len(txns),
		"new", inserted,
		"scored", len(batch.Assessments),
		"alerts", batch.Alerts,
	)

	return &IngestResult{
		Received:          len(txns),
		RecordsIngested:   inserted,
		DuplicatesSkipped: len(txns) - inserted,
		Scored:            len(batch.Assessments),
		AlertsRaised:      batch.Alerts,
	}, nil
}

// ParseLedger parses a ledger export for reconciliation.
//
// format must be one of: csv, psv, json
func ParseLedger(data []byte, format, source string) ([]domain.LedgerEntry, error) {
	var (
		entries []domain.LedgerEntry
		err     error
	)
	switch strings.ToLower(format) {
	case FormatCSV, "":
		entries, err = ParseLedgerCSV(data, ',', source)
	case FormatPSV:
		entries, err = ParseLedgerCSV(data, '|', source)
	case FormatJSON:
		entries, _, err = ParseBankStatementJSON(data, source)
	default:
		return nil, fmt.Errorf("%w: unsupported ledger format %q", domain.ErrInvalidLedgerEntry, format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s ledger: %w", format, err)
	}
	return entries, nil
}
