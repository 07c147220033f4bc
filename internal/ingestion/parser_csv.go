package ingestion

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/udtms/txmonitor/internal/currency"
	"github.com/udtms/txmonitor/internal/domain"
)

// ParseLedgerCSV parses a ledger export delimited by comma (csv) or pipe
// (psv). Columns are located by header name; extra columns are ignored.
// Amounts are converted into the base currency.
//
// Expected header:
//
//	reference,timestamp,platform,counterparty,amount,currency
func ParseLedgerCSV(data []byte, delimiter rune, source string) ([]domain.LedgerEntry, error) {
	reader, cols, err := openCSV(data, delimiter, []string{"amount"})
	if err != nil {
		return nil, err
	}

	var entries []domain.LedgerEntry
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if blank(row) {
			continue
		}

		get := cols.getter(row)
		amount, err := baseAmount(get("amount"), get("currency"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		e := domain.LedgerEntry{
			Source:       source,
			Reference:    get("reference"),
			Counterparty: get("counterparty"),
			Amount:       amount,
			Currency:     currency.Base,
		}
		if s := get("timestamp"); s != "" {
			if e.Timestamp, err = parseTimestamp(s); err != nil {
				return nil, fmt.Errorf("line %d timestamp: %w", lineNum, err)
			}
		}
		if s := get("platform"); s != "" {
			if e.Platform, err = domain.ParsePlatform(s); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseTransactionCSV parses a comma separated transaction feed.
//
// Expected header:
//
//	id,timestamp,customer_id,platform,amount,currency,status,location,device_id
func ParseTransactionCSV(data []byte) ([]domain.Transaction, error) {
	reader, cols, err := openCSV(data, ',', []string{"id", "timestamp", "customer_id", "platform", "amount"})
	if err != nil {
		return nil, err
	}

	var txns []domain.Transaction
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if blank(row) {
			continue
		}

		get := cols.getter(row)
		txn, err := buildTransaction(transactionInput{
			ID:         get("id"),
			Timestamp:  get("timestamp"),
			CustomerID: get("customer_id"),
			Platform:   get("platform"),
			Amount:     get("amount"),
			Currency:   get("currency"),
			Status:     get("status"),
			Location:   get("location"),
			DeviceID:   get("device_id"),
		})
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

type columnIndex map[string]int

func (c columnIndex) getter(row []string) func(string) string {
	return func(name string) string {
		i, ok := c[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
}

func openCSV(data []byte, delimiter rune, required []string) (*csv.Reader, columnIndex, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(columnIndex, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[name] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", name)
		}
	}
	return reader, cols, nil
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func baseAmount(raw, code string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", raw, err)
	}
	converted, err := currency.ToBase(amount, code)
	if err != nil {
		return decimal.Zero, err
	}
	return converted, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts RFC 3339 and a few common export layouts. Values
// without a zone are read as UTC.
func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
