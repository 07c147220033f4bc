package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/udtms/txmonitor/internal/currency"
	"github.com/udtms/txmonitor/internal/domain"
)

// bankStatementFile is the JSON statement banks export.
type bankStatementFile struct {
	StatementID string               `json:"statement_id"`
	Entries     []bankStatementEntry `json:"entries"`
}

type bankStatementEntry struct {
	Ref          string          `json:"ref"`
	ValueDate    string          `json:"value_date"`
	Platform     string          `json:"platform"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// ParseBankStatementJSON parses a bank statement and returns its entries and
// statement id. Amounts are converted into the base currency.
func ParseBankStatementJSON(data []byte, source string) ([]domain.LedgerEntry, string, error) {
	var file bankStatementFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("unmarshal: %w", err)
	}
	if source == "" {
		source = file.StatementID
	}

	entries := make([]domain.LedgerEntry, 0, len(file.Entries))
	for i, row := range file.Entries {
		amount, err := currency.ToBase(row.Amount, row.Currency)
		if err != nil {
			return nil, "", fmt.Errorf("entry %d: %w", i, err)
		}
		e := domain.LedgerEntry{
			Source:       source,
			Reference:    strings.TrimSpace(row.Ref),
			Counterparty: strings.TrimSpace(row.Counterparty),
			Amount:       amount,
			Currency:     currency.Base,
		}
		if row.ValueDate != "" {
			if e.Timestamp, err = parseTimestamp(row.ValueDate); err != nil {
				return nil, "", fmt.Errorf("entry %d value_date: %w", i, err)
			}
		}
		if row.Platform != "" {
			if e.Platform, err = domain.ParsePlatform(row.Platform); err != nil {
				return nil, "", fmt.Errorf("entry %d: %w", i, err)
			}
		}
		if err := e.Validate(); err != nil {
			return nil, "", fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, file.StatementID, nil
}

// transactionInput is the wire shape of a transaction in a feed. Fields are
// strings so JSON and CSV feeds share one conversion path.
type transactionInput struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	CustomerID string `json:"customer_id"`
	Platform   string `json:"platform"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	Location   string `json:"location"`
	DeviceID   string `json:"device_id"`
}

// UnmarshalJSON accepts the amount as either a JSON number or a string.
func (in *transactionInput) UnmarshalJSON(data []byte) error {
	type plain transactionInput
	aux := struct {
		*plain
		Amount json.Number `json:"amount"`
	}{plain: (*plain)(in)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	in.Amount = aux.Amount.String()
	return nil
}

// ParseTransactionJSON parses a JSON array of transactions.
func ParseTransactionJSON(data []byte) ([]domain.Transaction, error) {
	var rows []transactionInput
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	txns := make([]domain.Transaction, 0, len(rows))
	for i, row := range rows {
		txn, err := buildTransaction(row)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// ParseTransaction parses a single JSON transaction object.
func ParseTransaction(data []byte) (domain.Transaction, error) {
	var row transactionInput
	if err := json.Unmarshal(data, &row); err != nil {
		return domain.Transaction{}, fmt.Errorf("unmarshal: %w", err)
	}
	return buildTransaction(row)
}

func buildTransaction(in transactionInput) (domain.Transaction, error) {
	txn := domain.Transaction{
		ID:         strings.TrimSpace(in.ID),
		CustomerID: strings.TrimSpace(in.CustomerID),
		Currency:   currency.Base,
		Status:     domain.TransactionStatus(strings.ToLower(strings.TrimSpace(in.Status))),
		Location:   strings.TrimSpace(in.Location),
		DeviceID:   strings.TrimSpace(in.DeviceID),
	}
	if txn.Status == "" {
		txn.Status = domain.StatusSuccess
	}

	var err error
	if txn.Timestamp, err = parseTimestamp(strings.TrimSpace(in.Timestamp)); err != nil {
		return txn, fmt.Errorf("%w: timestamp %q", domain.ErrInvalidTransaction, in.Timestamp)
	}
	if txn.Platform, err = domain.ParsePlatform(in.Platform); err != nil {
		return txn, err
	}
	if txn.Amount, err = baseAmount(strings.TrimSpace(in.Amount), in.Currency); err != nil {
		return txn, fmt.Errorf("%w: %v", domain.ErrInvalidTransaction, err)
	}
	if err := txn.Validate(); err != nil {
		return txn, err
	}
	return txn, nil
}
