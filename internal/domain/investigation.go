package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type IssueType string

const (
	IssueAmountMismatch     IssueType = "amount_mismatch"
	IssueMissingCounterpart IssueType = "missing_counterpart"
	IssueUnexpectedEntry    IssueType = "unexpected_entry"
	IssueDuplicateEntry     IssueType = "duplicate_entry"
)

type InvestigationStatus string

const (
	InvestigationOpen     InvestigationStatus = "open"
	InvestigationResolved InvestigationStatus = "resolved"
	InvestigationIgnored  InvestigationStatus = "ignored"
)

// Investigation is a reconciliation exception waiting for an operator.
type Investigation struct {
	ID          string              `json:"id"`
	RunID       string              `json:"run_id"`
	IssueType   IssueType           `json:"issue_type"`
	Key         string              `json:"key"`
	Reference   string              `json:"reference"`
	Platform    Platform            `json:"platform,omitempty"`
	Amount      decimal.Decimal     `json:"amount"`
	Delta       decimal.Decimal     `json:"delta"`
	Priority    Severity            `json:"priority"`
	Status      InvestigationStatus `json:"status"`
	Description string              `json:"description"`
	CreatedAt   time.Time           `json:"created_at"`
	ClosedAt    *time.Time          `json:"closed_at,omitempty"`
}

// Close marks an open investigation resolved or ignored.
func (i *Investigation) Close(status InvestigationStatus, at time.Time) error {
	if i.Status != InvestigationOpen {
		return errors.Wrapf(ErrInvalidTransition, "investigation %s is already %s", i.ID, i.Status)
	}
	if status != InvestigationResolved && status != InvestigationIgnored {
		return errors.Wrapf(ErrInvalidTransition, "investigation %s: cannot close as %s", i.ID, status)
	}
	i.Status = status
	i.ClosedAt = &at
	return nil
}
