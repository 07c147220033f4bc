// Package profile maintains the rolling per-customer statistics used by the
// risk rules and the stores that hold them.
package profile

import (
	"sort"
	"time"

	"github.com/udtms/txmonitor/internal/domain"
)

// Observe folds txn into a copy of p and returns the copy; p is not modified.
// Observations older than retention (relative to the newest one) are pruned.
// Observing a transaction id that is already in the window is a no-op. Ids
// that have been pruned are not remembered, so callers must not observe a
// transaction twice once it has left the window; the monitor pipeline
// guarantees this by skipping transactions whose assessment is settled.
func Observe(p *domain.CustomerProfile, txn domain.Transaction, retention time.Duration) *domain.CustomerProfile {
	next := p.Clone()
	if next == nil {
		next = &domain.CustomerProfile{CustomerID: txn.CustomerID}
	}
	for _, o := range next.Recent {
		if o.TransactionID == txn.ID {
			return next
		}
	}

	next.TxnCount++
	next.AmountTotal = next.AmountTotal.Add(txn.Amount)
	next.Recent = append(next.Recent, domain.Observation{TransactionID: txn.ID, At: txn.Timestamp})
	sort.SliceStable(next.Recent, func(i, j int) bool {
		return next.Recent[i].At.Before(next.Recent[j].At)
	})

	if txn.DeviceID != "" && !next.HasDevice(txn.DeviceID) {
		next.KnownDevices = append(next.KnownDevices, txn.DeviceID)
	}

	// Late arrivals never move the last known position backwards.
	if !txn.Timestamp.Before(next.LastSeenAt) {
		next.LastSeenAt = txn.Timestamp
		if txn.Location != "" {
			next.LastLocation = txn.Location
		}
	}

	if retention > 0 {
		cutoff := next.LastSeenAt.Add(-retention)
		kept := next.Recent[:0]
		for _, o := range next.Recent {
			if !o.At.Before(cutoff) {
				kept = append(kept, o)
			}
		}
		next.Recent = kept
	}
	return next
}
