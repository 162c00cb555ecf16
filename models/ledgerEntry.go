package models

import (
	"fmt"
	"time"
)

// CustomerLedgerEntry is one debit, credit, or adjustment contributing to a
// customer's running balance. Debit/credit amounts must be strictly positive;
// adjustments must be zero. Violations are structural anomalies: the
// aggregator flags them instead of folding them in.
type CustomerLedgerEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CustomerId    int             `gorm:"index;not null" json:"customer_id"`
	EntryType     LedgerEntryType `gorm:"type:enum('Debit','Credit','Adjustment');not null" json:"entry_type"`
	Amount        Money           `gorm:"type:decimal(20,2);default:0" json:"amount"`
	Description   string          `gorm:"size:255" json:"description"`
	ReferenceId   int             `gorm:"index" json:"reference_id"`
	ReferenceType string          `gorm:"size:10" json:"reference_type"`
	EntryDate     time.Time       `gorm:"index;not null" json:"entry_date"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// LedgerAnomaly is an entry the aggregator refused to sum as-is.
type LedgerAnomaly struct {
	EntryId   int             `json:"entry_id"`
	EntryType LedgerEntryType `json:"entry_type"`
	Amount    Money           `json:"amount"`
	Reason    string          `json:"reason"`
}

// AggregateLedger folds the entries in timestamp order into the customer's
// balance: sum of debits minus sum of credits. Zero-amount adjustments are
// ignored. Nonzero adjustments and zero/negative debit or credit entries are
// returned as anomalies alongside the balance; their amounts are excluded
// from the fold so a bad row cannot silently distort the cached balance.
func AggregateLedger(entries []CustomerLedgerEntry) (Money, []LedgerAnomaly) {
	balance := ZeroMoney()
	var anomalies []LedgerAnomaly

	for _, e := range entries {
		switch e.EntryType {
		case LedgerEntryTypeDebit, LedgerEntryTypeCredit:
			if e.Amount.Sign() <= 0 {
				anomalies = append(anomalies, LedgerAnomaly{
					EntryId:   e.ID,
					EntryType: e.EntryType,
					Amount:    e.Amount,
					Reason:    fmt.Sprintf("%s entry must carry a strictly positive amount", e.EntryType),
				})
				continue
			}
			if e.EntryType == LedgerEntryTypeDebit {
				balance = balance.Add(e.Amount)
			} else {
				balance = balance.Sub(e.Amount)
			}
		case LedgerEntryTypeAdjustment:
			if !e.Amount.IsZero() {
				anomalies = append(anomalies, LedgerAnomaly{
					EntryId:   e.ID,
					EntryType: e.EntryType,
					Amount:    e.Amount,
					Reason:    "adjustment entry carries a nonzero amount",
				})
			}
		default:
			anomalies = append(anomalies, LedgerAnomaly{
				EntryId:   e.ID,
				EntryType: e.EntryType,
				Amount:    e.Amount,
				Reason:    fmt.Sprintf("unknown entry type %q", e.EntryType),
			})
		}
	}
	return balance, anomalies
}
