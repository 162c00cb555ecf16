package models

import "testing"

func TestAggregateLedger_DebitsMinusCredits(t *testing.T) {
	entries := []CustomerLedgerEntry{
		{ID: 1, EntryType: LedgerEntryTypeDebit, Amount: mustMoney(t, "20000")},
		{ID: 2, EntryType: LedgerEntryTypeDebit, Amount: mustMoney(t, "12128")},
		{ID: 3, EntryType: LedgerEntryTypeCredit, Amount: mustMoney(t, "21440")},
	}
	balance, anomalies := AggregateLedger(entries)
	if len(anomalies) != 0 {
		t.Fatalf("unexpected anomalies: %v", anomalies)
	}
	if got := balance.StringFixed(2); got != "10688.00" {
		t.Fatalf("balance = %s, want 10688.00", got)
	}
}

func TestAggregateLedger_EmptyIsZero(t *testing.T) {
	balance, anomalies := AggregateLedger(nil)
	if !balance.IsZero() || len(anomalies) != 0 {
		t.Fatalf("expected zero balance and no anomalies, got %s / %v", balance.StringFixed(2), anomalies)
	}
}

func TestAggregateLedger_FlagsBadEntriesWithoutFoldingThem(t *testing.T) {
	entries := []CustomerLedgerEntry{
		{ID: 1, EntryType: LedgerEntryTypeDebit, Amount: mustMoney(t, "100")},
		// Structurally invalid rows: excluded from the fold, reported by id.
		{ID: 2, EntryType: LedgerEntryTypeDebit, Amount: ZeroMoney()},
		{ID: 3, EntryType: LedgerEntryTypeCredit, Amount: mustMoney(t, "-5")},
		{ID: 4, EntryType: LedgerEntryTypeAdjustment, Amount: mustMoney(t, "7")},
		// Zero adjustment is legal and silently ignored.
		{ID: 5, EntryType: LedgerEntryTypeAdjustment, Amount: ZeroMoney()},
		{ID: 6, EntryType: LedgerEntryType("Bogus"), Amount: mustMoney(t, "3")},
	}
	balance, anomalies := AggregateLedger(entries)

	if got := balance.StringFixed(2); got != "100.00" {
		t.Fatalf("balance = %s, want 100.00 (bad rows must not distort the fold)", got)
	}
	if len(anomalies) != 3 {
		t.Fatalf("expected 3 anomalies, got %d: %v", len(anomalies), anomalies)
	}
	wantIds := map[int]bool{2: true, 3: true, 6: true}
	for _, a := range anomalies {
		if !wantIds[a.EntryId] {
			t.Fatalf("unexpected anomaly entry id %d (%s)", a.EntryId, a.Reason)
		}
	}
}
