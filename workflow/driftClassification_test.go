package workflow

import (
	"testing"

	"github.com/steelstorehq/store_backend/models"
)

func money(t *testing.T, s string) models.Money {
	t.Helper()
	m, err := models.MoneyFromString(s)
	if err != nil {
		t.Fatalf("MoneyFromString(%q): %v", s, err)
	}
	return m
}

func TestClassifyDrift_WithinToleranceIsClean(t *testing.T) {
	if f := classifyDrift("invoice", 1, "remaining_balance", money(t, "100.00"), money(t, "100.01"), nil); f != nil {
		t.Fatalf("one cent apart must not be drift, got %+v", f)
	}
	if f := classifyDrift("invoice", 1, "remaining_balance", money(t, "100.00"), money(t, "100.00"), nil); f != nil {
		t.Fatalf("exact match must not be drift, got %+v", f)
	}
}

func TestClassifyDrift_StaleCache(t *testing.T) {
	f := classifyDrift("invoice", 7, "remaining_balance", money(t, "13000"), money(t, "10000"), nil)
	if f == nil {
		t.Fatalf("expected a finding")
	}
	if f.Hint != "stale derived cache" {
		t.Fatalf("hint = %q", f.Hint)
	}
	if got := f.Delta.StringFixed(2); got != "-3000.00" {
		t.Fatalf("delta = %s, want -3000.00", got)
	}
	if f.Repaired {
		t.Fatalf("classification must not mark repaired")
	}
}

func TestClassifyDrift_OverPaymentHint(t *testing.T) {
	f := classifyDrift("invoice", 7, "remaining_balance", money(t, "0"), money(t, "-150"), nil)
	if f == nil {
		t.Fatalf("expected a finding")
	}
	if f.Hint != "over-payment: customer holds credit on this invoice" {
		t.Fatalf("hint = %q", f.Hint)
	}
}

func TestClassifyDrift_AnomaliesReportedEvenWhenAmountsMatch(t *testing.T) {
	anomalies := []models.LedgerAnomaly{{EntryId: 3, EntryType: models.LedgerEntryTypeAdjustment, Reason: "adjustment entry carries a nonzero amount"}}
	f := classifyDrift("customer", 4, "balance", money(t, "500"), money(t, "500"), anomalies)
	if f == nil {
		t.Fatalf("expected a finding for ledger anomalies")
	}
	if f.Hint != "ledger entries violate structural invariants" {
		t.Fatalf("hint = %q", f.Hint)
	}
	if len(f.Anomalies) != 1 || f.Anomalies[0].EntryId != 3 {
		t.Fatalf("anomalies not carried: %+v", f.Anomalies)
	}
}
