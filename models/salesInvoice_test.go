package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/utils"
)

func scalarItem(t *testing.T, qty string, price string) InvoiceItem {
	t.Helper()
	q := mustQty(t, qty, UnitKindScalar, 1)
	item := InvoiceItem{
		UnitKind:      UnitKindScalar,
		MinorPerMajor: 1,
		Qty:           q.Canonical(),
		QtyDisplay:    q.Format(),
		UnitPrice:     mustMoney(t, price),
	}
	item.LineTotal = item.CalculateLineTotal()
	return item
}

func compoundItem(t *testing.T, qty string, mpm int64, price string) InvoiceItem {
	t.Helper()
	q := mustQty(t, qty, UnitKindCompound, mpm)
	item := InvoiceItem{
		UnitKind:      UnitKindCompound,
		MinorPerMajor: mpm,
		Qty:           q.Canonical(),
		QtyDisplay:    q.Format(),
		UnitPrice:     mustMoney(t, price),
	}
	item.LineTotal = item.CalculateLineTotal()
	return item
}

// Settlement regression: invoice of 25000 with 8% discount is 23000; a return
// of 10000 and a payment of 13000 settle it to exactly zero.
func TestCalculateInvoiceTotals_SettlesToZero(t *testing.T) {
	items := []InvoiceItem{scalarItem(t, "10", "2500")}
	totals, err := CalculateInvoiceTotals(items, decimal.NewFromInt(8), mustMoney(t, "10000"), mustMoney(t, "13000"))
	if err != nil {
		t.Fatalf("CalculateInvoiceTotals: %v", err)
	}

	if got := totals.Subtotal.StringFixed(2); got != "25000.00" {
		t.Fatalf("subtotal = %s, want 25000.00", got)
	}
	if got := totals.DiscountAmount.StringFixed(2); got != "2000.00" {
		t.Fatalf("discount = %s, want 2000.00", got)
	}
	if got := totals.GrandTotal.StringFixed(2); got != "23000.00" {
		t.Fatalf("grand total = %s, want 23000.00", got)
	}
	if got := totals.EffectiveTotal.StringFixed(2); got != "13000.00" {
		t.Fatalf("effective total = %s, want 13000.00", got)
	}
	if !totals.RemainingBalance.IsZero() {
		t.Fatalf("remaining = %s, want 0", totals.RemainingBalance.StringFixed(2))
	}

	status := StatusForTotals(totals, true, true)
	if status != InvoiceStatusReconciled {
		t.Fatalf("status = %s, want Reconciled", status)
	}
}

func TestCalculateInvoiceTotals_CompoundLineRounding(t *testing.T) {
	// 155-20 at ratio 30 is 155.666... units; the line is rounded before
	// summation so 4670 sub-units at 300 per unit lands on exactly 46700.00.
	items := []InvoiceItem{compoundItem(t, "155-20", 30, "300")}
	totals, err := CalculateInvoiceTotals(items, decimal.Zero, ZeroMoney(), ZeroMoney())
	if err != nil {
		t.Fatalf("CalculateInvoiceTotals: %v", err)
	}
	if got := totals.GrandTotal.StringFixed(2); got != "46700.00" {
		t.Fatalf("grand total = %s, want 46700.00", got)
	}
}

func TestCalculateInvoiceTotals_LinesRoundBeforeSum(t *testing.T) {
	// Each 2.5-unit line of 10.01 rounds to 25.03 (25.025 half-up) at the
	// line; four lines sum to 100.12, never 100.10.
	items := []InvoiceItem{
		compoundItem(t, "2-500", 1000, "10.01"),
		compoundItem(t, "2-500", 1000, "10.01"),
		compoundItem(t, "2-500", 1000, "10.01"),
		compoundItem(t, "2-500", 1000, "10.01"),
	}
	totals, err := CalculateInvoiceTotals(items, decimal.Zero, ZeroMoney(), ZeroMoney())
	if err != nil {
		t.Fatalf("CalculateInvoiceTotals: %v", err)
	}
	if got := totals.Subtotal.StringFixed(2); got != "100.12" {
		t.Fatalf("subtotal = %s, want 100.12", got)
	}
}

func TestCalculateInvoiceTotals_NegativeRemainingIsCredit(t *testing.T) {
	items := []InvoiceItem{scalarItem(t, "1", "100")}
	totals, err := CalculateInvoiceTotals(items, decimal.Zero, ZeroMoney(), mustMoney(t, "150"))
	if err != nil {
		t.Fatalf("CalculateInvoiceTotals: %v", err)
	}
	if got := totals.RemainingBalance.StringFixed(2); got != "-50.00" {
		t.Fatalf("remaining = %s, want -50.00", got)
	}
	if status := StatusForTotals(totals, false, true); status != InvoiceStatusPaid {
		t.Fatalf("status = %s, want Paid", status)
	}
}

func TestValidateDiscountPercent(t *testing.T) {
	for _, p := range []string{"0", "8", "100"} {
		if err := ValidateDiscountPercent(decimal.RequireFromString(p)); err != nil {
			t.Fatalf("discount %s rejected: %v", p, err)
		}
	}
	for _, p := range []string{"-1", "100.01", "250"} {
		err := ValidateDiscountPercent(decimal.RequireFromString(p))
		if err == nil {
			t.Fatalf("discount %s accepted", p)
		}
		if !utils.IsValidationError(err) {
			t.Fatalf("discount %s: expected validation error, got %v", p, err)
		}
	}
}

func TestStatusForTotals_Lifecycle(t *testing.T) {
	mk := func(remaining string) InvoiceTotals {
		return InvoiceTotals{RemainingBalance: mustMoney(t, remaining)}
	}

	if s := StatusForTotals(mk("23000"), false, false); s != InvoiceStatusConfirmed {
		t.Fatalf("fresh invoice = %s, want Confirmed", s)
	}
	if s := StatusForTotals(mk("10000"), false, true); s != InvoiceStatusPartialPaid {
		t.Fatalf("partial payment = %s, want Partial Paid", s)
	}
	if s := StatusForTotals(mk("13000"), true, false); s != InvoiceStatusHasReturns {
		t.Fatalf("return only = %s, want Has Returns", s)
	}
	if s := StatusForTotals(mk("0"), false, true); s != InvoiceStatusReconciled {
		t.Fatalf("fully paid = %s, want Reconciled", s)
	}
	if s := StatusForTotals(mk("0"), true, false); s != InvoiceStatusReconciled {
		t.Fatalf("fully returned = %s, want Reconciled", s)
	}
	// A later reversal reopens the invoice: recomputation alone decides.
	if s := StatusForTotals(mk("13000"), true, true); s != InvoiceStatusPartialPaid {
		t.Fatalf("reopened = %s, want Partial Paid", s)
	}
}

func TestCalculateLineTotal_DerivedNotStored(t *testing.T) {
	item := scalarItem(t, "3", "2500")
	// Tampering with LineTotal has no effect on recomputation.
	item.LineTotal = mustMoney(t, "999999")
	if got := item.CalculateLineTotal().StringFixed(2); got != "7500.00" {
		t.Fatalf("line total = %s, want 7500.00", got)
	}
}
