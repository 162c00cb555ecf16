package models

import "testing"

func TestEvaluateStock_OK(t *testing.T) {
	current := mustQty(t, "10-500", UnitKindCompound, 1000)
	requested := mustQty(t, "2-0", UnitKindCompound, 1000)
	alert := mustQty(t, "3-0", UnitKindCompound, 1000)

	eval := EvaluateStock(current, requested, alert)
	if eval.Status != StockStatusOK {
		t.Fatalf("status = %s, want OK", eval.Status)
	}
	if eval.NewStock.Format() != "8-500" {
		t.Fatalf("new stock = %s, want 8-500", eval.NewStock.Format())
	}
}

func TestEvaluateStock_LowAtThreshold(t *testing.T) {
	current := mustQty(t, "5-0", UnitKindCompound, 1000)
	requested := mustQty(t, "2-0", UnitKindCompound, 1000)
	alert := mustQty(t, "3-0", UnitKindCompound, 1000)

	// Landing exactly on the threshold is LOW, not OK.
	eval := EvaluateStock(current, requested, alert)
	if eval.Status != StockStatusLow {
		t.Fatalf("status = %s, want LOW", eval.Status)
	}
	if eval.NewStock.Format() != "3-0" {
		t.Fatalf("new stock = %s, want 3-0", eval.NewStock.Format())
	}
}

func TestEvaluateStock_Insufficient(t *testing.T) {
	current := mustQty(t, "1-200", UnitKindCompound, 1000)
	requested := mustQty(t, "2-0", UnitKindCompound, 1000)
	alert := mustQty(t, "0-0", UnitKindCompound, 1000)

	eval := EvaluateStock(current, requested, alert)
	if eval.Status != StockStatusInsufficient {
		t.Fatalf("status = %s, want INSUFFICIENT", eval.Status)
	}
	// Display value clamps at zero; it is never a persistable stock level.
	if !eval.NewStock.IsZero() {
		t.Fatalf("new stock = %s, want zero clamp", eval.NewStock.Format())
	}
}

func TestEvaluateStock_ScalarUnits(t *testing.T) {
	current := mustQty(t, "20", UnitKindScalar, 1)
	requested := mustQty(t, "20", UnitKindScalar, 1)
	alert := mustQty(t, "5", UnitKindScalar, 1)

	// Draining to exactly zero is allowed (LOW because 0 <= threshold).
	eval := EvaluateStock(current, requested, alert)
	if eval.Status != StockStatusLow {
		t.Fatalf("status = %s, want LOW", eval.Status)
	}
	if !eval.NewStock.IsZero() {
		t.Fatalf("new stock = %s, want 0", eval.NewStock.Format())
	}
}
