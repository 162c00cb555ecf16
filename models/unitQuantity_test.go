package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/utils"
)

func mustQty(t *testing.T, text string, kind UnitKind, mpm int64) UnitQuantity {
	t.Helper()
	q, err := ParseUnitQuantity(text, kind, mpm)
	if err != nil {
		t.Fatalf("ParseUnitQuantity(%q): %v", text, err)
	}
	return q
}

func TestParseUnitQuantity_CompoundRoundTrip(t *testing.T) {
	q := mustQty(t, "155-20", UnitKindCompound, 30)
	if q.Major != 155 || q.Minor != 20 {
		t.Fatalf("expected 155-20, got %d-%d", q.Major, q.Minor)
	}
	if got := q.Canonical().IntPart(); got != 155*30+20 {
		t.Fatalf("canonical = %d, want %d", got, 155*30+20)
	}
	if got := q.Format(); got != "155-20" {
		t.Fatalf("format = %q, want 155-20", got)
	}
	back, err := ParseUnitQuantity(q.Format(), UnitKindCompound, 30)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if back.Compare(q) != 0 {
		t.Fatalf("parse(format(q)) != q")
	}
}

func TestParseUnitQuantity_MinorAtLimitRejected(t *testing.T) {
	// "1-500" with 1000 sub-units per unit is 1500 canonical, legal.
	q := mustQty(t, "1-500", UnitKindCompound, 1000)
	if got := q.Canonical().IntPart(); got != 1500 {
		t.Fatalf("canonical = %d, want 1500", got)
	}
	// Minor equal to the ratio is malformed, never silently carried.
	if _, err := ParseUnitQuantity("1-1000", UnitKindCompound, 1000); err == nil {
		t.Fatalf("expected error for minor == minorPerMajor")
	}
}

func TestParseUnitQuantity_Malformed(t *testing.T) {
	cases := []struct {
		text string
		kind UnitKind
		mpm  int64
	}{
		{"155-", UnitKindCompound, 30},
		{"155", UnitKindCompound, 30},
		{"a-b", UnitKindCompound, 30},
		{"-1-5", UnitKindCompound, 30},
		{"1-2-3", UnitKindCompound, 30},
		{"", UnitKindCompound, 30},
		{"abc", UnitKindScalar, 1},
		{"-4", UnitKindScalar, 1},
	}
	for _, c := range cases {
		_, err := ParseUnitQuantity(c.text, c.kind, c.mpm)
		if err == nil {
			t.Fatalf("expected error for %q (%s)", c.text, c.kind)
		}
		if !utils.IsValidationError(err) {
			t.Fatalf("expected validation error for %q, got %v", c.text, err)
		}
	}
}

func TestUnitQuantity_FromCanonical(t *testing.T) {
	q := UnitQuantityFromCanonical(decimal.NewFromInt(4670), UnitKindCompound, 30)
	if q.Major != 155 || q.Minor != 20 {
		t.Fatalf("expected 155-20, got %s", q.Format())
	}
	zero := UnitQuantityFromCanonical(decimal.Zero, UnitKindCompound, 30)
	if zero.Format() != "0-0" {
		t.Fatalf("expected 0-0, got %s", zero.Format())
	}
}

func TestUnitQuantity_FromCanonicalBadRatio(t *testing.T) {
	// A corrupt row carrying minor_per_major = 0 must not panic; the value
	// degrades to whole units.
	q := UnitQuantityFromCanonical(decimal.NewFromInt(4670), UnitKindCompound, 0)
	if q.Major != 4670 || q.Minor != 0 {
		t.Fatalf("expected 4670-0, got %s", q.Format())
	}
	neg := UnitQuantityFromCanonical(decimal.NewFromInt(-15), UnitKindCompound, -3)
	if !neg.IsZero() {
		t.Fatalf("expected zero clamp, got %s", neg.Format())
	}
}

func TestUnitQuantity_RateUnits(t *testing.T) {
	q := mustQty(t, "2-500", UnitKindCompound, 1000)
	want := decimal.RequireFromString("2.5")
	if !q.RateUnits().Equal(want) {
		t.Fatalf("rate units = %s, want 2.5", q.RateUnits())
	}
	s := mustQty(t, "7.25", UnitKindScalar, 1)
	if !s.RateUnits().Equal(decimal.RequireFromString("7.25")) {
		t.Fatalf("scalar rate units = %s, want 7.25", s.RateUnits())
	}
}

func TestUnitQuantity_AddSub(t *testing.T) {
	a := mustQty(t, "10-500", UnitKindCompound, 1000)
	b := mustQty(t, "2-0", UnitKindCompound, 1000)

	sum := a.Add(b)
	if sum.Format() != "12-500" {
		t.Fatalf("add = %s, want 12-500", sum.Format())
	}

	diff, underflow := a.Sub(b)
	if underflow {
		t.Fatalf("unexpected underflow")
	}
	if diff.Format() != "8-500" {
		t.Fatalf("sub = %s, want 8-500", diff.Format())
	}

	// Subtracting more than available clamps at zero and reports underflow.
	clamped, underflow := b.Sub(a)
	if !underflow {
		t.Fatalf("expected underflow")
	}
	if !clamped.IsZero() {
		t.Fatalf("expected zero clamp, got %s", clamped.Format())
	}
}
