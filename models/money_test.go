package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustMoney(t *testing.T, s string) Money {
	t.Helper()
	m, err := MoneyFromString(s)
	if err != nil {
		t.Fatalf("MoneyFromString(%q): %v", s, err)
	}
	return m
}

func TestMoney_NoDriftOnRepeatedAddition(t *testing.T) {
	// 0.1 + 0.2 style sums are exact in fixed-point; 10000 additions of one
	// cent must land on exactly 100.00.
	cent := mustMoney(t, "0.01")
	sum := ZeroMoney()
	for i := 0; i < 10000; i++ {
		sum = sum.Add(cent)
	}
	if got := sum.StringFixed(2); got != "100.00" {
		t.Fatalf("expected 100.00, got %s", got)
	}

	a := mustMoney(t, "0.10")
	b := mustMoney(t, "0.20")
	if got := a.Add(b).StringFixed(2); got != "0.30" {
		t.Fatalf("expected 0.30, got %s", got)
	}
}

func TestMoney_AddSubRoundTrip(t *testing.T) {
	start := mustMoney(t, "23000")
	step := mustMoney(t, "1234.56")
	v := start
	for i := 0; i < 1000; i++ {
		v = v.Add(step)
		v = v.Sub(step)
	}
	if !v.Equal(start) {
		t.Fatalf("expected %s after round trip, got %s", start.StringFixed(2), v.StringFixed(2))
	}
}

func TestMoney_MulScalarQuantizesHalfUp(t *testing.T) {
	price := mustMoney(t, "10.01")
	half := decimal.RequireFromString("0.5")
	// 10.01 * 0.5 = 5.005, half-up to 5.01.
	if got := price.MulScalar(half).StringFixed(2); got != "5.01" {
		t.Fatalf("expected 5.01, got %s", got)
	}
}

func TestMoneyFromString_TolerantFormats(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"20,000", "20000.00"},
		{"Rs 1,234.50", "1234.50"},
		{"  500 ", "500.00"},
		{"-42.10", "-42.10"},
	}
	for _, c := range cases {
		m, err := MoneyFromString(c.in)
		if err != nil {
			t.Fatalf("MoneyFromString(%q): %v", c.in, err)
		}
		if got := m.StringFixed(2); got != c.want {
			t.Fatalf("MoneyFromString(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestMoneyFromString_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3"} {
		if _, err := MoneyFromString(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestMoney_WithinTolerance(t *testing.T) {
	a := mustMoney(t, "100.00")
	if !a.WithinTolerance(mustMoney(t, "100.01")) {
		t.Fatalf("one cent apart must be within tolerance")
	}
	if !a.WithinTolerance(mustMoney(t, "99.99")) {
		t.Fatalf("one cent under must be within tolerance")
	}
	if a.WithinTolerance(mustMoney(t, "100.02")) {
		t.Fatalf("two cents apart must exceed tolerance")
	}
}

func TestMoney_Display(t *testing.T) {
	m := mustMoney(t, "1234.5")
	if got := m.Display("Rs "); got != "Rs 1234.50" {
		t.Fatalf("expected 'Rs 1234.50', got %q", got)
	}
}
