package utils

import "testing"

func TestParseAmount_StringFormats(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"20000", "20000"},
		{"20,000", "20000"},
		{"Rs 20,000", "20000"},
		{"Rs -20,000", "-20000"},
		{"-42.10", "-42.1"},
		{"  500 ", "500"},
		{"20000.50", "20000.5"},
	}
	for _, c := range cases {
		d, err := ParseAmount(c.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", c.in, err)
		}
		if got := d.String(); got != c.want {
			t.Fatalf("ParseAmount(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestParseAmount_NumericTypes(t *testing.T) {
	if d, err := ParseAmount(float64(12.5)); err != nil || d.String() != "12.5" {
		t.Fatalf("float64: %v %v", d, err)
	}
	if d, err := ParseAmount(int(7)); err != nil || d.String() != "7" {
		t.Fatalf("int: %v %v", d, err)
	}
	if d, err := ParseAmount(int64(-3)); err != nil || d.String() != "-3" {
		t.Fatalf("int64: %v %v", d, err)
	}
}

func TestParseAmount_RejectsGarbage(t *testing.T) {
	for _, in := range []interface{}{"", "abc", "1.2.3", struct{}{}, nil} {
		_, err := ParseAmount(in)
		if err == nil {
			t.Fatalf("expected error for %#v", in)
		}
		if !IsValidationError(err) {
			t.Fatalf("expected validation error for %#v, got %v", in, err)
		}
	}
}
