package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount accepts common user-formatted amount strings like:
// - "20,000"
// - "Rs 20,000"
// - "Rs -20,000"
// - "20000.50"
//
// Keep digits, '.', and a leading '-' only.
func ParseAmount(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s != "" {
			s = strings.ReplaceAll(s, ",", "")
			s = strings.TrimSpace(s)
		}
		// A '-' anywhere before the first digit marks the value negative
		// ("-20000", "Rs -20,000").
		neg := false
		for _, r := range s {
			if r >= '0' && r <= '9' {
				break
			}
			if r == '-' {
				neg = true
				break
			}
		}
		// Strip everything except digits and '.'. This drops any currency
		// symbol or code prefix the UI may have left in.
		var b strings.Builder
		b.Grow(len(s) + 1)
		for _, r := range s {
			if (r >= '0' && r <= '9') || r == '.' {
				b.WriteRune(r)
			}
		}
		clean := b.String()
		if clean == "" {
			return decimal.NewFromInt(0), NewValidationError("amount", "invalid value")
		}
		if neg {
			clean = "-" + clean
		}

		val, err := decimal.NewFromString(clean)
		if err != nil {
			return decimal.NewFromInt(0), NewValidationError("amount", "invalid value")
		}
		return val, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return decimal.NewFromInt(0), NewValidationError("amount", "invalid value")
	}
}
