package models

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/utils"
)

// Money is an exact currency amount quantized to 2 fractional digits.
// Every arithmetic result is re-rounded (half-up) before it can be observed,
// so repeated add/subtract sequences never drift. Comparisons go through the
// decimal representation or WithinTolerance; binary floats never enter the
// arithmetic path.
//
// Persist with `gorm:"type:decimal(20,2)"`.
type Money struct {
	decimal.Decimal
}

const moneyScale = 2

// moneyTolerance is one minor currency unit (0.01).
var moneyTolerance = decimal.New(1, -moneyScale)

func NewMoney(d decimal.Decimal) Money {
	return Money{d.Round(moneyScale)}
}

func MoneyFromInt(n int64) Money {
	return Money{decimal.NewFromInt(n)}
}

// MoneyFromString accepts user-formatted amount strings ("20,000",
// "Rs 1,234.50") and quantizes the result.
func MoneyFromString(s string) (Money, error) {
	d, err := utils.ParseAmount(s)
	if err != nil {
		return Money{}, err
	}
	return NewMoney(d), nil
}

func ZeroMoney() Money {
	return Money{decimal.Zero}
}

func (m Money) Add(o Money) Money {
	return NewMoney(m.Decimal.Add(o.Decimal))
}

func (m Money) Sub(o Money) Money {
	return NewMoney(m.Decimal.Sub(o.Decimal))
}

// MulScalar multiplies by a dimensionless factor (quantity, percentage
// fraction) and re-quantizes.
func (m Money) MulScalar(f decimal.Decimal) Money {
	return NewMoney(m.Decimal.Mul(f))
}

func (m Money) Abs() Money {
	return Money{m.Decimal.Abs()}
}

func (m Money) Cmp(o Money) int {
	return m.Decimal.Cmp(o.Decimal)
}

func (m Money) Equal(o Money) bool {
	return m.Decimal.Equal(o.Decimal)
}

// WithinTolerance reports whether the two amounts differ by at most one
// minor currency unit. This is the drift-audit comparison; exact equality
// is still available via Equal.
func (m Money) WithinTolerance(o Money) bool {
	return m.Decimal.Sub(o.Decimal).Abs().Cmp(moneyTolerance) <= 0
}

// Display renders the fixed 2-decimal currency string with a symbol prefix.
// The boundary never sees binary floats.
func (m Money) Display(symbol string) string {
	return fmt.Sprintf("%s%s", symbol, m.Decimal.StringFixed(moneyScale))
}
