package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/utils"
)

type UnitKind string

const (
	UnitKindScalar   UnitKind = "S"
	UnitKindCompound UnitKind = "C"
)

// UnitQuantity is a tagged quantity: a plain decimal for countable goods, or
// a whole-unit + sub-unit pair for weight-based goods ("155-20" is 155 whole
// units and 20 sub-units). Invariant for compound: 0 <= Minor < MinorPerMajor.
// All arithmetic and comparison goes through Canonical().
type UnitQuantity struct {
	Kind          UnitKind
	Scalar        decimal.Decimal
	Major         int64
	Minor         int64
	MinorPerMajor int64
}

// ParseUnitQuantity parses the external text form: "major-minor" for compound
// kinds, a plain non-negative decimal for scalar kinds. A malformed string
// (missing/non-numeric minor, minor >= minorPerMajor, negative components) is
// a validation error, never silently coerced.
func ParseUnitQuantity(text string, kind UnitKind, minorPerMajor int64) (UnitQuantity, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return UnitQuantity{}, utils.NewValidationError("quantity", "quantity is required")
	}

	switch kind {
	case UnitKindCompound:
		if minorPerMajor <= 1 {
			return UnitQuantity{}, utils.NewValidationError("quantity", "compound unit requires minor_per_major > 1")
		}
		parts := strings.Split(text, "-")
		if len(parts) != 2 {
			return UnitQuantity{}, utils.NewValidationError("quantity", fmt.Sprintf("malformed compound quantity %q, expected \"major-minor\"", text))
		}
		major, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil || major < 0 {
			return UnitQuantity{}, utils.NewValidationError("quantity", fmt.Sprintf("malformed major component in %q", text))
		}
		minor, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || minor < 0 {
			return UnitQuantity{}, utils.NewValidationError("quantity", fmt.Sprintf("malformed minor component in %q", text))
		}
		if minor >= minorPerMajor {
			return UnitQuantity{}, utils.NewValidationError("quantity", fmt.Sprintf("minor component %d must be < %d", minor, minorPerMajor))
		}
		return UnitQuantity{Kind: UnitKindCompound, Major: major, Minor: minor, MinorPerMajor: minorPerMajor}, nil

	case UnitKindScalar:
		v, err := decimal.NewFromString(text)
		if err != nil {
			return UnitQuantity{}, utils.NewValidationError("quantity", fmt.Sprintf("malformed quantity %q", text))
		}
		if v.IsNegative() {
			return UnitQuantity{}, utils.NewValidationError("quantity", "quantity must not be negative")
		}
		return UnitQuantity{Kind: UnitKindScalar, Scalar: v}, nil

	default:
		return UnitQuantity{}, utils.NewValidationError("unit_kind", fmt.Sprintf("unknown unit kind %q", kind))
	}
}

// UnitQuantityFromCanonical rebuilds a quantity from its persisted canonical
// number. Compound canonicals are whole sub-unit counts; the caller must not
// pass a negative value (stock never goes negative).
func UnitQuantityFromCanonical(c decimal.Decimal, kind UnitKind, minorPerMajor int64) UnitQuantity {
	if kind == UnitKindScalar {
		return UnitQuantity{Kind: UnitKindScalar, Scalar: c}
	}
	// A corrupt row with minor_per_major <= 0 must not panic read paths
	// like the audit; treat it as whole units only.
	if minorPerMajor <= 0 {
		minorPerMajor = 1
	}
	n := c.IntPart()
	if n < 0 {
		n = 0
	}
	return UnitQuantity{
		Kind:          UnitKindCompound,
		Major:         n / minorPerMajor,
		Minor:         n % minorPerMajor,
		MinorPerMajor: minorPerMajor,
	}
}

// Canonical reduces the quantity to the single scalar used for comparison,
// stock math, and persistence: major*minorPerMajor + minor for compound, the
// raw value for scalar.
func (q UnitQuantity) Canonical() decimal.Decimal {
	if q.Kind == UnitKindCompound {
		return decimal.NewFromInt(q.Major*q.MinorPerMajor + q.Minor)
	}
	return q.Scalar
}

// RateUnits is the quantity expressed in whole units for pricing:
// major + minor/minorPerMajor for compound (exact in decimal), the raw value
// for scalar.
func (q UnitQuantity) RateUnits() decimal.Decimal {
	if q.Kind == UnitKindCompound {
		return q.Canonical().Div(decimal.NewFromInt(q.MinorPerMajor))
	}
	return q.Scalar
}

// Format is the inverse of ParseUnitQuantity; parse(format(q)) == q for any
// parsed value. Zero compound formats as "0-0".
func (q UnitQuantity) Format() string {
	if q.Kind == UnitKindCompound {
		return fmt.Sprintf("%d-%d", q.Major, q.Minor)
	}
	return q.Scalar.String()
}

func (q UnitQuantity) Compare(o UnitQuantity) int {
	return q.Canonical().Cmp(o.Canonical())
}

func (q UnitQuantity) IsZero() bool {
	return q.Canonical().IsZero()
}

func (q UnitQuantity) Add(o UnitQuantity) UnitQuantity {
	return UnitQuantityFromCanonical(q.Canonical().Add(o.Canonical()), q.Kind, q.MinorPerMajor)
}

// Sub subtracts o, clamping at zero. The second return is true when the
// subtraction would have gone negative; callers must treat that as a blocked
// operation, never a wrapped value.
func (q UnitQuantity) Sub(o UnitQuantity) (UnitQuantity, bool) {
	d := q.Canonical().Sub(o.Canonical())
	if d.IsNegative() {
		return UnitQuantityFromCanonical(decimal.Zero, q.Kind, q.MinorPerMajor), true
	}
	return UnitQuantityFromCanonical(d, q.Kind, q.MinorPerMajor), false
}
