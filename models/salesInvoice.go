package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/utils"
)

// Invoice header. Subtotal, DiscountAmount, GrandTotal, TotalReturned and
// RemainingBalance are derived caches: they are rewritten from source rows by
// reconciliation on every mutation and must match a from-scratch
// recomputation within one minor currency unit. Invoices are never deleted,
// only superseded by correcting entries (returns, payment reversals).
type Invoice struct {
	ID               int             `gorm:"primary_key" json:"id"`
	CustomerId       int             `gorm:"index;not null" json:"customer_id" binding:"required"`
	InvoiceNumber    string          `gorm:"size:50;not null;uniqueIndex" json:"invoice_number"`
	InvoiceDate      time.Time       `gorm:"index;not null" json:"invoice_date"`
	Items            []InvoiceItem   `gorm:"foreignKey:InvoiceId" json:"items"`
	DiscountPercent  decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"discount_percent"`
	Subtotal         Money           `gorm:"type:decimal(20,2);default:0" json:"subtotal"`
	DiscountAmount   Money           `gorm:"type:decimal(20,2);default:0" json:"discount_amount"`
	GrandTotal       Money           `gorm:"type:decimal(20,2);default:0" json:"grand_total"`
	TotalReturned    Money           `gorm:"type:decimal(20,2);default:0" json:"total_returned"`
	PaymentAmount    Money           `gorm:"type:decimal(20,2);default:0" json:"payment_amount"`
	RemainingBalance Money           `gorm:"type:decimal(20,2);default:0" json:"remaining_balance"`
	CurrentStatus    InvoiceStatus   `gorm:"type:enum('Draft','Confirmed','Partial Paid','Paid','Has Returns','Reconciled');not null;default:'Draft'" json:"current_status"`
	Notes            string          `gorm:"type:text" json:"notes"`
	RequestId        string          `gorm:"size:64;index" json:"-"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// InvoiceItem snapshots the product's unit configuration at sale time so a
// later product edit cannot change history. Qty is the canonical sub-unit
// number; QtyDisplay is the lossless "major-minor" (or plain decimal) text.
// LineTotal is always derived from Qty and UnitPrice, never mutated directly.
type InvoiceItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	InvoiceId     int             `gorm:"index;not null" json:"invoice_id"`
	ProductId     int             `gorm:"index;not null" json:"product_id"`
	Name          string          `gorm:"size:100;not null" json:"name"`
	UnitKind      UnitKind        `gorm:"type:enum('S','C');not null;default:'S'" json:"unit_kind"`
	MinorPerMajor int64           `gorm:"not null;default:1" json:"minor_per_major"`
	Qty           decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	QtyDisplay    string          `gorm:"size:50;not null" json:"qty_display"`
	UnitPrice     Money           `gorm:"type:decimal(20,2);not null" json:"unit_price"`
	LineTotal     Money           `gorm:"type:decimal(20,2);not null" json:"line_total"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (item *InvoiceItem) Quantity() UnitQuantity {
	return UnitQuantityFromCanonical(item.Qty, item.UnitKind, item.MinorPerMajor)
}

// CalculateLineTotal derives the item's line total: quantity in whole units
// times unit price, rounded to money precision at the line. Lines are rounded
// BEFORE summation everywhere; rounding only the final sum is how cent drift
// creeps in.
func (item *InvoiceItem) CalculateLineTotal() Money {
	return item.UnitPrice.MulScalar(item.Quantity().RateUnits())
}

type NewInvoiceItem struct {
	ProductId int    `json:"product_id" binding:"required"`
	Qty       string `json:"qty" binding:"required"`
	// UnitPrice overrides the product rate when nonempty (negotiated price).
	UnitPrice string `json:"unit_price"`
}

type NewInvoice struct {
	CustomerId      int              `json:"customer_id" binding:"required"`
	InvoiceDate     *time.Time       `json:"invoice_date"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	Notes           string           `json:"notes"`
	ForceStock      bool             `json:"force_stock"`
	RequestId       string           `json:"request_id"`
	Items           []NewInvoiceItem `json:"items" binding:"required,min=1"`
}

// InvoiceTotals is the result of one from-scratch recomputation.
type InvoiceTotals struct {
	Subtotal         Money `json:"subtotal"`
	DiscountAmount   Money `json:"discount_amount"`
	GrandTotal       Money `json:"grand_total"`
	EffectiveTotal   Money `json:"effective_total"`
	RemainingBalance Money `json:"remaining_balance"`
}

var percentHundred = decimal.NewFromInt(100)

// ValidateDiscountPercent rejects values outside [0,100] at input; the
// calculator never clamps silently.
func ValidateDiscountPercent(p decimal.Decimal) error {
	if p.IsNegative() || p.Cmp(percentHundred) > 0 {
		return utils.NewValidationError("discount_percent", "discount percent must be between 0 and 100")
	}
	return nil
}

// CalculateInvoiceTotals recomputes every derived figure from the source
// rows. Pure: it never touches storage; reconciliation decides whether and
// how to persist the result.
//
//	subtotal         = sum of line totals (each pre-rounded)
//	discountAmount   = round(subtotal * discountPercent / 100)
//	grandTotal       = subtotal - discountAmount
//	effectiveTotal   = grandTotal - totalReturned
//	remainingBalance = effectiveTotal - paymentAmount
//
// A negative remaining balance means the customer holds credit, not an
// error; the audit flags over-payment separately.
func CalculateInvoiceTotals(items []InvoiceItem, discountPercent decimal.Decimal, totalReturned, paymentAmount Money) (InvoiceTotals, error) {
	if err := ValidateDiscountPercent(discountPercent); err != nil {
		return InvoiceTotals{}, err
	}

	subtotal := ZeroMoney()
	for i := range items {
		subtotal = subtotal.Add(items[i].CalculateLineTotal())
	}

	discountAmount := subtotal.MulScalar(discountPercent.Div(percentHundred))
	grandTotal := subtotal.Sub(discountAmount)
	effectiveTotal := grandTotal.Sub(totalReturned)
	remaining := effectiveTotal.Sub(paymentAmount)

	return InvoiceTotals{
		Subtotal:         subtotal,
		DiscountAmount:   discountAmount,
		GrandTotal:       grandTotal,
		EffectiveTotal:   effectiveTotal,
		RemainingBalance: remaining,
	}, nil
}

// StatusForTotals derives the lifecycle state from the recomputed figures.
// Reconciled means the invoice is fully settled after at least one payment or
// return; it is re-derived on every mutation, so a later return or reversal
// moves the invoice back into a non-terminal state automatically.
func StatusForTotals(totals InvoiceTotals, hasReturns, hasPayments bool) InvoiceStatus {
	switch {
	case totals.RemainingBalance.IsZero() && (hasPayments || hasReturns):
		return InvoiceStatusReconciled
	case totals.RemainingBalance.Sign() < 0:
		// Over-paid: settled from the invoice's point of view, the surplus
		// shows as customer credit on the ledger.
		return InvoiceStatusPaid
	case hasPayments && totals.RemainingBalance.Sign() > 0:
		return InvoiceStatusPartialPaid
	case hasReturns:
		return InvoiceStatusHasReturns
	default:
		return InvoiceStatusConfirmed
	}
}
