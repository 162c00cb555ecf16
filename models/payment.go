package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment is immutable once recorded. Cancellation appends a reversing row
// (ReversesPaymentId set) rather than editing or deleting history; the
// effective paid amount for an invoice is payments minus reversals.
// InvoiceId is null for general customer payments that only enter the ledger.
type Payment struct {
	ID                int           `gorm:"primary_key" json:"id"`
	InvoiceId         *int          `gorm:"index" json:"invoice_id"`
	CustomerId        int           `gorm:"index;not null" json:"customer_id"`
	Amount            Money         `gorm:"type:decimal(20,2);not null" json:"amount"`
	Method            PaymentMethod `gorm:"type:enum('Cash','Bank Transfer','Cheque','Mobile Money');not null;default:'Cash'" json:"method"`
	Notes             string        `gorm:"size:255" json:"notes"`
	PaymentDate       time.Time     `gorm:"index;not null" json:"payment_date"`
	ReversesPaymentId *int          `gorm:"index" json:"reverses_payment_id"`
	RequestId         string        `gorm:"size:64;index" json:"-"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

type NewPayment struct {
	Amount      string        `json:"amount" binding:"required"`
	Method      PaymentMethod `json:"method"`
	Notes       string        `json:"notes"`
	PaymentDate *time.Time    `json:"payment_date"`
	RequestId   string        `json:"request_id"`
}

// PaidAmountForInvoice sums effective payments against an invoice from
// source rows: forward payments minus reversals.
func PaidAmountForInvoice(tx *gorm.DB, invoiceId int) (Money, error) {
	var payments []Payment
	if err := tx.Where("invoice_id = ?", invoiceId).Find(&payments).Error; err != nil {
		return ZeroMoney(), err
	}
	total := ZeroMoney()
	for i := range payments {
		if payments[i].ReversesPaymentId != nil {
			total = total.Sub(payments[i].Amount)
		} else {
			total = total.Add(payments[i].Amount)
		}
	}
	return total, nil
}

// IsReversed reports whether a reversing row already exists for the payment.
func (p *Payment) IsReversed(tx *gorm.DB) (bool, error) {
	var count int64
	if err := tx.Model(&Payment{}).Where("reverses_payment_id = ?", p.ID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
