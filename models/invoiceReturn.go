package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/config"
	"gorm.io/gorm"
)

// InvoiceReturn records goods coming back against an invoice. Return items
// carry the unit price at time of original sale; the sum of their amounts is
// the invoice's "total returned" figure, which reduces the effective total
// that outstanding balance is computed from.
type InvoiceReturn struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	InvoiceId   int                 `gorm:"index;not null" json:"invoice_id"`
	CustomerId  int                 `gorm:"index;not null" json:"customer_id"`
	ReturnDate  time.Time           `gorm:"index;not null" json:"return_date"`
	Notes       string              `gorm:"type:text" json:"notes"`
	TotalAmount Money               `gorm:"type:decimal(20,2);default:0" json:"total_amount"`
	Items       []InvoiceReturnItem `gorm:"foreignKey:ReturnId" json:"items"`
	RequestId   string              `gorm:"size:64;index" json:"-"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type InvoiceReturnItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ReturnId        int             `gorm:"index;not null" json:"return_id"`
	InvoiceItemId   int             `gorm:"index;not null" json:"invoice_item_id"`
	ProductId       int             `gorm:"index;not null" json:"product_id"`
	UnitKind        UnitKind        `gorm:"type:enum('S','C');not null;default:'S'" json:"unit_kind"`
	MinorPerMajor   int64           `gorm:"not null;default:1" json:"minor_per_major"`
	Qty             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"`
	QtyDisplay      string          `gorm:"size:50;not null" json:"qty_display"`
	UnitPriceAtSale Money           `gorm:"type:decimal(20,2);not null" json:"unit_price_at_sale"`
	Amount          Money           `gorm:"type:decimal(20,2);not null" json:"amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (item *InvoiceReturnItem) Quantity() UnitQuantity {
	return UnitQuantityFromCanonical(item.Qty, item.UnitKind, item.MinorPerMajor)
}

// CalculateAmount derives the returned value: returned quantity in whole
// units times the sale-time unit price, rounded at the line.
func (item *InvoiceReturnItem) CalculateAmount() Money {
	return item.UnitPriceAtSale.MulScalar(item.Quantity().RateUnits())
}

type NewReturnItem struct {
	InvoiceItemId int    `json:"invoice_item_id" binding:"required"`
	Qty           string `json:"qty" binding:"required"`
}

type NewInvoiceReturn struct {
	ReturnDate *time.Time      `json:"return_date"`
	Notes      string          `json:"notes"`
	RequestId  string          `json:"request_id"`
	Items      []NewReturnItem `json:"items" binding:"required,min=1"`
}

// TotalReturnedForInvoice sums all return amounts recorded against an
// invoice, from source rows (not the invoice cache).
func TotalReturnedForInvoice(tx *gorm.DB, invoiceId int) (Money, error) {
	var returns []InvoiceReturn
	if err := tx.Where("invoice_id = ?", invoiceId).Find(&returns).Error; err != nil {
		return ZeroMoney(), err
	}
	total := ZeroMoney()
	for i := range returns {
		total = total.Add(returns[i].TotalAmount)
	}
	return total, nil
}

// ReturnedQtyForInvoiceItem sums quantities already returned against one
// invoice line, so a new return cannot exceed what was sold.
func ReturnedQtyForInvoiceItem(tx *gorm.DB, invoiceItemId int) (decimal.Decimal, error) {
	var items []InvoiceReturnItem
	if err := tx.Where("invoice_item_id = ?", invoiceItemId).Find(&items).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for i := range items {
		total = total.Add(items[i].Qty)
	}
	return total, nil
}

func GetInvoiceReturn(ctx context.Context, id int) (*InvoiceReturn, error) {
	db := config.GetDB()
	var ret InvoiceReturn
	if err := db.WithContext(ctx).Preload("Items").First(&ret, id).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}
