package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/utils"
)

// Product is a stocked good. CurrentStock and MinStockAlert are persisted in
// canonical sub-unit form (source of truth); the compound display form is
// derived on the way out. Stock is mutated only by invoice creation, returns,
// and manual adjustment, and must never go negative.
type Product struct {
	ID            int             `gorm:"primary_key" json:"id"`
	Name          string          `gorm:"size:100;not null" json:"name" binding:"required"`
	UnitKind      UnitKind        `gorm:"type:enum('S','C');not null;default:'S'" json:"unit_kind"`
	UnitLabel     string          `gorm:"size:20" json:"unit_label"`
	MinorPerMajor int64           `gorm:"not null;default:1" json:"minor_per_major"`
	RatePerUnit   Money           `gorm:"type:decimal(20,2);default:0" json:"rate_per_unit"`
	CurrentStock  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_stock"`
	MinStockAlert decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"min_stock_alert"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name          string `json:"name" binding:"required"`
	UnitKind      UnitKind
	UnitLabel     string `json:"unit_label"`
	MinorPerMajor int64  `json:"minor_per_major"`
	RatePerUnit   Money  `json:"rate_per_unit"`
	CurrentStock  string `json:"current_stock"`
	MinStockAlert string `json:"min_stock_alert"`
}

func (p *Product) StockQuantity() UnitQuantity {
	return UnitQuantityFromCanonical(p.CurrentStock, p.UnitKind, p.MinorPerMajor)
}

func (p *Product) AlertQuantity() UnitQuantity {
	return UnitQuantityFromCanonical(p.MinStockAlert, p.UnitKind, p.MinorPerMajor)
}

// ParseQuantity parses a user-entered quantity string against this product's
// unit configuration.
func (p *Product) ParseQuantity(text string) (UnitQuantity, error) {
	return ParseUnitQuantity(text, p.UnitKind, p.MinorPerMajor)
}

// StockEvaluation classifies a requested draw against current stock.
// INSUFFICIENT blocks the operation (NewStock is the display-only clamp, not
// a persistable value); LOW and OK are advisory and the operation proceeds.
type StockEvaluation struct {
	NewStock UnitQuantity `json:"new_stock"`
	Status   StockStatus  `json:"status"`
}

// EvaluateStock computes the post-transaction stock level in canonical form
// and classifies it against the alert threshold.
func EvaluateStock(currentStock, requested, alertThreshold UnitQuantity) StockEvaluation {
	remaining := currentStock.Canonical().Sub(requested.Canonical())
	if remaining.IsNegative() {
		return StockEvaluation{
			NewStock: UnitQuantityFromCanonical(decimal.Zero, currentStock.Kind, currentStock.MinorPerMajor),
			Status:   StockStatusInsufficient,
		}
	}
	newStock := UnitQuantityFromCanonical(remaining, currentStock.Kind, currentStock.MinorPerMajor)
	if remaining.Cmp(alertThreshold.Canonical()) <= 0 {
		return StockEvaluation{NewStock: newStock, Status: StockStatusLow}
	}
	return StockEvaluation{NewStock: newStock, Status: StockStatusOK}
}

func GetProduct(ctx context.Context, id int) (*Product, error) {
	db := config.GetDB()
	var product Product
	if err := db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &product, nil
}

func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if input.UnitKind == "" {
		input.UnitKind = UnitKindScalar
	}
	if input.MinorPerMajor <= 0 {
		input.MinorPerMajor = 1
	}
	stock, err := ParseUnitQuantity(defaultQty(input.CurrentStock, input.UnitKind), input.UnitKind, input.MinorPerMajor)
	if err != nil {
		return nil, err
	}
	alert, err := ParseUnitQuantity(defaultQty(input.MinStockAlert, input.UnitKind), input.UnitKind, input.MinorPerMajor)
	if err != nil {
		return nil, err
	}

	product := Product{
		Name:          input.Name,
		UnitKind:      input.UnitKind,
		UnitLabel:     input.UnitLabel,
		MinorPerMajor: input.MinorPerMajor,
		RatePerUnit:   input.RatePerUnit,
		CurrentStock:  stock.Canonical(),
		MinStockAlert: alert.Canonical(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func defaultQty(text string, kind UnitKind) string {
	if text != "" {
		return text
	}
	if kind == UnitKindCompound {
		return "0-0"
	}
	return "0"
}
