package workflow

import (
	"context"
	"fmt"

	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/models"
	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
)

// NewStockAdjustment sets a product's stock to an absolute level (stocktake
// correction, goods received). NewQty uses the product's quantity text form;
// parsing already rejects negative values, so stock can never be adjusted
// below zero.
type NewStockAdjustment struct {
	NewQty string `json:"new_qty" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AdjustStock replaces the product's stock level under a row lock and writes
// the change log row and outbox event in the same transaction.
func AdjustStock(ctx context.Context, productId int, input *NewStockAdjustment) (*models.Product, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	var adjusted *models.Product
	err := RunLocked(ctx, db, []string{ProductLockName(productId)}, func(tx *gorm.DB) error {
		product, err := lockProduct(tx, productId)
		if err != nil {
			return err
		}

		newQty, err := product.ParseQuantity(input.NewQty)
		if err != nil {
			return err
		}
		before := product.StockQuantity().Format()

		product.CurrentStock = newQty.Canonical()
		if err := persistProductStock(tx, product); err != nil {
			config.LogError(logger, "stockAdjustmentWorkflow.go", "AdjustStock", "Persisting stock", input, err)
			return err
		}

		if err := models.CreateHistory(tx, "ADJUST", product.ID, models.ReferenceTypeProduct,
			before, newQty.Format(),
			fmt.Sprintf("Adjusted stock of %s from %s to %s: %s", product.Name, before, newQty.Format(), input.Reason)); err != nil {
			return err
		}
		payload := map[string]interface{}{
			"product_id": product.ID,
			"before":     before,
			"after":      newQty.Format(),
			"reason":     input.Reason,
		}
		if err := models.RecordDomainEvent(ctx, tx, models.EventProductStockAdjusted, product.ID,
			models.ReferenceTypeProduct, payload); err != nil {
			return err
		}
		adjusted = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}
