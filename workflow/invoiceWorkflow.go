package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/models"
	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const handlerInvoiceCreate = "invoice.create"

// InvoiceMutationResult is what every invoice mutation returns: the fully
// reconciled invoice plus advisory warnings (low stock) that did not block
// the operation.
type InvoiceMutationResult struct {
	Invoice  *models.Invoice `json:"invoice"`
	Warnings []string        `json:"warnings,omitempty"`
}

// lockProduct loads the product row FOR UPDATE so concurrent invoices cannot
// both draw the same stock.
func lockProduct(tx *gorm.DB, productId int) (*models.Product, error) {
	var product models.Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, productId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}

// drawStock evaluates a requested draw against the product's current stock,
// mutates the in-memory product, and reports an advisory warning when the
// draw lands at or below the alert threshold. An insufficient draw blocks the
// operation unless force is set, in which case stock clamps at zero and the
// shortfall is written to the change log.
func drawStock(tx *gorm.DB, product *models.Product, qty models.UnitQuantity, force bool, funcName string) (warning string, err error) {
	logger := config.GetLogger()
	eval := models.EvaluateStock(product.StockQuantity(), qty, product.AlertQuantity())
	switch eval.Status {
	case models.StockStatusInsufficient:
		if !force {
			return "", utils.NewValidationError("qty", fmt.Sprintf(
				"insufficient stock for %s: have %s, requested %s",
				product.Name, product.StockQuantity().Format(), qty.Format()))
		}
		shortfall := qty.Canonical().Sub(product.CurrentStock)
		config.LogWarn(logger, "invoiceWorkflow.go", funcName, "Forced stock override",
			map[string]interface{}{"product_id": product.ID, "shortfall": shortfall.String()},
			"stock override forced, clamping at zero")
		if err := models.CreateHistory(tx, "FORCE_STOCK", product.ID, models.ReferenceTypeProduct,
			product.StockQuantity().Format(), "0",
			fmt.Sprintf("Forced sale of %s %s, shortfall %s sub-units", qty.Format(), product.Name, shortfall.String())); err != nil {
			return "", err
		}
		product.CurrentStock = decimal.Zero
		return "", nil
	case models.StockStatusLow:
		product.CurrentStock = eval.NewStock.Canonical()
		return fmt.Sprintf("stock for %s is low: %s remaining", product.Name, eval.NewStock.Format()), nil
	default:
		product.CurrentStock = eval.NewStock.Canonical()
		return "", nil
	}
}

func persistProductStock(tx *gorm.DB, product *models.Product) error {
	return tx.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("current_stock", product.CurrentStock).Error
}

// CreateInvoice validates the input, draws stock for every line under row
// locks, and commits the invoice, its ledger debit, the recomputed caches,
// the change log row, and the outbox event as one atomic unit.
func CreateInvoice(ctx context.Context, input *models.NewInvoice) (*InvoiceMutationResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	if err := models.ValidateDiscountPercent(input.DiscountPercent); err != nil {
		return nil, err
	}

	var result *InvoiceMutationResult
	err := RunLocked(ctx, db, []string{CustomerLockName(input.CustomerId)}, func(tx *gorm.DB) error {
		if input.RequestId != "" {
			skip, err := BeginIdempotency(tx, handlerInvoiceCreate, input.RequestId)
			if err != nil {
				return err
			}
			if skip {
				var existing models.Invoice
				if err := tx.Preload("Items").
					Where("request_id = ?", input.RequestId).First(&existing).Error; err != nil {
					return err
				}
				result = &InvoiceMutationResult{Invoice: &existing}
				return nil
			}
		}

		var customer models.Customer
		if err := tx.First(&customer, input.CustomerId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		invoiceDate := time.Now().UTC()
		if input.InvoiceDate != nil {
			invoiceDate = *input.InvoiceDate
		}

		var warnings []string
		products := map[int]*models.Product{}
		items := make([]models.InvoiceItem, 0, len(input.Items))
		for _, in := range input.Items {
			product, ok := products[in.ProductId]
			if !ok {
				var err error
				product, err = lockProduct(tx, in.ProductId)
				if err != nil {
					return err
				}
				products[in.ProductId] = product
			}

			qty, err := product.ParseQuantity(in.Qty)
			if err != nil {
				return err
			}
			if qty.IsZero() {
				return utils.NewValidationError("qty", "quantity must be greater than zero")
			}

			unitPrice := product.RatePerUnit
			if in.UnitPrice != "" {
				unitPrice, err = models.MoneyFromString(in.UnitPrice)
				if err != nil {
					return err
				}
			}
			if unitPrice.Sign() < 0 {
				return utils.NewValidationError("unit_price", "unit price must not be negative")
			}

			warning, err := drawStock(tx, product, qty, input.ForceStock, "CreateInvoice")
			if err != nil {
				return err
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}

			item := models.InvoiceItem{
				ProductId:     product.ID,
				Name:          product.Name,
				UnitKind:      product.UnitKind,
				MinorPerMajor: product.MinorPerMajor,
				Qty:           qty.Canonical(),
				QtyDisplay:    qty.Format(),
				UnitPrice:     unitPrice,
			}
			item.LineTotal = item.CalculateLineTotal()
			items = append(items, item)
		}

		invoice := models.Invoice{
			CustomerId:      input.CustomerId,
			InvoiceDate:     invoiceDate,
			DiscountPercent: input.DiscountPercent,
			CurrentStatus:   models.InvoiceStatusConfirmed,
			Notes:           input.Notes,
			RequestId:       input.RequestId,
			Items:           items,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			config.LogError(logger, "invoiceWorkflow.go", "CreateInvoice", "Inserting invoice", input, err)
			return err
		}
		invoice.InvoiceNumber = fmt.Sprintf("IV-%06d", invoice.ID)
		if err := tx.Model(&models.Invoice{}).Where("id = ?", invoice.ID).
			Update("invoice_number", invoice.InvoiceNumber).Error; err != nil {
			return err
		}

		for _, product := range products {
			if err := persistProductStock(tx, product); err != nil {
				return err
			}
		}

		reconciled, totals, err := ReconcileInvoice(tx, logger, invoice.ID)
		if err != nil {
			return err
		}
		if err := syncInvoiceLedger(tx, reconciled, models.ZeroMoney(), totals.GrandTotal,
			"Invoice "+reconciled.InvoiceNumber); err != nil {
			return err
		}
		if _, _, err := ReconcileCustomerBalance(ctx, tx, logger, reconciled.CustomerId); err != nil {
			return err
		}

		if err := models.CreateHistory(tx, "CREATE", reconciled.ID, models.ReferenceTypeInvoice,
			nil, reconciled, "Created invoice "+reconciled.InvoiceNumber); err != nil {
			return err
		}
		if err := models.RecordDomainEvent(ctx, tx, models.EventInvoiceCreated, reconciled.ID,
			models.ReferenceTypeInvoice, invoiceEventPayload(reconciled, totals)); err != nil {
			return err
		}

		if input.RequestId != "" {
			if err := MarkIdempotencySucceeded(tx, handlerInvoiceCreate, input.RequestId); err != nil {
				return err
			}
		}
		result = &InvoiceMutationResult{Invoice: reconciled, Warnings: warnings}
		return nil
	})
	if err != nil {
		noteIdempotentFailure(ctx, db, handlerInvoiceCreate, input.RequestId, err)
		return nil, err
	}
	return result, nil
}

// AddInvoiceItem appends a line to an existing invoice, draws the extra stock,
// and re-reconciles the invoice and the customer.
func AddInvoiceItem(ctx context.Context, invoiceId int, input *models.NewInvoiceItem, force bool) (*InvoiceMutationResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	customerId, err := invoiceCustomerId(ctx, invoiceId)
	if err != nil {
		return nil, err
	}

	var result *InvoiceMutationResult
	err = RunLocked(ctx, db, []string{InvoiceLockName(invoiceId), CustomerLockName(customerId)}, func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.First(&invoice, invoiceId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		oldGrandTotal := invoice.GrandTotal

		product, err := lockProduct(tx, input.ProductId)
		if err != nil {
			return err
		}
		qty, err := product.ParseQuantity(input.Qty)
		if err != nil {
			return err
		}
		if qty.IsZero() {
			return utils.NewValidationError("qty", "quantity must be greater than zero")
		}

		unitPrice := product.RatePerUnit
		if input.UnitPrice != "" {
			unitPrice, err = models.MoneyFromString(input.UnitPrice)
			if err != nil {
				return err
			}
		}
		if unitPrice.Sign() < 0 {
			return utils.NewValidationError("unit_price", "unit price must not be negative")
		}

		var warnings []string
		warning, err := drawStock(tx, product, qty, force, "AddInvoiceItem")
		if err != nil {
			return err
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}
		if err := persistProductStock(tx, product); err != nil {
			return err
		}

		item := models.InvoiceItem{
			InvoiceId:     invoice.ID,
			ProductId:     product.ID,
			Name:          product.Name,
			UnitKind:      product.UnitKind,
			MinorPerMajor: product.MinorPerMajor,
			Qty:           qty.Canonical(),
			QtyDisplay:    qty.Format(),
			UnitPrice:     unitPrice,
		}
		item.LineTotal = item.CalculateLineTotal()
		if err := tx.Create(&item).Error; err != nil {
			return err
		}

		reconciled, totals, err := ReconcileInvoice(tx, logger, invoice.ID)
		if err != nil {
			return err
		}
		if err := syncInvoiceLedger(tx, reconciled, oldGrandTotal, totals.GrandTotal,
			fmt.Sprintf("Invoice %s amended: added %s", reconciled.InvoiceNumber, product.Name)); err != nil {
			return err
		}
		if _, _, err := ReconcileCustomerBalance(ctx, tx, logger, reconciled.CustomerId); err != nil {
			return err
		}

		if err := models.CreateHistory(tx, "UPDATE", reconciled.ID, models.ReferenceTypeInvoice,
			map[string]interface{}{"grand_total": oldGrandTotal},
			map[string]interface{}{"grand_total": totals.GrandTotal, "item": item},
			fmt.Sprintf("Added %s x %s to invoice %s", qty.Format(), product.Name, reconciled.InvoiceNumber)); err != nil {
			return err
		}
		if err := models.RecordDomainEvent(ctx, tx, models.EventInvoiceItemAdded, reconciled.ID,
			models.ReferenceTypeInvoice, invoiceEventPayload(reconciled, totals)); err != nil {
			return err
		}

		result = &InvoiceMutationResult{Invoice: reconciled, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveInvoiceItem deletes a line, restocks the product, and re-reconciles.
// A line that already has returns recorded against it cannot be removed, and
// the invoice must keep at least one line.
func RemoveInvoiceItem(ctx context.Context, invoiceId, itemId int) (*InvoiceMutationResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	customerId, err := invoiceCustomerId(ctx, invoiceId)
	if err != nil {
		return nil, err
	}

	var result *InvoiceMutationResult
	err = RunLocked(ctx, db, []string{InvoiceLockName(invoiceId), CustomerLockName(customerId)}, func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Preload("Items").First(&invoice, invoiceId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		oldGrandTotal := invoice.GrandTotal

		item, err := findInvoiceItem(&invoice, itemId)
		if err != nil {
			return err
		}
		if len(invoice.Items) <= 1 {
			return utils.NewValidationError("item_id", "invoice must keep at least one item")
		}
		returnedQty, err := models.ReturnedQtyForInvoiceItem(tx, item.ID)
		if err != nil {
			return err
		}
		if returnedQty.Sign() > 0 {
			return utils.NewValidationError("item_id", "cannot remove an item that has recorded returns")
		}

		product, err := lockProduct(tx, item.ProductId)
		if err != nil {
			return err
		}
		product.CurrentStock = product.CurrentStock.Add(item.Qty)
		if err := persistProductStock(tx, product); err != nil {
			return err
		}

		if err := tx.Delete(&models.InvoiceItem{}, item.ID).Error; err != nil {
			return err
		}

		reconciled, totals, err := ReconcileInvoice(tx, logger, invoice.ID)
		if err != nil {
			return err
		}
		if err := syncInvoiceLedger(tx, reconciled, oldGrandTotal, totals.GrandTotal,
			fmt.Sprintf("Invoice %s amended: removed %s", reconciled.InvoiceNumber, item.Name)); err != nil {
			return err
		}
		if _, _, err := ReconcileCustomerBalance(ctx, tx, logger, reconciled.CustomerId); err != nil {
			return err
		}

		if err := models.CreateHistory(tx, "UPDATE", reconciled.ID, models.ReferenceTypeInvoice,
			item, nil,
			fmt.Sprintf("Removed %s x %s from invoice %s", item.QtyDisplay, item.Name, reconciled.InvoiceNumber)); err != nil {
			return err
		}
		if err := models.RecordDomainEvent(ctx, tx, models.EventInvoiceItemRemoved, reconciled.ID,
			models.ReferenceTypeInvoice, invoiceEventPayload(reconciled, totals)); err != nil {
			return err
		}

		result = &InvoiceMutationResult{Invoice: reconciled}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateInvoiceItem changes a line's quantity and/or unit price. A quantity
// increase draws the difference from stock (same insufficiency rules as a new
// line); a decrease restocks it. The new quantity can never drop below what
// has already been returned against the line.
func UpdateInvoiceItem(ctx context.Context, invoiceId, itemId int, input *models.NewInvoiceItem, force bool) (*InvoiceMutationResult, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	customerId, err := invoiceCustomerId(ctx, invoiceId)
	if err != nil {
		return nil, err
	}

	var result *InvoiceMutationResult
	err = RunLocked(ctx, db, []string{InvoiceLockName(invoiceId), CustomerLockName(customerId)}, func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Preload("Items").First(&invoice, invoiceId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		oldGrandTotal := invoice.GrandTotal

		item, err := findInvoiceItem(&invoice, itemId)
		if err != nil {
			return err
		}
		before := *item

		product, err := lockProduct(tx, item.ProductId)
		if err != nil {
			return err
		}

		newQty := item.Quantity()
		if input.Qty != "" {
			newQty, err = product.ParseQuantity(input.Qty)
			if err != nil {
				return err
			}
			if newQty.IsZero() {
				return utils.NewValidationError("qty", "quantity must be greater than zero")
			}
		}
		returnedQty, err := models.ReturnedQtyForInvoiceItem(tx, item.ID)
		if err != nil {
			return err
		}
		if newQty.Canonical().Cmp(returnedQty) < 0 {
			return utils.NewValidationError("qty", "quantity cannot drop below what has already been returned")
		}

		unitPrice := item.UnitPrice
		if input.UnitPrice != "" {
			unitPrice, err = models.MoneyFromString(input.UnitPrice)
			if err != nil {
				return err
			}
			if unitPrice.Sign() < 0 {
				return utils.NewValidationError("unit_price", "unit price must not be negative")
			}
		}

		var warnings []string
		qtyDelta := newQty.Canonical().Sub(item.Qty)
		switch {
		case qtyDelta.Sign() > 0:
			extra := models.UnitQuantityFromCanonical(qtyDelta, product.UnitKind, product.MinorPerMajor)
			warning, err := drawStock(tx, product, extra, force, "UpdateInvoiceItem")
			if err != nil {
				return err
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}
			if err := persistProductStock(tx, product); err != nil {
				return err
			}
		case qtyDelta.Sign() < 0:
			product.CurrentStock = product.CurrentStock.Add(qtyDelta.Neg())
			if err := persistProductStock(tx, product); err != nil {
				return err
			}
		}

		item.Qty = newQty.Canonical()
		item.QtyDisplay = newQty.Format()
		item.UnitPrice = unitPrice
		item.LineTotal = item.CalculateLineTotal()
		if err := tx.Model(&models.InvoiceItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
			"qty":         item.Qty,
			"qty_display": item.QtyDisplay,
			"unit_price":  item.UnitPrice,
			"line_total":  item.LineTotal,
		}).Error; err != nil {
			return err
		}

		reconciled, totals, err := ReconcileInvoice(tx, logger, invoice.ID)
		if err != nil {
			return err
		}
		if err := syncInvoiceLedger(tx, reconciled, oldGrandTotal, totals.GrandTotal,
			fmt.Sprintf("Invoice %s amended: updated %s", reconciled.InvoiceNumber, item.Name)); err != nil {
			return err
		}
		if _, _, err := ReconcileCustomerBalance(ctx, tx, logger, reconciled.CustomerId); err != nil {
			return err
		}

		if err := models.CreateHistory(tx, "UPDATE", reconciled.ID, models.ReferenceTypeInvoice,
			before, item,
			fmt.Sprintf("Updated %s on invoice %s", item.Name, reconciled.InvoiceNumber)); err != nil {
			return err
		}
		if err := models.RecordDomainEvent(ctx, tx, models.EventInvoiceItemUpdated, reconciled.ID,
			models.ReferenceTypeInvoice, invoiceEventPayload(reconciled, totals)); err != nil {
			return err
		}

		result = &InvoiceMutationResult{Invoice: reconciled, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func invoiceCustomerId(ctx context.Context, invoiceId int) (int, error) {
	db := config.GetDB()
	var invoice models.Invoice
	if err := db.WithContext(ctx).Select("id", "customer_id").First(&invoice, invoiceId).Error; err != nil {
		return 0, utils.ErrorRecordNotFound
	}
	return invoice.CustomerId, nil
}

func findInvoiceItem(invoice *models.Invoice, itemId int) (*models.InvoiceItem, error) {
	for i := range invoice.Items {
		if invoice.Items[i].ID == itemId {
			return &invoice.Items[i], nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func GetInvoice(ctx context.Context, id int) (*models.Invoice, error) {
	db := config.GetDB()
	var invoice models.Invoice
	if err := db.WithContext(ctx).Preload("Items").First(&invoice, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &invoice, nil
}
