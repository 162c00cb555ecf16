package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/models"
	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
)

const handlerInvoiceReturn = "return.invoice"

// RecordReturn records goods coming back against an invoice: each returned
// quantity is capped at what was sold minus what has already been returned on
// that line, stock goes back to the product, a credit lands on the ledger,
// and the invoice is re-reconciled. Return rows are immutable once written.
func RecordReturn(ctx context.Context, invoiceId int, input *models.NewInvoiceReturn) (*models.InvoiceReturn, *models.Invoice, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, nil, err
	}
	customerId, err := invoiceCustomerId(ctx, invoiceId)
	if err != nil {
		return nil, nil, err
	}

	var ret *models.InvoiceReturn
	var invoice *models.Invoice
	err = RunLocked(ctx, db, []string{InvoiceLockName(invoiceId), CustomerLockName(customerId)}, func(tx *gorm.DB) error {
		if input.RequestId != "" {
			skip, err := BeginIdempotency(tx, handlerInvoiceReturn, input.RequestId)
			if err != nil {
				return err
			}
			if skip {
				var existing models.InvoiceReturn
				if err := tx.Preload("Items").
					Where("request_id = ?", input.RequestId).First(&existing).Error; err != nil {
					return err
				}
				ret = &existing
				invoice, err = reloadInvoice(tx, invoiceId)
				return err
			}
		}

		// Recompute before validating so the over-return cap compares
		// against fresh figures, not the cache.
		current, _, err := ReconcileInvoice(tx, logger, invoiceId)
		if err != nil {
			return err
		}

		returnDate := time.Now().UTC()
		if input.ReturnDate != nil {
			returnDate = *input.ReturnDate
		}

		total := models.ZeroMoney()
		items := make([]models.InvoiceReturnItem, 0, len(input.Items))
		for _, in := range input.Items {
			invoiceItem, err := findInvoiceItem(current, in.InvoiceItemId)
			if err != nil {
				return utils.NewValidationError("invoice_item_id",
					fmt.Sprintf("invoice item %d does not belong to invoice %s", in.InvoiceItemId, current.InvoiceNumber))
			}

			qty, err := models.ParseUnitQuantity(in.Qty, invoiceItem.UnitKind, invoiceItem.MinorPerMajor)
			if err != nil {
				return err
			}
			if qty.IsZero() {
				return utils.NewValidationError("qty", "return quantity must be greater than zero")
			}

			alreadyReturned, err := models.ReturnedQtyForInvoiceItem(tx, invoiceItem.ID)
			if err != nil {
				return err
			}
			returnable := invoiceItem.Qty.Sub(alreadyReturned)
			if qty.Canonical().Cmp(returnable) > 0 {
				returnableQty := models.UnitQuantityFromCanonical(returnable, invoiceItem.UnitKind, invoiceItem.MinorPerMajor)
				return utils.NewValidationError("qty", fmt.Sprintf(
					"return of %s exceeds returnable quantity %s for %s",
					qty.Format(), returnableQty.Format(), invoiceItem.Name))
			}

			item := models.InvoiceReturnItem{
				InvoiceItemId:   invoiceItem.ID,
				ProductId:       invoiceItem.ProductId,
				UnitKind:        invoiceItem.UnitKind,
				MinorPerMajor:   invoiceItem.MinorPerMajor,
				Qty:             qty.Canonical(),
				QtyDisplay:      qty.Format(),
				UnitPriceAtSale: invoiceItem.UnitPrice,
			}
			item.Amount = item.CalculateAmount()
			total = total.Add(item.Amount)
			items = append(items, item)

			product, err := lockProduct(tx, invoiceItem.ProductId)
			if err != nil {
				return err
			}
			product.CurrentStock = product.CurrentStock.Add(qty.Canonical())
			if err := persistProductStock(tx, product); err != nil {
				return err
			}
		}

		alreadyReturnedTotal, err := models.TotalReturnedForInvoice(tx, invoiceId)
		if err != nil {
			return err
		}
		if alreadyReturnedTotal.Add(total).Cmp(current.GrandTotal) > 0 {
			return utils.NewValidationError("items", fmt.Sprintf(
				"total returned %s would exceed invoice grand total %s",
				alreadyReturnedTotal.Add(total).Display(""), current.GrandTotal.Display("")))
		}

		row := models.InvoiceReturn{
			InvoiceId:   invoiceId,
			CustomerId:  current.CustomerId,
			ReturnDate:  returnDate,
			Notes:       input.Notes,
			TotalAmount: total,
			Items:       items,
			RequestId:   input.RequestId,
		}
		if err := tx.Create(&row).Error; err != nil {
			config.LogError(logger, "returnWorkflow.go", "RecordReturn", "Inserting return", input, err)
			return err
		}

		entry := models.CustomerLedgerEntry{
			CustomerId:    current.CustomerId,
			EntryType:     models.LedgerEntryTypeCredit,
			Amount:        total,
			Description:   fmt.Sprintf("Return RT-%d against invoice %s", row.ID, current.InvoiceNumber),
			ReferenceId:   row.ID,
			ReferenceType: models.ReferenceTypeReturn,
			EntryDate:     returnDate,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		reconciled, totals, err := ReconcileInvoice(tx, logger, invoiceId)
		if err != nil {
			return err
		}
		if _, _, err := ReconcileCustomerBalance(ctx, tx, logger, current.CustomerId); err != nil {
			return err
		}

		if err := models.CreateHistory(tx, "CREATE", row.ID, models.ReferenceTypeReturn,
			nil, row, fmt.Sprintf("Recorded return of %s against invoice %s", total.Display(""), current.InvoiceNumber)); err != nil {
			return err
		}
		if err := models.RecordDomainEvent(ctx, tx, models.EventInvoiceReturnApplied, reconciled.ID,
			models.ReferenceTypeInvoice, invoiceEventPayload(reconciled, totals)); err != nil {
			return err
		}

		if input.RequestId != "" {
			if err := MarkIdempotencySucceeded(tx, handlerInvoiceReturn, input.RequestId); err != nil {
				return err
			}
		}
		ret = &row
		invoice = reconciled
		return nil
	})
	if err != nil {
		noteIdempotentFailure(ctx, db, handlerInvoiceReturn, input.RequestId, err)
		return nil, nil, err
	}
	return ret, invoice, nil
}
