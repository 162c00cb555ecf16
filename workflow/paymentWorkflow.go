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

const (
	handlerInvoicePayment  = "payment.invoice"
	handlerCustomerPayment = "payment.customer"
)

// validatePaymentAmount rejects a payment that exceeds the invoice's
// remaining balance. The caller must pass a freshly recomputed balance, never
// the cached column.
func validatePaymentAmount(amount, remaining models.Money, invoiceNumber string) error {
	if amount.Cmp(remaining) > 0 {
		return utils.NewValidationError("amount", fmt.Sprintf(
			"payment %s exceeds remaining balance %s on invoice %s",
			amount.Display(""), remaining.Display(""), invoiceNumber))
	}
	return nil
}

// RecordInvoicePayment applies a payment against an invoice. The amount must
// be strictly positive and must not exceed the invoice's current remaining
// balance, recomputed from source rows under the posting lock, so a stale
// cache can never let an over-payment through.
func RecordInvoicePayment(ctx context.Context, invoiceId int, input *models.NewPayment) (*models.Payment, *models.Invoice, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, nil, err
	}
	amount, err := models.MoneyFromString(input.Amount)
	if err != nil {
		return nil, nil, err
	}
	if amount.Sign() <= 0 {
		return nil, nil, utils.NewValidationError("amount", "payment amount must be greater than zero")
	}

	customerId, err := invoiceCustomerId(ctx, invoiceId)
	if err != nil {
		return nil, nil, err
	}

	var payment *models.Payment
	var invoice *models.Invoice
	err = RunLocked(ctx, db, []string{InvoiceLockName(invoiceId), CustomerLockName(customerId)}, func(tx *gorm.DB) error {
		if input.RequestId != "" {
			skip, err := BeginIdempotency(tx, handlerInvoicePayment, input.RequestId)
			if err != nil {
				return err
			}
			if skip {
				var existing models.Payment
				if err := tx.Where("request_id = ?", input.RequestId).First(&existing).Error; err != nil {
					return err
				}
				payment = &existing
				invoice, err = reloadInvoice(tx, invoiceId)
				return err
			}
		}

		// Recompute before validating: the remaining balance must come from
		// source rows, not the possibly-stale cache.
		current, _, err := ReconcileInvoice(tx, logger, invoiceId)
		if err != nil {
			return err
		}
		if err := validatePaymentAmount(amount, current.RemainingBalance, current.InvoiceNumber); err != nil {
			return err
		}

		paymentDate := time.Now().UTC()
		if input.PaymentDate != nil {
			paymentDate = *input.PaymentDate
		}
		method := input.Method
		if method == "" {
			method = models.PaymentMethodCash
		}
		row := models.Payment{
			InvoiceId:   &current.ID,
			CustomerId:  current.CustomerId,
			Amount:      amount,
			Method:      method,
			Notes:       input.Notes,
			PaymentDate: paymentDate,
			RequestId:   input.RequestId,
		}
		if err := tx.Create(&row).Error; err != nil {
			config.LogError(logger, "paymentWorkflow.go", "RecordInvoicePayment", "Inserting payment", input, err)
			return err
		}

		entry := models.CustomerLedgerEntry{
			CustomerId:    current.CustomerId,
			EntryType:     models.LedgerEntryTypeCredit,
			Amount:        amount,
			Description:   fmt.Sprintf("Payment CP-%d against invoice %s", row.ID, current.InvoiceNumber),
			ReferenceId:   row.ID,
			ReferenceType: models.ReferenceTypePayment,
			EntryDate:     paymentDate,
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

		if err := models.CreateHistory(tx, "CREATE", row.ID, models.ReferenceTypePayment,
			nil, row, fmt.Sprintf("Recorded payment of %s against invoice %s", amount.Display(""), current.InvoiceNumber)); err != nil {
			return err
		}
		if err := models.RecordDomainEvent(ctx, tx, models.EventInvoicePaymentRecorded, reconciled.ID,
			models.ReferenceTypeInvoice, invoiceEventPayload(reconciled, totals)); err != nil {
			return err
		}

		if input.RequestId != "" {
			if err := MarkIdempotencySucceeded(tx, handlerInvoicePayment, input.RequestId); err != nil {
				return err
			}
		}
		payment = &row
		invoice = reconciled
		return nil
	})
	if err != nil {
		noteIdempotentFailure(ctx, db, handlerInvoicePayment, input.RequestId, err)
		return nil, nil, err
	}
	return payment, invoice, nil
}

// RecordCustomerPayment records a payment that is not tied to any invoice:
// it only credits the customer's ledger (paying down overall balance).
func RecordCustomerPayment(ctx context.Context, customerId int, input *models.NewPayment) (*models.Payment, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	amount, err := models.MoneyFromString(input.Amount)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, utils.NewValidationError("amount", "payment amount must be greater than zero")
	}

	var payment *models.Payment
	err = RunLocked(ctx, db, []string{CustomerLockName(customerId)}, func(tx *gorm.DB) error {
		var customer models.Customer
		if err := tx.First(&customer, customerId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		if input.RequestId != "" {
			skip, err := BeginIdempotency(tx, handlerCustomerPayment, input.RequestId)
			if err != nil {
				return err
			}
			if skip {
				var existing models.Payment
				if err := tx.Where("request_id = ?", input.RequestId).First(&existing).Error; err != nil {
					return err
				}
				payment = &existing
				return nil
			}
		}

		paymentDate := time.Now().UTC()
		if input.PaymentDate != nil {
			paymentDate = *input.PaymentDate
		}
		method := input.Method
		if method == "" {
			method = models.PaymentMethodCash
		}
		row := models.Payment{
			CustomerId:  customerId,
			Amount:      amount,
			Method:      method,
			Notes:       input.Notes,
			PaymentDate: paymentDate,
			RequestId:   input.RequestId,
		}
		if err := tx.Create(&row).Error; err != nil {
			config.LogError(logger, "paymentWorkflow.go", "RecordCustomerPayment", "Inserting payment", input, err)
			return err
		}

		entry := models.CustomerLedgerEntry{
			CustomerId:    customerId,
			EntryType:     models.LedgerEntryTypeCredit,
			Amount:        amount,
			Description:   fmt.Sprintf("Payment CP-%d on account", row.ID),
			ReferenceId:   row.ID,
			ReferenceType: models.ReferenceTypePayment,
			EntryDate:     paymentDate,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		if _, _, err := ReconcileCustomerBalance(ctx, tx, logger, customerId); err != nil {
			return err
		}
		if err := models.CreateHistory(tx, "CREATE", row.ID, models.ReferenceTypePayment,
			nil, row, fmt.Sprintf("Recorded payment of %s on account for %s", amount.Display(""), customer.Name)); err != nil {
			return err
		}

		if input.RequestId != "" {
			if err := MarkIdempotencySucceeded(tx, handlerCustomerPayment, input.RequestId); err != nil {
				return err
			}
		}
		payment = &row
		return nil
	})
	if err != nil {
		noteIdempotentFailure(ctx, db, handlerCustomerPayment, input.RequestId, err)
		return nil, err
	}
	return payment, nil
}

// CancelPayment reverses a recorded payment by appending a reversing row with
// the same amount. The original row is never edited or deleted; the invoice
// (when there is one) and the customer are re-reconciled, which can move a
// Reconciled invoice back to Partial Paid.
func CancelPayment(ctx context.Context, paymentId int, reason string) (*models.Payment, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	var original models.Payment
	if err := db.WithContext(ctx).First(&original, paymentId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	lockNames := []string{CustomerLockName(original.CustomerId)}
	if original.InvoiceId != nil {
		lockNames = []string{InvoiceLockName(*original.InvoiceId), CustomerLockName(original.CustomerId)}
	}

	var reversal *models.Payment
	err := RunLocked(ctx, db, lockNames, func(tx *gorm.DB) error {
		if err := tx.First(&original, paymentId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if original.ReversesPaymentId != nil {
			return utils.NewValidationError("payment_id", "a reversal cannot itself be reversed")
		}
		reversed, err := original.IsReversed(tx)
		if err != nil {
			return err
		}
		if reversed {
			return utils.NewValidationError("payment_id", "payment is already reversed")
		}

		row := models.Payment{
			InvoiceId:         original.InvoiceId,
			CustomerId:        original.CustomerId,
			Amount:            original.Amount,
			Method:            original.Method,
			Notes:             reason,
			PaymentDate:       time.Now().UTC(),
			ReversesPaymentId: &original.ID,
		}
		if err := tx.Create(&row).Error; err != nil {
			config.LogError(logger, "paymentWorkflow.go", "CancelPayment", "Inserting reversal", paymentId, err)
			return err
		}

		entry := models.CustomerLedgerEntry{
			CustomerId:    original.CustomerId,
			EntryType:     models.LedgerEntryTypeDebit,
			Amount:        original.Amount,
			Description:   fmt.Sprintf("Reversal of payment CP-%d", original.ID),
			ReferenceId:   row.ID,
			ReferenceType: models.ReferenceTypePayment,
			EntryDate:     row.PaymentDate,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		if original.InvoiceId != nil {
			reconciled, totals, err := ReconcileInvoice(tx, logger, *original.InvoiceId)
			if err != nil {
				return err
			}
			if err := models.RecordDomainEvent(ctx, tx, models.EventInvoicePaymentRecorded, reconciled.ID,
				models.ReferenceTypeInvoice, invoiceEventPayload(reconciled, totals)); err != nil {
				return err
			}
		}
		if _, _, err := ReconcileCustomerBalance(ctx, tx, logger, original.CustomerId); err != nil {
			return err
		}

		if err := models.CreateHistory(tx, "REVERSE", original.ID, models.ReferenceTypePayment,
			original, row, fmt.Sprintf("Reversed payment CP-%d: %s", original.ID, reason)); err != nil {
			return err
		}
		reversal = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

func reloadInvoice(tx *gorm.DB, invoiceId int) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := tx.Preload("Items").First(&invoice, invoiceId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &invoice, nil
}
