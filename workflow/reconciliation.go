package workflow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/models"
	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
)

// InvoiceEventPayload is the outbox payload carried with every invoice event.
// It carries the recomputed figures for convenience; consumers must re-read
// current state rather than trusting the payload as state.
type InvoiceEventPayload struct {
	InvoiceId     int                  `json:"invoice_id"`
	CustomerId    int                  `json:"customer_id"`
	InvoiceNumber string               `json:"invoice_number"`
	Totals        models.InvoiceTotals `json:"totals"`
	Status        models.InvoiceStatus `json:"status"`
	TotalReturned models.Money         `json:"total_returned"`
	PaymentAmount models.Money         `json:"payment_amount"`
}

type CustomerBalancePayload struct {
	CustomerId int          `json:"customer_id"`
	Balance    models.Money `json:"balance"`
	Anomalies  int          `json:"anomalies"`
}

// ReconcileInvoice reloads the invoice's source rows (items, returns,
// payments), recomputes every derived figure from scratch, and rewrites the
// invoice caches and status. It must run inside the same transaction as the
// triggering change so the change and the recomputed caches commit atomically.
func ReconcileInvoice(tx *gorm.DB, logger *logrus.Logger, invoiceId int) (*models.Invoice, models.InvoiceTotals, error) {
	var invoice models.Invoice
	if err := tx.Preload("Items").First(&invoice, invoiceId).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.InvoiceTotals{}, utils.ErrorRecordNotFound
		}
		return nil, models.InvoiceTotals{}, err
	}

	totalReturned, err := models.TotalReturnedForInvoice(tx, invoiceId)
	if err != nil {
		config.LogError(logger, "reconciliation.go", "ReconcileInvoice", "Summing returns", invoiceId, err)
		return nil, models.InvoiceTotals{}, err
	}
	paymentAmount, err := models.PaidAmountForInvoice(tx, invoiceId)
	if err != nil {
		config.LogError(logger, "reconciliation.go", "ReconcileInvoice", "Summing payments", invoiceId, err)
		return nil, models.InvoiceTotals{}, err
	}

	totals, err := models.CalculateInvoiceTotals(invoice.Items, invoice.DiscountPercent, totalReturned, paymentAmount)
	if err != nil {
		return nil, models.InvoiceTotals{}, err
	}

	hasReturns := totalReturned.Sign() > 0
	hasPayments := !paymentAmount.IsZero()
	status := models.StatusForTotals(totals, hasReturns, hasPayments)

	updates := map[string]interface{}{
		"subtotal":          totals.Subtotal,
		"discount_amount":   totals.DiscountAmount,
		"grand_total":       totals.GrandTotal,
		"total_returned":    totalReturned,
		"payment_amount":    paymentAmount,
		"remaining_balance": totals.RemainingBalance,
		"current_status":    status,
	}
	if err := tx.Model(&models.Invoice{}).Where("id = ?", invoiceId).Updates(updates).Error; err != nil {
		config.LogError(logger, "reconciliation.go", "ReconcileInvoice", "Persisting derived caches", invoiceId, err)
		return nil, models.InvoiceTotals{}, err
	}

	invoice.Subtotal = totals.Subtotal
	invoice.DiscountAmount = totals.DiscountAmount
	invoice.GrandTotal = totals.GrandTotal
	invoice.TotalReturned = totalReturned
	invoice.PaymentAmount = paymentAmount
	invoice.RemainingBalance = totals.RemainingBalance
	invoice.CurrentStatus = status

	return &invoice, totals, nil
}

// ReconcileCustomerBalance refolds the customer's full ledger and rewrites
// the cached balance. Anomalous entries are excluded from the fold and logged;
// they surface again through the drift audit.
func ReconcileCustomerBalance(ctx context.Context, tx *gorm.DB, logger *logrus.Logger, customerId int) (models.Money, []models.LedgerAnomaly, error) {
	var entries []models.CustomerLedgerEntry
	if err := tx.Where("customer_id = ?", customerId).
		Order("entry_date ASC, id ASC").
		Find(&entries).Error; err != nil {
		config.LogError(logger, "reconciliation.go", "ReconcileCustomerBalance", "Loading ledger entries", customerId, err)
		return models.ZeroMoney(), nil, err
	}

	balance, anomalies := models.AggregateLedger(entries)
	for _, a := range anomalies {
		config.LogWarn(logger, "reconciliation.go", "ReconcileCustomerBalance", "Folding ledger", a, "ledger entry excluded from fold: "+a.Reason)
	}

	if err := tx.Model(&models.Customer{}).Where("id = ?", customerId).
		Update("balance", balance).Error; err != nil {
		config.LogError(logger, "reconciliation.go", "ReconcileCustomerBalance", "Persisting balance cache", customerId, err)
		return models.ZeroMoney(), anomalies, err
	}

	payload := CustomerBalancePayload{CustomerId: customerId, Balance: balance, Anomalies: len(anomalies)}
	if err := models.RecordDomainEvent(ctx, tx, models.EventCustomerBalanceUpdated, customerId, models.ReferenceTypeCustomer, payload); err != nil {
		return models.ZeroMoney(), anomalies, err
	}
	return balance, anomalies, nil
}

// syncInvoiceLedger keeps the ledger append-only across invoice edits: when
// an edit moves the grand total, a correcting entry for the delta is appended
// (debit when the total grew, credit when it shrank) instead of rewriting the
// original debit row.
func syncInvoiceLedger(tx *gorm.DB, invoice *models.Invoice, oldGrandTotal, newGrandTotal models.Money, description string) error {
	delta := newGrandTotal.Sub(oldGrandTotal)
	if delta.IsZero() {
		return nil
	}
	entryType := models.LedgerEntryTypeDebit
	if delta.Sign() < 0 {
		entryType = models.LedgerEntryTypeCredit
	}
	entry := models.CustomerLedgerEntry{
		CustomerId:    invoice.CustomerId,
		EntryType:     entryType,
		Amount:        delta.Abs(),
		Description:   description,
		ReferenceId:   invoice.ID,
		ReferenceType: models.ReferenceTypeInvoice,
		EntryDate:     time.Now().UTC(),
	}
	return tx.Create(&entry).Error
}

func invoiceEventPayload(invoice *models.Invoice, totals models.InvoiceTotals) InvoiceEventPayload {
	return InvoiceEventPayload{
		InvoiceId:     invoice.ID,
		CustomerId:    invoice.CustomerId,
		InvoiceNumber: invoice.InvoiceNumber,
		Totals:        totals,
		Status:        invoice.CurrentStatus,
		TotalReturned: invoice.TotalReturned,
		PaymentAmount: invoice.PaymentAmount,
	}
}
