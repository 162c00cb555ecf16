package workflow

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/models"
	"github.com/steelstorehq/store_backend/utils"
	"gorm.io/gorm"
)

// These tests run the full posting workflows against a real MySQL. Gate:
//
//	INTEGRATION_TESTS=1 DB_HOST=... DB_PORT=... DB_USER=... DB_PASSWORD=... DB_NAME=... go test ./workflow/
//
// Point DB_NAME at a disposable schema; the tests create their own rows and
// never clean up.
func integrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 with a disposable MySQL to run")
	}
	if config.GetDB() == nil {
		config.ConnectDatabaseWithRetry()
		models.MigrateTable()
	}
	return config.GetDB()
}

func seedCustomer(t *testing.T, ctx context.Context) *models.Customer {
	t.Helper()
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{Name: "it-customer-" + uuid.NewString()[:8]})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	return customer
}

func seedScalarProduct(t *testing.T, ctx context.Context, rate int64, stock string) *models.Product {
	t.Helper()
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Name:         "it-product-" + uuid.NewString()[:8],
		UnitKind:     models.UnitKindScalar,
		RatePerUnit:  models.MoneyFromInt(rate),
		CurrentStock: stock,
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return product
}

func seedInvoice(t *testing.T, ctx context.Context, customerId, productId int, qty string, discount int64) *models.Invoice {
	t.Helper()
	result, err := CreateInvoice(ctx, &models.NewInvoice{
		CustomerId:      customerId,
		DiscountPercent: decimal.NewFromInt(discount),
		Items:           []models.NewInvoiceItem{{ProductId: productId, Qty: qty}},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	return result.Invoice
}

// assertInvoiceConsistent recomputes the invoice and the customer's balance
// from source rows and compares against the persisted caches. Exact equality:
// within one transaction there is no tolerance to hide behind.
func assertInvoiceConsistent(t *testing.T, db *gorm.DB, invoiceId int) *models.Invoice {
	t.Helper()
	var invoice models.Invoice
	if err := db.Preload("Items").First(&invoice, invoiceId).Error; err != nil {
		t.Fatalf("reload invoice %d: %v", invoiceId, err)
	}
	returned, err := models.TotalReturnedForInvoice(db, invoice.ID)
	if err != nil {
		t.Fatalf("TotalReturnedForInvoice: %v", err)
	}
	paid, err := models.PaidAmountForInvoice(db, invoice.ID)
	if err != nil {
		t.Fatalf("PaidAmountForInvoice: %v", err)
	}
	totals, err := models.CalculateInvoiceTotals(invoice.Items, invoice.DiscountPercent, returned, paid)
	if err != nil {
		t.Fatalf("CalculateInvoiceTotals: %v", err)
	}
	if !invoice.GrandTotal.Equal(totals.GrandTotal) {
		t.Fatalf("grand total cache %s != recomputed %s", invoice.GrandTotal.StringFixed(2), totals.GrandTotal.StringFixed(2))
	}
	if !invoice.RemainingBalance.Equal(totals.RemainingBalance) {
		t.Fatalf("remaining cache %s != recomputed %s", invoice.RemainingBalance.StringFixed(2), totals.RemainingBalance.StringFixed(2))
	}

	var entries []models.CustomerLedgerEntry
	if err := db.Where("customer_id = ?", invoice.CustomerId).
		Order("entry_date ASC, id ASC").Find(&entries).Error; err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	balance, anomalies := models.AggregateLedger(entries)
	if len(anomalies) != 0 {
		t.Fatalf("workflows wrote anomalous ledger entries: %v", anomalies)
	}
	var customer models.Customer
	if err := db.First(&customer, invoice.CustomerId).Error; err != nil {
		t.Fatalf("reload customer: %v", err)
	}
	if !customer.Balance.Equal(balance) {
		t.Fatalf("customer balance cache %s != ledger fold %s", customer.Balance.StringFixed(2), balance.StringFixed(2))
	}
	return &invoice
}

// Settlement regression end to end: grand total 23000, a 10000 return, then a
// 15000 payment must be rejected with nothing persisted; the settling 13000
// payment drives the remaining balance to exactly zero.
func TestIntegration_OverPaymentRejectedWithoutPersistence(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	customer := seedCustomer(t, ctx)
	product := seedScalarProduct(t, ctx, 2500, "100")
	invoice := assertInvoiceConsistent(t, db, seedInvoice(t, ctx, customer.ID, product.ID, "10", 8).ID)
	if got := invoice.GrandTotal.StringFixed(2); got != "23000.00" {
		t.Fatalf("grand total = %s, want 23000.00", got)
	}

	if _, _, err := RecordReturn(ctx, invoice.ID, &models.NewInvoiceReturn{
		Items: []models.NewReturnItem{{InvoiceItemId: invoice.Items[0].ID, Qty: "4"}},
	}); err != nil {
		t.Fatalf("RecordReturn: %v", err)
	}
	invoice = assertInvoiceConsistent(t, db, invoice.ID)
	if got := invoice.RemainingBalance.StringFixed(2); got != "13000.00" {
		t.Fatalf("remaining after return = %s, want 13000.00", got)
	}

	overPayRequestId := uuid.NewString()
	_, _, err := RecordInvoicePayment(ctx, invoice.ID, &models.NewPayment{Amount: "15000", RequestId: overPayRequestId})
	if err == nil {
		t.Fatalf("expected over-payment rejection")
	}
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// The rejection is recorded against the request id for operators, outside
	// the rolled-back transaction.
	var key models.IdempotencyKey
	if err := db.Where("handler_name = ? AND message_id = ?", "payment.invoice", overPayRequestId).
		First(&key).Error; err != nil {
		t.Fatalf("load idempotency key: %v", err)
	}
	if key.Status != models.IdempotencyStatusFailed || key.LastError == nil {
		t.Fatalf("expected FAILED key with last error, got %+v", key)
	}
	var paymentCount int64
	if err := db.Model(&models.Payment{}).Where("invoice_id = ?", invoice.ID).Count(&paymentCount).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if paymentCount != 0 {
		t.Fatalf("rejected payment left %d rows behind", paymentCount)
	}
	invoice = assertInvoiceConsistent(t, db, invoice.ID)
	if got := invoice.RemainingBalance.StringFixed(2); got != "13000.00" {
		t.Fatalf("remaining after rejection = %s, want 13000.00", got)
	}

	if _, _, err := RecordInvoicePayment(ctx, invoice.ID, &models.NewPayment{Amount: "13000"}); err != nil {
		t.Fatalf("RecordInvoicePayment: %v", err)
	}
	invoice = assertInvoiceConsistent(t, db, invoice.ID)
	if !invoice.RemainingBalance.IsZero() {
		t.Fatalf("remaining after settlement = %s, want 0", invoice.RemainingBalance.StringFixed(2))
	}
	if invoice.CurrentStatus != models.InvoiceStatusReconciled {
		t.Fatalf("status = %s, want Reconciled", invoice.CurrentStatus)
	}
}

// Every mutating operation must leave the cached figures equal to a
// from-scratch recomputation.
func TestIntegration_BalanceInvariantAfterEveryMutation(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	customer := seedCustomer(t, ctx)
	first := seedScalarProduct(t, ctx, 1000, "50")
	second := seedScalarProduct(t, ctx, 750, "50")

	invoice := assertInvoiceConsistent(t, db, seedInvoice(t, ctx, customer.ID, first.ID, "3", 0).ID)

	added, err := AddInvoiceItem(ctx, invoice.ID, &models.NewInvoiceItem{ProductId: second.ID, Qty: "2"}, false)
	if err != nil {
		t.Fatalf("AddInvoiceItem: %v", err)
	}
	invoice = assertInvoiceConsistent(t, db, invoice.ID)

	if _, err := UpdateInvoiceItem(ctx, invoice.ID, invoice.Items[0].ID, &models.NewInvoiceItem{Qty: "5"}, false); err != nil {
		t.Fatalf("UpdateInvoiceItem: %v", err)
	}
	invoice = assertInvoiceConsistent(t, db, invoice.ID)

	if _, _, err := RecordInvoicePayment(ctx, invoice.ID, &models.NewPayment{Amount: "1000"}); err != nil {
		t.Fatalf("RecordInvoicePayment: %v", err)
	}
	invoice = assertInvoiceConsistent(t, db, invoice.ID)

	if _, _, err := RecordReturn(ctx, invoice.ID, &models.NewInvoiceReturn{
		Items: []models.NewReturnItem{{InvoiceItemId: invoice.Items[0].ID, Qty: "1"}},
	}); err != nil {
		t.Fatalf("RecordReturn: %v", err)
	}
	invoice = assertInvoiceConsistent(t, db, invoice.ID)

	var addedItemId int
	for i := range added.Invoice.Items {
		if added.Invoice.Items[i].ProductId == second.ID {
			addedItemId = added.Invoice.Items[i].ID
		}
	}
	if addedItemId == 0 {
		t.Fatalf("added item not found on invoice")
	}
	if _, err := RemoveInvoiceItem(ctx, invoice.ID, addedItemId); err != nil {
		t.Fatalf("RemoveInvoiceItem: %v", err)
	}
	assertInvoiceConsistent(t, db, invoice.ID)
}

// Racing full-balance payments must serialize on the posting lock, which is
// held through COMMIT: every loser revalidates against committed state, so
// exactly one payment lands.
func TestIntegration_ConcurrentFullPaymentsAppliedOnce(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	customer := seedCustomer(t, ctx)
	product := seedScalarProduct(t, ctx, 1000, "50")
	invoice := seedInvoice(t, ctx, customer.ID, product.ID, "1", 0)

	const racers = 6
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = RecordInvoicePayment(ctx, invoice.ID, &models.NewPayment{
				Amount:    "1000",
				RequestId: uuid.NewString(),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case utils.IsValidationError(err):
			// lost the race, revalidated against the committed payment
		case errors.Is(err, utils.ErrResourceBusy):
			// lock retries exhausted under contention; still a clean loss
		default:
			t.Fatalf("unexpected failure mode: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 applied payment, got %d", succeeded)
	}

	var paymentCount int64
	if err := db.Model(&models.Payment{}).Where("invoice_id = ?", invoice.ID).Count(&paymentCount).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if paymentCount != 1 {
		t.Fatalf("expected 1 payment row, got %d", paymentCount)
	}
	final := assertInvoiceConsistent(t, db, invoice.ID)
	if !final.RemainingBalance.IsZero() {
		t.Fatalf("remaining = %s, want 0", final.RemainingBalance.StringFixed(2))
	}
}
