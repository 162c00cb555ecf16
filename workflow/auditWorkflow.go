package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/models"
	"gorm.io/gorm"
)

const (
	auditBatchSize     = 500
	lastAuditReportKey = "audit:last_report"
)

// AuditFinding is one detected discrepancy between a persisted derived value
// and its from-scratch recomputation, outside money tolerance, with a
// root-cause hint. Raw transactional rows are never rewritten by the audit;
// repair mode only rewrites the derived caches.
type AuditFinding struct {
	Kind       string                 `json:"kind"` // "invoice" | "customer"
	ID         int                    `json:"id"`
	Field      string                 `json:"field"`
	Persisted  models.Money           `json:"persisted"`
	Recomputed models.Money           `json:"recomputed"`
	Delta      models.Money           `json:"delta"`
	Hint       string                 `json:"hint"`
	Anomalies  []models.LedgerAnomaly `json:"anomalies,omitempty"`
	Repaired   bool                   `json:"repaired"`
}

type AuditReport struct {
	RunAt            time.Time      `json:"run_at"`
	RepairMode       bool           `json:"repair_mode"`
	InvoicesChecked  int            `json:"invoices_checked"`
	CustomersChecked int            `json:"customers_checked"`
	Findings         []AuditFinding `json:"findings"`
}

func (r *AuditReport) Clean() bool {
	return len(r.Findings) == 0
}

// classifyDrift builds a finding when persisted and recomputed differ by more
// than money tolerance, or when ledger anomalies were detected regardless of
// the amounts matching.
func classifyDrift(kind string, id int, field string, persisted, recomputed models.Money, anomalies []models.LedgerAnomaly) *AuditFinding {
	if persisted.WithinTolerance(recomputed) && len(anomalies) == 0 {
		return nil
	}
	hint := "stale derived cache"
	switch {
	case len(anomalies) > 0:
		hint = "ledger entries violate structural invariants"
	case kind == "invoice" && recomputed.Sign() < 0:
		hint = "over-payment: customer holds credit on this invoice"
	case kind == "customer" && recomputed.Sign() < 0:
		hint = "customer balance is a credit; verify payments and returns"
	}
	return &AuditFinding{
		Kind:       kind,
		ID:         id,
		Field:      field,
		Persisted:  persisted,
		Recomputed: recomputed,
		Delta:      recomputed.Sub(persisted),
		Hint:       hint,
		Anomalies:  anomalies,
	}
}

// RunDriftAudit recomputes every invoice and customer from source rows and
// reports where the persisted caches drifted beyond tolerance. With repair
// set, each drifted record is re-reconciled under its posting lock and the
// repair is written to the change log. The report is cached in Redis for the
// audit endpoints.
func RunDriftAudit(ctx context.Context, repair bool) (*AuditReport, error) {
	logger := config.GetLogger()
	db := config.GetDB()

	report := &AuditReport{RunAt: time.Now().UTC(), RepairMode: repair}

	lastId := 0
	for {
		var invoices []models.Invoice
		if err := db.WithContext(ctx).Preload("Items").
			Where("id > ?", lastId).Order("id ASC").Limit(auditBatchSize).
			Find(&invoices).Error; err != nil {
			return nil, err
		}
		if len(invoices) == 0 {
			break
		}
		for i := range invoices {
			invoice := &invoices[i]
			lastId = invoice.ID
			report.InvoicesChecked++

			finding, err := auditInvoice(ctx, db, invoice)
			if err != nil {
				config.LogError(logger, "auditWorkflow.go", "RunDriftAudit", "Auditing invoice", invoice.ID, err)
				return nil, err
			}
			if finding == nil {
				continue
			}
			if repair {
				if err := repairInvoice(ctx, db, invoice, finding); err != nil {
					return nil, err
				}
			}
			report.Findings = append(report.Findings, *finding)
		}
	}

	lastId = 0
	for {
		var customers []models.Customer
		if err := db.WithContext(ctx).
			Where("id > ?", lastId).Order("id ASC").Limit(auditBatchSize).
			Find(&customers).Error; err != nil {
			return nil, err
		}
		if len(customers) == 0 {
			break
		}
		for i := range customers {
			customer := &customers[i]
			lastId = customer.ID
			report.CustomersChecked++

			finding, err := auditCustomer(ctx, db, customer)
			if err != nil {
				config.LogError(logger, "auditWorkflow.go", "RunDriftAudit", "Auditing customer", customer.ID, err)
				return nil, err
			}
			if finding == nil {
				continue
			}
			if repair {
				if err := repairCustomer(ctx, db, customer, finding); err != nil {
					return nil, err
				}
			}
			report.Findings = append(report.Findings, *finding)
		}
	}

	if err := config.SetRedisObject(lastAuditReportKey, report, 24*time.Hour); err != nil {
		config.LogError(logger, "auditWorkflow.go", "RunDriftAudit", "Caching report", nil, err)
	}
	if !report.Clean() {
		config.LogWarn(logger, "auditWorkflow.go", "RunDriftAudit", "Drift detected",
			map[string]interface{}{"findings": len(report.Findings), "repair": repair},
			"derived caches drifted from recomputation")
	}
	return report, nil
}

// auditInvoice recomputes the invoice's figures from its items, returns, and
// payments, read-only, and compares the remaining balance cache. A concurrent
// writer can produce a transient discrepancy; repair re-checks under the lock
// before touching anything.
func auditInvoice(ctx context.Context, db *gorm.DB, invoice *models.Invoice) (*AuditFinding, error) {
	tx := db.WithContext(ctx)
	totalReturned, err := models.TotalReturnedForInvoice(tx, invoice.ID)
	if err != nil {
		return nil, err
	}
	paymentAmount, err := models.PaidAmountForInvoice(tx, invoice.ID)
	if err != nil {
		return nil, err
	}
	totals, err := models.CalculateInvoiceTotals(invoice.Items, invoice.DiscountPercent, totalReturned, paymentAmount)
	if err != nil {
		return nil, err
	}

	if f := classifyDrift("invoice", invoice.ID, "grand_total", invoice.GrandTotal, totals.GrandTotal, nil); f != nil {
		return f, nil
	}
	return classifyDrift("invoice", invoice.ID, "remaining_balance", invoice.RemainingBalance, totals.RemainingBalance, nil), nil
}

// auditCustomer refolds the ledger and compares the cached balance. Ledger
// anomalies are reported even when the cached balance happens to match.
func auditCustomer(ctx context.Context, db *gorm.DB, customer *models.Customer) (*AuditFinding, error) {
	var entries []models.CustomerLedgerEntry
	if err := db.WithContext(ctx).Where("customer_id = ?", customer.ID).
		Order("entry_date ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	balance, anomalies := models.AggregateLedger(entries)
	return classifyDrift("customer", customer.ID, "balance", customer.Balance, balance, anomalies), nil
}

func repairInvoice(ctx context.Context, db *gorm.DB, invoice *models.Invoice, finding *AuditFinding) error {
	logger := config.GetLogger()
	return RunLocked(ctx, db, []string{InvoiceLockName(invoice.ID), CustomerLockName(invoice.CustomerId)}, func(tx *gorm.DB) error {
		before := map[string]interface{}{
			"grand_total":       invoice.GrandTotal,
			"remaining_balance": invoice.RemainingBalance,
		}
		reconciled, totals, err := ReconcileInvoice(tx, logger, invoice.ID)
		if err != nil {
			return err
		}
		if _, _, err := ReconcileCustomerBalance(ctx, tx, logger, invoice.CustomerId); err != nil {
			return err
		}
		finding.Repaired = true
		return models.CreateHistory(tx, "AUDIT_REPAIR", invoice.ID, models.ReferenceTypeInvoice,
			before,
			map[string]interface{}{"grand_total": totals.GrandTotal, "remaining_balance": totals.RemainingBalance},
			fmt.Sprintf("Audit repaired drifted caches on invoice %s (%s)", reconciled.InvoiceNumber, finding.Hint))
	})
}

func repairCustomer(ctx context.Context, db *gorm.DB, customer *models.Customer, finding *AuditFinding) error {
	logger := config.GetLogger()
	return RunLocked(ctx, db, []string{CustomerLockName(customer.ID)}, func(tx *gorm.DB) error {
		balance, _, err := ReconcileCustomerBalance(ctx, tx, logger, customer.ID)
		if err != nil {
			return err
		}
		finding.Repaired = true
		return models.CreateHistory(tx, "AUDIT_REPAIR", customer.ID, models.ReferenceTypeCustomer,
			map[string]interface{}{"balance": customer.Balance},
			map[string]interface{}{"balance": balance},
			fmt.Sprintf("Audit repaired drifted balance cache for %s (%s)", customer.Name, finding.Hint))
	})
}

// LastAuditReport returns the most recent cached report, if any.
func LastAuditReport() (*AuditReport, bool, error) {
	var report AuditReport
	found, err := config.GetRedisObject(lastAuditReportKey, &report)
	if err != nil || !found {
		return nil, false, err
	}
	return &report, true, nil
}

// ClearAuditReport drops the cached report, e.g. after the underlying data
// was corrected outside the repair path and the old findings are misleading.
func ClearAuditReport() error {
	return config.RemoveRedisKey(lastAuditReportKey)
}
