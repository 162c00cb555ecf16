package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/models"
	"github.com/steelstorehq/store_backend/workflow"
	"gorm.io/gorm"
)

// Rebuilds cached figures from source rows: one customer (and optionally its
// invoices), or everything. Use after manual data surgery or a restore.
func main() {
	customerID := flag.Int("customer-id", 0, "Optional: rebuild a single customer (default all)")
	withInvoices := flag.Bool("with-invoices", true, "Also re-reconcile the customer's invoices")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing records and continue")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()
	ctx := context.Background()

	var customerIds []int
	if *customerID > 0 {
		customerIds = []int{*customerID}
	} else {
		if err := db.Model(&models.Customer{}).Order("id ASC").Pluck("id", &customerIds).Error; err != nil {
			fmt.Fprintf(os.Stderr, "discover customers: %v\n", err)
			os.Exit(1)
		}
	}

	for _, cid := range customerIds {
		if *withInvoices {
			var invoiceIds []int
			if err := db.Model(&models.Invoice{}).
				Where("customer_id = ?", cid).Order("id ASC").
				Pluck("id", &invoiceIds).Error; err != nil {
				fmt.Fprintf(os.Stderr, "discover invoices for customer %d: %v\n", cid, err)
				os.Exit(1)
			}
			for _, iid := range invoiceIds {
				err := workflow.RunLocked(ctx, db, []string{workflow.InvoiceLockName(iid)}, func(tx *gorm.DB) error {
					_, _, err := workflow.ReconcileInvoice(tx, logger, iid)
					return err
				})
				if err != nil {
					if *continueOnError {
						fmt.Fprintf(os.Stderr, "invoice %d rebuild failed (skipping): %v\n", iid, err)
						continue
					}
					fmt.Fprintf(os.Stderr, "invoice %d rebuild failed: %v\n", iid, err)
					os.Exit(1)
				}
				fmt.Printf("reconciled invoice %d\n", iid)
			}
		}

		err := workflow.RunLocked(ctx, db, []string{workflow.CustomerLockName(cid)}, func(tx *gorm.DB) error {
			balance, anomalies, err := workflow.ReconcileCustomerBalance(ctx, tx, logger, cid)
			if err != nil {
				return err
			}
			fmt.Printf("customer %d balance=%s anomalies=%d\n", cid, balance.StringFixed(2), len(anomalies))
			return nil
		})
		if err != nil {
			if *continueOnError {
				fmt.Fprintf(os.Stderr, "customer %d rebuild failed (skipping): %v\n", cid, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "customer %d rebuild failed: %v\n", cid, err)
			os.Exit(1)
		}
	}
}
