package models

import (
	"log"

	"github.com/steelstorehq/store_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Customer{}, &CustomerLedgerEntry{},
		&Product{},
		&Invoice{}, &InvoiceItem{},
		&InvoiceReturn{}, &InvoiceReturnItem{},
		&Payment{},
		&History{},
		&DomainEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
