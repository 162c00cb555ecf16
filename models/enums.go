package models

// InvoiceStatus follows the invoice lifecycle. Reconciled is not terminal:
// any later mutation re-enters the non-terminal states and retriggers
// recomputation.
type InvoiceStatus string

const (
	InvoiceStatusDraft       InvoiceStatus = "Draft"
	InvoiceStatusConfirmed   InvoiceStatus = "Confirmed"
	InvoiceStatusPartialPaid InvoiceStatus = "Partial Paid"
	InvoiceStatusPaid        InvoiceStatus = "Paid"
	InvoiceStatusHasReturns  InvoiceStatus = "Has Returns"
	InvoiceStatusReconciled  InvoiceStatus = "Reconciled"
)

type LedgerEntryType string

const (
	LedgerEntryTypeDebit      LedgerEntryType = "Debit"
	LedgerEntryTypeCredit     LedgerEntryType = "Credit"
	LedgerEntryTypeAdjustment LedgerEntryType = "Adjustment"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "Cash"
	PaymentMethodBankTransfer PaymentMethod = "Bank Transfer"
	PaymentMethodCheque       PaymentMethod = "Cheque"
	PaymentMethodMobileMoney  PaymentMethod = "Mobile Money"
)

type StockStatus string

const (
	StockStatusOK           StockStatus = "OK"
	StockStatusLow          StockStatus = "LOW"
	StockStatusInsufficient StockStatus = "INSUFFICIENT"
)

// Domain event types published after every reconciled mutation.
const (
	EventInvoiceCreated         = "invoice.created"
	EventInvoiceItemAdded       = "invoice.item_added"
	EventInvoiceItemRemoved     = "invoice.item_removed"
	EventInvoiceItemUpdated     = "invoice.item_updated"
	EventInvoicePaymentRecorded = "invoice.payment_recorded"
	EventInvoiceReturnApplied   = "invoice.return_applied"
	EventCustomerBalanceUpdated = "customer.balance_updated"
	EventProductStockAdjusted   = "product.stock_adjusted"
)

// Outbox reference types (short DB codes).
const (
	ReferenceTypeInvoice  = "IV"
	ReferenceTypeCustomer = "CU"
	ReferenceTypePayment  = "PM"
	ReferenceTypeReturn   = "RT"
	ReferenceTypeProduct  = "PD"
)

// Outbox publish statuses for DomainEventRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
