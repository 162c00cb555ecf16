package models

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/steelstorehq/store_backend/config"
)

// StatementLine is one row of a customer statement: an invoice, a return, or
// a payment, merged chronologically with a running balance.
type StatementLine struct {
	ID             string    `json:"id"`
	SourceType     string    `json:"source_type"` // "Invoice", "Return", "Payment"
	SourceID       int       `json:"source_id"`
	Date           time.Time `json:"date"`
	DocumentNumber string    `json:"document_number"`
	Description    string    `json:"description"`
	Amount         Money     `json:"amount"`
	IsReversal     bool      `json:"is_reversal"`
	RunningBalance Money     `json:"running_balance"`
}

type CustomerStatement struct {
	CustomerId     int             `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	Lines          []StatementLine `json:"lines"`
	ClosingBalance Money           `json:"closing_balance"`
}

// GetCustomerStatement merges the customer's invoices, returns, and payments
// into date order and folds a running balance: invoices increase what the
// customer owes, returns and payments decrease it.
func GetCustomerStatement(ctx context.Context, customerId int, fromDate, toDate *time.Time) (*CustomerStatement, error) {
	db := config.GetDB()

	customer, err := GetCustomer(ctx, customerId)
	if err != nil {
		return nil, err
	}

	var lines []StatementLine

	var invoices []Invoice
	query := db.WithContext(ctx).Where("customer_id = ?", customerId)
	if fromDate != nil {
		query = query.Where("invoice_date >= ?", fromDate)
	}
	if toDate != nil {
		query = query.Where("invoice_date <= ?", toDate)
	}
	if err := query.Find(&invoices).Error; err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		lines = append(lines, StatementLine{
			ID:             "IV:" + strconv.Itoa(inv.ID),
			SourceType:     "Invoice",
			SourceID:       inv.ID,
			Date:           inv.InvoiceDate,
			DocumentNumber: inv.InvoiceNumber,
			Description:    inv.Notes,
			Amount:         inv.GrandTotal,
		})
	}

	var returns []InvoiceReturn
	query = db.WithContext(ctx).Where("customer_id = ?", customerId)
	if fromDate != nil {
		query = query.Where("return_date >= ?", fromDate)
	}
	if toDate != nil {
		query = query.Where("return_date <= ?", toDate)
	}
	if err := query.Find(&returns).Error; err != nil {
		return nil, err
	}
	for _, ret := range returns {
		lines = append(lines, StatementLine{
			ID:             "RT:" + strconv.Itoa(ret.ID),
			SourceType:     "Return",
			SourceID:       ret.ID,
			Date:           ret.ReturnDate,
			DocumentNumber: "RT-" + strconv.Itoa(ret.ID),
			Description:    ret.Notes,
			Amount:         ret.TotalAmount,
		})
	}

	var payments []Payment
	query = db.WithContext(ctx).Where("customer_id = ?", customerId)
	if fromDate != nil {
		query = query.Where("payment_date >= ?", fromDate)
	}
	if toDate != nil {
		query = query.Where("payment_date <= ?", toDate)
	}
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	for _, pay := range payments {
		desc := pay.Notes
		if pay.ReversesPaymentId != nil {
			desc = "Reversal of payment " + strconv.Itoa(*pay.ReversesPaymentId)
		}
		lines = append(lines, StatementLine{
			ID:             "CP:" + strconv.Itoa(pay.ID),
			SourceType:     "Payment",
			SourceID:       pay.ID,
			Date:           pay.PaymentDate,
			DocumentNumber: "CP-" + strconv.Itoa(pay.ID),
			Description:    desc,
			Amount:         pay.Amount,
			IsReversal:     pay.ReversesPaymentId != nil,
		})
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Date.Before(lines[j].Date)
	})

	balance := ZeroMoney()
	for i := range lines {
		switch lines[i].SourceType {
		case "Invoice":
			balance = balance.Add(lines[i].Amount)
		case "Return":
			balance = balance.Sub(lines[i].Amount)
		case "Payment":
			if lines[i].IsReversal {
				balance = balance.Add(lines[i].Amount)
			} else {
				balance = balance.Sub(lines[i].Amount)
			}
		}
		lines[i].RunningBalance = balance
	}

	return &CustomerStatement{
		CustomerId:     customerId,
		CustomerName:   customer.Name,
		Lines:          lines,
		ClosingBalance: balance,
	}, nil
}
