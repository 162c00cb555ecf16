package workflow

import (
	"testing"

	"github.com/steelstorehq/store_backend/utils"
)

// Regression for the over-payment rule: an invoice settled down to 13000 by a
// return must reject a 15000 payment before anything is persisted.
func TestValidatePaymentAmount_RejectsOverPayment(t *testing.T) {
	err := validatePaymentAmount(money(t, "15000"), money(t, "13000"), "IV-000007")
	if err == nil {
		t.Fatalf("expected rejection of payment above remaining balance")
	}
	if !utils.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidatePaymentAmount_ExactSettlementAllowed(t *testing.T) {
	if err := validatePaymentAmount(money(t, "13000"), money(t, "13000"), "IV-000007"); err != nil {
		t.Fatalf("settling payment rejected: %v", err)
	}
	if err := validatePaymentAmount(money(t, "12999.99"), money(t, "13000"), "IV-000007"); err != nil {
		t.Fatalf("partial payment rejected: %v", err)
	}
}

func TestValidatePaymentAmount_SettledInvoiceTakesNothing(t *testing.T) {
	// One cent against a zero balance is still an over-payment.
	if err := validatePaymentAmount(money(t, "0.01"), money(t, "0"), "IV-000001"); err == nil {
		t.Fatalf("expected rejection against a settled invoice")
	}
}
