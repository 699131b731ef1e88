package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the tender used for a payment.
type PaymentMethod string

const (
	MethodCash          PaymentMethod = "CASH"
	MethodCard          PaymentMethod = "CARD"
	MethodDigitalWallet PaymentMethod = "DIGITAL_WALLET"
	MethodUPI           PaymentMethod = "UPI"
	MethodCredit        PaymentMethod = "CREDIT"
)

// ParsePaymentMethod validates s against the accepted tenders.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodCash, MethodCard, MethodDigitalWallet, MethodUPI, MethodCredit:
		return m, nil
	}
	return "", fmt.Errorf("payment method must be one of: CASH, CARD, DIGITAL_WALLET, UPI, CREDIT")
}

// Payment is a captured payment record. Capture itself happens outside the core.
type Payment struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	BillID       *string         `json:"bill_id,omitempty"`
	Method       PaymentMethod   `json:"method"`
	Amount       decimal.Decimal `json:"amount"`
	Reference    *string         `json:"reference,omitempty"`
	CardLast4    *string         `json:"card_last4,omitempty"`
	ApprovalCode *string         `json:"approval_code,omitempty"`
	Status       string          `json:"status"`
	ProcessedAt  time.Time       `json:"processed_at"`
}

// PaymentCaptured is the only status a recorded payment carries.
const PaymentCaptured = "CAPTURED"

// Invoice is issued once a target is fully paid.
type Invoice struct {
	ID            string          `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	OutletID      string          `json:"outlet_id"`
	OrderID       string          `json:"order_id"`
	BillID        *string         `json:"bill_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	IssuedAt      time.Time       `json:"issued_at"`
}
