package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PaymentMethod string

const (
	PaymentMethodUPI  PaymentMethod = "upi"
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodCash PaymentMethod = "cash"
)

// ParsePaymentMethod folds credit/debit into card.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "upi":
		return PaymentMethodUPI, nil
	case "card", "credit", "debit", "credit_card", "debit_card":
		return PaymentMethodCard, nil
	case "cash":
		return PaymentMethodCash, nil
	}
	return "", fmt.Errorf("unsupported payment method %q", s)
}

// Online reports whether the method is charged through the gateway.
func (m PaymentMethod) Online() bool {
	switch m {
	case PaymentMethodUPI, PaymentMethodCard:
		return true
	case PaymentMethodCash:
		return false
	}
	return false
}

type Payment struct {
	ID             uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	BookingID      uuid.UUID         `json:"booking_id" gorm:"type:uuid;index"`
	Amount         decimal.Decimal   `json:"amount" gorm:"type:numeric"`
	PaymentMethod  PaymentMethod     `json:"payment_method"`
	PaymentStatus  PaymentStatus     `json:"payment_status"`
	TransactionID  string            `json:"transaction_id,omitempty"`
	PaymentDetails datatypes.JSONMap `json:"payment_details,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at"`
}

func (Payment) TableName() string { return PaymentsTable }

// PaymentUpdate is a compare-and-set on a payment row keyed by its current
// status. Empty fields are left untouched.
type PaymentUpdate struct {
	FromStatus     PaymentStatus
	ToStatus       PaymentStatus
	Method         PaymentMethod
	TransactionID  string
	PaymentDetails map[string]interface{}
}

type RefundStatus string

const (
	RefundNotApplicable RefundStatus = "not_applicable"
	RefundInitiated     RefundStatus = "initiated"
	RefundFailed        RefundStatus = "failed"
	RefundPendingManual RefundStatus = "pending_manual"
)

// CashTransactionID is the synthetic marker stored for cash payments.
func CashTransactionID(now time.Time) string {
	return fmt.Sprintf("CASH_%d", now.UnixMilli())
}
