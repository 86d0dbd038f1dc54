package model

import "time"

// Transaction types.
const (
	TxSale    = "sale"
	TxPayment = "payment"
	TxCredit  = "credit"
	TxRefund  = "refund"
)

// Payment methods (meaningful for sales).
const (
	MethodCash   = "cash"
	MethodCredit = "credit"
	MethodMixed  = "mixed"
)

// Transaction is one row of the append-only journal. Rows are created once by
// the application and never updated or deleted; corrections happen through
// reconciliation, not edits.
type Transaction struct {
	ID                  string `gorm:"primaryKey;size:36"`
	CustomerID          uint64 `gorm:"not null;index"`
	Type                string `gorm:"size:16;not null"`
	Amount              int64  `gorm:"not null"`
	PaymentMethod       string `gorm:"size:16"`
	RemainingAmount     *int64
	AppliedToDebt       *bool
	LinkedTransactionID *string   `gorm:"size:36"`
	Date                time.Time `gorm:"not null;index"`
	CreatedAt           time.Time `gorm:"autoCreateTime"`
}

func (Transaction) TableName() string { return "transaction" }
