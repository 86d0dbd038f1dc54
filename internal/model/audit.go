package model

import "time"

// Credit audit entry types.
const (
	AuditOverPayment         = "over_payment"
	AuditCreditAppliedToSale = "credit_applied_to_sale"
	AuditCorrection          = "correction"
	AuditTopUp               = "top_up"
)

// CreditAuditEntry records every event that creates, consumes, or adjusts
// customer credit. Append-only and immutable.
type CreditAuditEntry struct {
	ID         string    `gorm:"primaryKey;size:36"`
	CustomerID uint64    `gorm:"not null;index"`
	Type       string    `gorm:"size:32;not null"`
	Amount     int64     `gorm:"not null"`
	Metadata   string    `gorm:"size:255"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (CreditAuditEntry) TableName() string { return "credit_audit_entry" }
