package model

import "time"

// CustomerBalance is the derived balance pair for one customer. It is a cache
// of the transaction journal; reconciliation can always rebuild it.
// Both amounts are integer minor currency units and never go below zero.
type CustomerBalance struct {
	CustomerID  uint64    `gorm:"primaryKey;column:customer_id"`
	Outstanding int64     `gorm:"not null;default:0"`
	Credit      int64     `gorm:"not null;default:0"`
	Version     uint64    `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (CustomerBalance) TableName() string { return "customer_balance" }
