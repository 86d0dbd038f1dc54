package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/merchantbook/ledger-service/internal/ledger"
	"github.com/merchantbook/ledger-service/internal/metrics"
	"github.com/merchantbook/ledger-service/internal/model"
	"github.com/merchantbook/ledger-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LedgerService is the live write path: it validates an incoming transaction,
// resolves it against the customer's balances under the per-customer lock,
// and commits journal row, balance pair, audit entries, and outbox event in
// one database transaction.
type LedgerService struct {
	repo repo.RepositoryInterface
	opts ledger.Options
	log  *zap.SugaredLogger
}

// NewLedgerService returns LedgerService.
func NewLedgerService(r repo.RepositoryInterface, opts ledger.Options, logger *zap.SugaredLogger) *LedgerService {
	return &LedgerService{repo: r, opts: opts, log: logger}
}

// ErrCustomerMismatch means a transaction id was re-submitted under a
// different customer than the one it was recorded for.
var ErrCustomerMismatch = errors.New("transaction id belongs to another customer")

// TransactionInput is a new journal event as submitted by the application.
// ID is optional; supplying one makes the call idempotent.
type TransactionInput struct {
	ID                  string
	Type                string
	Amount              int64
	PaymentMethod       string
	RemainingAmount     *int64
	AppliedToDebt       *bool
	LinkedTransactionID *string
	Date                time.Time
}

// RecordTransaction appends one transaction and returns the stored row plus
// the customer's balances after it was applied. Re-submitting an existing
// transaction ID returns the stored row without applying it twice.
func (s *LedgerService) RecordTransaction(ctx context.Context, customerID uint64, in TransactionInput) (*model.Transaction, ledger.Balances, error) {
	t := &model.Transaction{
		ID:                  in.ID,
		CustomerID:          customerID,
		Type:                in.Type,
		Amount:              in.Amount,
		PaymentMethod:       in.PaymentMethod,
		RemainingAmount:     in.RemainingAmount,
		AppliedToDebt:       in.AppliedToDebt,
		LinkedTransactionID: in.LinkedTransactionID,
		Date:                in.Date,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Date.IsZero() {
		t.Date = time.Now()
	}
	if err := ledger.Validate(*t); err != nil {
		return nil, ledger.Balances{}, err
	}

	var finalBal ledger.Balances
	err := s.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.GetTransaction(ctx, tx, t.ID)
		if err == nil {
			if existing.CustomerID != customerID {
				return ErrCustomerMismatch
			}
			b, berr := s.repo.GetBalanceForUpdate(ctx, tx, customerID)
			if berr != nil && !errors.Is(berr, gorm.ErrRecordNotFound) {
				return berr
			}
			if b != nil {
				finalBal = ledger.Balances{Outstanding: b.Outstanding, Credit: b.Credit}
			}
			t = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		b, err := s.repo.GetBalanceForUpdate(ctx, tx, customerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				b = &model.CustomerBalance{CustomerID: customerID}
				if err := s.repo.CreateBalance(ctx, tx, b); err != nil {
					return err
				}
			} else {
				return err
			}
		}

		newBal, drafts := ledger.Apply(ledger.Balances{Outstanding: b.Outstanding, Credit: b.Credit}, *t, s.opts)
		if err := s.repo.UpdateBalance(ctx, tx, customerID, newBal, b.Version); err != nil {
			return err
		}
		if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
			return err
		}
		for _, d := range drafts {
			entry := &model.CreditAuditEntry{
				ID:         uuid.NewString(),
				CustomerID: customerID,
				Type:       d.Type,
				Amount:     d.Amount,
				Metadata:   d.Reason,
			}
			if err := s.repo.AppendAuditEntry(ctx, tx, entry); err != nil {
				return err
			}
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"customer_id": customerID, "transaction_id": t.ID, "type": t.Type,
			"amount": t.Amount, "outstanding": newBal.Outstanding, "credit": newBal.Credit,
		})
		evt := &model.OutboxEvent{
			Aggregate: "Customer", AggregateID: customerID,
			EventType: model.EventTransactionRecorded, Payload: string(payload),
		}
		if err := s.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		if err := s.repo.CacheBalance(ctx, customerID, newBal); err != nil {
			s.log.Warn(err)
		}
		finalBal = newBal
		return nil
	})
	if err != nil {
		return nil, ledger.Balances{}, err
	}
	metrics.TransactionsRecorded.WithLabelValues(t.Type).Inc()
	return t, finalBal, nil
}

// GetBalance returns the customer's current pair, cache first. A customer
// with no balance row yet reads as zeroed.
func (s *LedgerService) GetBalance(ctx context.Context, customerID uint64) (ledger.Balances, error) {
	bal, err := s.repo.GetCachedBalance(ctx, customerID)
	if err == nil {
		return bal, nil
	}
	var b model.CustomerBalance
	if err := s.repo.DB(ctx).Where("customer_id=?", customerID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Balances{}, nil
		}
		return ledger.Balances{}, err
	}
	bal = ledger.Balances{Outstanding: b.Outstanding, Credit: b.Credit}
	_ = s.repo.CacheBalance(ctx, customerID, bal)
	return bal, nil
}

// GetHistory fetches the customer's journal since a point in time.
func (s *LedgerService) GetHistory(ctx context.Context, customerID uint64, limit int, since time.Time) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := s.repo.DB(ctx).
		Where("customer_id=? AND date>=?", customerID, since).
		Order("date asc, id asc").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// ListAuditEntries returns the customer's credit audit trail.
func (s *LedgerService) ListAuditEntries(ctx context.Context, customerID uint64) ([]model.CreditAuditEntry, error) {
	return s.repo.ListAuditEntries(ctx, customerID)
}

// Repo exposes underlying repository (unit tests helper).
func (s *LedgerService) Repo() repo.RepositoryInterface {
	return s.repo
}
