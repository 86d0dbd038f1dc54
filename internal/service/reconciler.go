package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/merchantbook/ledger-service/internal/ledger"
	"github.com/merchantbook/ledger-service/internal/metrics"
	"github.com/merchantbook/ledger-service/internal/model"
	"github.com/merchantbook/ledger-service/internal/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Correction records one repaired drift between stored and replayed balances.
type Correction struct {
	CustomerID          uint64 `json:"customer_id"`
	PreviousOutstanding int64  `json:"previous_outstanding"`
	CorrectOutstanding  int64  `json:"correct_outstanding"`
	PreviousCredit      int64  `json:"previous_credit"`
	CorrectCredit       int64  `json:"correct_credit"`
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	CustomersChecked int          `json:"customers_checked"`
	SkippedCustomers []uint64     `json:"skipped_customers,omitempty"`
	Corrections      []Correction `json:"corrections"`
}

// Reconciler recomputes canonical balances by replaying the journal and
// overwrites stored drift. It takes the same per-customer lock as the write
// path, so a pass racing a live write cannot clobber it. A customer whose
// reconciliation is already in flight is skipped, not queued.
type Reconciler struct {
	repo      repo.RepositoryInterface
	opts      ledger.Options
	batchSize int
	log       *zap.SugaredLogger

	mu       sync.Mutex
	inflight map[uint64]struct{}
}

// NewReconciler returns Reconciler.
func NewReconciler(r repo.RepositoryInterface, opts ledger.Options, batchSize int, logger *zap.SugaredLogger) *Reconciler {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Reconciler{
		repo: r, opts: opts, batchSize: batchSize, log: logger,
		inflight: make(map[uint64]struct{}),
	}
}

func (rc *Reconciler) acquire(customerID uint64) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, busy := rc.inflight[customerID]; busy {
		return false
	}
	rc.inflight[customerID] = struct{}{}
	return true
}

func (rc *Reconciler) release(customerID uint64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.inflight, customerID)
}

// ReconcileCustomer replays one customer's journal and repairs stored drift.
// Returns a nil correction when the store was already consistent, and
// skipped=true when another reconciliation for the customer was in flight.
func (rc *Reconciler) ReconcileCustomer(ctx context.Context, customerID uint64) (correction *Correction, skipped bool, err error) {
	if !rc.acquire(customerID) {
		metrics.ReconcileRuns.WithLabelValues("skipped").Inc()
		return nil, true, nil
	}
	defer rc.release(customerID)

	err = rc.repo.DB(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := rc.repo.GetBalanceForUpdate(ctx, tx, customerID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			b = &model.CustomerBalance{CustomerID: customerID}
			if err := rc.repo.CreateBalance(ctx, tx, b); err != nil {
				return err
			}
		}

		txs, err := rc.repo.LoadTransactions(ctx, tx, customerID)
		if err != nil {
			return err
		}
		want, _ := ledger.Replay(txs, rc.opts)
		stored := ledger.Balances{Outstanding: b.Outstanding, Credit: b.Credit}
		if want == stored {
			return nil
		}

		if err := rc.repo.UpdateBalance(ctx, tx, customerID, want, b.Version); err != nil {
			return err
		}
		if want.Credit != stored.Credit {
			drift := want.Credit - stored.Credit
			if drift < 0 {
				drift = -drift
			}
			entry := &model.CreditAuditEntry{
				ID:         uuid.NewString(),
				CustomerID: customerID,
				Type:       model.AuditCorrection,
				Amount:     drift,
				Metadata:   "credit balance corrected by reconciliation",
			}
			if err := rc.repo.AppendAuditEntry(ctx, tx, entry); err != nil {
				return err
			}
		}

		correction = &Correction{
			CustomerID:          customerID,
			PreviousOutstanding: stored.Outstanding,
			CorrectOutstanding:  want.Outstanding,
			PreviousCredit:      stored.Credit,
			CorrectCredit:       want.Credit,
		}
		payload, _ := json.Marshal(correction)
		evt := &model.OutboxEvent{
			Aggregate: "Customer", AggregateID: customerID,
			EventType: model.EventBalanceCorrected, Payload: string(payload),
		}
		if err := rc.repo.CreateOutboxEvent(ctx, tx, evt); err != nil {
			return err
		}
		if err := rc.repo.CacheBalance(ctx, customerID, want); err != nil {
			rc.log.Warn(err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if correction != nil {
		metrics.CorrectionsApplied.Inc()
		metrics.ReconcileRuns.WithLabelValues("corrected").Inc()
		rc.log.Infow("balance corrected",
			"customer_id", customerID,
			"outstanding", correction.CorrectOutstanding,
			"credit", correction.CorrectCredit)
	} else {
		metrics.ReconcileRuns.WithLabelValues("clean").Inc()
	}
	return correction, false, nil
}

// ReconcileAll runs ReconcileCustomer over every customer with a balance row.
func (rc *Reconciler) ReconcileAll(ctx context.Context) (*ReconcileResult, error) {
	result := &ReconcileResult{Corrections: make([]Correction, 0)}
	for offset := 0; ; offset += rc.batchSize {
		ids, err := rc.repo.ListCustomerIDs(ctx, offset, rc.batchSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			corr, skipped, err := rc.ReconcileCustomer(ctx, id)
			if err != nil {
				return nil, err
			}
			if skipped {
				result.SkippedCustomers = append(result.SkippedCustomers, id)
				continue
			}
			result.CustomersChecked++
			if corr != nil {
				result.Corrections = append(result.Corrections, *corr)
			}
		}
		if len(ids) < rc.batchSize {
			break
		}
	}
	return result, nil
}
