package service

import (
	"testing"
	"time"

	"github.com/merchantbook/ledger-service/internal/ledger"
	"github.com/merchantbook/ledger-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestReconciler_RepairsDrift(t *testing.T) {
	svc, rec, _, ctx := newTestStack(t, ledger.DefaultOptions())

	_, _, err := svc.RecordTransaction(ctx, 1, TransactionInput{
		Type: model.TxSale, PaymentMethod: model.MethodCredit, Amount: 10000,
		Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	_, _, err = svc.RecordTransaction(ctx, 1, TransactionInput{
		Type: model.TxPayment, Amount: 12000, AppliedToDebt: boolPtr(true),
		Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)

	// inject drift behind the ledger's back
	err = svc.Repo().DB(ctx).Model(&model.CustomerBalance{}).
		Where("customer_id = ?", 1).
		Updates(map[string]interface{}{"outstanding": 7777, "credit": 1}).Error
	assert.NoError(t, err)

	corr, skipped, err := rec.ReconcileCustomer(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, skipped)
	assert.NotNil(t, corr)
	assert.Equal(t, int64(7777), corr.PreviousOutstanding)
	assert.Equal(t, int64(0), corr.CorrectOutstanding)
	assert.Equal(t, int64(1), corr.PreviousCredit)
	assert.Equal(t, int64(2000), corr.CorrectCredit)

	bal, err := svc.GetBalance(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, ledger.Balances{Outstanding: 0, Credit: 2000}, bal)

	// credit drift leaves a correction entry in the audit trail
	entries, err := svc.ListAuditEntries(ctx, 1)
	assert.NoError(t, err)
	var corrections int
	for _, e := range entries {
		if e.Type == model.AuditCorrection {
			corrections++
			assert.Equal(t, int64(1999), e.Amount)
		}
	}
	assert.Equal(t, 1, corrections)
}

func TestReconciler_IdempotentSecondRun(t *testing.T) {
	svc, rec, _, ctx := newTestStack(t, ledger.DefaultOptions())

	_, _, err := svc.RecordTransaction(ctx, 1, TransactionInput{
		Type: model.TxSale, PaymentMethod: model.MethodCredit, Amount: 6000,
		Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)

	err = svc.Repo().DB(ctx).Model(&model.CustomerBalance{}).
		Where("customer_id = ?", 1).
		Update("outstanding", 6001).Error
	assert.NoError(t, err)

	corr, _, err := rec.ReconcileCustomer(ctx, 1)
	assert.NoError(t, err)
	assert.NotNil(t, corr)

	// no new transactions: the second pass finds nothing to fix
	corr, _, err = rec.ReconcileCustomer(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, corr)
}

func TestReconciler_ConsistentStoreYieldsNoCorrection(t *testing.T) {
	svc, rec, _, ctx := newTestStack(t, ledger.DefaultOptions())

	_, _, err := svc.RecordTransaction(ctx, 1, TransactionInput{
		Type: model.TxSale, PaymentMethod: model.MethodMixed, Amount: 20000, RemainingAmount: int64Ptr(12000),
		Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	_, _, err = svc.RecordTransaction(ctx, 1, TransactionInput{
		Type: model.TxPayment, Amount: 12000, AppliedToDebt: boolPtr(true),
		Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)

	corr, skipped, err := rec.ReconcileCustomer(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, skipped)
	assert.Nil(t, corr)

	bal, err := svc.GetBalance(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, ledger.Balances{Outstanding: 0, Credit: 0}, bal)
}

func TestReconciler_SkipsCustomerAlreadyInFlight(t *testing.T) {
	svc, rec, _, ctx := newTestStack(t, ledger.DefaultOptions())

	_, _, err := svc.RecordTransaction(ctx, 1, TransactionInput{
		Type: model.TxSale, PaymentMethod: model.MethodCredit, Amount: 1000,
		Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)

	assert.True(t, rec.acquire(1))
	defer rec.release(1)

	corr, skipped, err := rec.ReconcileCustomer(ctx, 1)
	assert.NoError(t, err)
	assert.True(t, skipped)
	assert.Nil(t, corr)

	// other customers are unaffected
	_, skipped, err = rec.ReconcileCustomer(ctx, 2)
	assert.NoError(t, err)
	assert.False(t, skipped)
}

func TestReconciler_ReconcileAll(t *testing.T) {
	svc, rec, _, ctx := newTestStack(t, ledger.DefaultOptions())

	for id := uint64(1); id <= 3; id++ {
		_, _, err := svc.RecordTransaction(ctx, id, TransactionInput{
			Type: model.TxSale, PaymentMethod: model.MethodCredit, Amount: int64(id) * 1000,
			Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		})
		assert.NoError(t, err)
	}
	// corrupt customer 2 only
	err := svc.Repo().DB(ctx).Model(&model.CustomerBalance{}).
		Where("customer_id = ?", 2).
		Update("outstanding", 55).Error
	assert.NoError(t, err)

	result, err := rec.ReconcileAll(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, result.CustomersChecked)
	assert.Empty(t, result.SkippedCustomers)
	assert.Len(t, result.Corrections, 1)
	assert.Equal(t, uint64(2), result.Corrections[0].CustomerID)
	assert.Equal(t, int64(2000), result.Corrections[0].CorrectOutstanding)
}
