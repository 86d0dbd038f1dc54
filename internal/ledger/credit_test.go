package ledger

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/merchantbook/ledger-service/internal/model"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func int64Ptr(v int64) *int64 { return &v }

func TestApply_OverPaymentConvertsToCredit(t *testing.T) {
	bal := Balances{Outstanding: 10000}
	tx := model.Transaction{ID: "p1", Type: model.TxPayment, Amount: 15000, AppliedToDebt: boolPtr(true)}

	got, drafts := Apply(bal, tx, DefaultOptions())

	assert.Equal(t, Balances{Outstanding: 0, Credit: 5000}, got)
	assert.Len(t, drafts, 1)
	assert.Equal(t, model.AuditOverPayment, drafts[0].Type)
	assert.Equal(t, int64(5000), drafts[0].Amount)
}

func TestApply_PlainDebtReductionEmitsNoAudit(t *testing.T) {
	bal := Balances{Outstanding: 10000}
	tx := model.Transaction{ID: "p1", Type: model.TxPayment, Amount: 4000, AppliedToDebt: boolPtr(true)}

	got, drafts := Apply(bal, tx, DefaultOptions())

	assert.Equal(t, Balances{Outstanding: 6000}, got)
	assert.Empty(t, drafts)
}

func TestApply_CreditOffsetsSale(t *testing.T) {
	bal := Balances{Credit: 8000}
	tx := model.Transaction{ID: "s1", Type: model.TxSale, PaymentMethod: model.MethodCredit, Amount: 5000}

	got, drafts := Apply(bal, tx, DefaultOptions())

	assert.Equal(t, Balances{Outstanding: 0, Credit: 3000}, got)
	assert.Len(t, drafts, 1)
	assert.Equal(t, model.AuditCreditAppliedToSale, drafts[0].Type)
	assert.Equal(t, int64(5000), drafts[0].Amount)
}

func TestApply_PartialCreditOffset(t *testing.T) {
	bal := Balances{Credit: 3000}
	tx := model.Transaction{ID: "s1", Type: model.TxSale, PaymentMethod: model.MethodCredit, Amount: 5000}

	got, drafts := Apply(bal, tx, DefaultOptions())

	assert.Equal(t, Balances{Outstanding: 2000, Credit: 0}, got)
	assert.Len(t, drafts, 1)
	assert.Equal(t, int64(3000), drafts[0].Amount)
}

func TestApply_DebtRecognitionIgnoresStoredCredit(t *testing.T) {
	// A credit event (explicit debt recognition) is not a sale: it applies
	// its full change to outstanding and leaves the credit balance alone.
	bal := Balances{Credit: 5000}
	tx := model.Transaction{ID: "c1", Type: model.TxCredit, Amount: 3000}

	got, drafts := Apply(bal, tx, DefaultOptions())

	assert.Equal(t, Balances{Outstanding: 3000, Credit: 5000}, got)
	assert.Empty(t, drafts)
}

func TestApply_MixedSaleOffsetsOnlyUnpaidPortion(t *testing.T) {
	bal := Balances{Credit: 1000}
	tx := model.Transaction{
		ID: "s1", Type: model.TxSale, PaymentMethod: model.MethodMixed,
		Amount: 20000, RemainingAmount: int64Ptr(12000),
	}

	got, drafts := Apply(bal, tx, DefaultOptions())

	assert.Equal(t, Balances{Outstanding: 11000, Credit: 0}, got)
	assert.Len(t, drafts, 1)
}

func TestApply_RefundOvershoot(t *testing.T) {
	bal := Balances{Outstanding: 2000}
	tx := model.Transaction{ID: "r1", Type: model.TxRefund, Amount: 5000}

	t.Run("convert_to_credit", func(t *testing.T) {
		got, drafts := Apply(bal, tx, DefaultOptions())
		assert.Equal(t, Balances{Outstanding: 0, Credit: 3000}, got)
		assert.Len(t, drafts, 1)
		assert.Equal(t, model.AuditCorrection, drafts[0].Type)
		assert.Equal(t, int64(3000), drafts[0].Amount)
	})

	t.Run("clip_to_zero", func(t *testing.T) {
		got, drafts := Apply(bal, tx, Options{RefundOvershoot: OvershootClipToZero})
		assert.Equal(t, Balances{Outstanding: 0, Credit: 0}, got)
		assert.Empty(t, drafts)
	})
}

func TestApply_UnappliedPayment(t *testing.T) {
	bal := Balances{Outstanding: 10000}
	tx := model.Transaction{ID: "p1", Type: model.TxPayment, Amount: 5000, AppliedToDebt: boolPtr(false)}

	t.Run("zero impact by default", func(t *testing.T) {
		got, drafts := Apply(bal, tx, DefaultOptions())
		assert.Equal(t, bal, got)
		assert.Empty(t, drafts)
	})

	t.Run("kept as credit when configured", func(t *testing.T) {
		opts := DefaultOptions()
		opts.TreatUnappliedPaymentAsCredit = true
		got, drafts := Apply(bal, tx, opts)
		assert.Equal(t, Balances{Outstanding: 10000, Credit: 5000}, got)
		assert.Len(t, drafts, 1)
		assert.Equal(t, model.AuditTopUp, drafts[0].Type)
	})
}

// Balances must stay non-negative for any sequence of valid transactions,
// under either overshoot policy.
func TestApply_BalancesNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	policies := []OvershootPolicy{OvershootConvertToCredit, OvershootClipToZero}

	for _, policy := range policies {
		opts := Options{RefundOvershoot: policy, TreatUnappliedPaymentAsCredit: rng.Intn(2) == 0}
		bal := Balances{}
		for i := 0; i < 2000; i++ {
			tx := randomTransaction(rng, i)
			if err := Validate(tx); err != nil {
				continue
			}
			bal, _ = Apply(bal, tx, opts)
			assert.GreaterOrEqual(t, bal.Outstanding, int64(0), "policy=%s step=%d", policy, i)
			assert.GreaterOrEqual(t, bal.Credit, int64(0), "policy=%s step=%d", policy, i)
		}
	}
}

func randomTransaction(rng *rand.Rand, i int) model.Transaction {
	types := []string{model.TxSale, model.TxPayment, model.TxCredit, model.TxRefund}
	methods := []string{model.MethodCash, model.MethodCredit, model.MethodMixed}
	tx := model.Transaction{
		ID:     fmt.Sprintf("tx-%04d", i),
		Type:   types[rng.Intn(len(types))],
		Amount: rng.Int63n(50000),
		Date:   time.Unix(int64(1700000000+i*60), 0),
	}
	switch tx.Type {
	case model.TxSale:
		tx.PaymentMethod = methods[rng.Intn(len(methods))]
		if tx.PaymentMethod == model.MethodMixed {
			remaining := rng.Int63n(tx.Amount + 1)
			tx.RemainingAmount = &remaining
		}
	case model.TxPayment:
		applied := rng.Intn(2) == 0
		tx.AppliedToDebt = &applied
	}
	return tx
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(model.Transaction{Type: model.TxPayment, Amount: -1}), ErrInvalidAmount)
	assert.ErrorIs(t, Validate(model.Transaction{Type: "chargeback", Amount: 100}), ErrUnknownType)
	assert.ErrorIs(t, Validate(model.Transaction{Type: model.TxSale, PaymentMethod: "barter", Amount: 100}), ErrUnknownPaymentMethod)
	assert.ErrorIs(t,
		Validate(model.Transaction{Type: model.TxSale, PaymentMethod: model.MethodMixed, Amount: 100, RemainingAmount: int64Ptr(200)}),
		ErrInvalidRemainingAmount)
	assert.NoError(t, Validate(model.Transaction{Type: model.TxSale, PaymentMethod: model.MethodMixed, Amount: 100, RemainingAmount: int64Ptr(40)}))
}
