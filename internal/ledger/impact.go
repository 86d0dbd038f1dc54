// Package ledger holds the pure core of the customer debt/credit ledger:
// the debt impact calculator, the credit application engine, and journal
// replay. Nothing in this package performs I/O; persistence and locking live
// in repo and service.
package ledger

import "github.com/merchantbook/ledger-service/internal/model"

// Impact is the classified effect of one transaction on a customer's
// outstanding balance, before it is resolved against real balances.
type Impact struct {
	Change     int64
	IsIncrease bool
	IsDecrease bool
}

// CalculateDebtImpact classifies a transaction's effect on outstanding debt.
// Pure and total: unknown type/method combinations map to a zero change, they
// never fail. For a debt-applied payment the returned change is the full
// -amount; clipping against the live balance is the credit application
// engine's job.
func CalculateDebtImpact(txType, paymentMethod string, amount, remainingAmount int64, appliedToDebt bool) Impact {
	var change int64
	switch txType {
	case model.TxSale:
		switch paymentMethod {
		case model.MethodCredit:
			change = amount
		case model.MethodMixed:
			change = remainingAmount
		}
		// cash sales are fully paid at the counter: zero impact
	case model.TxCredit:
		change = amount
	case model.TxPayment:
		if appliedToDebt {
			change = -amount
		}
	case model.TxRefund:
		change = -amount
	}
	return Impact{
		Change:     change,
		IsIncrease: change > 0,
		IsDecrease: change < 0,
	}
}

// ImpactOf applies CalculateDebtImpact to a journal row, resolving its
// optional fields.
func ImpactOf(tx model.Transaction) Impact {
	var remaining int64
	if tx.RemainingAmount != nil {
		remaining = *tx.RemainingAmount
	}
	applied := tx.AppliedToDebt != nil && *tx.AppliedToDebt
	return CalculateDebtImpact(tx.Type, tx.PaymentMethod, tx.Amount, remaining, applied)
}
