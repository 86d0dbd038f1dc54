package ledger

import (
	"errors"
	"fmt"

	"github.com/merchantbook/ledger-service/internal/model"
)

// Input validation errors, rejected before a transaction reaches the
// calculator.
var (
	ErrInvalidAmount          = errors.New("amount must be non-negative")
	ErrUnknownType            = errors.New("unknown transaction type")
	ErrUnknownPaymentMethod   = errors.New("unknown payment method")
	ErrInvalidRemainingAmount = errors.New("remaining amount must be between 0 and amount")
)

// OvershootPolicy decides what happens to the part of a refund that exceeds
// the customer's outstanding balance.
type OvershootPolicy string

const (
	// OvershootConvertToCredit mirrors over-payment handling: the excess
	// becomes credit balance. Default.
	OvershootConvertToCredit OvershootPolicy = "convert_to_credit"
	// OvershootClipToZero drops the excess; outstanding floors at zero.
	OvershootClipToZero OvershootPolicy = "clip_to_zero"
)

// Options resolve the two behaviors the ledger leaves configurable.
type Options struct {
	// TreatUnappliedPaymentAsCredit controls whether a payment with
	// appliedToDebt=false adds to the credit balance (top-up deposit) or is
	// a zero-impact event.
	TreatUnappliedPaymentAsCredit bool
	RefundOvershoot               OvershootPolicy
}

// DefaultOptions returns the documented default behaviors.
func DefaultOptions() Options {
	return Options{RefundOvershoot: OvershootConvertToCredit}
}

// Balances is a customer's derived pair. Invariant: both fields >= 0.
type Balances struct {
	Outstanding int64
	Credit      int64
}

// AuditDraft is a credit audit entry produced by Apply but not yet persisted;
// the caller assigns an id and commits it with the balance write.
type AuditDraft struct {
	Type   string
	Amount int64
	Reason string
}

// Validate rejects malformed transactions before they reach the calculator.
func Validate(tx model.Transaction) error {
	if tx.Amount < 0 {
		return ErrInvalidAmount
	}
	switch tx.Type {
	case model.TxSale:
		switch tx.PaymentMethod {
		case model.MethodCash, model.MethodCredit, model.MethodMixed:
		default:
			return ErrUnknownPaymentMethod
		}
	case model.TxPayment, model.TxCredit, model.TxRefund:
	default:
		return ErrUnknownType
	}
	if tx.RemainingAmount != nil {
		if *tx.RemainingAmount < 0 || *tx.RemainingAmount > tx.Amount {
			return ErrInvalidRemainingAmount
		}
	}
	return nil
}

// Apply resolves one transaction against a customer's current balances and
// returns the new pair plus the audit drafts for any credit-affecting
// sub-event. Pure; never returns a negative balance.
func Apply(bal Balances, tx model.Transaction, opts Options) (Balances, []AuditDraft) {
	imp := ImpactOf(tx)
	var drafts []AuditDraft

	switch {
	case imp.IsIncrease:
		if tx.Type == model.TxSale {
			// Stored credit offsets new sale exposure before debt grows.
			offset := minInt64(bal.Credit, imp.Change)
			bal.Credit -= offset
			bal.Outstanding += imp.Change - offset
			if offset > 0 {
				drafts = append(drafts, AuditDraft{
					Type:   model.AuditCreditAppliedToSale,
					Amount: offset,
					Reason: fmt.Sprintf("credit applied against sale %s", tx.ID),
				})
			}
		} else {
			// Explicit debt recognition grows outstanding directly; stored
			// credit is only spent on sales.
			bal.Outstanding += imp.Change
		}

	case imp.IsDecrease:
		decrease := -imp.Change
		reduction := minInt64(decrease, bal.Outstanding)
		overshoot := decrease - reduction
		bal.Outstanding -= reduction
		if overshoot > 0 {
			switch tx.Type {
			case model.TxPayment:
				bal.Credit += overshoot
				drafts = append(drafts, AuditDraft{
					Type:   model.AuditOverPayment,
					Amount: overshoot,
					Reason: fmt.Sprintf("payment %s exceeds outstanding balance", tx.ID),
				})
			case model.TxRefund:
				if opts.RefundOvershoot == OvershootConvertToCredit {
					bal.Credit += overshoot
					drafts = append(drafts, AuditDraft{
						Type:   model.AuditCorrection,
						Amount: overshoot,
						Reason: fmt.Sprintf("refund %s exceeds outstanding balance, converted to credit", tx.ID),
					})
				}
			}
		}

	default:
		if tx.Type == model.TxPayment && tx.Amount > 0 && opts.TreatUnappliedPaymentAsCredit {
			applied := tx.AppliedToDebt != nil && *tx.AppliedToDebt
			if !applied {
				bal.Credit += tx.Amount
				drafts = append(drafts, AuditDraft{
					Type:   model.AuditTopUp,
					Amount: tx.Amount,
					Reason: fmt.Sprintf("unapplied payment %s kept as credit", tx.ID),
				})
			}
		}
	}
	return bal, drafts
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
