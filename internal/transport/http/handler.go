package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/merchantbook/ledger-service/internal/ledger"
	"github.com/merchantbook/ledger-service/internal/repo"
	"github.com/merchantbook/ledger-service/internal/service"
)

func RegisterHandlers(r *gin.Engine, svc *service.LedgerService, rec *service.Reconciler, chk *service.IntegrityChecker, exponent int32) {
	v1 := r.Group("/v1")
	{
		v1.POST("/customers/:id/transactions", recordTransactionHandler(svc, exponent))
		v1.GET("/customers/:id/balance", balanceHandler(svc, exponent))
		v1.GET("/customers/:id/history", historyHandler(svc, exponent))
		v1.GET("/customers/:id/audit", auditHandler(svc, exponent))
		v1.POST("/customers/:id/reconcile", reconcileCustomerHandler(rec, exponent))
		v1.POST("/reconcile", reconcileAllHandler(rec))
		v1.GET("/customers/:id/integrity", integrityCustomerHandler(chk))
		v1.GET("/integrity", integrityAllHandler(chk))
	}
}

// recordStatus maps write-path errors to HTTP statuses: malformed input is
// 422, a lost optimistic-lock race is 409 (retryable), anything else 400.
func recordStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnknownType),
		errors.Is(err, ledger.ErrUnknownPaymentMethod),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidRemainingAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, repo.ErrVersionConflict),
		errors.Is(err, service.ErrCustomerMismatch):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

type transactionReq struct {
	ID                  string  `json:"id"`
	Type                string  `json:"type" binding:"required"`
	Amount              string  `json:"amount" binding:"required"`
	PaymentMethod       string  `json:"payment_method"`
	RemainingAmount     *string `json:"remaining_amount"`
	AppliedToDebt       *bool   `json:"applied_to_debt"`
	LinkedTransactionID *string `json:"linked_transaction_id"`
	Date                string  `json:"date"`
}

func balancesJSON(bal ledger.Balances, exponent int32) gin.H {
	return gin.H{
		"outstanding_balance": fromMinor(bal.Outstanding, exponent),
		"credit_balance":      fromMinor(bal.Credit, exponent),
	}
}

func recordTransactionHandler(svc *service.LedgerService, exponent int32) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transactionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		customerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		amount, err := toMinor(req.Amount, exponent)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		in := service.TransactionInput{
			ID:                  req.ID,
			Type:                req.Type,
			Amount:              amount,
			PaymentMethod:       req.PaymentMethod,
			AppliedToDebt:       req.AppliedToDebt,
			LinkedTransactionID: req.LinkedTransactionID,
		}
		if req.RemainingAmount != nil {
			remaining, err := toMinor(*req.RemainingAmount, exponent)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid remaining_amount"})
				return
			}
			in.RemainingAmount = &remaining
		}
		if req.Date != "" {
			date, err := time.Parse(time.RFC3339, req.Date)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
				return
			}
			in.Date = date
		}
		tx, bal, err := svc.RecordTransaction(c, customerID, in)
		if err != nil {
			c.JSON(recordStatus(err), gin.H{"error": err.Error()})
			return
		}
		resp := balancesJSON(bal, exponent)
		resp["transaction_id"] = tx.ID
		c.JSON(http.StatusOK, resp)
	}
}

func balanceHandler(svc *service.LedgerService, exponent int32) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		bal, err := svc.GetBalance(c, customerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, balancesJSON(bal, exponent))
	}
}

func historyHandler(svc *service.LedgerService, exponent int32) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		sinceStr := c.DefaultQuery("since", time.Now().Add(-24*time.Hour).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		txs, err := svc.GetHistory(c, customerID, limit, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out := make([]gin.H, 0, len(txs))
		for _, t := range txs {
			row := gin.H{
				"id":             t.ID,
				"type":           t.Type,
				"amount":         fromMinor(t.Amount, exponent),
				"payment_method": t.PaymentMethod,
				"date":           t.Date.Format(time.RFC3339),
			}
			if t.RemainingAmount != nil {
				row["remaining_amount"] = fromMinor(*t.RemainingAmount, exponent)
			}
			if t.AppliedToDebt != nil {
				row["applied_to_debt"] = *t.AppliedToDebt
			}
			if t.LinkedTransactionID != nil {
				row["linked_transaction_id"] = *t.LinkedTransactionID
			}
			out = append(out, row)
		}
		c.JSON(http.StatusOK, out)
	}
}

func auditHandler(svc *service.LedgerService, exponent int32) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		entries, err := svc.ListAuditEntries(c, customerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			out = append(out, gin.H{
				"id":         e.ID,
				"type":       e.Type,
				"amount":     fromMinor(e.Amount, exponent),
				"metadata":   e.Metadata,
				"created_at": e.CreatedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

func reconcileCustomerHandler(rec *service.Reconciler, exponent int32) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		corr, skipped, err := rec.ReconcileCustomer(c, customerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if skipped {
			c.JSON(http.StatusConflict, gin.H{"skipped": true, "reason": "reconciliation already in flight"})
			return
		}
		if corr == nil {
			c.JSON(http.StatusOK, gin.H{"consistent": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"consistent": false, "correction": corr})
	}
}

func reconcileAllHandler(rec *service.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := rec.ReconcileAll(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func integrityCustomerHandler(chk *service.IntegrityChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id"})
			return
		}
		report, err := chk.CheckCustomer(c, customerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func integrityAllHandler(chk *service.IntegrityChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := chk.CheckAll(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
