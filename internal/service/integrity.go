package service

import (
	"context"
	"fmt"

	"github.com/merchantbook/ledger-service/internal/metrics"
	"github.com/merchantbook/ledger-service/internal/model"
	"github.com/merchantbook/ledger-service/internal/repo"
	"go.uber.org/zap"
)

// IntegrityReport summarizes the state of sale-payment links in a journal.
// Findings are data, never errors; the caller decides whether a nonzero count
// is alert-worthy.
type IntegrityReport struct {
	TotalTransactions  int      `json:"total_transactions"`
	LinkedTransactions int      `json:"linked_transactions"`
	OrphanedLinks      int      `json:"orphaned_links"`
	MissingLinks       int      `json:"missing_links"`
	Recommendations    []string `json:"recommendations"`
}

// IntegrityChecker validates the linked_transaction_id relation between sales
// and the payments that settle them. Read-only: it never touches balances or
// the journal.
type IntegrityChecker struct {
	repo      repo.RepositoryInterface
	batchSize int
	log       *zap.SugaredLogger
}

// NewIntegrityChecker returns IntegrityChecker.
func NewIntegrityChecker(r repo.RepositoryInterface, batchSize int, logger *zap.SugaredLogger) *IntegrityChecker {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &IntegrityChecker{repo: r, batchSize: batchSize, log: logger}
}

// CheckCustomer analyzes one customer's journal.
func (c *IntegrityChecker) CheckCustomer(ctx context.Context, customerID uint64) (*IntegrityReport, error) {
	txs, err := c.repo.LoadTransactions(ctx, nil, customerID)
	if err != nil {
		return nil, err
	}
	report := analyzeLinks(txs)
	report.Recommendations = buildRecommendations(report)
	metrics.IntegrityFindings.WithLabelValues("orphaned").Add(float64(report.OrphanedLinks))
	metrics.IntegrityFindings.WithLabelValues("missing").Add(float64(report.MissingLinks))
	return report, nil
}

// CheckAll aggregates link analysis over every customer with a balance row.
func (c *IntegrityChecker) CheckAll(ctx context.Context) (*IntegrityReport, error) {
	total := &IntegrityReport{}
	for offset := 0; ; offset += c.batchSize {
		ids, err := c.repo.ListCustomerIDs(ctx, offset, c.batchSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			txs, err := c.repo.LoadTransactions(ctx, nil, id)
			if err != nil {
				return nil, err
			}
			r := analyzeLinks(txs)
			total.TotalTransactions += r.TotalTransactions
			total.LinkedTransactions += r.LinkedTransactions
			total.OrphanedLinks += r.OrphanedLinks
			total.MissingLinks += r.MissingLinks
		}
		if len(ids) < c.batchSize {
			break
		}
	}
	total.Recommendations = buildRecommendations(total)
	metrics.IntegrityFindings.WithLabelValues("orphaned").Add(float64(total.OrphanedLinks))
	metrics.IntegrityFindings.WithLabelValues("missing").Add(float64(total.MissingLinks))
	return total, nil
}

// analyzeLinks walks one customer's journal. Links that resolve to another
// customer's transaction count as orphaned because the journal is loaded per
// customer: a foreign id is indistinguishable from a deleted one, and both
// are wrong.
func analyzeLinks(txs []model.Transaction) *IntegrityReport {
	report := &IntegrityReport{TotalTransactions: len(txs)}

	byID := make(map[string]bool, len(txs))
	for _, t := range txs {
		byID[t.ID] = true
	}

	// Inbound links: sale ids some payment points back to.
	inbound := make(map[string]bool)
	for _, t := range txs {
		if t.LinkedTransactionID == nil {
			continue
		}
		report.LinkedTransactions++
		if !byID[*t.LinkedTransactionID] {
			report.OrphanedLinks++
			continue
		}
		inbound[*t.LinkedTransactionID] = true
	}

	// A sale with an unpaid portion, no link in either direction, while
	// unlinked debt-reducing payments arrived after it: the relation was
	// never recorded.
	var unlinkedPayments []model.Transaction
	for _, t := range txs {
		if t.Type == model.TxPayment && t.LinkedTransactionID == nil &&
			t.AppliedToDebt != nil && *t.AppliedToDebt {
			unlinkedPayments = append(unlinkedPayments, t)
		}
	}
	for _, t := range txs {
		if t.Type != model.TxSale || t.RemainingAmount == nil || *t.RemainingAmount <= 0 {
			continue
		}
		if inbound[t.ID] || t.LinkedTransactionID != nil {
			continue
		}
		for _, p := range unlinkedPayments {
			if !p.Date.Before(t.Date) {
				report.MissingLinks++
				break
			}
		}
	}
	return report
}

func buildRecommendations(r *IntegrityReport) []string {
	recs := make([]string, 0, 2)
	if r.OrphanedLinks > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d links point to transactions that do not exist for the customer - review imported or deleted data", r.OrphanedLinks))
	}
	if r.MissingLinks > 0 {
		recs = append(recs, fmt.Sprintf(
			"%d sales were paid down without a recorded link - consider backfilling linked_transaction_id", r.MissingLinks))
	}
	return recs
}
