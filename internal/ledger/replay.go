package ledger

import (
	"sort"

	"github.com/merchantbook/ledger-service/internal/model"
)

// Replay recomputes canonical balances by running the full journal through
// the exact rules the live write path uses. The input is not assumed sorted;
// replay orders by date ascending with id as a deterministic tie-break.
//
// This is the definition of correctness for the whole ledger: stored balances
// are right if and only if they equal the replayed pair.
func Replay(txs []model.Transaction, opts Options) (Balances, []AuditDraft) {
	ordered := make([]model.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var bal Balances
	var drafts []AuditDraft
	for _, tx := range ordered {
		if Validate(tx) != nil {
			// Malformed rows cannot move balances; they are surfaced by the
			// integrity checker, not here.
			continue
		}
		var ds []AuditDraft
		bal, ds = Apply(bal, tx, opts)
		drafts = append(drafts, ds...)
	}
	return bal, drafts
}
