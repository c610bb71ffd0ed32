// Package merge joins validated commentary back onto the selection, restoring
// the original output order.
package merge

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/commentary-cli/internal/keyvault"
	"github.com/sells-group/commentary-cli/internal/model"
)

// KeyedSecurity is a selected security with the request key issued for it.
type KeyedSecurity struct {
	model.RankedSecurity
	Key keyvault.Key
}

// AssignKeys issues one vault key per selected security, preserving order.
func AssignKeys(vault *keyvault.Vault, sel model.SelectionResult) []KeyedSecurity {
	keyed := make([]KeyedSecurity, 0, len(sel.Securities))
	for _, rs := range sel.Securities {
		keyed = append(keyed, KeyedSecurity{
			RankedSecurity: rs,
			Key:            vault.Issue(sel.Portcode, rs.Security.Ticker),
		})
	}
	return keyed
}

// Rows attaches each security's commentary in selection order. A missing
// entry means the dispatcher broke its total-completion guarantee; that is a
// bug, so it surfaces as an error rather than a skipped row. The output is
// deterministic for identical inputs.
func Rows(keyed []KeyedSecurity, results map[keyvault.Key]model.Commentary) ([]model.MergedRow, error) {
	rows := make([]model.MergedRow, 0, len(keyed))
	for _, ks := range keyed {
		commentary, ok := results[ks.Key]
		if !ok {
			return nil, eris.Errorf("merge: no result for ticker %s (rank %d)", ks.Security.Ticker, ks.Rank)
		}
		rows = append(rows, model.MergedRow{
			RankedSecurity: ks.RankedSecurity,
			Commentary:     commentary,
		})
	}
	return rows, nil
}
