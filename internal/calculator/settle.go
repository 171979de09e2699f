// Package calculator derives settlements and balances from a ledger.
// Every function is pure: no I/O and no retained state.
package calculator

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitsync/internal/models"
)

// noise is the smallest amount worth settling.
const noise = 0.01

// Settle computes the settlements for a ledger using pairwise netting.
//
// Algorithm:
//   - For each expense, every split member other than the payer owes
//     amount / |splitAmong| to the payer. Shares are summed unrounded into a
//     directed debt matrix.
//   - For each unordered pair the two directions are netted into at most one
//     transfer.
//   - Transfers of 0.01 or less are dropped; the rest are rounded half-up to cents.
//
// Output follows the order of people in the ledger: pair (i, j) with i < j is
// emitted before (i, k) for j < k.
func Settle(l *models.Ledger) []models.Settlement {
	debts := debtMatrix(l)
	settlements := []models.Settlement{}

	for i, a := range l.People {
		for _, b := range l.People[i+1:] {
			if a.ID == b.ID {
				continue
			}
			net := debts[a.ID][b.ID] - debts[b.ID][a.ID]
			switch {
			case net > noise:
				settlements = append(settlements, models.Settlement{From: a.ID, To: b.ID, Amount: roundCents(net)})
			case -net > noise:
				settlements = append(settlements, models.Settlement{From: b.ID, To: a.ID, Amount: roundCents(-net)})
			}
		}
	}
	return settlements
}

// debtMatrix returns debts[debtor][creditor] summed over all expenses.
func debtMatrix(l *models.Ledger) map[string]map[string]float64 {
	debts := make(map[string]map[string]float64)
	for _, e := range l.Expenses {
		share, members, ok := splitShare(l, e)
		if !ok {
			continue
		}
		for _, m := range members {
			if m == e.PaidBy {
				continue
			}
			if debts[m] == nil {
				debts[m] = make(map[string]float64)
			}
			debts[m][e.PaidBy] += share
		}
	}
	return debts
}

// splitShare returns the per-member share of an expense and the members that
// are still people of the ledger. Expenses without a known payer or without
// anyone to split with contribute nothing.
func splitShare(l *models.Ledger, e models.Expense) (float64, []string, bool) {
	if !l.HasPerson(e.PaidBy) {
		return 0, nil, false
	}
	unique := uniqueIDs(e.SplitAmong)
	if len(unique) == 0 {
		return 0, nil, false
	}
	share := e.Amount / float64(len(unique))

	members := make([]string, 0, len(unique))
	for _, id := range unique {
		if l.HasPerson(id) {
			members = append(members, id)
		}
	}
	return share, members, true
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
