package calculator

import (
	"cmp"
	"slices"

	"github.com/mmynk/splitsync/internal/models"
)

// MemberBalance represents the balance information for one person.
type MemberBalance struct {
	PersonID   string  `json:"personId"`
	NetBalance float64 `json:"netBalance"` // Positive = owed money, Negative = owes money
	TotalPaid  float64 `json:"totalPaid"`  // Shares this person paid for, including their own
	TotalOwed  float64 `json:"totalOwed"`  // Shares this person consumed, including their own
}

// NetBalances computes paid, owed and net amounts for every person, in the
// order of the ledger's people. It uses the same share rules as Settle, so
// the net balance of a person equals what Settle routes to them minus what it
// routes away from them, within rounding.
func NetBalances(l *models.Ledger) []MemberBalance {
	index := make(map[string]int, len(l.People))
	balances := make([]MemberBalance, 0, len(l.People))
	for _, p := range l.People {
		if _, dup := index[p.ID]; dup {
			continue
		}
		index[p.ID] = len(balances)
		balances = append(balances, MemberBalance{PersonID: p.ID})
	}

	for _, e := range l.Expenses {
		share, members, ok := splitShare(l, e)
		if !ok {
			continue
		}
		payer := &balances[index[e.PaidBy]]
		for _, m := range members {
			payer.TotalPaid += share
			balances[index[m]].TotalOwed += share
		}
	}

	for i := range balances {
		balances[i].NetBalance = balances[i].TotalPaid - balances[i].TotalOwed
	}
	return balances
}

// SettleGreedy is an alternative to Settle that matches the largest debtor
// with the largest creditor on net balances. It usually needs fewer transfers
// than Settle but routes money between people who never shared an expense,
// so the two are not interchangeable.
func SettleGreedy(l *models.Ledger) []models.Settlement {
	type entry struct {
		id     string
		amount float64
	}

	var creditors, debtors []entry
	for _, b := range NetBalances(l) {
		if b.NetBalance > noise {
			creditors = append(creditors, entry{b.PersonID, b.NetBalance})
		} else if b.NetBalance < -noise {
			debtors = append(debtors, entry{b.PersonID, -b.NetBalance})
		}
	}

	// Largest first; stable so ties keep ledger order.
	largest := func(a, b entry) int { return cmp.Compare(b.amount, a.amount) }
	slices.SortStableFunc(creditors, largest)
	slices.SortStableFunc(debtors, largest)

	settlements := []models.Settlement{}
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor, creditor := &debtors[i], &creditors[j]

		// Amount to settle is minimum of what debtor owes and creditor is owed
		amount := min(debtor.amount, creditor.amount)
		if amount > noise {
			settlements = append(settlements, models.Settlement{
				From:   debtor.id,
				To:     creditor.id,
				Amount: roundCents(amount),
			})
		}

		debtor.amount -= amount
		creditor.amount -= amount

		// Move to next debtor/creditor if fully settled
		if debtor.amount <= noise {
			i++
		}
		if creditor.amount <= noise {
			j++
		}
	}
	return settlements
}
