package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitsync/internal/calculator"
	"github.com/mmynk/splitsync/internal/models"
)

// formatAmount renders amount in the given currency, e.g. ₩15,000 or $12.50.
// Unknown currency codes fall back to two decimals and the code.
func formatAmount(amount float64, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return decimal.NewFromFloat(amount).StringFixed(2) + " " + currency
	}
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// resolvePerson finds a person by id or, failing that, by unique name.
func resolvePerson(l *models.Ledger, ref string) (string, error) {
	if l.HasPerson(ref) {
		return ref, nil
	}
	var matches []string
	for _, p := range l.People {
		if strings.EqualFold(p.Name, ref) {
			matches = append(matches, p.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", models.NewValidationError("person", "no person %q", ref)
	case 1:
		return matches[0], nil
	default:
		return "", models.NewValidationError("person", "%q is ambiguous, use the person id", ref)
	}
}

func resolvePeople(l *models.Ledger, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, err := resolvePerson(l, strings.TrimSpace(ref))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func displayName(l *models.Ledger, id string) string {
	if name := l.PersonName(id); name != "" {
		return name
	}
	if id == "" {
		return "(nobody)"
	}
	return "(removed)"
}

func printLedger(w io.Writer, groupID string, l *models.Ledger, currency string) {
	fmt.Fprintf(w, "%s [%s]\n", l.GroupName, groupID)

	fmt.Fprintf(w, "\nPeople (%d)\n", len(l.People))
	for _, p := range l.People {
		fmt.Fprintf(w, "  %-20s %s\n", p.Name, p.ID)
	}

	fmt.Fprintf(w, "\nExpenses (%d)\n", len(l.Expenses))
	for _, e := range l.Expenses {
		names := make([]string, 0, len(e.SplitAmong))
		for _, id := range e.SplitAmong {
			names = append(names, displayName(l, id))
		}
		fmt.Fprintf(w, "  %-20s %12s  paid by %s, split among %s  [%s]\n",
			e.Name, formatAmount(e.Amount, currency), displayName(l, e.PaidBy), strings.Join(names, ", "), e.ID)
	}

	s := calculator.Summarize(l)
	fmt.Fprintf(w, "\nTotal %s, %s per person\n",
		formatAmount(s.TotalExpense, currency), formatAmount(s.AveragePerPerson, currency))
}

func printSettlements(w io.Writer, l *models.Ledger, settlements []models.Settlement, currency string) {
	if len(settlements) == 0 {
		fmt.Fprintln(w, "Everyone is settled up.")
		return
	}
	for _, s := range settlements {
		fmt.Fprintf(w, "%s pays %s %s\n", displayName(l, s.From), displayName(l, s.To), formatAmount(s.Amount, currency))
	}
}
