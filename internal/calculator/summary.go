package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitsync/internal/models"
)

// Summary holds the headline figures of a ledger.
type Summary struct {
	TotalExpense     float64 `json:"totalExpense"`
	AveragePerPerson float64 `json:"averagePerPerson"`
	People           int     `json:"people"`
	Expenses         int     `json:"expenses"`
}

// Summarize totals every expense and divides by the number of people.
// The average is zero for a ledger without people.
func Summarize(l *models.Ledger) Summary {
	total := decimal.Zero
	for _, e := range l.Expenses {
		total = total.Add(decimal.NewFromFloat(e.Amount))
	}

	s := Summary{
		TotalExpense: total.InexactFloat64(),
		People:       len(l.People),
		Expenses:     len(l.Expenses),
	}
	if len(l.People) > 0 {
		s.AveragePerPerson = total.Div(decimal.NewFromInt(int64(len(l.People)))).Round(2).InexactFloat64()
	}
	return s
}

// Direction selects which side of a settlement a filter matches.
type Direction string

const (
	DirectionAll  Direction = "all"
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
)

// ParseDirection maps a user-supplied direction; anything unknown means all.
func ParseDirection(s string) Direction {
	switch Direction(s) {
	case DirectionFrom, DirectionTo:
		return Direction(s)
	default:
		return DirectionAll
	}
}

// Filter keeps the settlements involving personID. An empty personID keeps
// everything.
func Filter(settlements []models.Settlement, personID string, dir Direction) []models.Settlement {
	if personID == "" {
		return settlements
	}
	out := []models.Settlement{}
	for _, s := range settlements {
		var match bool
		switch dir {
		case DirectionFrom:
			match = s.From == personID
		case DirectionTo:
			match = s.To == personID
		default:
			match = s.From == personID || s.To == personID
		}
		if match {
			out = append(out, s)
		}
	}
	return out
}
