package calculator

import (
	"math"
	"testing"

	"github.com/mmynk/splitsync/internal/models"
)

func TestSummarize(t *testing.T) {
	l := &models.Ledger{
		People:   people("A", "B", "C"),
		Expenses: []models.Expense{expense("e1", 100, "A", "A"), expense("e2", 0.1, "B", "B")},
	}
	s := Summarize(l)
	if math.Abs(s.TotalExpense-100.1) > 0.001 {
		t.Errorf("TotalExpense = %v, want 100.1", s.TotalExpense)
	}
	if math.Abs(s.AveragePerPerson-33.37) > 0.001 {
		t.Errorf("AveragePerPerson = %v, want 33.37", s.AveragePerPerson)
	}

	if empty := Summarize(&models.Ledger{}); empty.AveragePerPerson != 0 {
		t.Errorf("AveragePerPerson without people = %v, want 0", empty.AveragePerPerson)
	}
}

func TestFilter(t *testing.T) {
	all := []models.Settlement{
		{From: "B", To: "A", Amount: 1},
		{From: "C", To: "B", Amount: 2},
		{From: "C", To: "A", Amount: 3},
	}

	tests := []struct {
		name   string
		person string
		dir    Direction
		want   int
	}{
		{"no person keeps all", "", DirectionFrom, 3},
		{"either side", "B", DirectionAll, 2},
		{"paying only", "C", DirectionFrom, 2},
		{"receiving only", "A", DirectionTo, 2},
		{"receiving none", "C", DirectionTo, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filter(all, tt.person, tt.dir); len(got) != tt.want {
				t.Errorf("Filter() = %+v, want %d entries", got, tt.want)
			}
		})
	}

	if ParseDirection("sideways") != DirectionAll {
		t.Error("unknown direction should mean all")
	}
}
