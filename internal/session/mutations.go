package session

import (
	"slices"
	"strings"

	"github.com/mmynk/splitsync/internal/models"
)

// ExpenseInput describes a new expense. PaidBy defaults to the first person
// and an empty SplitAmong means everyone.
type ExpenseInput struct {
	Name       string
	Amount     float64
	PaidBy     string
	SplitAmong []string
}

// ExpensePatch changes selected fields of an expense. Nil fields are left alone.
type ExpensePatch struct {
	Name       *string
	Amount     *float64
	PaidBy     *string
	SplitAmong *[]string
}

// Mutation functions validate their input before changing anything, so a
// rejected mutation leaves the ledger untouched.

func addPerson(s *SessionState, id, name string) error {
	if err := models.ValidateName("name", name); err != nil {
		return err
	}
	s.Ledger.People = append(s.Ledger.People, models.Person{ID: id, Name: strings.TrimSpace(name)})
	return nil
}

// removePerson drops the person and every reference to them: expenses they
// paid lose their payer and they leave every split.
func removePerson(s *SessionState, id string) error {
	if !s.Ledger.HasPerson(id) {
		return models.NewValidationError("person", "unknown person %q", id)
	}
	s.Ledger.People = slices.DeleteFunc(s.Ledger.People, func(p models.Person) bool { return p.ID == id })
	for i := range s.Ledger.Expenses {
		e := &s.Ledger.Expenses[i]
		if e.PaidBy == id {
			e.PaidBy = ""
		}
		e.SplitAmong = slices.DeleteFunc(e.SplitAmong, func(m string) bool { return m == id })
	}
	return nil
}

func addExpense(s *SessionState, id string, in ExpenseInput) error {
	if err := models.ValidateName("name", in.Name); err != nil {
		return err
	}
	if err := models.ValidateAmount(in.Amount); err != nil {
		return err
	}
	if len(s.Ledger.People) == 0 {
		return models.NewValidationError("people", "add a person before adding expenses")
	}

	paidBy := in.PaidBy
	if paidBy == "" {
		paidBy = s.Ledger.People[0].ID
	}
	if !s.Ledger.HasPerson(paidBy) {
		return models.NewValidationError("paidBy", "unknown person %q", paidBy)
	}

	split, err := checkSplit(s.Ledger, in.SplitAmong)
	if err != nil {
		return err
	}
	if len(split) == 0 {
		for _, p := range s.Ledger.People {
			split = append(split, p.ID)
		}
	}

	s.Ledger.Expenses = append(s.Ledger.Expenses, models.Expense{
		ID:         id,
		Name:       strings.TrimSpace(in.Name),
		Amount:     in.Amount,
		PaidBy:     paidBy,
		SplitAmong: split,
	})
	return nil
}

func updateExpense(s *SessionState, id string, p ExpensePatch) error {
	i := s.Ledger.ExpenseIndex(id)
	if i < 0 {
		return models.NewValidationError("expense", "unknown expense %q", id)
	}
	if p.Name != nil {
		if err := models.ValidateName("name", *p.Name); err != nil {
			return err
		}
	}
	if p.Amount != nil {
		if err := models.ValidateAmount(*p.Amount); err != nil {
			return err
		}
	}
	if p.PaidBy != nil && *p.PaidBy != "" && !s.Ledger.HasPerson(*p.PaidBy) {
		return models.NewValidationError("paidBy", "unknown person %q", *p.PaidBy)
	}
	var split []string
	if p.SplitAmong != nil {
		var err error
		if split, err = checkSplit(s.Ledger, *p.SplitAmong); err != nil {
			return err
		}
	}

	e := &s.Ledger.Expenses[i]
	if p.Name != nil {
		e.Name = strings.TrimSpace(*p.Name)
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.PaidBy != nil {
		e.PaidBy = *p.PaidBy
	}
	if p.SplitAmong != nil {
		e.SplitAmong = split
	}
	return nil
}

func togglePersonInExpense(s *SessionState, expenseID, personID string) error {
	i := s.Ledger.ExpenseIndex(expenseID)
	if i < 0 {
		return models.NewValidationError("expense", "unknown expense %q", expenseID)
	}
	if !s.Ledger.HasPerson(personID) {
		return models.NewValidationError("person", "unknown person %q", personID)
	}
	e := &s.Ledger.Expenses[i]
	if slices.Contains(e.SplitAmong, personID) {
		e.SplitAmong = slices.DeleteFunc(e.SplitAmong, func(m string) bool { return m == personID })
	} else {
		e.SplitAmong = append(e.SplitAmong, personID)
	}
	return nil
}

func removeExpense(s *SessionState, id string) error {
	i := s.Ledger.ExpenseIndex(id)
	if i < 0 {
		return models.NewValidationError("expense", "unknown expense %q", id)
	}
	s.Ledger.Expenses = slices.Delete(s.Ledger.Expenses, i, i+1)
	return nil
}

func renameGroup(s *SessionState, name string) error {
	if err := models.ValidateName("groupName", name); err != nil {
		return err
	}
	s.Ledger.GroupName = strings.TrimSpace(name)
	return nil
}

// checkSplit deduplicates ids and rejects unknown people.
func checkSplit(l *models.Ledger, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !l.HasPerson(id) {
			return nil, models.NewValidationError("splitAmong", "unknown person %q", id)
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}
