package models

import (
	"encoding/json"
	"slices"
)

// DefaultGroupName is the name given to groups created without one.
const DefaultGroupName = "친구 여행"

// Person is a participant in a group ledger.
type Person struct {
	// ID is generated when the person is added and never changes.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`
}

// Expense is a shared cost paid by one person and split equally.
type Expense struct {
	ID string `json:"id"`

	// Name describes the expense (e.g., "Dinner", "Taxi").
	Name string `json:"name"`

	// Amount is the total paid. Never negative.
	Amount float64 `json:"amount"`

	// PaidBy is the person ID of the payer. Empty once the payer is removed.
	PaidBy string `json:"paidBy"`

	// SplitAmong is the set of person IDs sharing this expense equally.
	SplitAmong []string `json:"splitAmong"`
}

// Ledger is the authoritative record for one group.
type Ledger struct {
	GroupName string    `json:"groupName"`
	People    []Person  `json:"people"`
	Expenses  []Expense `json:"expenses"`

	// UpdatedAt is the logical write timestamp in milliseconds since epoch.
	// It strictly increases on every persisted write and is the only
	// conflict-resolution signal between writers.
	UpdatedAt int64 `json:"updatedAt"`
}

// NewLedger returns an empty ledger stamped with the given creation time.
func NewLedger(name string, createdAt int64) *Ledger {
	if name == "" {
		name = DefaultGroupName
	}
	return &Ledger{
		GroupName: name,
		People:    []Person{},
		Expenses:  []Expense{},
		UpdatedAt: createdAt,
	}
}

// UnmarshalJSON decodes a stored document. Documents written by older clients
// may omit empty arrays or the group name.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	type plain Ledger
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Ledger(p)
	if l.GroupName == "" {
		l.GroupName = DefaultGroupName
	}
	if l.People == nil {
		l.People = []Person{}
	}
	if l.Expenses == nil {
		l.Expenses = []Expense{}
	}
	for i := range l.Expenses {
		if l.Expenses[i].SplitAmong == nil {
			l.Expenses[i].SplitAmong = []string{}
		}
	}
	return nil
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	out := &Ledger{
		GroupName: l.GroupName,
		People:    slices.Clone(l.People),
		Expenses:  make([]Expense, len(l.Expenses)),
		UpdatedAt: l.UpdatedAt,
	}
	if out.People == nil {
		out.People = []Person{}
	}
	for i, e := range l.Expenses {
		e.SplitAmong = slices.Clone(e.SplitAmong)
		if e.SplitAmong == nil {
			e.SplitAmong = []string{}
		}
		out.Expenses[i] = e
	}
	return out
}

// HasPerson reports whether id refers to a person in the ledger.
func (l *Ledger) HasPerson(id string) bool {
	return l.personIndex(id) >= 0
}

// PersonName returns the display name for id, or "" when the person is unknown.
func (l *Ledger) PersonName(id string) string {
	if i := l.personIndex(id); i >= 0 {
		return l.People[i].Name
	}
	return ""
}

// ExpenseIndex returns the position of the expense with the given id, or -1.
func (l *Ledger) ExpenseIndex(id string) int {
	return slices.IndexFunc(l.Expenses, func(e Expense) bool { return e.ID == id })
}

func (l *Ledger) personIndex(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(l.People, func(p Person) bool { return p.ID == id })
}
