package models

// Settlement is one recommended transfer that moves a group towards zero balances.
// Settlements are computed from a Ledger on demand and never persisted.
type Settlement struct {
	// From is the person ID who pays (debtor).
	From string `json:"from"`

	// To is the person ID who receives (creditor).
	To string `json:"to"`

	// Amount is positive and rounded to cents.
	Amount float64 `json:"amount"`
}
