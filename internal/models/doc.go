// Package models defines the core domain models for splitsync.
//
// # Models
//
//   - Person: a participant of one group ledger
//   - Expense: one shared expense, paid by a person and split equally
//   - Ledger: the whole shared document for a group, stamped with UpdatedAt
//   - Settlement: one recommended transfer computed from a Ledger
//
// Ledgers are always read and written as whole documents. The JSON encoding of
// Ledger is the wire and storage format shared by every store backend:
//
//	{"groupName": "...", "people": [{"id", "name"}],
//	 "expenses": [{"id", "name", "amount", "paidBy", "splitAmong": [id]}],
//	 "updatedAt": 1700000000000}
//
// # Design Principles
//
// 1. **No behavior**: models only validate their own invariants; settlement math
// lives in package calculator and mutations live in package sync.
// 2. **Tolerate dangling references**: removing a person may leave expense
// references behind; readers must filter rather than fail.
// 3. **IDs, not pointers**: relationships use ID strings.
package models
