package service

import (
	"github.com/mmynk/splitsync/internal/calculator"
	"github.com/mmynk/splitsync/internal/models"
)

// LedgerServiceName is the fully-qualified name of the ledger service.
const LedgerServiceName = "splitsync.v1.LedgerService"

// Procedure paths served by the ledger service.
const (
	CreateLedgerProcedure   = "/" + LedgerServiceName + "/CreateLedger"
	GetLedgerProcedure      = "/" + LedgerServiceName + "/GetLedger"
	WriteLedgerProcedure    = "/" + LedgerServiceName + "/WriteLedger"
	WatchLedgerProcedure    = "/" + LedgerServiceName + "/WatchLedger"
	GetSettlementsProcedure = "/" + LedgerServiceName + "/GetSettlements"
)

type CreateLedgerRequest struct {
	// Ledger is the initial document. Nil creates an empty ledger.
	Ledger *models.Ledger `json:"ledger,omitempty"`
}

type CreateLedgerResponse struct {
	GroupID string `json:"groupId"`
}

type GetLedgerRequest struct {
	GroupID string `json:"groupId"`
}

type GetLedgerResponse struct {
	Found  bool           `json:"found"`
	Ledger *models.Ledger `json:"ledger,omitempty"`
}

type WriteLedgerRequest struct {
	GroupID string         `json:"groupId"`
	Ledger  *models.Ledger `json:"ledger"`
}

type WriteLedgerResponse struct{}

type WatchLedgerRequest struct {
	GroupID string `json:"groupId"`
}

// WatchLedgerResponse is one snapshot of a watched group. Found is false
// when the group does not exist.
type WatchLedgerResponse struct {
	Found  bool           `json:"found"`
	Ledger *models.Ledger `json:"ledger,omitempty"`
}

type GetSettlementsRequest struct {
	GroupID string `json:"groupId"`

	// Greedy selects the largest-debtor-first variant instead of pairwise netting.
	Greedy bool `json:"greedy,omitempty"`
}

type GetSettlementsResponse struct {
	Settlements []models.Settlement        `json:"settlements"`
	Balances    []calculator.MemberBalance `json:"balances"`
	Summary     calculator.Summary         `json:"summary"`
}
