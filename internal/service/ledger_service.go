package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/splitsync/internal/calculator"
	"github.com/mmynk/splitsync/internal/metrics"
	"github.com/mmynk/splitsync/internal/models"
	"github.com/mmynk/splitsync/internal/storage"
)

// LedgerService exposes a storage.Store over Connect so that sessions in
// other processes can share it.
type LedgerService struct {
	store   storage.Store
	metrics *metrics.Metrics
}

// NewLedgerService creates a LedgerService backed by store. m may be nil.
func NewLedgerService(store storage.Store, m *metrics.Metrics) *LedgerService {
	return &LedgerService{store: store, metrics: m}
}

// NewLedgerServiceHandler builds an HTTP handler serving every procedure of
// svc. It returns the path prefix to mount the handler on.
func NewLedgerServiceHandler(svc *LedgerService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateLedgerProcedure, connect.NewUnaryHandler(CreateLedgerProcedure, svc.CreateLedger, opts...))
	mux.Handle(GetLedgerProcedure, connect.NewUnaryHandler(GetLedgerProcedure, svc.GetLedger, opts...))
	mux.Handle(WriteLedgerProcedure, connect.NewUnaryHandler(WriteLedgerProcedure, svc.WriteLedger, opts...))
	mux.Handle(WatchLedgerProcedure, connect.NewServerStreamHandler(WatchLedgerProcedure, svc.WatchLedger, opts...))
	mux.Handle(GetSettlementsProcedure, connect.NewUnaryHandler(GetSettlementsProcedure, svc.GetSettlements, opts...))
	return "/" + LedgerServiceName + "/", mux
}

// CreateLedger stores a new ledger under a generated group ID.
func (s *LedgerService) CreateLedger(ctx context.Context, req *connect.Request[CreateLedgerRequest]) (*connect.Response[CreateLedgerResponse], error) {
	ledger := req.Msg.Ledger
	if ledger == nil {
		ledger = models.NewLedger("", time.Now().UnixMilli())
	}
	slog.Info("CreateLedger request received",
		"name", ledger.GroupName,
		"people_count", len(ledger.People),
	)

	if err := ledger.Validate(); err != nil {
		return nil, connectError(err)
	}

	groupID, err := s.store.Create(ctx, ledger)
	if err != nil {
		slog.Error("CreateLedger failed", "error", err)
		return nil, connectError(err)
	}

	slog.Info("Ledger created", "group_id", groupID)
	return connect.NewResponse(&CreateLedgerResponse{GroupID: groupID}), nil
}

// GetLedger returns the current document. An unknown group is not an error;
// the response reports Found=false.
func (s *LedgerService) GetLedger(ctx context.Context, req *connect.Request[GetLedgerRequest]) (*connect.Response[GetLedgerResponse], error) {
	groupID := req.Msg.GroupID
	if err := checkGroupID(groupID); err != nil {
		return nil, err
	}

	ledger, err := s.store.Read(ctx, groupID)
	if err != nil {
		slog.Error("GetLedger failed", "group_id", groupID, "error", err)
		return nil, connectError(err)
	}
	return connect.NewResponse(&GetLedgerResponse{Found: ledger != nil, Ledger: ledger}), nil
}

// WriteLedger replaces the whole document of a group.
func (s *LedgerService) WriteLedger(ctx context.Context, req *connect.Request[WriteLedgerRequest]) (*connect.Response[WriteLedgerResponse], error) {
	groupID := req.Msg.GroupID
	if err := checkGroupID(groupID); err != nil {
		return nil, err
	}
	ledger := req.Msg.Ledger
	if ledger == nil {
		return nil, connectError(models.NewValidationError("ledger", "is required"))
	}
	if err := ledger.Validate(); err != nil {
		return nil, connectError(err)
	}

	if err := s.store.Write(ctx, groupID, ledger); err != nil {
		slog.Error("WriteLedger failed", "group_id", groupID, "error", err)
		return nil, connectError(err)
	}

	slog.Debug("Ledger written", "group_id", groupID, "updated_at", ledger.UpdatedAt)
	return connect.NewResponse(&WriteLedgerResponse{}), nil
}

// WatchLedger streams the current document followed by every change until
// the client goes away.
func (s *LedgerService) WatchLedger(ctx context.Context, req *connect.Request[WatchLedgerRequest], stream *connect.ServerStream[WatchLedgerResponse]) error {
	groupID := req.Msg.GroupID
	if err := checkGroupID(groupID); err != nil {
		return err
	}

	updates := make(chan *models.Ledger, 1)
	sub, err := s.store.Subscribe(ctx, groupID, func(l *models.Ledger) {
		select {
		case updates <- l:
		case <-ctx.Done():
		}
	})
	if err != nil {
		slog.Error("WatchLedger failed", "group_id", groupID, "error", err)
		return connectError(err)
	}
	defer sub.Unsubscribe()

	s.metrics.WatchStarted()
	defer s.metrics.WatchEnded()
	slog.Info("Watch started", "group_id", groupID)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Watch ended", "group_id", groupID)
			return nil
		case l := <-updates:
			if err := stream.Send(&WatchLedgerResponse{Found: l != nil, Ledger: l}); err != nil {
				slog.Warn("Watch send failed", "group_id", groupID, "error", err)
				return err
			}
		}
	}
}

// GetSettlements computes who pays whom for a group.
func (s *LedgerService) GetSettlements(ctx context.Context, req *connect.Request[GetSettlementsRequest]) (*connect.Response[GetSettlementsResponse], error) {
	groupID := req.Msg.GroupID
	slog.Info("GetSettlements request received", "group_id", groupID, "greedy", req.Msg.Greedy)
	if err := checkGroupID(groupID); err != nil {
		return nil, err
	}

	ledger, err := s.store.Read(ctx, groupID)
	if err != nil {
		slog.Error("GetSettlements failed", "group_id", groupID, "error", err)
		return nil, connectError(err)
	}
	if ledger == nil {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("group %s not found", groupID))
	}

	start := time.Now()
	var settlements []models.Settlement
	if req.Msg.Greedy {
		settlements = calculator.SettleGreedy(ledger)
	} else {
		settlements = calculator.Settle(ledger)
	}
	s.metrics.ObserveSettle(start)

	slog.Info("Settlements calculated", "group_id", groupID, "count", len(settlements))
	return connect.NewResponse(&GetSettlementsResponse{
		Settlements: settlements,
		Balances:    calculator.NetBalances(ledger),
		Summary:     calculator.Summarize(ledger),
	}), nil
}

func checkGroupID(groupID string) error {
	if !storage.ValidGroupID(groupID) {
		return connectError(models.NewValidationError("groupId", "%q is not a group id", groupID))
	}
	return nil
}

// connectError maps domain errors to Connect codes.
func connectError(err error) error {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, storage.ErrStoreUnavailable):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
