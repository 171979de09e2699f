package service

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// LedgerClient calls a LedgerService over HTTP.
type LedgerClient struct {
	createLedger   *connect.Client[CreateLedgerRequest, CreateLedgerResponse]
	getLedger      *connect.Client[GetLedgerRequest, GetLedgerResponse]
	writeLedger    *connect.Client[WriteLedgerRequest, WriteLedgerResponse]
	watchLedger    *connect.Client[WatchLedgerRequest, WatchLedgerResponse]
	getSettlements *connect.Client[GetSettlementsRequest, GetSettlementsResponse]
}

// NewLedgerClient creates a client for the service at baseURL
// (e.g., http://localhost:8080).
func NewLedgerClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LedgerClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &LedgerClient{
		createLedger:   connect.NewClient[CreateLedgerRequest, CreateLedgerResponse](httpClient, baseURL+CreateLedgerProcedure, opts...),
		getLedger:      connect.NewClient[GetLedgerRequest, GetLedgerResponse](httpClient, baseURL+GetLedgerProcedure, opts...),
		writeLedger:    connect.NewClient[WriteLedgerRequest, WriteLedgerResponse](httpClient, baseURL+WriteLedgerProcedure, opts...),
		watchLedger:    connect.NewClient[WatchLedgerRequest, WatchLedgerResponse](httpClient, baseURL+WatchLedgerProcedure, opts...),
		getSettlements: connect.NewClient[GetSettlementsRequest, GetSettlementsResponse](httpClient, baseURL+GetSettlementsProcedure, opts...),
	}
}

func (c *LedgerClient) CreateLedger(ctx context.Context, req *connect.Request[CreateLedgerRequest]) (*connect.Response[CreateLedgerResponse], error) {
	return c.createLedger.CallUnary(ctx, req)
}

func (c *LedgerClient) GetLedger(ctx context.Context, req *connect.Request[GetLedgerRequest]) (*connect.Response[GetLedgerResponse], error) {
	return c.getLedger.CallUnary(ctx, req)
}

func (c *LedgerClient) WriteLedger(ctx context.Context, req *connect.Request[WriteLedgerRequest]) (*connect.Response[WriteLedgerResponse], error) {
	return c.writeLedger.CallUnary(ctx, req)
}

func (c *LedgerClient) WatchLedger(ctx context.Context, req *connect.Request[WatchLedgerRequest]) (*connect.ServerStreamForClient[WatchLedgerResponse], error) {
	return c.watchLedger.CallServerStream(ctx, req)
}

func (c *LedgerClient) GetSettlements(ctx context.Context, req *connect.Request[GetSettlementsRequest]) (*connect.Response[GetSettlementsResponse], error) {
	return c.getSettlements.CallUnary(ctx, req)
}
