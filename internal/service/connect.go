package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// jsonCodec marshals plain Go structs. It replaces Connect's built-in "json"
// codec, which only accepts protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

const (
	GroupServiceName      = "settlewise.v1.GroupService"
	ExpenseServiceName    = "settlewise.v1.ExpenseService"
	SettlementServiceName = "settlewise.v1.SettlementService"
)

// Fully-qualified procedure names.
const (
	GroupServiceCreateGroupProcedure = "/" + GroupServiceName + "/CreateGroup"
	GroupServiceGetGroupProcedure    = "/" + GroupServiceName + "/GetGroup"
	GroupServiceListGroupsProcedure  = "/" + GroupServiceName + "/ListGroups"
	GroupServiceAddMembersProcedure  = "/" + GroupServiceName + "/AddMembers"

	ExpenseServiceCreateExpenseProcedure = "/" + ExpenseServiceName + "/CreateExpense"
	ExpenseServiceListExpensesProcedure  = "/" + ExpenseServiceName + "/ListExpenses"
	ExpenseServiceDeleteExpenseProcedure = "/" + ExpenseServiceName + "/DeleteExpense"

	SettlementServiceGetBalancesProcedure    = "/" + SettlementServiceName + "/GetBalances"
	SettlementServiceGetSettlementsProcedure = "/" + SettlementServiceName + "/GetSettlements"
	SettlementServiceMarkSettledProcedure    = "/" + SettlementServiceName + "/MarkSettled"
	SettlementServiceRequestPaymentProcedure = "/" + SettlementServiceName + "/RequestPayment"
)

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
}

// route serves each procedure with its handler and 404s anything else.
func route(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// NewGroupServiceHandler builds an HTTP handler for GroupService. It returns
// the path to mount it on.
func NewGroupServiceHandler(svc *GroupService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + GroupServiceName + "/", route(map[string]http.Handler{
		GroupServiceCreateGroupProcedure: connect.NewUnaryHandler(GroupServiceCreateGroupProcedure, svc.CreateGroup, opts...),
		GroupServiceGetGroupProcedure:    connect.NewUnaryHandler(GroupServiceGetGroupProcedure, svc.GetGroup, opts...),
		GroupServiceListGroupsProcedure:  connect.NewUnaryHandler(GroupServiceListGroupsProcedure, svc.ListGroups, opts...),
		GroupServiceAddMembersProcedure:  connect.NewUnaryHandler(GroupServiceAddMembersProcedure, svc.AddMembers, opts...),
	})
}

// NewExpenseServiceHandler builds an HTTP handler for ExpenseService.
func NewExpenseServiceHandler(svc *ExpenseService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + ExpenseServiceName + "/", route(map[string]http.Handler{
		ExpenseServiceCreateExpenseProcedure: connect.NewUnaryHandler(ExpenseServiceCreateExpenseProcedure, svc.CreateExpense, opts...),
		ExpenseServiceListExpensesProcedure:  connect.NewUnaryHandler(ExpenseServiceListExpensesProcedure, svc.ListExpenses, opts...),
		ExpenseServiceDeleteExpenseProcedure: connect.NewUnaryHandler(ExpenseServiceDeleteExpenseProcedure, svc.DeleteExpense, opts...),
	})
}

// NewSettlementServiceHandler builds an HTTP handler for SettlementService.
func NewSettlementServiceHandler(svc *SettlementService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	return "/" + SettlementServiceName + "/", route(map[string]http.Handler{
		SettlementServiceGetBalancesProcedure:    connect.NewUnaryHandler(SettlementServiceGetBalancesProcedure, svc.GetBalances, opts...),
		SettlementServiceGetSettlementsProcedure: connect.NewUnaryHandler(SettlementServiceGetSettlementsProcedure, svc.GetSettlements, opts...),
		SettlementServiceMarkSettledProcedure:    connect.NewUnaryHandler(SettlementServiceMarkSettledProcedure, svc.MarkSettled, opts...),
		SettlementServiceRequestPaymentProcedure: connect.NewUnaryHandler(SettlementServiceRequestPaymentProcedure, svc.RequestPayment, opts...),
	})
}

// GroupServiceClient calls GroupService.
type GroupServiceClient struct {
	createGroup *connect.Client[CreateGroupRequest, CreateGroupResponse]
	getGroup    *connect.Client[GetGroupRequest, GetGroupResponse]
	listGroups  *connect.Client[ListGroupsRequest, ListGroupsResponse]
	addMembers  *connect.Client[AddMembersRequest, AddMembersResponse]
}

// NewGroupServiceClient creates a client for the server at baseURL
// (e.g. http://localhost:8080).
func NewGroupServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *GroupServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &GroupServiceClient{
		createGroup: connect.NewClient[CreateGroupRequest, CreateGroupResponse](httpClient, baseURL+GroupServiceCreateGroupProcedure, opts...),
		getGroup:    connect.NewClient[GetGroupRequest, GetGroupResponse](httpClient, baseURL+GroupServiceGetGroupProcedure, opts...),
		listGroups:  connect.NewClient[ListGroupsRequest, ListGroupsResponse](httpClient, baseURL+GroupServiceListGroupsProcedure, opts...),
		addMembers:  connect.NewClient[AddMembersRequest, AddMembersResponse](httpClient, baseURL+GroupServiceAddMembersProcedure, opts...),
	}
}

func (c *GroupServiceClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	return c.listGroups.CallUnary(ctx, req)
}

func (c *GroupServiceClient) AddMembers(ctx context.Context, req *connect.Request[AddMembersRequest]) (*connect.Response[AddMembersResponse], error) {
	return c.addMembers.CallUnary(ctx, req)
}

// ExpenseServiceClient calls ExpenseService.
type ExpenseServiceClient struct {
	createExpense *connect.Client[CreateExpenseRequest, CreateExpenseResponse]
	listExpenses  *connect.Client[ListExpensesRequest, ListExpensesResponse]
	deleteExpense *connect.Client[DeleteExpenseRequest, DeleteExpenseResponse]
}

// NewExpenseServiceClient creates a client for the server at baseURL.
func NewExpenseServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ExpenseServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &ExpenseServiceClient{
		createExpense: connect.NewClient[CreateExpenseRequest, CreateExpenseResponse](httpClient, baseURL+ExpenseServiceCreateExpenseProcedure, opts...),
		listExpenses:  connect.NewClient[ListExpensesRequest, ListExpensesResponse](httpClient, baseURL+ExpenseServiceListExpensesProcedure, opts...),
		deleteExpense: connect.NewClient[DeleteExpenseRequest, DeleteExpenseResponse](httpClient, baseURL+ExpenseServiceDeleteExpenseProcedure, opts...),
	}
}

func (c *ExpenseServiceClient) CreateExpense(ctx context.Context, req *connect.Request[CreateExpenseRequest]) (*connect.Response[CreateExpenseResponse], error) {
	return c.createExpense.CallUnary(ctx, req)
}

func (c *ExpenseServiceClient) ListExpenses(ctx context.Context, req *connect.Request[ListExpensesRequest]) (*connect.Response[ListExpensesResponse], error) {
	return c.listExpenses.CallUnary(ctx, req)
}

func (c *ExpenseServiceClient) DeleteExpense(ctx context.Context, req *connect.Request[DeleteExpenseRequest]) (*connect.Response[DeleteExpenseResponse], error) {
	return c.deleteExpense.CallUnary(ctx, req)
}

// SettlementServiceClient calls SettlementService.
type SettlementServiceClient struct {
	getBalances    *connect.Client[GetBalancesRequest, GetBalancesResponse]
	getSettlements *connect.Client[GetSettlementsRequest, GetSettlementsResponse]
	markSettled    *connect.Client[MarkSettledRequest, MarkSettledResponse]
	requestPayment *connect.Client[RequestPaymentRequest, RequestPaymentResponse]
}

// NewSettlementServiceClient creates a client for the server at baseURL.
func NewSettlementServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *SettlementServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &SettlementServiceClient{
		getBalances:    connect.NewClient[GetBalancesRequest, GetBalancesResponse](httpClient, baseURL+SettlementServiceGetBalancesProcedure, opts...),
		getSettlements: connect.NewClient[GetSettlementsRequest, GetSettlementsResponse](httpClient, baseURL+SettlementServiceGetSettlementsProcedure, opts...),
		markSettled:    connect.NewClient[MarkSettledRequest, MarkSettledResponse](httpClient, baseURL+SettlementServiceMarkSettledProcedure, opts...),
		requestPayment: connect.NewClient[RequestPaymentRequest, RequestPaymentResponse](httpClient, baseURL+SettlementServiceRequestPaymentProcedure, opts...),
	}
}

func (c *SettlementServiceClient) GetBalances(ctx context.Context, req *connect.Request[GetBalancesRequest]) (*connect.Response[GetBalancesResponse], error) {
	return c.getBalances.CallUnary(ctx, req)
}

func (c *SettlementServiceClient) GetSettlements(ctx context.Context, req *connect.Request[GetSettlementsRequest]) (*connect.Response[GetSettlementsResponse], error) {
	return c.getSettlements.CallUnary(ctx, req)
}

func (c *SettlementServiceClient) MarkSettled(ctx context.Context, req *connect.Request[MarkSettledRequest]) (*connect.Response[MarkSettledResponse], error) {
	return c.markSettled.CallUnary(ctx, req)
}

func (c *SettlementServiceClient) RequestPayment(ctx context.Context, req *connect.Request[RequestPaymentRequest]) (*connect.Response[RequestPaymentResponse], error) {
	return c.requestPayment.CallUnary(ctx, req)
}
