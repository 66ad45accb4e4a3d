package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
	"golang.org/x/text/language"

	"github.com/mmynk/settlewise/internal/engine"
	"github.com/mmynk/settlewise/internal/middleware"
)

// SettlementService implements the Connect SettlementService
type SettlementService struct {
	engine *engine.Engine
	// views serves reads from watched groups. Nil recomputes per request.
	views  *engine.Registry
	locale language.Tag
}

// NewSettlementService creates a SettlementService. views may be nil.
// defaultLocale formats amounts when a request names no locale.
func NewSettlementService(e *engine.Engine, views *engine.Registry, defaultLocale string) *SettlementService {
	return &SettlementService{
		engine: e,
		views:  views,
		locale: parseLocale(defaultLocale, language.English),
	}
}

func parseLocale(s string, fallback language.Tag) language.Tag {
	if s == "" {
		return fallback
	}
	tag, err := language.Parse(s)
	if err != nil {
		return fallback
	}
	return tag
}

func (s *SettlementService) view(ctx context.Context, groupID string) (*engine.View, error) {
	if s.views != nil {
		return s.views.View(ctx, groupID)
	}
	return s.engine.Settlements(ctx, groupID)
}

// GetBalances returns what each member still owes each other member.
func (s *SettlementService) GetBalances(ctx context.Context, req *connect.Request[GetBalancesRequest]) (*connect.Response[GetBalancesResponse], error) {
	slog.Info("GetBalances request received", "group_id", req.Msg.GroupID)

	view, err := s.view(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("GetBalances failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	locale := parseLocale(req.Msg.Locale, s.locale)
	balances := []Balance{}
	for _, b := range view.Balances {
		if b.GrossOwed.Negligible() && !req.Msg.IncludeZero {
			continue
		}
		balances = append(balances, Balance{
			From:    view.Member(b.From),
			To:      view.Member(b.To),
			Amount:  b.GrossOwed,
			Display: b.GrossOwed.Format(locale),
		})
	}

	slog.Info("GetBalances successful",
		"group_id", view.GroupID,
		"count", len(balances),
		"diagnostics", len(view.Diagnostics),
	)

	return connect.NewResponse(&GetBalancesResponse{
		GroupID:     view.GroupID,
		Balances:    balances,
		TotalOwed:   view.TotalOwed,
		Diagnostics: view.Diagnostics,
	}), nil
}

// GetSettlements returns the status-tagged settlement instructions.
func (s *SettlementService) GetSettlements(ctx context.Context, req *connect.Request[GetSettlementsRequest]) (*connect.Response[GetSettlementsResponse], error) {
	slog.Info("GetSettlements request received", "group_id", req.Msg.GroupID)

	view, err := s.view(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("GetSettlements failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	locale := parseLocale(req.Msg.Locale, s.locale)
	settlements := make([]Settlement, len(view.Settlements))
	for i, in := range view.Settlements {
		settlements[i] = Settlement{
			SettlementInstruction: in,
			Display:               in.Amount.Format(locale),
		}
	}

	slog.Info("GetSettlements successful", "group_id", view.GroupID, "count", len(settlements))

	return connect.NewResponse(&GetSettlementsResponse{
		GroupID:     view.GroupID,
		Settlements: settlements,
		Diagnostics: view.Diagnostics,
	}), nil
}

// MarkSettled records that From paid To what it owes.
func (s *SettlementService) MarkSettled(ctx context.Context, req *connect.Request[MarkSettledRequest]) (*connect.Response[MarkSettledResponse], error) {
	settledBy := middleware.GetMemberID(ctx)
	if settledBy == "" {
		settledBy = req.Msg.SettledBy
	}

	slog.Info("MarkSettled request received",
		"group_id", req.Msg.GroupID,
		"from", req.Msg.From,
		"to", req.Msg.To,
		"settled_by", settledBy,
	)

	record, err := s.engine.MarkSettled(ctx, req.Msg.GroupID, req.Msg.From, req.Msg.To, settledBy)
	if err != nil {
		slog.Error("MarkSettled failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&MarkSettledResponse{Record: record}), nil
}

// RequestPayment asks From to pay To the outstanding amount.
func (s *SettlementService) RequestPayment(ctx context.Context, req *connect.Request[RequestPaymentRequest]) (*connect.Response[RequestPaymentResponse], error) {
	slog.Info("RequestPayment request received",
		"group_id", req.Msg.GroupID,
		"from", req.Msg.From,
		"to", req.Msg.To,
	)

	record, err := s.engine.RequestPayment(ctx, req.Msg.GroupID, req.Msg.From, req.Msg.To)
	if err != nil {
		slog.Error("RequestPayment failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Payment requested", "group_id", req.Msg.GroupID, "record_id", record.ID)

	return connect.NewResponse(&RequestPaymentResponse{Record: record}), nil
}
