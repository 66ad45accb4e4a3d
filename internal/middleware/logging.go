package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// LoggingInterceptor returns a Connect interceptor that logs every RPC call.
// It logs the procedure, acting member, request ID, duration and any error
// code. Install it after the auth interceptor to see the member.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()

			resp, err := next(ctx, req)

			attrs := []any{
				"procedure", req.Spec().Procedure,
				"member_id", GetMemberID(ctx), // empty if unauthenticated
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if reqID := chimw.GetReqID(ctx); reqID != "" {
				attrs = append(attrs, "request_id", reqID)
			}

			if err == nil {
				slog.Info("RPC ok", attrs...)
				return resp, nil
			}

			var connectErr *connect.Error
			if errors.As(err, &connectErr) {
				// Client-side failures (bad input, lost races) are expected.
				attrs = append(attrs, "code", connectErr.Code(), "error", connectErr.Message())
				if connectErr.Code() == connect.CodeInternal || connectErr.Code() == connect.CodeUnknown {
					slog.Error("RPC error", attrs...)
				} else {
					slog.Warn("RPC error", attrs...)
				}
			} else {
				slog.Error("RPC error", append(attrs, "error", err)...)
			}

			return resp, err
		}
	}
}
