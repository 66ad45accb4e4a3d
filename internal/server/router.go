// Package server assembles the HTTP surface: Connect services, health and
// metrics endpoints, and the shared middleware.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/settlewise/internal/auth"
	"github.com/mmynk/settlewise/internal/engine"
	"github.com/mmynk/settlewise/internal/middleware"
	"github.com/mmynk/settlewise/internal/service"
	"github.com/mmynk/settlewise/internal/storage"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Options configures NewRouter.
type Options struct {
	Store  storage.Store
	Engine *engine.Engine
	// Views serves settlement reads from watched groups. Optional.
	Views *engine.Registry
	// JWT enables authentication on every RPC when set.
	JWT *auth.JWTManager
	// AuthOptional lets requests without a valid token through
	// unauthenticated instead of rejecting them.
	AuthOptional bool
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	Locale   string
	// Checks run on /healthz, keyed by dependency name.
	Checks map[string]HealthCheck
}

// NewRouter creates the chi router with all services mounted.
func NewRouter(opts Options) http.Handler {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	interceptors := []connect.Interceptor{}
	switch {
	case opts.JWT != nil && opts.AuthOptional:
		interceptors = append(interceptors, middleware.OptionalAuth(opts.JWT))
	case opts.JWT != nil:
		interceptors = append(interceptors, middleware.RequireAuth(opts.JWT))
	}
	// Logging runs inside auth so it sees the member.
	interceptors = append(interceptors, middleware.LoggingInterceptor())
	handlerOpts := connect.WithInterceptors(interceptors...)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors)

	r.Get("/healthz", healthHandler(opts.Checks))
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	mount := func(path string, h http.Handler) {
		r.Handle(path+"*", h)
	}
	mount(service.NewGroupServiceHandler(service.NewGroupService(opts.Store), handlerOpts))
	mount(service.NewExpenseServiceHandler(service.NewExpenseService(opts.Store), handlerOpts))
	mount(service.NewSettlementServiceHandler(
		service.NewSettlementService(opts.Engine, opts.Views, opts.Locale),
		handlerOpts,
	))

	return r
}

// requestLogger logs all incoming requests.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", chimw.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// cors adds CORS headers for browser access.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		code := http.StatusOK
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				slog.Warn("Health check failed", "check", name, "error", err)
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("Failed to write health response", "error", err)
		}
	}
}
