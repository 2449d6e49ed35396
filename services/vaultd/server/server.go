// Package server exposes the vault over an HTTP JSON API.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"intentvault/core/host"
	"intentvault/services/vaultd/archive"
	"intentvault/services/vaultd/middleware"
)

const (
	groupReads  = "reads"
	groupWrites = "writes"

	maxRequestBody = 1 << 20
)

type Config struct {
	Host          *host.Host
	Archive       *archive.Archive
	Auth          *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Logger        *slog.Logger
}

type Server struct {
	host    *host.Host
	archive *archive.Archive
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	logger  *slog.Logger
	router  chi.Router
}

func New(cfg Config) (*Server, error) {
	if cfg.Host == nil {
		return nil, errors.New("server: host required")
	}
	if cfg.Archive == nil {
		return nil, errors.New("server: archive required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		host:    cfg.Host,
		archive: cfg.Archive,
		auth:    cfg.Auth,
		limiter: cfg.RateLimiter,
		obs:     cfg.Observability,
		logger:  logger,
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "vaultd")
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.obs != nil {
		r.Use(s.obs.Middleware)
		r.Method(http.MethodGet, "/metrics", s.obs.MetricsHandler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}
		r.Group(func(r chi.Router) {
			r.Use(s.limit(groupReads))
			r.Get("/vault", s.handleVault)
			r.Get("/shares/{account}", s.handleShares)
			r.Get("/asset/{account}", s.handleAssetBalance)
			r.Get("/intents", s.handleIntents)
			r.Get("/intents/{index}", s.handleIntent)
			r.Get("/solvers/{account}/intents", s.handleSolverIntents)
			r.Get("/redemptions", s.handleRedemptions)
			r.Get("/preview/deposit", s.handlePreviewDeposit)
			r.Get("/preview/withdraw", s.handlePreviewWithdraw)
			r.Get("/admin/agents", s.handleAgents)
			r.Get("/events", s.handleEvents)
			r.Get("/events/stream", s.handleEventStream)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.limit(groupWrites))
			r.Post("/shares/transfer", s.handleShareTransfer)
			r.Post("/asset/register", s.handleAssetRegister)
			r.Post("/asset/transfer", s.handleAssetTransfer)
			r.Post("/asset/transfer_call", s.handleAssetTransferCall)
			r.Post("/intents", s.handleNewIntent)
			r.Post("/redeem", s.handleRedeem)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/redemptions/process", s.handleProcessRedemptions)
			r.Route("/admin", func(r chi.Router) {
				r.Post("/approve_codehash", s.handleApproveCodehash)
				r.Post("/register_agent", s.handleRegisterAgent)
				r.Post("/remove_agent", s.handleRemoveAgent)
				r.Post("/upgrade", s.handleUpgrade)
				r.Post("/pause", s.handlePause)
				r.Post("/owner", s.handleSetOwner)
				r.Post("/bridge/evm", s.handleBridgeEVM)
				r.Post("/bridge/solana", s.handleBridgeSolana)
			})
		})
	})
	return r
}

func (s *Server) limit(group string) func(http.Handler) http.Handler {
	if s.limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.limiter.Middleware(group)
}

func requestID(r *http.Request) string {
	return middleware.RequestIDFrom(r.Context())
}
