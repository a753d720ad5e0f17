package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zooml/survmarket/internal/service"
	"github.com/zooml/survmarket/internal/wallet"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware. adminToken guards the admin routes
// and marks elevated sell and purchase requests; empty disables them. bank may
// be nil when the host environment provides its own currency service, in
// which case the wallet routes are not registered.
func NewRouter(
	marketSvc *service.MarketService,
	bank *wallet.Bank,
	logger *slog.Logger,
	adminToken string,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	marketH := NewMarketHandler(marketSvc, adminToken)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Listing and slot routes.
	r.Post("/listings", marketH.Sell)
	r.Get("/slots", marketH.Board)
	r.Post("/slots/{index}/purchase", marketH.Buy)
	r.Get("/sellers/{seller_id}/listings", marketH.SellerListings)

	// Escrow routes.
	r.Get("/escrow/{seller_id}", marketH.Balance)
	r.Post("/escrow/{seller_id}/withdraw", marketH.Withdraw)

	// Admin routes.
	r.Group(func(r chi.Router) {
		r.Use(requireAdmin(adminToken))
		r.Delete("/slots/{index}", marketH.ForceRemove)
		r.Post("/admin/wipe", marketH.Wipe)
	})

	// Wallet routes.
	if bank != nil {
		walletH := NewWalletHandler(bank)
		r.Post("/wallets/{player_id}/deposit", walletH.Deposit)
		r.Get("/wallets/{player_id}", walletH.Balance)
		r.Post("/wallets/{player_id}/collect", walletH.Collect)
	}

	return r
}

// requireAdmin returns middleware that rejects requests not carrying the
// admin bearer token. An empty token disables the guarded routes entirely.
func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteError(w, http.StatusForbidden, "admin_disabled",
					"Admin operations are not enabled")
				return
			}
			if r.Header.Get("Authorization") != "Bearer "+token {
				WriteError(w, http.StatusUnauthorized, "unauthorized",
					"A valid admin token is required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
