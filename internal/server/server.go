// Package server exposes the protection engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Najnomics/fheap/internal/domain"
	"github.com/Najnomics/fheap/internal/server/handler"
	"github.com/Najnomics/fheap/internal/server/middleware"
	"github.com/Najnomics/fheap/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Sources    *handler.SourceHandler
	Prices     *handler.PriceHandler
	Protection *handler.ProtectionHandler
	Views      *handler.ViewHandler
	Access     *handler.AccessHandler
	Audit      *handler.AuditHandler
}

// Server is the headless HTTP + WebSocket API for the protection engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub. limiter may be nil to disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and metrics (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Process and dashboard statistics.
	mux.HandleFunc("GET /api/{$}", handlers.Status.Root)
	mux.HandleFunc("GET /api/status", handlers.Status.Status)
	mux.HandleFunc("GET /api/statistics", handlers.Status.Statistics)
	mux.HandleFunc("GET /api/dashboard", handlers.Status.Dashboard)

	// Source registration.
	mux.HandleFunc("GET /api/sources", handlers.Sources.ListSources)
	mux.HandleFunc("POST /api/sources", handlers.Sources.RegisterSource)
	mux.HandleFunc("GET /api/sources/{id}", handlers.Sources.GetSource)
	mux.HandleFunc("DELETE /api/sources/{id}", handlers.Sources.RemoveSource)

	// Price ingestion and record metadata.
	mux.HandleFunc("GET /api/prices", handlers.Prices.ListRecords)
	mux.HandleFunc("POST /api/prices", handlers.Prices.IngestPrice)
	mux.HandleFunc("POST /api/prices/batch", handlers.Prices.BatchIngest)

	// Market lifecycle and trade screening.
	mux.HandleFunc("GET /api/markets", handlers.Protection.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Protection.InitializeMarket)
	mux.HandleFunc("GET /api/markets/{market}", handlers.Protection.GetMarket)
	mux.HandleFunc("GET /api/markets/{market}/prices", handlers.Prices.ListRecords)
	mux.HandleFunc("POST /api/markets/{market}/trade-intent", handlers.Protection.TradeIntent)
	mux.HandleFunc("POST /api/markets/{market}/trade-complete", handlers.Protection.TradeComplete)
	mux.HandleFunc("PUT /api/markets/{market}/threshold", handlers.Protection.UpdateThreshold)
	mux.HandleFunc("POST /api/markets/{market}/pause", handlers.Protection.EmergencyPause)
	mux.HandleFunc("POST /api/markets/{market}/resume", handlers.Protection.Resume)

	// Protection events, with the route aliases the frontend expects.
	mux.HandleFunc("GET /api/protection/events", handlers.Protection.ListEvents)
	mux.HandleFunc("GET /api/protection-events", handlers.Protection.ListEvents)
	mux.HandleFunc("GET /api/arbitrage-opportunities", handlers.Protection.ListOpportunities)

	// Sealed confidential views.
	mux.HandleFunc("GET /api/markets/{market}/sealed/{view}", handlers.Views.SealedView)
	mux.HandleFunc("GET /api/markets/{market}/lp-rewards/{participant}", handlers.Views.ParticipantReward)
	mux.HandleFunc("GET /api/lp-rewards/{participant}", handlers.Views.ParticipantReward)

	// Access grants.
	mux.HandleFunc("GET /api/access/grants", handlers.Access.ListGrants)
	mux.HandleFunc("POST /api/access/grants", handlers.Access.CreateGrant)
	mux.HandleFunc("DELETE /api/access/grants/{subject}/{capability}", handlers.Access.RevokeGrant)

	// Reveal audit trail.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil {
		h = middleware.RateLimit(limiter)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, it defaults to allowing all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
