// Package api provides the HTTP server for apuctl: device info, parameter
// reads and writes, the metrics table, telemetry and saved profiles.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apuctl/apuctl/internal/app"
	"github.com/apuctl/apuctl/internal/domain"
	"github.com/apuctl/apuctl/internal/health"
	"github.com/apuctl/apuctl/internal/infra/monitor"
	"github.com/apuctl/apuctl/internal/session"
)

// Server is the apuctl HTTP API server.
type Server struct {
	sess           *session.Manager
	profiles       *app.ProfileService
	health         *health.Checker  // nil if not set
	monitor        *monitor.Poller  // nil if telemetry is disabled
	log            *slog.Logger
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(sess *session.Manager, profiles *app.ProfileService, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{sess: sess, profiles: profiles, log: log.With("component", "api")}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth sets the health checker behind /api/health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetMonitor sets the telemetry poller behind /api/telemetry.
func (s *Server) SetMonitor(p *monitor.Poller) { s.monitor = p }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/info", s.handleInfo)

		r.Get("/params", s.handleListParams)
		r.Get("/params/{name}", s.handleGetParam)
		r.Put("/params/{name}", s.handleSetParam)

		r.Post("/table/refresh", s.handleRefreshTable)
		r.Get("/table", s.handleGetTable)

		r.Get("/telemetry", s.handleTelemetry)

		r.Get("/profiles", s.handleListProfiles)
		r.Get("/profiles/{name}", s.handleGetProfile)
		r.Put("/profiles/{name}", s.handlePutProfile)
		r.Delete("/profiles/{name}", s.handleDeleteProfile)
		r.Post("/profiles/{name}/apply", s.handleApplyProfile)
		r.Get("/history", s.handleHistory)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Param string `json:"param,omitempty"`
}

// writeError writes a plain JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps err to a status and writes it with its kind.
func writeDomainError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), newErrorBody(err))
}

func newErrorBody(err error) errorBody {
	body := errorBody{Error: err.Error(), Param: domain.ParamOf(err)}
	if k, ok := domain.KindOf(err); ok {
		body.Kind = k.Kind()
	}
	return body
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProfileInvalid):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	k, ok := domain.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch k {
	case domain.ErrValueOutOfDomain, domain.ErrCapabilityMismatch:
		return http.StatusBadRequest
	case domain.ErrTableNotReady, domain.ErrSessionBusy:
		return http.StatusConflict
	case domain.ErrSessionClosed, domain.ErrAcquireFailed, domain.ErrAlreadyReleased:
		return http.StatusServiceUnavailable
	case domain.ErrCommTimeout:
		return http.StatusGatewayTimeout
	case domain.ErrFamilyUnsupported, domain.ErrOperationUnsupported,
		domain.ErrOperationRejected, domain.ErrMemoryAccess:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// jsonFloat encodes NaN and ±Inf as null. Driver getters report failure
// through such values and encoding/json rejects them.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// corsMiddleware adds CORS headers for local dashboards.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
