package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/investledger/internal/domain"
	"github.com/punchamoorthee/investledger/internal/identity"
	"github.com/punchamoorthee/investledger/internal/service"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	svc    *service.LedgerService
	auth   identity.Authenticator
	logger *slog.Logger
}

func NewHandler(svc *service.LedgerService, auth identity.Authenticator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, auth: auth, logger: logger}
}

// Router builds the full HTTP surface.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.observe)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(h.authenticate)

	v1.HandleFunc("/investment-accounts", h.ListAccounts).Methods(http.MethodGet)
	v1.HandleFunc("/investment-accounts", h.CreateAccount).Methods(http.MethodPost)
	v1.HandleFunc("/investment-accounts/{id:[0-9]+}", h.GetAccount).Methods(http.MethodGet)
	v1.HandleFunc("/investment-accounts/{id:[0-9]+}", h.UpdateAccount).Methods(http.MethodPut, http.MethodPatch)
	v1.HandleFunc("/investment-accounts/{id:[0-9]+}", h.DeleteAccount).Methods(http.MethodDelete)
	v1.HandleFunc("/investment-accounts/{id:[0-9]+}/details", h.AccountDetails).Methods(http.MethodGet)

	v1.HandleFunc("/investment-accounts/{id:[0-9]+}/memberships", h.ListMemberships).Methods(http.MethodGet)
	v1.HandleFunc("/investment-accounts/{id:[0-9]+}/memberships", h.AddMemberships).Methods(http.MethodPost)
	v1.HandleFunc("/investment-accounts/{id:[0-9]+}/memberships/{mid:[0-9]+}", h.UpdateMembership).Methods(http.MethodPut, http.MethodPatch)
	v1.HandleFunc("/investment-accounts/{id:[0-9]+}/memberships/{mid:[0-9]+}", h.RemoveMembership).Methods(http.MethodDelete)

	v1.HandleFunc("/transactions", h.ListTransactions).Methods(http.MethodGet)
	v1.HandleFunc("/transactions", h.CreateTransaction).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{id:[0-9]+}", h.GetTransaction).Methods(http.MethodGet)

	v1.HandleFunc("/admin-transactions/{user_id:[0-9]+}", h.UserTransactions).Methods(http.MethodGet)
	return r
}

func pathID(r *http.Request, name string) int64 {
	// Routes constrain ids to digits; overflow parses to 0 and misses.
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Validationf("Malformed JSON body: %v", err)
	}
	return nil
}

func endpoint(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	httpReqTotal.WithLabelValues(r.Method, endpoint(r), strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := http.StatusInternalServerError, "Internal Server Error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthenticated):
		code, msg = http.StatusUnauthorized, "Authentication credentials were not provided or are invalid."
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	case errors.Is(err, domain.ErrPermissionDenied):
		code, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		code, msg = http.StatusNotFound, "Not found."
	default:
		h.logger.Error("request failed",
			"request_id", w.Header().Get(requestIDHeader), "method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.respondJSON(w, r, code, map[string]string{"error": msg})
}
