package monitor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// HandlerOption configures NewHandler.
type HandlerOption func(*handler)

// WithHandlerLogger sets the logger used for request failures.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *handler) { h.logger = logger }
}

// WithMetrics serves the given gatherer at GET /metrics.
func WithMetrics(g prometheus.Gatherer) HandlerOption {
	return func(h *handler) { h.gatherer = g }
}

type handler struct {
	store    Store
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// NewHandler returns an HTTP handler exposing the runs in store:
//
//	GET /healthz
//	GET /runs?limit=N         runs without values, most recent first
//	GET /runs/{id}            one run with its values
//	GET /runs/{id}/values/{key}
//	GET /metrics              when WithMetrics is given
func NewHandler(store Store, opts ...HandlerOption) http.Handler {
	h := &handler{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.handleListRuns)
		r.Get("/{id}", h.handleGetRun)
		r.Get("/{id}/values/{key}", h.handleGetValue)
	})
	return r
}

type listRunsResponse struct {
	Runs  []*Run `json:"runs"`
	Limit int    `json:"limit"`
}

func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 && v <= maxListLimit {
			limit = v
		}
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*Run{}
	}
	h.writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs, Limit: limit})
}

func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.getRun(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *handler) handleGetValue(w http.ResponseWriter, r *http.Request) {
	run, ok := h.getRun(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	v, ok := run.Values[key]
	if !ok {
		h.writeError(w, http.StatusNotFound, "value not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": v})
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) (*Run, bool) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrRunNotFound) {
		h.writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get run", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run")
		return nil, false
	}
	return run, true
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
