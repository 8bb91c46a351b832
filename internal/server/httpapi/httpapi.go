// Package httpapi serves the read-only HTTP surface: probes, the catalog and player read models.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/avamon/internal/convert"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/service"
)

// ReadyFunc reports whether backing storage is reachable.
type ReadyFunc func(ctx context.Context) error

// Handler holds the HTTP dependencies.
type Handler struct {
	game  service.GameService
	ready ReadyFunc
	log   *zap.Logger
}

// NewRouter builds the chi router. ready may be nil.
func NewRouter(game service.GameService, ready ReadyFunc, log *zap.Logger) http.Handler {
	h := &Handler{game: game, ready: ready, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", h.catalog)
		r.Get("/catalog/{kind}", h.catalogKind)
		r.Get("/players/{address}", h.player)
		r.Get("/players/{address}/events", h.events)
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.log.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "storage unavailable"})
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready"))
}

func (h *Handler) catalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, convert.ToAPICatalog(h.game.Catalog()))
}

func (h *Handler) catalogKind(w http.ResponseWriter, r *http.Request) {
	c := convert.ToAPICatalog(h.game.Catalog())
	switch chi.URLParam(r, "kind") {
	case "templates":
		writeJSON(w, http.StatusOK, c.Templates)
	case "packs":
		writeJSON(w, http.StatusOK, c.PackTypes)
	case "adventures":
		writeJSON(w, http.StatusOK, c.Adventures)
	case "quests":
		writeJSON(w, http.StatusOK, c.Quests)
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown catalog kind"})
	}
}

func (h *Handler) player(w http.ResponseWriter, r *http.Request) {
	addr, err := service.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.fail(w, err)
		return
	}
	st, err := h.game.Stats(r.Context(), addr)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIStats(st, h.game.Catalog().Adventures))
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	addr, err := service.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.fail(w, err)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad limit"})
			return
		}
	}
	evs, err := h.game.Events(r.Context(), addr, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAPIEvents(evs))
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, errs.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		h.log.Error("http handler", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

