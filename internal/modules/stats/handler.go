package stats

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/pharma-gateway/internal/modules/auth"
	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

// Handler exposes revenue and customer statistics.
type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/stats", func(r chi.Router) {
		r.Get("/revenue", h.revenue)
		r.Get("/revenue/{year}", h.yearly)
		r.Get("/users", h.users)
	})
}

// revenue defaults to the current month.
func (h *Handler) revenue(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	month, ok := intParam(w, r.URL.Query().Get("month"), int(now.Month()))
	if !ok {
		return
	}
	year, ok := intParam(w, r.URL.Query().Get("year"), now.Year())
	if !ok {
		return
	}
	rev, err := h.service.Revenue(r.Context(), month, year)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, rev)
}

func (h *Handler) yearly(w http.ResponseWriter, r *http.Request) {
	year, ok := intParam(w, chi.URLParam(r, "year"), 0)
	if !ok {
		return
	}
	out, err := h.service.YearlyRevenue(r.Context(), year)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, out)
}

func (h *Handler) users(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.UserStats(r.Context(), r.Header.Get(auth.SessionHeader), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func intParam(w http.ResponseWriter, raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid number " + strconv.Quote(raw)})
		return 0, false
	}
	return n, true
}

func respondError(w http.ResponseWriter, err error) {
	var rej *pharmaapi.RejectionError
	switch {
	case errors.Is(err, ErrInvalidPeriod):
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &rej):
		respond(w, rej.Status, map[string]string{"error": rej.Detail})
	case errors.Is(err, pharmaapi.ErrNetwork):
		respond(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		respond(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
