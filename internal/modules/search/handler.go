package search

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Handler exposes the search endpoint.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Get("/api/v1/search", h.search)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	order, err := ParseSortOrder(params.Get("sort"))
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	q := Query{Text: params.Get("q"), Sort: order}
	if q.MinPrice, err = parseBound(params.Get("min")); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid min: " + err.Error()})
		return
	}
	if q.MaxPrice, err = parseBound(params.Get("max")); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid max: " + err.Error()})
		return
	}

	results, err := h.service.Search(r.Context(), q)
	if err != nil {
		respond(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, map[string]interface{}{"query": q.Text, "count": len(results), "items": results})
}

func parseBound(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
