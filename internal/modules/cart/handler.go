package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/pharma-gateway/internal/modules/catalog"
)

// Handler exposes cart HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Post("/", h.newSession)
		r.Get("/{session}", h.getCart)
		r.Delete("/{session}", h.clearCart)
		r.Post("/{session}/items", h.addItem)
		r.Put("/{session}/items/{drugID}", h.setQuantity)
		r.Delete("/{session}/items/{drugID}", h.removeItem)
	})
}

func (h *Handler) newSession(w http.ResponseWriter, r *http.Request) {
	id := h.service.NewSession()
	respond(w, http.StatusCreated, (&Cart{SessionID: id}).View())
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "session"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, c.View())
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), chi.URLParam(r, "session")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DrugID   int64 `json:"drug_id"`
		Quantity int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	c, err := h.service.AddItem(r.Context(), chi.URLParam(r, "session"), req.DrugID, req.Quantity)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, c.View())
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	drugID, err := strconv.ParseInt(chi.URLParam(r, "drugID"), 10, 64)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid drug id"})
		return
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	c, err := h.service.SetQuantity(r.Context(), chi.URLParam(r, "session"), drugID, req.Quantity)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, c.View())
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	drugID, err := strconv.ParseInt(chi.URLParam(r, "drugID"), 10, 64)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid drug id"})
		return
	}
	c, err := h.service.RemoveItem(r.Context(), chi.URLParam(r, "session"), drugID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, c.View())
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidSession):
		status = http.StatusBadRequest
	case errors.Is(err, ErrItemNotFound), errors.Is(err, catalog.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		status = http.StatusConflict
	}
	respond(w, status, map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
