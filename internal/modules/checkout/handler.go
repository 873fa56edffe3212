package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/pharma-gateway/internal/modules/cart"
	"github.com/georgemunganga/pharma-gateway/internal/modules/wallet"
)

// Handler exposes checkout HTTP endpoints. Payments are sent from the
// gateway's wallet, so every route needs a signed-in session.
type Handler struct {
	service        Service
	requireSession func(http.Handler) http.Handler
}

func NewHandler(service Service, requireSession func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, requireSession: requireSession}
}

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Use(h.requireSession)
		r.Post("/", h.checkout)
		r.Post("/quote", h.quote)
		r.Get("/{id}", h.getByID)
	})
}

type checkoutRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	q, err := h.service.Quote(r.Context(), req.SessionID)
	if err != nil {
		respondError(w, nil, err)
		return
	}
	respond(w, http.StatusOK, q)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	rec, err := h.service.Checkout(r.Context(), req.SessionID)
	if errors.Is(err, ErrPending) {
		respond(w, http.StatusAccepted, rec)
		return
	}
	if err != nil {
		respondError(w, rec, err)
		return
	}
	respond(w, http.StatusCreated, rec)
}

func (h *Handler) getByID(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, nil, err)
		return
	}
	respond(w, http.StatusOK, rec)
}

func respondError(w http.ResponseWriter, rec *Record, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrInvalidSession), errors.Is(err, cart.ErrEmptyCart):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, wallet.ErrNotConnected), errors.Is(err, ErrInProgress):
		status = http.StatusConflict
	case errors.Is(err, ErrTransaction):
		status = http.StatusBadGateway
	}
	body := map[string]interface{}{"error": err.Error()}
	if rec != nil {
		body["checkout"] = rec
	}
	respond(w, status, body)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
