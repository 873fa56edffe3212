package wallet

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	adapter        *Adapter
	requireSession func(http.Handler) http.Handler
}

func NewHandler(adapter *Adapter, requireSession func(http.Handler) http.Handler) *Handler {
	return &Handler{adapter: adapter, requireSession: requireSession}
}

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/wallet", func(r chi.Router) {
		r.Get("/", h.state)
		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)
			r.Post("/connect", h.connect)
			r.Post("/disconnect", h.disconnect)
			r.Post("/switch-chain", h.switchChain)
		})
	})
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.adapter.State())
}

func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	state, err := h.adapter.Connect(r.Context())
	if err != nil {
		respond(w, statusFor(err), map[string]interface{}{"error": err.Error(), "state": state})
		return
	}
	respond(w, http.StatusOK, state)
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	h.adapter.Disconnect()
	respond(w, http.StatusOK, h.adapter.State())
}

func (h *Handler) switchChain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChainID string `json:"chain_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	chainID := SepoliaChainID
	if req.ChainID != "" {
		id, err := hexutil.DecodeBig(req.ChainID)
		if err != nil {
			respond(w, http.StatusBadRequest, map[string]string{"error": "invalid chain_id: " + err.Error()})
			return
		}
		chainID = id
	}
	if err := h.adapter.SwitchChain(r.Context(), chainID); err != nil {
		respond(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	respond(w, http.StatusOK, h.adapter.State())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrProviderNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUserRejected):
		return http.StatusForbidden
	case errors.Is(err, ErrNotConnected):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
