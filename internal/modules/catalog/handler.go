package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/pharma-gateway/internal/modules/auth"
	"github.com/georgemunganga/pharma-gateway/internal/modules/wallet"
	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

// maxImageSize bounds multipart uploads.
const maxImageSize = 10 << 20

// TokenRunner runs fn with the bearer token held for a session.
type TokenRunner interface {
	WithToken(ctx context.Context, sessionID string, fn func(token string) error) error
}

// Handler exposes catalog HTTP endpoints.
type Handler struct {
	service        Service
	tokens         TokenRunner
	requireSession func(http.Handler) http.Handler
}

// NewHandler wires the catalog routes. Writes are signed with the gateway's
// own key, so they sit behind requireSession.
func NewHandler(service Service, tokens TokenRunner, requireSession func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, tokens: tokens, requireSession: requireSession}
}

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/drugs", h.listDrugs)
		r.Get("/drugs/{id}", h.getDrug)
		r.Get("/owners/{address}/drugs", h.listByOwner)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)
			r.Post("/drugs", h.addDrug)
			r.Put("/drugs/{id}", h.updateDrug)
			r.Delete("/drugs/{id}", h.removeDrug)
			r.Post("/drugs/{id}/advance", h.advanceStage)
			r.Post("/drugs/{id}/image", h.uploadImage)
		})
	})
}

func (h *Handler) listDrugs(w http.ResponseWriter, r *http.Request) {
	var (
		drugs []Drug
		err   error
	)
	if r.URL.Query().Get("all") == "true" {
		drugs, err = h.service.ListAll(r.Context())
	} else {
		drugs, err = h.service.ListPublic(r.Context())
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, drugs)
}

func (h *Handler) getDrug(w http.ResponseWriter, r *http.Request) {
	id, ok := drugID(w, r)
	if !ok {
		return
	}
	d, err := h.service.GetDrug(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, d)
}

func (h *Handler) listByOwner(w http.ResponseWriter, r *http.Request) {
	drugs, err := h.service.ListByOwner(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, drugs)
}

func (h *Handler) addDrug(w http.ResponseWriter, r *http.Request) {
	var in DrugInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res, err := h.service.AddDrug(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, res)
}

func (h *Handler) updateDrug(w http.ResponseWriter, r *http.Request) {
	id, ok := drugID(w, r)
	if !ok {
		return
	}
	var in DrugInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	res, err := h.service.UpdateDrug(r.Context(), id, in)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}

func (h *Handler) removeDrug(w http.ResponseWriter, r *http.Request) {
	id, ok := drugID(w, r)
	if !ok {
		return
	}
	res, err := h.service.RemoveDrug(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}

func (h *Handler) advanceStage(w http.ResponseWriter, r *http.Request) {
	id, ok := drugID(w, r)
	if !ok {
		return
	}
	res, err := h.service.AdvanceStage(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := drugID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close()

	var url string
	err = h.tokens.WithToken(r.Context(), r.Header.Get(auth.SessionHeader), func(token string) error {
		var err error
		url, err = h.service.UploadImage(r.Context(), token, id, header.Filename, file)
		return err
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"image_url": url})
}

func drugID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid drug id"})
		return 0, false
	}
	return id, true
}

func respondError(w http.ResponseWriter, err error) {
	var rejected *pharmaapi.RejectionError
	switch {
	case errors.Is(err, ErrNotFound):
		respond(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidDrug):
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrReadOnly):
		respond(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, wallet.ErrNotConnected):
		respond(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &rejected):
		respond(w, rejected.Status, map[string]string{"error": rejected.Detail})
	default:
		respond(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
