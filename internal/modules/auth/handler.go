package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/georgemunganga/pharma-gateway/internal/pharmaapi"
)

// Handler exposes auth HTTP endpoints.
type Handler struct{ service Service }

func NewHandler(service Service) *Handler { return &Handler{service: service} }

func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/flows", h.startFlow)
		r.Get("/flows/{id}", h.getFlow)
		r.Post("/flows/{id}/phone", h.submitPhone)
		r.Post("/flows/{id}/otp", h.submitOTP)
		r.Post("/flows/{id}/password", h.submitPassword)
		r.Post("/flows/{id}/login", h.login)
		r.Post("/flows/{id}/forgot", h.forgotPassword)
		r.Post("/flows/{id}/back", h.back)
		r.Get("/me", h.me)
		r.Post("/logout", h.logout)
	})
}

func (h *Handler) startFlow(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.StartFlow(r.Context())
	if err != nil {
		respondFlowError(w, nil, err)
		return
	}
	respond(w, http.StatusCreated, f)
}

func (h *Handler) getFlow(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.GetFlow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFlowError(w, nil, err)
		return
	}
	respond(w, http.StatusOK, f)
}

func (h *Handler) submitPhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if !decode(w, r, &req) {
		return
	}
	f, err := h.service.SubmitPhone(r.Context(), chi.URLParam(r, "id"), req.Phone)
	if err != nil {
		respondFlowError(w, f, err)
		return
	}
	respond(w, http.StatusOK, f)
}

func (h *Handler) submitOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"otp_code"`
	}
	if !decode(w, r, &req) {
		return
	}
	f, err := h.service.SubmitOTP(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		respondFlowError(w, f, err)
		return
	}
	respond(w, http.StatusOK, f)
}

func (h *Handler) submitPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		Confirm  string `json:"confirm_password"`
	}
	if !decode(w, r, &req) {
		return
	}
	f, err := h.service.SubmitPassword(r.Context(), chi.URLParam(r, "id"), req.Password, req.Confirm)
	if err != nil {
		respondFlowError(w, f, err)
		return
	}
	respond(w, http.StatusOK, f)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone    string `json:"phone"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.service.Login(r.Context(), chi.URLParam(r, "id"), req.Phone, req.Password)
	if err != nil {
		respondFlowError(w, nil, err)
		return
	}
	w.Header().Set(SessionHeader, res.Session.ID)
	respond(w, http.StatusOK, res)
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.ForgotPassword(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFlowError(w, f, err)
		return
	}
	respond(w, http.StatusOK, f)
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	f, err := h.service.Back(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondFlowError(w, f, err)
		return
	}
	respond(w, http.StatusOK, f)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.CurrentUser(r.Context(), r.Header.Get(SessionHeader))
	if err != nil {
		respondFlowError(w, nil, err)
		return
	}
	respond(w, http.StatusOK, user)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), r.Header.Get(SessionHeader)); err != nil {
		respondFlowError(w, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

// respondFlowError maps err to a status. The flow, when known, is included
// so clients can render the step they are now in.
func respondFlowError(w http.ResponseWriter, f *Flow, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	var verr *ValidationError
	var rej *pharmaapi.RejectionError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, ErrFlowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrWrongStep):
		status = http.StatusConflict
	case errors.As(err, &rej):
		status = rej.Status
		msg = rej.Detail
	case errors.Is(err, pharmaapi.ErrNetwork):
		status = http.StatusBadGateway
	}

	body := map[string]interface{}{"error": msg}
	if f != nil {
		body["flow"] = f
	}
	respond(w, status, body)
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
