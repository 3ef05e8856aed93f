package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"secure.link/config"
	"secure.link/internal/logger"
	"secure.link/internal/secrets"
	"secure.link/web"
)

// maxBodyBytes bounds request bodies; secrets are short text.
const maxBodyBytes = 1 << 20

type Handler struct {
	secrets *secrets.Service
	config  *config.Config
	log     *zap.Logger
}

func NewHandler(svc *secrets.Service, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{
		secrets: svc,
		config:  cfg,
		log:     log,
	}
}

type CreateRequest struct {
	Content  string `json:"content"`
	Password string `json:"password,omitempty"`
	TTL      *int   `json:"ttl,omitempty"`
}

type CreateResponse struct {
	ID         string `json:"id"`
	AdminToken string `json:"adminToken"`
	URL        string `json:"url"`
}

type StatusResponse struct {
	Active    bool       `json:"active"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	ExpiresIn *int       `json:"expiresIn,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type CheckResponse struct {
	Exists            bool  `json:"exists"`
	RequiresPassword  *bool `json:"requiresPassword,omitempty"`
	RemainingAttempts *int  `json:"remainingAttempts,omitempty"`
}

type ViewRequest struct {
	Password string `json:"password"`
}

type BurnRequest struct {
	AdminToken string `json:"adminToken"`
}

type ErrorResponse struct {
	Error             string `json:"error"`
	RemainingAttempts *int   `json:"remainingAttempts,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateSecret(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := h.decode(r, &req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.secrets.Create(r.Context(), secrets.CreateRequest{
		Content:  req.Content,
		Password: req.Password,
		TTL:      req.TTL,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, CreateResponse{
		ID:         created.ID,
		AdminToken: created.AdminToken,
		URL:        h.shareURL(created.ID),
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.secrets.Status(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if !status.Active {
		h.json(w, http.StatusOK, StatusResponse{Active: false})
		return
	}

	h.json(w, http.StatusOK, StatusResponse{
		Active:    true,
		CreatedAt: &status.CreatedAt,
		ExpiresIn: &status.TTL,
		ExpiresAt: &status.ExpiresAt,
	})
}

func (h *Handler) CheckSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.secrets.Check(r.Context(), id)
	if errors.Is(err, secrets.ErrNotFound) {
		h.json(w, http.StatusNotFound, CheckResponse{Exists: false})
		return
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, CheckResponse{
		Exists:            true,
		RequiresPassword:  &res.RequiresPassword,
		RemainingAttempts: &res.RemainingAttempts,
	})
}

func (h *Handler) ViewSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// The body is optional: a password-less secret can be viewed without one.
	var req ViewRequest
	if err := h.decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content, err := h.secrets.View(r.Context(), id, req.Password)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}

func (h *Handler) BurnSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req BurnRequest
	if err := h.decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.secrets.Burn(r.Context(), id, req.AdminToken); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.json(w, http.StatusOK, map[string]string{"status": "burned"})
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, "index.html")
}

func (h *Handler) serveFile(w http.ResponseWriter, filename string) {
	content, err := web.GetFile(filename)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	contentType := "text/html; charset=utf-8"
	w.Header().Set("Content-Type", contentType)
	w.Write(content)
}

func (h *Handler) shareURL(id string) string {
	return h.config.Server.BaseURL + "/s/" + url.PathEscape(id)
}

func (h *Handler) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (h *Handler) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) error(w http.ResponseWriter, status int, message string) {
	h.json(w, status, ErrorResponse{Error: message})
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var wrong *secrets.WrongPasswordError

	switch {
	case errors.Is(err, secrets.ErrInvalidInput):
		h.error(w, http.StatusBadRequest, "content is required")
	case errors.Is(err, secrets.ErrNotFound):
		h.error(w, http.StatusNotFound, "secret not found or expired")
	case errors.As(err, &wrong):
		remaining := wrong.Remaining
		h.json(w, http.StatusUnauthorized, ErrorResponse{
			Error:             "incorrect password",
			RemainingAttempts: &remaining,
		})
	case errors.Is(err, secrets.ErrExhausted):
		h.error(w, http.StatusGone, "secret destroyed after too many failed attempts")
	case errors.Is(err, secrets.ErrUnauthorized):
		h.error(w, http.StatusUnauthorized, "invalid admin token")
	case errors.Is(err, secrets.ErrConflict):
		h.error(w, http.StatusConflict, "secret is busy, try again")
	default:
		logger.WithContext(r.Context(), h.log).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		h.error(w, http.StatusInternalServerError, "internal error")
	}
}
