package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verifiedai/internal/contact"
	dErrors "verifiedai/pkg/domain-errors"
	"verifiedai/pkg/platform/httputil"
	"verifiedai/pkg/requestcontext"
)

// Service submits contact forms.
type Service interface {
	Submit(ctx context.Context, form contact.Form) (contact.Toast, contact.Validation, error)
}

// Handler serves POST /api/contact. The HTML form post lives with the pages.
type Handler struct {
	logger  *slog.Logger
	contact Service
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, contact: svc}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/contact", h.handleSubmit)
}

type submitRequest struct {
	contact.Form
}

func (r *submitRequest) Validate() error {
	return nil
}

// SubmitResponse reports the toast and the per-field checks.
type SubmitResponse struct {
	Sent       bool               `json:"sent"`
	Toast      contact.Toast      `json:"toast"`
	Validation contact.Validation `json:"validation"`
	Hints      contact.Hints      `json:"hints"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[submitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	toast, v, err := h.contact.Submit(ctx, req.Form)
	resp := SubmitResponse{Sent: err == nil, Toast: toast, Validation: v, Hints: v.Hints()}
	status := http.StatusOK
	if err != nil {
		status = dErrors.ToHTTPStatus(dErrors.CodeOf(err))
		h.logger.WarnContext(ctx, "contact submit failed",
			"request_id", requestID,
			"code", string(dErrors.CodeOf(err)),
		)
	}
	httputil.WriteJSON(w, status, resp)
}
