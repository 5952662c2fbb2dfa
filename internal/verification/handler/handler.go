package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verifiedai/internal/verification"
	dErrors "verifiedai/pkg/domain-errors"
	"verifiedai/pkg/platform/httputil"
	"verifiedai/pkg/requestcontext"
)

// evidenceField is the multipart field the upload form and the external API share.
const evidenceField = "files"

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 64 << 10

// Service defines the verification flow operations.
type Service interface {
	View(ctx context.Context, sessionID string) (*verification.Session, error)
	Start(ctx context.Context, sessionID string) (*verification.Session, error)
	Upload(ctx context.Context, sessionID string, ev *verification.Evidence) (*verification.Session, error)
	RetryResult(ctx context.Context, sessionID string) (*verification.Session, error)
	PaymentURL(ctx context.Context, sessionID string) (string, error)
	SendReport(ctx context.Context, sessionID, to string) (*verification.Session, error)
}

// Handler serves the verification flow both as a JSON API and as HTML form
// posts that redirect back to the Home page.
type Handler struct {
	logger         *slog.Logger
	verification   Service
	maxUploadBytes int64
}

func New(svc Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	return &Handler{
		logger:         logger,
		verification:   svc,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register mounts the JSON API under /api/verification and the form endpoints at the root.
// Routes expect the session middleware to have run.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/verification", func(r chi.Router) {
		r.Get("/", h.handleState)
		r.Post("/start", h.handleStart)
		r.Post("/evidence", h.handleUpload)
		r.Post("/result", h.handleRetryResult)
		r.Post("/report/email", h.handleEmailReport)
		r.Get("/report/download", h.handlePaymentURL)
	})

	r.Post("/verification/start", h.handleStartForm)
	r.Post("/verification/evidence", h.handleUploadForm)
	r.Post("/verification/result", h.handleRetryResultForm)
	r.Post("/report/email", h.handleEmailReportForm)
	r.Get("/report/download", h.handleDownload)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.verification.View(ctx, requestcontext.SessionID(ctx))
	h.writeState(w, r, sess, err)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.verification.Start(ctx, requestcontext.SessionID(ctx))
	h.writeState(w, r, sess, err)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ev, err := h.readEvidence(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid evidence upload",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	sess, err := h.verification.Upload(ctx, requestcontext.SessionID(ctx), ev)
	h.writeState(w, r, sess, err)
}

func (h *Handler) handleRetryResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.verification.RetryResult(ctx, requestcontext.SessionID(ctx))
	h.writeState(w, r, sess, err)
}

func (h *Handler) handleEmailReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[emailReportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sess, err := h.verification.SendReport(ctx, requestcontext.SessionID(ctx), req.Email)
	h.writeState(w, r, sess, err)
}

func (h *Handler) handlePaymentURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	link, err := h.verification.PaymentURL(ctx, requestcontext.SessionID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PaymentResponse{URL: link})
}

func (h *Handler) handleStartForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, err := h.verification.Start(ctx, requestcontext.SessionID(ctx))
	h.backToHome(w, r, err)
}

func (h *Handler) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ev, err := h.readEvidence(w, r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid evidence upload",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	_, err = h.verification.Upload(ctx, requestcontext.SessionID(ctx), ev)
	h.backToHome(w, r, err)
}

func (h *Handler) handleRetryResultForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, err := h.verification.RetryResult(ctx, requestcontext.SessionID(ctx))
	h.backToHome(w, r, err)
}

func (h *Handler) handleEmailReportForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, err := h.verification.SendReport(ctx, requestcontext.SessionID(ctx), r.PostFormValue("email"))
	h.backToHome(w, r, err)
}

// handleDownload sends the browser to the payment link. There is no report
// file; the link is the whole "Download Report" feature.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	link, err := h.verification.PaymentURL(ctx, requestcontext.SessionID(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidState) {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		h.logger.ErrorContext(ctx, "report download unavailable",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	http.Redirect(w, r, link, http.StatusSeeOther)
}

// readEvidence parses the upload form. A form without a file yields nil
// evidence so the service can raise the "Select a file" alert.
func (h *Handler) readEvidence(w http.ResponseWriter, r *http.Request) (*verification.Evidence, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("evidence file exceeds %d bytes", h.maxUploadBytes))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
	}
	file, header, err := r.FormFile(evidenceField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid evidence file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read evidence file")
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("evidence file exceeds %d bytes", h.maxUploadBytes))
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &verification.Evidence{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

// writeState answers JSON calls. Failures that left a session behind include it.
func (h *Handler) writeState(w http.ResponseWriter, r *http.Request, sess *verification.Session, err error) {
	if err == nil {
		httputil.WriteJSON(w, http.StatusOK, toStateResponse(sess))
		return
	}
	ctx := r.Context()
	code := dErrors.CodeOf(err)
	if sess == nil || code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "verification request failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	resp := ErrorStateResponse{Error: string(code), State: toStateResponse(sess)}
	if de, ok := dErrors.As(err); ok {
		resp.ErrorDescription = de.Message
	}
	httputil.WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}

// backToHome finishes a form post. Flow failures are already recorded on the
// session as a status line or alert, so only failures without a session are
// reported directly.
func (h *Handler) backToHome(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		ctx := r.Context()
		code := dErrors.CodeOf(err)
		if code == dErrors.CodeInternal || code == dErrors.CodeBadRequest {
			h.logger.ErrorContext(ctx, "verification form failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			httputil.WriteError(w, err)
			return
		}
		h.logger.DebugContext(ctx, "verification step rejected",
			"request_id", requestcontext.RequestID(ctx),
			"code", string(code),
		)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
