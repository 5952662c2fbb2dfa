package pages

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verifiedai/internal/contact"
	"verifiedai/internal/site"
	"verifiedai/internal/verification"
	dErrors "verifiedai/pkg/domain-errors"
	"verifiedai/pkg/requestcontext"
)

// SessionViewer loads the verification state shown on the Home page.
type SessionViewer interface {
	View(ctx context.Context, sessionID string) (*verification.Session, error)
}

// ContactSubmitter handles the Contact page form.
type ContactSubmitter interface {
	Submit(ctx context.Context, form contact.Form) (contact.Toast, contact.Validation, error)
}

type Handler struct {
	renderer     *Renderer
	site         site.Config
	baseURL      string
	verification SessionViewer
	contact      ContactSubmitter
	logger       *slog.Logger
}

func NewHandler(
	renderer *Renderer,
	siteConfig site.Config,
	baseURL string,
	verification SessionViewer,
	contact ContactSubmitter,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		renderer:     renderer,
		site:         siteConfig,
		baseURL:      baseURL,
		verification: verification,
		contact:      contact,
		logger:       logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.handleHome)
	r.Get("/about", h.handleAbout)
	r.Get("/contact", h.handleContact)
	r.Post("/contact", h.handleContactSubmit)
	r.Post("/theme", h.handleTheme)
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := h.verification.View(ctx, requestcontext.SessionID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load verification session",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, PageHome, &PageData{
		SEO:     newSEO(h.baseURL, "/", "VerifiedAI", "Verify before you agree.", ""),
		Nav:     navFor("/"),
		Content: newHomeView(sess),
	})
}

func (h *Handler) handleAbout(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageAbout, &PageData{
		SEO: newSEO(h.baseURL, "/about", "About — "+h.site.Name,
			"How "+h.site.Name+" turns uploaded evidence into a verdict you can read and share.", "article"),
		Nav: navFor("/about"),
		Content: AboutView{
			Site:       h.site,
			Principles: aboutPrinciples,
			Checklist:  aboutChecklist,
		},
	})
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	h.renderContact(w, r, http.StatusOK, ContactView{Validation: contact.Validate(contact.Form{})})
}

// handleContactSubmit re-renders the page with a toast. A sent message resets the form.
func (h *Handler) handleContactSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	form := contact.Form{
		Name:    r.PostFormValue("name"),
		Email:   r.PostFormValue("email"),
		Message: r.PostFormValue("message"),
	}
	toast, v, err := h.contact.Submit(ctx, form)
	if err != nil {
		h.renderContact(w, r, dErrors.ToHTTPStatus(dErrors.CodeOf(err)), ContactView{Form: form, Validation: v, Toast: &toast})
		return
	}
	h.renderContact(w, r, http.StatusOK, ContactView{Validation: contact.Validate(contact.Form{}), Toast: &toast})
}

func (h *Handler) renderContact(w http.ResponseWriter, r *http.Request, status int, view ContactView) {
	h.render(w, r, status, PageContact, &PageData{
		SEO: newSEO(h.baseURL, "/contact", "Contact — "+h.site.Name,
			"Questions about a verification or a report? Send us a message.", ""),
		Nav:     navFor("/contact"),
		Content: view,
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data *PageData) {
	data.Site = h.site
	data.Theme = themeOf(r)
	data.Path = r.URL.Path
	if err := h.renderer.Render(w, status, page, data); err != nil {
		ctx := r.Context()
		h.logger.ErrorContext(ctx, "failed to render page",
			"request_id", requestcontext.RequestID(ctx),
			"page", page,
			"error", err,
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
