package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/userdesk/internal/shared"
	"github.com/odyssey-erp/userdesk/internal/view"
)

// Messages shown on the login page.
const (
	msgEmailRequired    = "Email is required"
	msgPasswordRequired = "Password is required"
	msgBothRequired     = "Both fields are required"
	msgInvalidLogin     = "Invalid email or password"
	msgLoggedIn         = "Login successful"
	msgLoggedOut        = "Logged out"

	landingPath = "/users"
)

// Authenticator exchanges credentials for an API token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// ListingResetter drops any listing state held for a session.
type ListingResetter interface {
	Reset(ctx context.Context, sessionID string) error
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	api       Authenticator
	listings  ListingResetter
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler constructs a Handler instance. listings may be nil.
func NewHandler(logger *slog.Logger, api Authenticator, listings ListingResetter, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		api:       api,
		listings:  listings,
		templates: templates,
		csrf:      csrf,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Email  string
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if errs := h.validate(form); len(errs) > 0 {
		h.render(w, r, http.StatusUnprocessableEntity, loginPageData{Email: form.Email, Errors: errs})
		return
	}

	token, err := h.api.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		h.logger.Warn("login rejected", slog.Any("error", err))
		h.render(w, r, http.StatusUnauthorized, loginPageData{Email: form.Email, Errors: map[string]string{"general": msgInvalidLogin}})
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess.SetToken(token)
	sess.SetUser(form.Email)
	if _, err := h.csrf.Rotate(r.Context(), sess); err != nil {
		h.logger.Warn("rotate csrf token", slog.Any("error", err))
	}
	h.resetListing(r.Context(), sess.ID)
	sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: msgLoggedIn})
	view.Redirect(w, r, landingPath)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.ClearToken()
		sess.SetUser("")
		h.resetListing(r.Context(), sess.ID)
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashSuccess, Message: msgLoggedOut})
	}
	view.Redirect(w, r, LoginPath)
}

// validate reports per-field messages plus a summary under "general".
func (h *Handler) validate(form loginForm) map[string]string {
	err := h.validator.Struct(form)
	if err == nil {
		return nil
	}
	errs := make(map[string]string)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			switch fe.Field() {
			case "Email":
				errs["Email"] = msgEmailRequired
			case "Password":
				errs["Password"] = msgPasswordRequired
			}
		}
	}
	errs["general"] = msgBothRequired
	return errs
}

func (h *Handler) resetListing(ctx context.Context, sessionID string) {
	if h.listings == nil {
		return
	}
	if err := h.listings.Reset(ctx, sessionID); err != nil {
		h.logger.Warn("reset listing", slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if flash == nil && data.Errors["general"] != "" {
		flash = &shared.FlashMessage{Kind: shared.FlashError, Message: data.Errors["general"]}
	}
	viewData := view.TemplateData{
		Title:       "Login",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, "pages/login.html", viewData); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
