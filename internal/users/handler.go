package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/userdesk/internal/directory"
	"github.com/odyssey-erp/userdesk/internal/shared"
	"github.com/odyssey-erp/userdesk/internal/view"
)

// Notification texts shown in the snackbar.
const (
	msgUpdated      = "User updated successfully!"
	msgUpdateFailed = "Failed to update user"
	msgDeleted      = "User deleted successfully!"
	msgDeleteFailed = "Failed to delete user"
	msgLoadFailed   = "Failed to load users"
)

// Handler manages the user listing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, validator: validator.New()}
}

// MountRoutes registers user routes. The caller is expected to wrap them with
// the auth gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/rows", h.rows)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/edit", h.editDialog)
		r.Post("/", h.update)
		r.Put("/", h.update)
		r.Get("/delete", h.deleteDialog)
		r.Post("/delete", h.remove)
		r.Delete("/", h.remove)
	})
}

type editDialog struct {
	ID        int64
	FirstName string
	Job       string
	Errors    map[string]string
}

type usersPageData struct {
	Records    []Record
	Query      string
	Pagination *shared.Pagination
	Edit       *editDialog
	Delete     *Record
	Fragment   bool
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	// A stale full navigation still shows what it fetched; it just is not kept.
	data, _, err := h.load(r)
	if err != nil {
		h.failLoad(w, r, err, false)
		return
	}
	h.render(w, r, http.StatusOK, "pages/users.html", data)
}

func (h *Handler) rows(w http.ResponseWriter, r *http.Request) {
	data, stale, err := h.load(r)
	if err != nil {
		h.failLoad(w, r, err, true)
		return
	}
	if stale && view.IsPartial(r) {
		view.Discard(w)
		return
	}
	data.Fragment = true
	h.render(w, r, http.StatusOK, "partials/users_panel.html", data)
}

// load resolves the listing for a list request. An explicit page parameter
// dispatches a fetch; otherwise the loaded page is reused. The query always
// filters locally.
func (h *Handler) load(r *http.Request) (usersPageData, bool, error) {
	ctx := r.Context()
	actor := actorFromRequest(r)
	query := r.URL.Query().Get("q")

	var (
		listing Listing
		stale   bool
		err     error
	)
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, convErr := strconv.Atoi(raw)
		if convErr != nil || page < 1 {
			page = 1
		}
		listing, stale, err = h.service.LoadPage(ctx, actor, page)
	} else {
		listing, err = h.service.Current(ctx, actor)
	}
	if err != nil {
		return usersPageData{Query: query}, false, err
	}
	pagination := shared.NewPagination(listing.Page, listing.PerPage, listing.Total, listing.TotalPages)
	return usersPageData{
		Records:    Filter(listing.Records, query),
		Query:      query,
		Pagination: &pagination,
	}, stale, nil
}

func (h *Handler) failLoad(w http.ResponseWriter, r *http.Request, err error, fragment bool) {
	h.logger.Error("load users", slog.Any("error", err))
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: msgLoadFailed})
	}
	data := usersPageData{Query: r.URL.Query().Get("q"), Fragment: fragment}
	if fragment {
		h.render(w, r, http.StatusOK, "partials/users_panel.html", data)
		return
	}
	h.render(w, r, http.StatusOK, "pages/users.html", data)
}

func (h *Handler) editDialog(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.renderDialog(w, r, http.StatusOK, usersPageData{Edit: &editDialog{ID: rec.ID, FirstName: rec.FirstName}})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.notFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	input := EditInput{
		FirstName: strings.TrimSpace(r.PostFormValue("first_name")),
		Job:       strings.TrimSpace(r.PostFormValue("job")),
	}
	if err := h.validator.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		errs := map[string]string{}
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs[fe.Field()] = fieldMessage(fe)
			}
		}
		h.renderDialog(w, r, http.StatusUnprocessableEntity, usersPageData{Edit: &editDialog{ID: id, FirstName: input.FirstName, Job: input.Job, Errors: errs}})
		return
	}

	err := h.service.Update(r.Context(), actorFromRequest(r), id, input)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		h.notFound(w, r)
		return
	case err != nil:
		h.logger.Error("update user", slog.Int64("id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, shared.FlashError, msgUpdateFailed)
		return
	}
	h.redirectWithFlash(w, r, shared.FlashSuccess, msgUpdated)
}

func (h *Handler) deleteDialog(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.renderDialog(w, r, http.StatusOK, usersPageData{Delete: &rec})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		h.notFound(w, r)
		return
	}
	err := h.service.Delete(r.Context(), actorFromRequest(r), id)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		h.notFound(w, r)
		return
	case err != nil:
		h.logger.Error("delete user", slog.Int64("id", id), slog.Any("error", err))
		h.redirectWithFlash(w, r, shared.FlashError, msgDeleteFailed)
		return
	}
	h.redirectWithFlash(w, r, shared.FlashSuccess, msgDeleted)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (Record, bool) {
	id, ok := parseID(r)
	if !ok {
		h.notFound(w, r)
		return Record{}, false
	}
	rec, err := h.service.Find(r.Context(), actorFromRequest(r), id)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("find user", slog.Int64("id", id), slog.Any("error", err))
		}
		h.notFound(w, r)
		return Record{}, false
	}
	return rec, true
}

// renderDialog renders only the dialog for htmx, or the whole page with the
// dialog open.
func (h *Handler) renderDialog(w http.ResponseWriter, r *http.Request, status int, data usersPageData) {
	if view.IsPartial(r) {
		name := "partials/user_edit.html"
		if data.Delete != nil {
			name = "partials/user_delete.html"
		}
		h.render(w, r, status, name, data)
		return
	}
	listing, err := h.service.Current(r.Context(), actorFromRequest(r))
	if err != nil {
		h.logger.Warn("load users for dialog", slog.Any("error", err))
	}
	pagination := shared.NewPagination(listing.Page, listing.PerPage, listing.Total, listing.TotalPages)
	data.Records = listing.Records
	data.Pagination = &pagination
	h.render(w, r, status, "pages/users.html", data)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	if view.IsPartial(r) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}
	h.renderPage(w, r, http.StatusNotFound, "pages/error.html", "Not Found", "That user is not on the loaded page.")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data usersPageData) {
	h.renderPage(w, r, status, name, "Users", data)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	user := ""
	if sess != nil {
		flash = sess.PopFlash()
		user = sess.User()
	}
	viewData := view.TemplateData{Title: title, CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, User: user, Data: data}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	view.Redirect(w, r, "/users")
}

func actorFromRequest(r *http.Request) Actor {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Actor{}
	}
	token, _ := sess.Token()
	return Actor{SessionID: sess.ID, Token: token, User: sess.User()}
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func fieldMessage(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		switch fe.Field() {
		case "FirstName":
			return "First name is required"
		}
		return fe.Field() + " is required"
	}
	return fe.Error()
}

var _ Directory = (*directory.Client)(nil)
