package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/userdesk/internal/platform/httpx"
)

// Lister reads back recorded events.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Handler serves the audit trail as JSON.
type Handler struct {
	lister Lister
	logger *slog.Logger
}

// NewHandler builds Handler. A nil lister answers 404, as when no audit
// database is configured.
func NewHandler(lister Lister, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{lister: lister, logger: logger}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.recent)
}

func (h *Handler) recent(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.lister.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list audit events", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"events": events})
}
