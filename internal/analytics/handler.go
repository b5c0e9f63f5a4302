package analytics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/httpx"
)

type Handler struct {
	stats  *Stats
	logger *zap.Logger
}

func NewHandler(stats *Stats, logger *zap.Logger) *Handler {
	return &Handler{stats: stats, logger: logger}
}

// RegisterRoutes mounts the admin statistics route. r must already
// authenticate the caller.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(auth.RequireAdmin(h.logger)).Get("/admin/stats/menus", h.HandleMenuStats)
}

func (h *Handler) HandleMenuStats(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	report, err := h.stats.MenuStats(r.Context(), rng)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, report)
}

// parseRange reads from/to as dates (inclusive) or RFC 3339 instants.
func parseRange(r *http.Request) (Range, error) {
	var rng Range
	q := r.URL.Query()

	if v := q.Get("from"); v != "" {
		t, _, err := parseBound(v)
		if err != nil {
			return Range{}, domain.Validationf("from must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		rng.From = t
	}
	if v := q.Get("to"); v != "" {
		t, dateOnly, err := parseBound(v)
		if err != nil {
			return Range{}, domain.Validationf("to must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		rng.To = t
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && !rng.From.Before(rng.To) {
		return Range{}, domain.Validationf("from must be before to")
	}
	return rng, nil
}

func parseBound(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}
