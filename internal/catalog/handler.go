package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/httpx"
)

type Handler struct {
	menus  MenuReader
	logger *zap.Logger
}

func NewHandler(menus MenuReader, logger *zap.Logger) *Handler {
	return &Handler{menus: menus, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/menus", h.HandleList)
	r.Get("/menus/{id}", h.HandleGet)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	menus, err := h.menus.ListActive(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, menus)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, r, h.logger, domain.Validationf("menu id must be a positive integer"))
		return
	}

	menu, err := h.menus.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if menu == nil || !menu.Active {
		httpx.WriteError(w, r, h.logger, domain.NotFoundf("menu not found"))
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, menu)
}
