package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/httpx"
)

type AdminHandler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewAdminHandler(manager *Manager, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{manager: manager, logger: logger}
}

// RegisterRoutes mounts menu management. r must already authenticate the
// caller.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/menus", func(r chi.Router) {
		r.Use(auth.RequireStaff(h.logger))
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Patch("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDeactivate)
	})
}

func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	menus, err := h.manager.List(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, menus)
}

type menuRequest struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"required,max=2000"`
	UnitPrice   *decimal.Decimal `json:"unit_price" validate:"required"`
	MinPersons  int              `json:"min_persons" validate:"required,gt=0"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
	Active      *bool            `json:"active"`
}

func (h *AdminHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req menuRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	in := MenuInput{
		Title:       req.Title,
		Description: req.Description,
		UnitPrice:   *req.UnitPrice,
		MinPersons:  req.MinPersons,
		Stock:       req.Stock,
		Active:      req.Active == nil || *req.Active,
	}
	menu, err := h.manager.Create(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, menu)
}

type menuPatchRequest struct {
	Title       *string          `json:"title" validate:"omitempty,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	MinPersons  *int             `json:"min_persons" validate:"omitempty,gt=0"`
	Stock       *int             `json:"stock" validate:"omitempty,gte=0"`
	TrackStock  *bool            `json:"track_stock"`
	Active      *bool            `json:"active"`
}

func (h *AdminHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.menuID(w, r)
	if !ok {
		return
	}

	var req menuPatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	p := MenuPatch{
		Title:       req.Title,
		Description: req.Description,
		UnitPrice:   req.UnitPrice,
		MinPersons:  req.MinPersons,
		Stock:       req.Stock,
		Active:      req.Active,
	}
	if req.TrackStock != nil {
		if *req.TrackStock && req.Stock == nil {
			httpx.WriteError(w, r, h.logger, domain.Validationf("stock is required when track_stock is true"))
			return
		}
		p.UntrackStock = !*req.TrackStock
	}

	menu, err := h.manager.Update(r.Context(), id, p)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, menu)
}

func (h *AdminHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.menuID(w, r)
	if !ok {
		return
	}

	menu, err := h.manager.Deactivate(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, menu)
}

func (h *AdminHandler) menuID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, r, h.logger, domain.Validationf("menu id must be a positive integer"))
		return 0, false
	}
	return id, true
}
