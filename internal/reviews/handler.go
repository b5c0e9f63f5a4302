package reviews

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/httpx"
)

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/reviews", h.HandlePublished)
}

// RegisterRoutes mounts the routes that need an authenticated caller.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(auth.RequireRole(h.logger, auth.RoleCustomer)).Post("/reviews", h.HandleSubmit)

	r.Route("/admin/reviews", func(r chi.Router) {
		r.Use(auth.RequireStaff(h.logger))
		r.Get("/", h.HandleQueue)
		r.Patch("/{id}", h.HandleModerate)
	})
}

type submitRequest struct {
	OrderNumber string  `json:"order_number" validate:"required"`
	Rating      int     `json:"rating" validate:"required,min=1,max=5"`
	Comment     *string `json:"comment" validate:"omitempty,max=2000"`
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, domain.Unauthenticatedf("missing bearer token"))
		return
	}

	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	rv, err := h.svc.Submit(r.Context(), actor, SubmitInput{
		OrderNumber: req.OrderNumber,
		Rating:      req.Rating,
		Comment:     req.Comment,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, rv)
}

func (h *Handler) HandlePublished(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Published(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, out)
}

func (h *Handler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	var status domain.ReviewStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s, err := domain.ParseReviewStatus(v)
		if err != nil {
			httpx.WriteError(w, r, h.logger, err)
			return
		}
		status = s
	}

	out, err := h.svc.Queue(r.Context(), status)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, out)
}

type moderateRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

func (h *Handler) HandleModerate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, domain.Unauthenticatedf("missing bearer token"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, domain.Validationf("review id must be a UUID"))
		return
	}

	var req moderateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	rv, err := h.svc.Moderate(r.Context(), actor, id, domain.ReviewStatus(req.Status))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, rv)
}
