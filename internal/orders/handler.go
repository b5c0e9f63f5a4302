package orders

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/httpx"
	"github.com/joao-fontenele/catering-orders/internal/orderstate"
)

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts the order routes. r must already authenticate the
// caller; role checks are applied here.
func (h *Handler) RegisterRoutes(r chi.Router) {
	customer := auth.RequireRole(h.logger, auth.RoleCustomer)
	staff := auth.RequireStaff(h.logger)

	r.Post("/orders/quote", h.HandleQuote)
	r.With(customer).Post("/orders", h.HandleCreate)
	r.With(customer).Get("/orders/me", h.HandleListMine)
	r.With(staff).Get("/orders/transitions", h.HandleTransitions)
	r.Get("/orders/{number}", h.HandleGet)
	r.With(customer).Patch("/orders/{number}", h.HandleEdit)
	r.With(customer).Post("/orders/{number}/cancel", h.HandleCancel)

	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(staff)
		r.Get("/", h.HandleList)
		r.Patch("/{number}/status", h.HandleChangeStatus)
		r.Post("/{number}/cancel", h.HandleStaffCancel)
		r.Patch("/{number}/material-returned", h.HandleMaterialReturned)
	})
}

type quoteRequest struct {
	MenuID     int64    `json:"menu_id" validate:"required,gt=0"`
	Persons    int      `json:"persons" validate:"required,gt=0,lte=10000"`
	City       string   `json:"city" validate:"required"`
	DistanceKm *float64 `json:"distance_km" validate:"omitempty,gte=0,lte=10000"`
}

func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	p, err := h.svc.Quote(r.Context(), QuoteInput{
		MenuID:     req.MenuID,
		Persons:    req.Persons,
		City:       req.City,
		DistanceKm: toDecimal(req.DistanceKm),
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, p)
}

type createRequest struct {
	MenuID        int64    `json:"menu_id" validate:"required,gt=0"`
	Persons       int      `json:"persons" validate:"required,gt=0,lte=10000"`
	ServiceDate   string   `json:"service_date" validate:"required,datetime=2006-01-02"`
	DeliveryTime  *string  `json:"delivery_time" validate:"omitempty,datetime=15:04"`
	Address       string   `json:"address" validate:"required"`
	City          string   `json:"city" validate:"required"`
	PostalCode    *string  `json:"postal_code" validate:"omitempty,max=16"`
	DistanceKm    *float64 `json:"distance_km" validate:"omitempty,gte=0,lte=10000"`
	LoanRequested bool     `json:"loan_requested"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	// Format is already checked by the validator.
	serviceDate, _ := time.Parse(time.DateOnly, req.ServiceDate)

	o, err := h.svc.Create(r.Context(), actor, CreateInput{
		MenuID:        req.MenuID,
		Persons:       req.Persons,
		ServiceDate:   serviceDate,
		DeliveryTime:  req.DeliveryTime,
		Address:       req.Address,
		City:          req.City,
		PostalCode:    req.PostalCode,
		DistanceKm:    toDecimal(req.DistanceKm),
		LoanRequested: req.LoanRequested,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, o)
}

type editRequest struct {
	Persons       *int     `json:"persons" validate:"omitempty,gt=0,lte=10000"`
	ServiceDate   *string  `json:"service_date" validate:"omitempty,datetime=2006-01-02"`
	DeliveryTime  *string  `json:"delivery_time" validate:"omitempty,datetime=15:04"`
	Address       *string  `json:"address" validate:"omitempty,min=1"`
	City          *string  `json:"city" validate:"omitempty,min=1"`
	PostalCode    *string  `json:"postal_code" validate:"omitempty,max=16"`
	DistanceKm    *float64 `json:"distance_km" validate:"omitempty,gte=0,lte=10000"`
	LoanRequested *bool    `json:"loan_requested"`
}

func (h *Handler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	in := EditInput{
		Persons:       req.Persons,
		DeliveryTime:  req.DeliveryTime,
		Address:       req.Address,
		City:          req.City,
		PostalCode:    req.PostalCode,
		DistanceKm:    toDecimal(req.DistanceKm),
		LoanRequested: req.LoanRequested,
	}
	if req.ServiceDate != nil {
		d, _ := time.Parse(time.DateOnly, *req.ServiceDate)
		in.ServiceDate = &d
	}

	o, err := h.svc.Edit(r.Context(), actor, chi.URLParam(r, "number"), in)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, o)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	o, err := h.svc.CancelByCustomer(r.Context(), actor, chi.URLParam(r, "number"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, o)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	d, err := h.svc.Get(r.Context(), actor, chi.URLParam(r, "number"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, d)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	orders, err := h.svc.ListMine(r.Context(), actor)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleTransitions(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, h.logger, http.StatusOK, orderstate.Table())
}

// HandleList serves GET /admin/orders?status=a,b&q=&limit=&offset=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	f, err := parseListFilter(r)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	orders, err := h.svc.List(r.Context(), actor, f)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

type statusRequest struct {
	Status  string `json:"status" validate:"required"`
	Comment string `json:"comment" validate:"max=500"`
}

func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	target, err := domain.ParseStatus(req.Status)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	o, err := h.svc.ChangeStatus(r.Context(), actor, chi.URLParam(r, "number"), target, req.Comment)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, o)
}

type staffCancelRequest struct {
	ContactMode string `json:"contact_mode" validate:"required,oneof=gsm email"`
	Reason      string `json:"reason" validate:"required,max=1000"`
}

func (h *Handler) HandleStaffCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req staffCancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	o, err := h.svc.CancelByStaff(r.Context(), actor, chi.URLParam(r, "number"), domain.ContactMode(req.ContactMode), req.Reason)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, o)
}

func (h *Handler) HandleMaterialReturned(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	o, err := h.svc.MarkMaterialReturned(r.Context(), actor, chi.URLParam(r, "number"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, o)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, domain.Unauthenticatedf("missing bearer token"))
	}
	return id, ok
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	f := ListFilter{Query: q.Get("q")}

	for _, raw := range strings.Split(q.Get("status"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		s, err := domain.ParseStatus(raw)
		if err != nil {
			return ListFilter{}, err
		}
		f.Statuses = append(f.Statuses, s)
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return ListFilter{}, err
	}
	if f.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return ListFilter{}, err
	}
	return f, nil
}

func intParam(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domain.Validationf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func toDecimal(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f).Round(2)
	return &d
}
