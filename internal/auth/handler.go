package auth

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/httpx"
)

type Handler struct {
	accounts *Accounts
	logger   *zap.Logger
}

func NewHandler(accounts *Accounts, logger *zap.Logger) *Handler {
	return &Handler{accounts: accounts, logger: logger}
}

// RegisterPublicRoutes mounts the routes reachable without a bearer token.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/forgot", h.HandleForgot)
	r.Post("/auth/reset", h.HandleReset)
	r.Post("/auth/set-password", h.HandleSetPassword)
}

// RegisterRoutes mounts the account routes. r must already authenticate the
// caller.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users/me", h.HandleMe)
	r.Patch("/users/me", h.HandleUpdateMe)

	r.Route("/admin/employees", func(r chi.Router) {
		r.Use(RequireAdmin(h.logger))
		r.Get("/", h.HandleListEmployees)
		r.Post("/", h.HandleCreateEmployee)
		r.Patch("/{id}", h.HandleUpdateEmployee)
	})
}

type registerRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Phone     *string `json:"phone" validate:"omitempty,min=6"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	id, err := h.accounts.Register(r.Context(), Registration{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, id)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, session)
}

type forgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) HandleForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	h.accounts.ForgotPassword(r.Context(), req.Email)
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]bool{"ok": true})
}

type passwordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.redeem(w, r, h.accounts.ResetPassword)
}

func (h *Handler) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	h.redeem(w, r, h.accounts.SetPassword)
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, token, password string) error) {
	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	if err := apply(r.Context(), req.Token, req.Password); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	p, err := h.accounts.Profile(r.Context(), actor.ID)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, p)
}

type profileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,min=6,max=32"`
	Address   *string `json:"address" validate:"omitempty,max=500"`
}

func (h *Handler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	p, err := h.accounts.UpdateProfile(r.Context(), actor.ID, ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, p)
}

func (h *Handler) HandleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.accounts.Employees(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, employees)
}

type employeeRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Phone     *string `json:"phone" validate:"omitempty,min=6"`
	Password  string  `json:"password"`
}

func (h *Handler) HandleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	p, err := h.accounts.CreateEmployee(r.Context(), NewEmployee{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Password:  req.Password,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, p)
}

type employeeUpdateRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) HandleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, domain.Validationf("employee id must be a UUID"))
		return
	}

	var req employeeUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}

	p, err := h.accounts.SetEmployeeActive(r.Context(), id, *req.Active)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, p)
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, ok := FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.logger, domain.Unauthenticatedf("missing bearer token"))
	}
	return id, ok
}
