// Package reviews lets customers rate completed orders and staff moderate
// what gets published.
package reviews

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/domain"
)

type Store interface {
	Create(ctx context.Context, rv *domain.Review) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Review, error)
	List(ctx context.Context, status domain.ReviewStatus) ([]domain.Review, error)
	Moderate(ctx context.Context, id uuid.UUID, status domain.ReviewStatus, by uuid.UUID, at time.Time) (*domain.Review, error)
}

// OrderReader resolves the order a review is attached to.
type OrderReader interface {
	Order(ctx context.Context, number string) (*domain.Order, error)
}

type Service struct {
	store  Store
	orders OrderReader
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, orders OrderReader, logger *zap.Logger) *Service {
	return &Service{store: store, orders: orders, logger: logger, now: time.Now}
}

type SubmitInput struct {
	OrderNumber string
	Rating      int
	Comment     *string
}

func (s *Service) Submit(ctx context.Context, actor auth.Identity, in SubmitInput) (*domain.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, domain.Validationf("rating must be between 1 and 5")
	}

	o, err := s.orders.Order(ctx, in.OrderNumber)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.NotFoundf("order not found")
	}
	if o.CustomerID != actor.ID {
		return nil, domain.Forbiddenf("order belongs to another customer")
	}
	if o.Status != domain.StatusCompleted {
		return nil, domain.InvalidStatef("only %s orders can be reviewed", domain.StatusCompleted)
	}

	rv := &domain.Review{
		ID:          uuid.New(),
		OrderNumber: o.Number,
		CustomerID:  actor.ID,
		Rating:      in.Rating,
		Status:      domain.ReviewPending,
		CreatedAt:   s.now().UTC(),
	}
	if in.Comment != nil {
		if c := strings.TrimSpace(*in.Comment); c != "" {
			rv.Comment = &c
		}
	}

	if err := s.store.Create(ctx, rv); err != nil {
		return nil, err
	}

	s.logger.Info("review submitted", zap.String("order_number", o.Number), zap.Int("rating", rv.Rating))
	return rv, nil
}

func (s *Service) Published(ctx context.Context) ([]domain.Review, error) {
	return s.store.List(ctx, domain.ReviewApproved)
}

// Queue lists reviews for moderation, optionally narrowed to one status.
func (s *Service) Queue(ctx context.Context, status domain.ReviewStatus) ([]domain.Review, error) {
	return s.store.List(ctx, status)
}

func (s *Service) Moderate(ctx context.Context, actor auth.Identity, id uuid.UUID, status domain.ReviewStatus) (*domain.Review, error) {
	if !actor.IsStaff() {
		return nil, domain.Forbiddenf("staff role required")
	}
	if status != domain.ReviewApproved && status != domain.ReviewRejected {
		return nil, domain.Validationf("status must be %q or %q", domain.ReviewApproved, domain.ReviewRejected)
	}

	rv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rv == nil {
		return nil, domain.NotFoundf("review not found")
	}
	if rv.Status != domain.ReviewPending {
		return nil, domain.InvalidStatef("review has already been %s", rv.Status)
	}

	moderated, err := s.store.Moderate(ctx, id, status, actor.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if moderated == nil {
		return nil, domain.InvalidStatef("review has already been moderated")
	}

	s.logger.Info("review moderated",
		zap.String("review_id", id.String()),
		zap.String("status", string(status)),
		zap.String("actor_id", actor.ID.String()),
	)
	return moderated, nil
}
