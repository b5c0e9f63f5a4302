package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/joao-fontenele/catering-orders/internal/database"
	"github.com/joao-fontenele/catering-orders/internal/domain"
)

const reviewColumns = `id, order_number, customer_id, rating, comment, status, moderated_by, moderated_at, created_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, rv *domain.Review) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES (:id, :order_number, :customer_id, :rating, :comment, :status, :moderated_by, :moderated_at, :created_at)
	`, rv)
	if database.IsUniqueViolation(err) {
		return domain.Conflictf("order %s has already been reviewed", rv.OrderNumber)
	}
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	var rv domain.Review
	err := r.db.GetContext(ctx, &rv, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review %s: %w", id, err)
	}
	return &rv, nil
}

// List returns reviews newest first. An empty status lists every review.
func (r *Repository) List(ctx context.Context, status domain.ReviewStatus) ([]domain.Review, error) {
	out := []domain.Review{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}

// Moderate sets the outcome of a pending review. It returns nil when the
// review is no longer pending.
func (r *Repository) Moderate(ctx context.Context, id uuid.UUID, status domain.ReviewStatus, by uuid.UUID, at time.Time) (*domain.Review, error) {
	var rv domain.Review
	err := r.db.GetContext(ctx, &rv, `
		UPDATE reviews
		SET status = $2, moderated_by = $3, moderated_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+reviewColumns, id, status, by, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("moderate review %s: %w", id, err)
	}
	return &rv, nil
}
