// Package catalog exposes the menu attributes and stock counters orders are
// placed against.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/catering-orders/internal/domain"
)

var ErrInsufficientStock = errors.New("insufficient stock")

const menuColumns = `id, title, description, unit_price, min_persons, stock, active`

// Repository reads and adjusts menus. It runs against either the pool or an
// open transaction, so stock changes can share the order's unit of work.
type Repository struct {
	db sqlx.ExtContext
}

func NewRepository(db sqlx.ExtContext) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, id int64) (*domain.Menu, error) {
	return r.get(ctx, `SELECT `+menuColumns+` FROM menus WHERE id = $1`, id)
}

// GetForUpdate locks the menu row until the surrounding transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*domain.Menu, error) {
	return r.get(ctx, `SELECT `+menuColumns+` FROM menus WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repository) get(ctx context.Context, query string, id int64) (*domain.Menu, error) {
	var m domain.Menu
	if err := sqlx.GetContext(ctx, r.db, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get menu %d: %w", id, err)
	}
	return &m, nil
}

func (r *Repository) ListActive(ctx context.Context) ([]domain.Menu, error) {
	menus := []domain.Menu{}
	if err := sqlx.SelectContext(ctx, r.db, &menus, `
		SELECT `+menuColumns+`
		FROM menus
		WHERE active
		ORDER BY title
	`); err != nil {
		return nil, fmt.Errorf("list menus: %w", err)
	}
	return menus, nil
}

// ListAll includes inactive menus, for the back office.
func (r *Repository) ListAll(ctx context.Context) ([]domain.Menu, error) {
	menus := []domain.Menu{}
	if err := sqlx.SelectContext(ctx, r.db, &menus, `
		SELECT `+menuColumns+`
		FROM menus
		ORDER BY active DESC, title
	`); err != nil {
		return nil, fmt.Errorf("list all menus: %w", err)
	}
	return menus, nil
}

func (r *Repository) Create(ctx context.Context, in MenuInput) (*domain.Menu, error) {
	var m domain.Menu
	if err := sqlx.GetContext(ctx, r.db, &m, `
		INSERT INTO menus (title, description, unit_price, min_persons, stock, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+menuColumns,
		in.Title, in.Description, in.UnitPrice, in.MinPersons, in.Stock, in.Active); err != nil {
		return nil, fmt.Errorf("insert menu: %w", err)
	}
	return &m, nil
}

// Update applies the non-nil fields of p and returns nil when the menu does
// not exist.
func (r *Repository) Update(ctx context.Context, id int64, p MenuPatch) (*domain.Menu, error) {
	var price decimal.NullDecimal
	if p.UnitPrice != nil {
		price = decimal.NewNullDecimal(*p.UnitPrice)
	}

	var m domain.Menu
	err := sqlx.GetContext(ctx, r.db, &m, `
		UPDATE menus
		SET title       = COALESCE($2, title),
		    description = COALESCE($3, description),
		    unit_price  = COALESCE($4, unit_price),
		    min_persons = COALESCE($5, min_persons),
		    stock       = CASE WHEN $6 THEN NULL ELSE COALESCE($7, stock) END,
		    active      = COALESCE($8, active)
		WHERE id = $1
		RETURNING `+menuColumns,
		id, p.Title, p.Description, price, p.MinPersons, p.UntrackStock, p.Stock, p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update menu %d: %w", id, err)
	}
	return &m, nil
}

// AdjustStock adds delta to a stock-tracked menu and never drives the counter
// below zero. Callers only adjust menus whose TracksStock is true.
func (r *Repository) AdjustStock(ctx context.Context, id int64, delta int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE menus
		SET stock = stock + $2
		WHERE id = $1 AND stock IS NOT NULL AND stock + $2 >= 0
	`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust stock for menu %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 && delta < 0 {
		return ErrInsufficientStock
	}
	return nil
}
