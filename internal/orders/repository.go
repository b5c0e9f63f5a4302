package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/joao-fontenele/catering-orders/internal/catalog"
	"github.com/joao-fontenele/catering-orders/internal/database"
	"github.com/joao-fontenele/catering-orders/internal/domain"
)

const orderColumns = `
	number, customer_id, customer_email,
	menu_id, menu_title, unit_price, min_persons, persons,
	service_date, delivery_time, address, city, postal_code, distance_km,
	gross, discount_percent, discount_amount, net, distance_used, delivery_fee, total,
	loan_requested, loan_deadline, loan_returned, late_penalty,
	status, created_at, updated_at`

// OrderRepository is the Postgres Store.
type OrderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&pgTx{tx: tx, menus: catalog.NewRepository(tx)})
	})
}

func (r *OrderRepository) Menu(ctx context.Context, id int64) (*domain.Menu, error) {
	return catalog.NewRepository(r.db).Get(ctx, id)
}

func (r *OrderRepository) Order(ctx context.Context, number string) (*domain.Order, error) {
	return getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number)
}

func (r *OrderRepository) History(ctx context.Context, number string) ([]domain.HistoryEntry, error) {
	entries := []domain.HistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, `
		SELECT order_number, status, changed_at, actor_id, comment
		FROM order_status_history
		WHERE order_number = $1
		ORDER BY id
	`, number); err != nil {
		return nil, fmt.Errorf("list history for %s: %w", number, err)
	}
	return entries, nil
}

func (r *OrderRepository) Cancellation(ctx context.Context, number string) (*domain.Cancellation, error) {
	var c domain.Cancellation
	err := r.db.GetContext(ctx, &c, `
		SELECT order_number, cancelled_by, contact_mode, reason, created_at
		FROM order_cancellations
		WHERE order_number = $1
	`, number)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cancellation for %s: %w", number, err)
	}
	return &c, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Order, error) {
	orders := []domain.Order{}
	if err := r.db.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC
	`, customerID); err != nil {
		return nil, fmt.Errorf("list orders for customer: %w", err)
	}
	return orders, nil
}

func (r *OrderRepository) List(ctx context.Context, f ListFilter) ([]domain.Order, error) {
	statuses := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}

	orders := []domain.Order{}
	if err := r.db.SelectContext(ctx, &orders, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1))
		  AND ($2 = '' OR number ILIKE '%' || $2 || '%' OR customer_email ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, pq.Array(statuses), f.Query, f.Limit, f.Offset); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, query, number string) (*domain.Order, error) {
	var o domain.Order
	if err := sqlx.GetContext(ctx, q, &o, query, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %s: %w", number, err)
	}
	return &o, nil
}

type pgTx struct {
	tx    *sqlx.Tx
	menus *catalog.Repository
}

func (t *pgTx) MenuForUpdate(ctx context.Context, id int64) (*domain.Menu, error) {
	return t.menus.GetForUpdate(ctx, id)
}

func (t *pgTx) AdjustStock(ctx context.Context, menuID int64, delta int) error {
	return t.menus.AdjustStock(ctx, menuID, delta)
}

func (t *pgTx) OrderForUpdate(ctx context.Context, number string) (*domain.Order, error) {
	return getOrder(ctx, t.tx, `SELECT `+orderColumns+` FROM orders WHERE number = $1 FOR UPDATE`, number)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (
			:number, :customer_id, :customer_email,
			:menu_id, :menu_title, :unit_price, :min_persons, :persons,
			:service_date, :delivery_time, :address, :city, :postal_code, :distance_km,
			:gross, :discount_percent, :discount_amount, :net, :distance_used, :delivery_fee, :total,
			:loan_requested, :loan_deadline, :loan_returned, :late_penalty,
			:status, :created_at, :updated_at
		)
	`, o)
	if database.IsUniqueViolation(err) {
		return domain.Conflictf("order number %s already exists, please retry", o.Number)
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	result, err := t.tx.NamedExecContext(ctx, `
		UPDATE orders SET
			persons = :persons,
			service_date = :service_date,
			delivery_time = :delivery_time,
			address = :address,
			city = :city,
			postal_code = :postal_code,
			distance_km = :distance_km,
			gross = :gross,
			discount_percent = :discount_percent,
			discount_amount = :discount_amount,
			net = :net,
			distance_used = :distance_used,
			delivery_fee = :delivery_fee,
			total = :total,
			loan_requested = :loan_requested,
			loan_deadline = :loan_deadline,
			loan_returned = :loan_returned,
			late_penalty = :late_penalty,
			status = :status,
			updated_at = :updated_at
		WHERE number = :number
	`, o)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.Number, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.NotFoundf("order not found")
	}
	return nil
}

func (t *pgTx) AppendHistory(ctx context.Context, h domain.HistoryEntry) error {
	if _, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO order_status_history (order_number, status, changed_at, actor_id, comment)
		VALUES (:order_number, :status, :changed_at, :actor_id, :comment)
	`, h); err != nil {
		return fmt.Errorf("append history for %s: %w", h.OrderNumber, err)
	}
	return nil
}

func (t *pgTx) InsertCancellation(ctx context.Context, c domain.Cancellation) error {
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO order_cancellations (order_number, cancelled_by, contact_mode, reason, created_at)
		VALUES (:order_number, :cancelled_by, :contact_mode, :reason, :created_at)
	`, c)
	if database.IsUniqueViolation(err) {
		return domain.OrderClosedf("order %s is already cancelled", c.OrderNumber)
	}
	if err != nil {
		return fmt.Errorf("insert cancellation for %s: %w", c.OrderNumber, err)
	}
	return nil
}
