package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// InsertUser stores a user with an unusable password hash and returns its ID.
func InsertUser(ctx context.Context, t *testing.T, db *sqlx.DB, email, role string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, created_at)
		VALUES ($1, $2, '!', 'Test', 'User', $3, $4)
	`, id, email, role, time.Now().UTC()); err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	return id
}

// InsertMenu stores an active menu. A nil stock means the menu is not
// stock-tracked.
func InsertMenu(ctx context.Context, t *testing.T, db *sqlx.DB, title string, unitPrice string, minPersons int, stock *int) int64 {
	t.Helper()
	var id int64
	if err := db.GetContext(ctx, &id, `
		INSERT INTO menus (title, description, unit_price, min_persons, stock, active)
		VALUES ($1, '', $2, $3, $4, TRUE)
		RETURNING id
	`, title, decimal.RequireFromString(unitPrice), minPersons, stock); err != nil {
		t.Fatalf("failed to insert menu: %v", err)
	}
	return id
}
