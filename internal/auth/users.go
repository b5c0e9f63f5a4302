package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/joao-fontenele/catering-orders/internal/database"
	"github.com/joao-fontenele/catering-orders/internal/domain"
)

type User struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	Phone        *string   `db:"phone"`
	Address      *string   `db:"address"`
	Role         Role      `db:"role"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Profile is the part of a user that is shown back to clients.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     *string   `json:"phone,omitempty"`
	Address   *string   `json:"address,omitempty"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Address:   u.Address,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

// ProfileUpdate leaves nil fields untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
}

type TokenPurpose string

const (
	PurposeReset  TokenPurpose = "reset"
	PurposeInvite TokenPurpose = "invite"
)

// PasswordToken is a pending password change. Only the SHA-256 of the token
// handed to the user is kept.
type PasswordToken struct {
	UserID    uuid.UUID    `db:"user_id"`
	Hash      string       `db:"token_hash"`
	Purpose   TokenPurpose `db:"purpose"`
	ExpiresAt time.Time    `db:"expires_at"`
}

const userColumns = `id, email, password_hash, first_name, last_name, phone, address, role, active, created_at, updated_at`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *User) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, address, role, active, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :first_name, :last_name, :phone, :address, :role, :active, :created_at, :created_at)
	`, u)
	if database.IsUniqueViolation(err) {
		return domain.Conflictf("email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) get(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) ListByRole(ctx context.Context, role Role) ([]User, error) {
	users := []User{}
	if err := r.db.SelectContext(ctx, &users, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1
		ORDER BY last_name, first_name, email
	`, role); err != nil {
		return nil, fmt.Errorf("list %s users: %w", role, err)
	}
	return users, nil
}

// UpdateProfile returns nil when no user has the given id.
func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, p ProfileUpdate, at time.Time) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `
		UPDATE users
		SET first_name = COALESCE($2, first_name),
		    last_name  = COALESCE($3, last_name),
		    phone      = COALESCE($4, phone),
		    address    = COALESCE($5, address),
		    updated_at = $6
		WHERE id = $1
		RETURNING `+userColumns,
		id, p.FirstName, p.LastName, p.Phone, p.Address, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", id, err)
	}
	return &u, nil
}

// SetActive only touches users holding role, so an admin account can never
// be switched off through the employee endpoints.
func (r *UserRepository) SetActive(ctx context.Context, id uuid.UUID, role Role, active bool, at time.Time) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `
		UPDATE users
		SET active = $3, updated_at = $4
		WHERE id = $1 AND role = $2
		RETURNING `+userColumns,
		id, role, active, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("set user %s active: %w", id, err)
	}
	return &u, nil
}

func (r *UserRepository) SaveToken(ctx context.Context, t PasswordToken) error {
	if _, err := r.db.NamedExecContext(ctx, `
		INSERT INTO password_tokens (user_id, token_hash, purpose, expires_at)
		VALUES (:user_id, :token_hash, :purpose, :expires_at)
	`, t); err != nil {
		return fmt.Errorf("insert %s token: %w", t.Purpose, err)
	}
	return nil
}

// ConsumeToken redeems an unexpired token of one of the given purposes and
// stores passwordHash for its owner. The token and every other pending token
// of that user are deleted in the same transaction. It returns uuid.Nil when
// no token matched.
func (r *UserRepository) ConsumeToken(ctx context.Context, hash string, purposes []TokenPurpose, now time.Time, passwordHash string) (uuid.UUID, error) {
	allowed := make([]string, len(purposes))
	for i, p := range purposes {
		allowed[i] = string(p)
	}

	var userID uuid.UUID
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &userID, `
			DELETE FROM password_tokens
			WHERE token_hash = $1 AND purpose = ANY($2) AND expires_at > $3
			RETURNING user_id
		`, hash, pq.Array(allowed), now)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("consume password token: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
		`, userID, passwordHash, now); err != nil {
			return fmt.Errorf("store password for %s: %w", userID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM password_tokens WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("drop password tokens for %s: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return userID, nil
}
