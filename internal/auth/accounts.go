package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/notify"
)

const (
	resetTokenTTL  = time.Hour
	inviteTokenTTL = 72 * time.Hour

	minPasswordLength = 10

	// never a valid bcrypt hash, so nobody can sign in until a password is set
	unusableHash = "!"
)

type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	ListByRole(ctx context.Context, role Role) ([]User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, p ProfileUpdate, at time.Time) (*User, error)
	SetActive(ctx context.Context, id uuid.UUID, role Role, active bool, at time.Time) (*User, error)
	SaveToken(ctx context.Context, t PasswordToken) error
	ConsumeToken(ctx context.Context, hash string, purposes []TokenPurpose, now time.Time, passwordHash string) (uuid.UUID, error)
}

type Notifier interface {
	Record(ctx context.Context, n notify.Notification) error
}

type AccountsOption func(*Accounts)

func WithNotifier(n Notifier) AccountsOption {
	return func(a *Accounts) { a.notifier = n }
}

// Accounts registers users, exchanges credentials for bearer tokens and
// manages password changes and staff accounts.
type Accounts struct {
	users    UserStore
	tokens   *Tokens
	notifier Notifier
	cost     int
	logger   *zap.Logger
	now      func() time.Time

	// compared against when the e-mail is unknown so both paths cost a bcrypt round
	decoyHash []byte
}

func NewAccounts(users UserStore, tokens *Tokens, cost int, logger *zap.Logger, opts ...AccountsOption) *Accounts {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	decoy, _ := bcrypt.GenerateFromPassword([]byte("decoy-password"), cost)
	a := &Accounts{
		users:     users,
		tokens:    tokens,
		cost:      cost,
		logger:    logger,
		now:       time.Now,
		decoyHash: decoy,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
}

func (a *Accounts) Register(ctx context.Context, in Registration) (Identity, error) {
	if err := checkPassword(in.Password); err != nil {
		return Identity{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return Identity{}, err
	}

	u := a.newUser(in.Email, in.FirstName, in.LastName, in.Phone, RoleCustomer, string(hash))
	if err := a.users.Create(ctx, u); err != nil {
		return Identity{}, err
	}

	a.logger.Info("customer registered", zap.String("user_id", u.ID.String()))
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}, nil
}

func (a *Accounts) newUser(email, firstName, lastName string, phone *string, role Role, hash string) *User {
	return &User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Phone:        phone,
		Role:         role,
		Active:       true,
		CreatedAt:    a.now().UTC(),
	}
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Identity  `json:"user"`
}

// Login refuses unknown e-mails, wrong passwords and deactivated accounts
// with the same error.
func (a *Accounts) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := a.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return Session{}, err
	}

	hash := a.decoyHash
	if u != nil {
		hash = []byte(u.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || u == nil || !u.Active {
		return Session{}, domain.Unauthenticatedf("invalid credentials")
	}

	id := Identity{ID: u.ID, Email: u.Email, Role: u.Role}
	token, exp, err := a.tokens.Issue(id)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: id}, nil
}

// ForgotPassword issues a reset token when email belongs to an active
// account. The caller sees the same outcome whether or not it does, so
// failures past input validation are only logged.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) {
	u, err := a.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		a.logger.Error("password reset lookup failed", zap.Error(err))
		return
	}
	if u == nil || !u.Active {
		return
	}

	token, expires, err := a.issueToken(ctx, u.ID, PurposeReset, resetTokenTTL)
	if err != nil {
		a.logger.Error("password reset token not issued", zap.String("user_id", u.ID.String()), zap.Error(err))
		return
	}
	a.notify(ctx, notify.PasswordReset(u.Email, u.ID.String(), token, expires))
	a.logger.Info("password reset requested", zap.String("user_id", u.ID.String()))
}

// ResetPassword redeems a token issued by ForgotPassword.
func (a *Accounts) ResetPassword(ctx context.Context, token, password string) error {
	return a.redeem(ctx, token, password, PurposeReset)
}

// SetPassword redeems either a reset token or a staff invitation.
func (a *Accounts) SetPassword(ctx context.Context, token, password string) error {
	return a.redeem(ctx, token, password, PurposeReset, PurposeInvite)
}

func (a *Accounts) redeem(ctx context.Context, token, password string, purposes ...TokenPurpose) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return err
	}

	userID, err := a.users.ConsumeToken(ctx, hashToken(token), purposes, a.now().UTC(), string(hash))
	if err != nil {
		return err
	}
	if userID == uuid.Nil {
		return domain.Validationf("invalid or expired token")
	}

	a.logger.Info("password changed", zap.String("user_id", userID.String()))
	return nil
}

func (a *Accounts) issueToken(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, ttl time.Duration) (string, time.Time, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, err
	}
	token := hex.EncodeToString(raw)
	expires := a.now().UTC().Add(ttl)

	if err := a.users.SaveToken(ctx, PasswordToken{
		UserID:    userID,
		Hash:      hashToken(token),
		Purpose:   purpose,
		ExpiresAt: expires,
	}); err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

func (a *Accounts) notify(ctx context.Context, n notify.Notification) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Record(ctx, n); err != nil {
		a.logger.Warn("notification not recorded", zap.String("kind", string(n.Kind)), zap.Error(err))
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func checkPassword(pw string) error {
	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsSpace(r):
			symbol = true
		}
	}
	if len([]rune(pw)) < minPasswordLength || !lower || !upper || !digit || !symbol {
		return domain.Validationf("password must be at least %d characters long and contain lower and upper case letters, a digit and a symbol", minPasswordLength)
	}
	return nil
}

func (a *Accounts) Profile(ctx context.Context, id uuid.UUID) (Profile, error) {
	u, err := a.users.GetByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if u == nil {
		return Profile{}, domain.NotFoundf("user not found")
	}
	return u.Profile(), nil
}

func (a *Accounts) UpdateProfile(ctx context.Context, id uuid.UUID, p ProfileUpdate) (Profile, error) {
	for _, name := range []**string{&p.FirstName, &p.LastName} {
		if *name == nil {
			continue
		}
		trimmed := strings.TrimSpace(**name)
		if trimmed == "" {
			return Profile{}, domain.Validationf("names cannot be blank")
		}
		*name = &trimmed
	}

	u, err := a.users.UpdateProfile(ctx, id, p, a.now().UTC())
	if err != nil {
		return Profile{}, err
	}
	if u == nil {
		return Profile{}, domain.NotFoundf("user not found")
	}
	return u.Profile(), nil
}

type NewEmployee struct {
	Email     string
	FirstName string
	LastName  string
	Phone     *string
	// Password is optional. Without one the employee is invited to choose it.
	Password string
}

func (a *Accounts) CreateEmployee(ctx context.Context, in NewEmployee) (Profile, error) {
	hash := unusableHash
	if in.Password != "" {
		if err := checkPassword(in.Password); err != nil {
			return Profile{}, err
		}
		b, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
		if err != nil {
			return Profile{}, err
		}
		hash = string(b)
	}

	u := a.newUser(in.Email, in.FirstName, in.LastName, in.Phone, RoleEmployee, hash)
	if err := a.users.Create(ctx, u); err != nil {
		return Profile{}, err
	}
	a.logger.Info("employee created", zap.String("user_id", u.ID.String()))

	if in.Password != "" {
		a.notify(ctx, notify.EmployeeCreated(u.Email, u.FirstName, u.ID.String()))
		return u.Profile(), nil
	}

	token, expires, err := a.issueToken(ctx, u.ID, PurposeInvite, inviteTokenTTL)
	if err != nil {
		// The account exists; a password reset gets the employee in.
		a.logger.Error("employee invitation not issued", zap.String("user_id", u.ID.String()), zap.Error(err))
		return u.Profile(), nil
	}
	a.notify(ctx, notify.EmployeeInvite(u.Email, u.FirstName, u.ID.String(), token, expires))
	return u.Profile(), nil
}

func (a *Accounts) Employees(ctx context.Context) ([]Profile, error) {
	users, err := a.users.ListByRole(ctx, RoleEmployee)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, len(users))
	for i := range users {
		out[i] = users[i].Profile()
	}
	return out, nil
}

// SetEmployeeActive switches an employee account on or off. Bearer tokens
// already issued stay valid until they expire.
func (a *Accounts) SetEmployeeActive(ctx context.Context, id uuid.UUID, active bool) (Profile, error) {
	u, err := a.users.SetActive(ctx, id, RoleEmployee, active, a.now().UTC())
	if err != nil {
		return Profile{}, err
	}
	if u == nil {
		return Profile{}, domain.NotFoundf("employee not found")
	}
	a.logger.Info("employee activation changed", zap.String("user_id", id.String()), zap.Bool("active", active))
	return u.Profile(), nil
}
