package auth

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/notify"
)

const goodPassword = "Sup3r-secret"

type memUsers struct {
	mu     sync.Mutex
	users  map[string]*User
	tokens map[string]PasswordToken
}

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.users == nil {
		m.users = map[string]*User{}
	}
	if _, ok := m.users[u.Email]; ok {
		return domain.Conflictf("email already registered")
	}
	cp := *u
	m.users[u.Email] = &cp
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyOf(m.users[strings.ToLower(email)]), nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyOf(m.byID(id)), nil
}

func (m *memUsers) ListByRole(_ context.Context, role Role) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []User{}
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	slices.SortFunc(out, func(a, b User) int { return strings.Compare(a.Email, b.Email) })
	return out, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, id uuid.UUID, p ProfileUpdate, at time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(id)
	if u == nil {
		return nil, nil
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Phone != nil {
		u.Phone = p.Phone
	}
	if p.Address != nil {
		u.Address = p.Address
	}
	u.UpdatedAt = at
	return m.copyOf(u), nil
}

func (m *memUsers) SetActive(_ context.Context, id uuid.UUID, role Role, active bool, at time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID(id)
	if u == nil || u.Role != role {
		return nil, nil
	}
	u.Active = active
	u.UpdatedAt = at
	return m.copyOf(u), nil
}

func (m *memUsers) SaveToken(_ context.Context, t PasswordToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string]PasswordToken{}
	}
	m.tokens[t.Hash] = t
	return nil
}

func (m *memUsers) ConsumeToken(_ context.Context, hash string, purposes []TokenPurpose, now time.Time, passwordHash string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok || !slices.Contains(purposes, t.Purpose) || !t.ExpiresAt.After(now) {
		return uuid.Nil, nil
	}
	m.byID(t.UserID).PasswordHash = passwordHash
	for h, other := range m.tokens {
		if other.UserID == t.UserID {
			delete(m.tokens, h)
		}
	}
	return t.UserID, nil
}

func (m *memUsers) byID(id uuid.UUID) *User {
	for _, u := range m.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (m *memUsers) copyOf(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

type memNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (m *memNotifier) Record(_ context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *memNotifier) all() []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

// tokenFrom pulls the raw token out of a notification body.
func tokenFrom(t *testing.T, n notify.Notification) string {
	t.Helper()
	for _, field := range strings.Fields(n.Body) {
		if len(field) == 64 {
			return field
		}
	}
	t.Fatalf("no token in %q", n.Body)
	return ""
}

type accountsFixture struct {
	accounts *Accounts
	users    *memUsers
	notifier *memNotifier
	clock    time.Time
}

func newAccountsFixture() *accountsFixture {
	f := &accountsFixture{
		users:    &memUsers{},
		notifier: &memNotifier{},
		clock:    time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
	f.accounts = NewAccounts(f.users, NewTokens("secret", "catering-orders", time.Hour), bcrypt.MinCost, zap.NewNop(), WithNotifier(f.notifier))
	f.accounts.now = func() time.Time { return f.clock }
	return f
}

func TestAccounts_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokens("secret", "catering-orders", time.Hour)
	accounts := NewAccounts(&memUsers{}, tokens, bcrypt.MinCost, zap.NewNop())

	id, err := accounts.Register(ctx, Registration{Email: " Julie@Example.com ", Password: goodPassword, FirstName: "Julie", LastName: "Martin"})
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, id.Role)
	assert.Equal(t, "julie@example.com", id.Email)

	_, err = accounts.Register(ctx, Registration{Email: "julie@example.com", Password: "An0ther-one!"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	session, err := accounts.Login(ctx, "julie@example.com", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, id, session.User)

	parsed, err := tokens.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestAccounts_LoginFailuresLookTheSame(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture()
	_, err := f.accounts.Register(ctx, Registration{Email: "a@example.com", Password: goodPassword})
	require.NoError(t, err)
	emp, err := f.accounts.CreateEmployee(ctx, NewEmployee{Email: "off@example.com", FirstName: "Off", LastName: "Duty", Password: goodPassword})
	require.NoError(t, err)
	_, err = f.accounts.SetEmployeeActive(ctx, emp.ID, false)
	require.NoError(t, err)

	_, errUnknown := f.accounts.Login(ctx, "nobody@example.com", goodPassword)
	_, errWrong := f.accounts.Login(ctx, "a@example.com", "Wr0ng-password")
	_, errInactive := f.accounts.Login(ctx, "off@example.com", goodPassword)

	require.ErrorIs(t, errUnknown, domain.ErrUnauthenticated)
	require.ErrorIs(t, errWrong, domain.ErrUnauthenticated)
	require.ErrorIs(t, errInactive, domain.ErrUnauthenticated)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Equal(t, errUnknown.Error(), errInactive.Error())
}

func TestAccounts_PasswordPolicy(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{password: goodPassword, ok: true},
		{password: "Ünïcode-P4ss", ok: true},
		{password: "Sh0rt-pw", ok: false},
		{password: "alllower-123", ok: false},
		{password: "ALLUPPER-123", ok: false},
		{password: "No-digits-here", ok: false},
		{password: "NoSymbols1234", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := checkPassword(tt.password)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := newAccountsFixture().accounts.Register(context.Background(), Registration{Email: "weak@example.com", Password: "password1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAccounts_ForgotAndReset(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture()
	_, err := f.accounts.Register(ctx, Registration{Email: "c@example.com", Password: goodPassword, FirstName: "Chloé"})
	require.NoError(t, err)

	f.accounts.ForgotPassword(ctx, "nobody@example.com")
	assert.Empty(t, f.notifier.all(), "unknown addresses get no mail")

	f.accounts.ForgotPassword(ctx, " C@Example.com ")
	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindPasswordReset, sent[0].Kind)
	assert.Equal(t, "c@example.com", sent[0].Recipient)
	token := tokenFrom(t, sent[0])

	f.users.mu.Lock()
	_, storedRaw := f.users.tokens[token]
	_, storedHash := f.users.tokens[hashToken(token)]
	f.users.mu.Unlock()
	assert.False(t, storedRaw, "raw token must not be stored")
	assert.True(t, storedHash)

	err = f.accounts.ResetPassword(ctx, token, "weak")
	require.ErrorIs(t, err, domain.ErrValidation)

	const newPassword = "N3w-password!"
	require.NoError(t, f.accounts.ResetPassword(ctx, token, newPassword))

	_, err = f.accounts.Login(ctx, "c@example.com", goodPassword)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = f.accounts.Login(ctx, "c@example.com", newPassword)
	assert.NoError(t, err)

	err = f.accounts.ResetPassword(ctx, token, "Y3t-another-one")
	assert.ErrorIs(t, err, domain.ErrValidation, "tokens are single-use")
	assert.EqualError(t, err, "invalid or expired token")
}

func TestAccounts_ResetTokenExpires(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture()
	_, err := f.accounts.Register(ctx, Registration{Email: "c@example.com", Password: goodPassword})
	require.NoError(t, err)

	f.accounts.ForgotPassword(ctx, "c@example.com")
	sent := f.notifier.all()
	require.Len(t, sent, 1)

	f.clock = f.clock.Add(resetTokenTTL + time.Second)
	err = f.accounts.ResetPassword(ctx, tokenFrom(t, sent[0]), "N3w-password!")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAccounts_EmployeeInvitation(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture()

	emp, err := f.accounts.CreateEmployee(ctx, NewEmployee{Email: "Lea@Example.com", FirstName: "Léa", LastName: "Roux"})
	require.NoError(t, err)
	assert.Equal(t, RoleEmployee, emp.Role)
	assert.True(t, emp.Active)
	assert.Equal(t, "lea@example.com", emp.Email)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindEmployeeInvite, sent[0].Kind)
	invite := tokenFrom(t, sent[0])

	_, err = f.accounts.Login(ctx, "lea@example.com", "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	err = f.accounts.ResetPassword(ctx, invite, goodPassword)
	assert.ErrorIs(t, err, domain.ErrValidation, "an invitation is not a reset token")

	require.NoError(t, f.accounts.SetPassword(ctx, invite, goodPassword))
	session, err := f.accounts.Login(ctx, "lea@example.com", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, RoleEmployee, session.User.Role)

	_, err = f.accounts.CreateEmployee(ctx, NewEmployee{Email: "lea@example.com", FirstName: "Léa", LastName: "Roux"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAccounts_EmployeeWithPassword(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture()

	_, err := f.accounts.CreateEmployee(ctx, NewEmployee{Email: "max@example.com", FirstName: "Max", LastName: "B", Password: "weakpass"})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.accounts.CreateEmployee(ctx, NewEmployee{Email: "max@example.com", FirstName: "Max", LastName: "B", Password: goodPassword})
	require.NoError(t, err)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindEmployeeCreated, sent[0].Kind)

	_, err = f.accounts.Login(ctx, "max@example.com", goodPassword)
	assert.NoError(t, err)
}

func TestAccounts_SetEmployeeActive(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture()

	customer, err := f.accounts.Register(ctx, Registration{Email: "c@example.com", Password: goodPassword})
	require.NoError(t, err)
	emp, err := f.accounts.CreateEmployee(ctx, NewEmployee{Email: "e@example.com", FirstName: "E", LastName: "Mp", Password: goodPassword})
	require.NoError(t, err)

	off, err := f.accounts.SetEmployeeActive(ctx, emp.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active)

	f.accounts.ForgotPassword(ctx, "e@example.com")
	assert.Len(t, f.notifier.all(), 1, "deactivated accounts get no reset mail")

	on, err := f.accounts.SetEmployeeActive(ctx, emp.ID, true)
	require.NoError(t, err)
	assert.True(t, on.Active)

	_, err = f.accounts.SetEmployeeActive(ctx, customer.ID, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.accounts.SetEmployeeActive(ctx, uuid.New(), false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	employees, err := f.accounts.Employees(ctx)
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, emp.ID, employees[0].ID)
}

func TestAccounts_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture()
	id, err := f.accounts.Register(ctx, Registration{Email: "c@example.com", Password: goodPassword, FirstName: "Chloé", LastName: "Petit"})
	require.NoError(t, err)

	first, addr := "  Zoé ", "12 rue Sainte-Catherine, Bordeaux"
	p, err := f.accounts.UpdateProfile(ctx, id.ID, ProfileUpdate{FirstName: &first, Address: &addr})
	require.NoError(t, err)
	assert.Equal(t, "Zoé", p.FirstName)
	assert.Equal(t, "Petit", p.LastName)
	require.NotNil(t, p.Address)
	assert.Equal(t, addr, *p.Address)
	assert.Equal(t, "  Zoé ", first, "caller input is left alone")

	got, err := f.accounts.Profile(ctx, id.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	blank := "   "
	_, err = f.accounts.UpdateProfile(ctx, id.ID, ProfileUpdate{LastName: &blank})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.accounts.Profile(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
