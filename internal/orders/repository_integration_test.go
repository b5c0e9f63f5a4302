//go:build integration

package orders

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/notify"
	"github.com/joao-fontenele/catering-orders/internal/ordernum"
	"github.com/joao-fontenele/catering-orders/internal/pricing"
	"github.com/joao-fontenele/catering-orders/internal/testutil"
)

type fixedNumber string

func (f fixedNumber) Next() (string, error) { return string(f), nil }

func setupPostgresService(ctx context.Context, t *testing.T, numbers NumberGenerator) (*Service, *sqlx.DB) {
	t.Helper()
	db := testutil.SetupPostgres(ctx, t)
	svc := NewService(NewOrderRepository(db), numbers, pricing.NewEngine("Bordeaux"), zap.NewNop(),
		WithNotifier(notify.NewRecorder(db)),
	)
	return svc, db
}

func stockOf(ctx context.Context, t *testing.T, db *sqlx.DB, menuID int64) int {
	t.Helper()
	var n int
	require.NoError(t, db.GetContext(ctx, &n, `SELECT stock FROM menus WHERE id = $1`, menuID))
	return n
}

func TestPostgres_OrderLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	svc, db := setupPostgresService(ctx, t, ordernum.NewGenerator("VG"))
	owner := auth.Identity{Email: "client@example.com", Role: auth.RoleCustomer}
	owner.ID = testutil.InsertUser(ctx, t, db, owner.Email, string(owner.Role))
	staff := auth.Identity{Email: "staff@example.com", Role: auth.RoleEmployee}
	staff.ID = testutil.InsertUser(ctx, t, db, staff.Email, string(staff.Role))

	stock := 3
	menuID := testutil.InsertMenu(ctx, t, db, "Menu Terroir", "20.00", 10, &stock)
	postal := "33000"
	deliveryTime := "12:30"

	o, err := svc.Create(ctx, owner, CreateInput{
		MenuID:        menuID,
		Persons:       15,
		ServiceDate:   time.Now().AddDate(0, 0, 14),
		DeliveryTime:  &deliveryTime,
		Address:       "12 cours de l'Intendance",
		City:          "Bordeaux",
		PostalCode:    &postal,
		LoanRequested: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stockOf(ctx, t, db, menuID))

	d, err := svc.Get(ctx, owner, o.Number)
	require.NoError(t, err)
	assert.Equal(t, "270.00", d.Order.Total.StringFixed(2))
	assert.Equal(t, "30.00", d.Order.DiscountAmount.StringFixed(2))
	assert.Equal(t, "12:30", *d.Order.DeliveryTime)
	assert.False(t, d.Order.DistanceKm.Valid)
	require.NotNil(t, d.Order.LoanDeadline)
	require.Len(t, d.History, 1)
	assert.Equal(t, "order placed", *d.History[0].Comment)

	for _, s := range []domain.Status{domain.StatusAccepted, domain.StatusInPreparation, domain.StatusOutForDelivery, domain.StatusDelivered, domain.StatusAwaitingEquipmentReturn} {
		_, err := svc.ChangeStatus(ctx, staff, o.Number, s, "")
		require.NoError(t, err, s)
	}
	_, err = svc.ChangeStatus(ctx, staff, o.Number, domain.StatusCompleted, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	done, err := svc.MarkMaterialReturned(ctx, staff, o.Number)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.False(t, done.LatePenalty)

	require.NoError(t, svc.Drain(ctx))

	var kinds []string
	require.NoError(t, db.SelectContext(ctx, &kinds, `SELECT kind FROM email_log WHERE related_id = $1 ORDER BY id`, o.Number))
	assert.Equal(t, []string{
		string(notify.KindOrderConfirmation),
		string(notify.KindEquipmentReturn),
		string(notify.KindOrderCompleted),
	}, kinds)

	listed, err := svc.List(ctx, staff, ListFilter{Statuses: []domain.Status{domain.StatusCompleted}, Query: "CLIENT@"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, o.Number, listed[0].Number)

	none, err := svc.List(ctx, staff, ListFilter{Statuses: []domain.Status{domain.StatusPending}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPostgres_ConcurrentCancelsRestoreStockOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	svc, db := setupPostgresService(ctx, t, ordernum.NewGenerator("VG"))
	owner := auth.Identity{Email: "client@example.com", Role: auth.RoleCustomer}
	owner.ID = testutil.InsertUser(ctx, t, db, owner.Email, string(owner.Role))

	stock := 1
	menuID := testutil.InsertMenu(ctx, t, db, "Menu Vegan", "18.50", 4, &stock)

	o, err := svc.Create(ctx, owner, CreateInput{
		MenuID: menuID, Persons: 4, ServiceDate: time.Now().AddDate(0, 0, 3),
		Address: "3 rue Sainte-Catherine", City: "Bordeaux",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(ctx, t, db, menuID))

	_, err = svc.Create(ctx, owner, CreateInput{
		MenuID: menuID, Persons: 4, ServiceDate: time.Now().AddDate(0, 0, 3),
		Address: "3 rue Sainte-Catherine", City: "Bordeaux",
	})
	require.ErrorIs(t, err, domain.ErrValidation)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CancelByCustomer(ctx, owner, o.Number); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, 1, stockOf(ctx, t, db, menuID))

	var cancellations int
	require.NoError(t, db.GetContext(ctx, &cancellations, `SELECT count(*) FROM order_cancellations WHERE order_number = $1`, o.Number))
	assert.Equal(t, 1, cancellations)
}

func TestPostgres_FailedCreateLeavesNothingBehind(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	svc, db := setupPostgresService(ctx, t, fixedNumber("VG-1-00000000"))
	owner := auth.Identity{Email: "client@example.com", Role: auth.RoleCustomer}
	owner.ID = testutil.InsertUser(ctx, t, db, owner.Email, string(owner.Role))

	stock := 5
	menuID := testutil.InsertMenu(ctx, t, db, "Menu Terroir", "20.00", 10, &stock)
	in := CreateInput{MenuID: menuID, Persons: 10, ServiceDate: time.Now().AddDate(0, 0, 5), Address: "a", City: "Bordeaux"}

	_, err := svc.Create(ctx, owner, in)
	require.NoError(t, err)

	_, err = svc.Create(ctx, owner, in)
	require.ErrorIs(t, err, domain.ErrConflict)

	assert.Equal(t, 4, stockOf(ctx, t, db, menuID))
	var history int
	require.NoError(t, db.GetContext(ctx, &history, `SELECT count(*) FROM order_status_history`))
	assert.Equal(t, 1, history)
}
