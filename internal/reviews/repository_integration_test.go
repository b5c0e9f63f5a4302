//go:build integration

package reviews

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/orders"
	"github.com/joao-fontenele/catering-orders/internal/ordernum"
	"github.com/joao-fontenele/catering-orders/internal/pricing"
	"github.com/joao-fontenele/catering-orders/internal/testutil"
)

func TestRepository_ReviewFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	db := testutil.SetupPostgres(ctx, t)
	customer := auth.Identity{Email: "client@example.com", Role: auth.RoleCustomer}
	customer.ID = testutil.InsertUser(ctx, t, db, customer.Email, string(customer.Role))
	staff := auth.Identity{Email: "staff@example.com", Role: auth.RoleEmployee}
	staff.ID = testutil.InsertUser(ctx, t, db, staff.Email, string(staff.Role))
	menuID := testutil.InsertMenu(ctx, t, db, "Menu Terroir", "20.00", 10, nil)

	orderRepo := orders.NewOrderRepository(db)
	orderSvc := orders.NewService(orderRepo, ordernum.NewGenerator("VG"), pricing.NewEngine("Bordeaux"), zap.NewNop())
	o, err := orderSvc.Create(ctx, customer, orders.CreateInput{
		MenuID: menuID, Persons: 10, ServiceDate: time.Now().AddDate(0, 0, 2), Address: "a", City: "Bordeaux",
	})
	require.NoError(t, err)

	svc := NewService(NewRepository(db), orderRepo, zap.NewNop())

	_, err = svc.Submit(ctx, customer, SubmitInput{OrderNumber: o.Number, Rating: 5})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	for _, s := range []domain.Status{domain.StatusAccepted, domain.StatusInPreparation, domain.StatusOutForDelivery, domain.StatusDelivered, domain.StatusCompleted} {
		_, err := orderSvc.ChangeStatus(ctx, staff, o.Number, s, "")
		require.NoError(t, err)
	}

	rv, err := svc.Submit(ctx, customer, SubmitInput{OrderNumber: o.Number, Rating: 5})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, customer, SubmitInput{OrderNumber: o.Number, Rating: 3})
	require.ErrorIs(t, err, domain.ErrConflict)

	pending, err := svc.Queue(ctx, domain.ReviewPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, err := svc.Moderate(ctx, staff, rv.ID, domain.ReviewApproved)
	require.NoError(t, err)
	assert.Equal(t, staff.ID, *approved.ModeratedBy)

	_, err = svc.Moderate(ctx, staff, rv.ID, domain.ReviewRejected)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	published, err := svc.Published(ctx)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, o.Number, published[0].OrderNumber)
}
