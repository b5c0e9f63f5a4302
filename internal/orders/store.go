package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/notify"
)

// Tx is the unit of work for one lifecycle operation. Reads ending in
// ForUpdate hold a row lock until the transaction ends.
type Tx interface {
	MenuForUpdate(ctx context.Context, id int64) (*domain.Menu, error)
	AdjustStock(ctx context.Context, menuID int64, delta int) error
	OrderForUpdate(ctx context.Context, number string) (*domain.Order, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	UpdateOrder(ctx context.Context, o *domain.Order) error
	AppendHistory(ctx context.Context, h domain.HistoryEntry) error
	InsertCancellation(ctx context.Context, c domain.Cancellation) error
}

type ListFilter struct {
	Statuses []domain.Status
	// Query matches order numbers and customer e-mails, case-insensitively.
	Query  string
	Limit  int
	Offset int
}

type Store interface {
	// WithinTx commits only when fn returns nil.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Menu(ctx context.Context, id int64) (*domain.Menu, error)
	Order(ctx context.Context, number string) (*domain.Order, error)
	History(ctx context.Context, number string) ([]domain.HistoryEntry, error)
	Cancellation(ctx context.Context, number string) (*domain.Cancellation, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Order, error)
	List(ctx context.Context, f ListFilter) ([]domain.Order, error)
}

type NumberGenerator interface {
	Next() (string, error)
}

type Notifier interface {
	Record(ctx context.Context, n notify.Notification) error
}

type AnalyticsSink interface {
	RecordOrderSummary(ctx context.Context, s domain.OrderSummary) error
}
