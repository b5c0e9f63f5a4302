package catalog

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/pricing"
)

// largest value menus.unit_price (NUMERIC(10, 2)) accepts
var maxUnitPrice = decimal.RequireFromString("99999999.99")

type MenuInput struct {
	Title       string
	Description string
	UnitPrice   decimal.Decimal
	MinPersons  int
	Stock       *int
	Active      bool
}

// MenuPatch leaves nil fields untouched. UntrackStock clears the stock
// counter and cannot be combined with Stock.
type MenuPatch struct {
	Title        *string
	Description  *string
	UnitPrice    *decimal.Decimal
	MinPersons   *int
	Stock        *int
	UntrackStock bool
	Active       *bool
}

type MenuStore interface {
	Get(ctx context.Context, id int64) (*domain.Menu, error)
	ListAll(ctx context.Context) ([]domain.Menu, error)
	Create(ctx context.Context, in MenuInput) (*domain.Menu, error)
	Update(ctx context.Context, id int64, p MenuPatch) (*domain.Menu, error)
}

// Invalidator drops cached menu listings after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Manager is the back-office side of the catalog.
type Manager struct {
	menus  MenuStore
	cache  Invalidator
	logger *zap.Logger
}

// NewManager accepts a nil cache when listings are not cached.
func NewManager(menus MenuStore, cache Invalidator, logger *zap.Logger) *Manager {
	return &Manager{menus: menus, cache: cache, logger: logger}
}

func (m *Manager) List(ctx context.Context) ([]domain.Menu, error) {
	return m.menus.ListAll(ctx)
}

func (m *Manager) Create(ctx context.Context, in MenuInput) (*domain.Menu, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return nil, domain.Validationf("title is required")
	}
	if err := checkMenuNumbers(&in.UnitPrice, &in.MinPersons, in.Stock); err != nil {
		return nil, err
	}

	menu, err := m.menus.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	m.logger.Info("menu created", zap.Int64("menu_id", menu.ID))
	m.invalidate(ctx)
	return menu, nil
}

func (m *Manager) Update(ctx context.Context, id int64, p MenuPatch) (*domain.Menu, error) {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, domain.Validationf("title cannot be blank")
		}
		p.Title = &title
	}
	if p.UntrackStock && p.Stock != nil {
		return nil, domain.Validationf("stock cannot be set on a menu that stops tracking stock")
	}
	if err := checkMenuNumbers(p.UnitPrice, p.MinPersons, p.Stock); err != nil {
		return nil, err
	}

	menu, err := m.menus.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	if menu == nil {
		return nil, domain.NotFoundf("menu not found")
	}
	m.logger.Info("menu updated", zap.Int64("menu_id", id))
	m.invalidate(ctx)
	return menu, nil
}

// Deactivate hides a menu from the public catalog. Orders already placed
// keep their snapshot.
func (m *Manager) Deactivate(ctx context.Context, id int64) (*domain.Menu, error) {
	inactive := false
	return m.Update(ctx, id, MenuPatch{Active: &inactive})
}

func (m *Manager) invalidate(ctx context.Context) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Invalidate(ctx); err != nil {
		m.logger.Warn("menu cache not invalidated, listing may be stale until it expires", zap.Error(err))
	}
}

func checkMenuNumbers(price *decimal.Decimal, minPersons *int, stock *int) error {
	if price != nil {
		if price.IsNegative() || price.GreaterThan(maxUnitPrice) {
			return domain.Validationf("unit_price must be between 0 and %s", maxUnitPrice.StringFixed(2))
		}
		if !price.Equal(price.Round(2)) {
			return domain.Validationf("unit_price must have at most 2 decimals")
		}
	}
	if minPersons != nil && (*minPersons <= 0 || *minPersons > pricing.MaxPersons) {
		return domain.Validationf("min_persons must be between 1 and %d", pricing.MaxPersons)
	}
	if stock != nil && *stock < 0 {
		return domain.Validationf("stock must be at least 0")
	}
	return nil
}
