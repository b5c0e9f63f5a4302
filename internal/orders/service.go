// Package orders implements the order lifecycle: quoting, placement, customer
// edits and cancellations, and the staff-driven fulfilment workflow.
package orders

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joao-fontenele/catering-orders/internal/auth"
	"github.com/joao-fontenele/catering-orders/internal/catalog"
	"github.com/joao-fontenele/catering-orders/internal/domain"
	"github.com/joao-fontenele/catering-orders/internal/notify"
	"github.com/joao-fontenele/catering-orders/internal/orderstate"
	"github.com/joao-fontenele/catering-orders/internal/pricing"
	"github.com/joao-fontenele/catering-orders/internal/telemetry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	commentPlaced         = "order placed"
	commentCustomerEdit   = "customer modification"
	reasonCustomerCancel  = "cancelled by customer"
	commentReturnedOnTime = "equipment returned on time"
	commentReturnedLate   = "equipment returned late, penalty applied"
)

type Service struct {
	store   Store
	numbers NumberGenerator
	pricing pricing.Engine
	logger  *zap.Logger

	notifier  Notifier
	analytics AnalyticsSink
	metrics   *telemetry.OrderMetrics

	now           func() time.Time
	loc           *time.Location
	effectTimeout time.Duration
	inflight      sync.WaitGroup
}

type Option func(*Service)

// WithNotifier enables the notification log. Without it no notifications are recorded.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithAnalytics enables forwarding order summaries.
func WithAnalytics(a AnalyticsSink) Option {
	return func(s *Service) { s.analytics = a }
}

func WithMetrics(m *telemetry.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone calendar dates (service dates, loan
// deadlines) are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithEffectTimeout(d time.Duration) Option {
	return func(s *Service) { s.effectTimeout = d }
}

func NewService(store Store, numbers NumberGenerator, engine pricing.Engine, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		numbers:       numbers,
		pricing:       engine,
		logger:        logger,
		now:           time.Now,
		loc:           time.UTC,
		effectTimeout: defaultEffectTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type QuoteInput struct {
	MenuID     int64
	Persons    int
	City       string
	DistanceKm *decimal.Decimal
}

func (s *Service) Quote(ctx context.Context, in QuoteInput) (domain.Pricing, error) {
	menu, err := s.store.Menu(ctx, in.MenuID)
	if err != nil {
		return domain.Pricing{}, err
	}
	if err := checkOrderable(menu, false); err != nil {
		return domain.Pricing{}, err
	}

	p, err := s.pricing.Compute(pricing.Input{
		UnitPrice:  menu.UnitPrice,
		MinPersons: menu.MinPersons,
		Persons:    in.Persons,
		City:       in.City,
		DistanceKm: in.DistanceKm,
	})
	if err != nil {
		return domain.Pricing{}, err
	}

	s.metrics.Quoted(ctx)
	return p, nil
}

type CreateInput struct {
	MenuID        int64
	Persons       int
	ServiceDate   time.Time
	DeliveryTime  *string
	Address       string
	City          string
	PostalCode    *string
	DistanceKm    *decimal.Decimal
	LoanRequested bool
}

func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (*domain.Order, error) {
	if err := s.checkDelivery(in.ServiceDate, in.Address, in.City); err != nil {
		return nil, err
	}

	now := s.now()
	var order *domain.Order
	var effects afterCommit

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		menu, err := tx.MenuForUpdate(ctx, in.MenuID)
		if err != nil {
			return err
		}
		if err := checkOrderable(menu, true); err != nil {
			return err
		}

		p, err := s.pricing.Compute(pricing.Input{
			UnitPrice:  menu.UnitPrice,
			MinPersons: menu.MinPersons,
			Persons:    in.Persons,
			City:       in.City,
			DistanceKm: in.DistanceKm,
		})
		if err != nil {
			return err
		}

		number, err := s.numbers.Next()
		if err != nil {
			return err
		}

		order = &domain.Order{
			Number:        number,
			CustomerID:    actor.ID,
			CustomerEmail: actor.Email,
			MenuID:        menu.ID,
			MenuTitle:     menu.Title,
			UnitPrice:     menu.UnitPrice,
			MinPersons:    menu.MinPersons,
			Persons:       in.Persons,
			ServiceDate:   orderstate.Date(in.ServiceDate),
			DeliveryTime:  in.DeliveryTime,
			Address:       strings.TrimSpace(in.Address),
			City:          strings.TrimSpace(in.City),
			PostalCode:    in.PostalCode,
			DistanceKm:    nullDecimal(in.DistanceKm),
			Pricing:       p,
			Status:        domain.StatusPending,
			CreatedAt:     now.UTC(),
			UpdatedAt:     now.UTC(),
		}
		setLoan(order, in.LoanRequested, now, s.loc)

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, history(order, actor.ID, commentPlaced)); err != nil {
			return err
		}
		if menu.TracksStock() {
			if err := tx.AdjustStock(ctx, menu.ID, -1); err != nil {
				if errors.Is(err, catalog.ErrInsufficientStock) {
					return domain.Validationf("menu is out of stock")
				}
				return err
			}
		}

		placed := *order
		effects.add("order confirmation", s.notify(notify.OrderConfirmation(&placed)))
		effects.add("analytics summary", s.forwardSummary(&placed))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated(ctx, order.MenuID)
	s.dispatch(ctx, effects)
	s.logger.Info("order created",
		zap.String("order_number", order.Number),
		zap.String("customer_id", actor.ID.String()),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// EditInput carries the fields a customer may change; nil means unchanged.
type EditInput struct {
	Persons       *int
	ServiceDate   *time.Time
	DeliveryTime  *string
	Address       *string
	City          *string
	PostalCode    *string
	DistanceKm    *decimal.Decimal
	LoanRequested *bool
}

func (s *Service) Edit(ctx context.Context, actor auth.Identity, number string, in EditInput) (*domain.Order, error) {
	now := s.now()
	var order *domain.Order

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := s.lockOwned(ctx, tx, actor, number)
		if err != nil {
			return err
		}
		if o.Status != domain.StatusPending {
			return domain.InvalidStatef("order can only be modified while %s", domain.StatusPending)
		}

		if in.Persons != nil {
			o.Persons = *in.Persons
		}
		if in.ServiceDate != nil {
			o.ServiceDate = orderstate.Date(*in.ServiceDate)
		}
		if in.DeliveryTime != nil {
			o.DeliveryTime = in.DeliveryTime
		}
		if in.Address != nil {
			o.Address = strings.TrimSpace(*in.Address)
		}
		if in.City != nil {
			o.City = strings.TrimSpace(*in.City)
		}
		if in.PostalCode != nil {
			o.PostalCode = in.PostalCode
		}
		if in.DistanceKm != nil {
			o.DistanceKm = nullDecimal(in.DistanceKm)
		}
		if in.ServiceDate != nil || in.Address != nil || in.City != nil {
			if err := s.checkDelivery(o.ServiceDate, o.Address, o.City); err != nil {
				return err
			}
		}

		var distance *decimal.Decimal
		if o.DistanceKm.Valid {
			distance = &o.DistanceKm.Decimal
		}
		p, err := s.pricing.Compute(pricing.Input{
			UnitPrice:  o.UnitPrice,
			MinPersons: o.MinPersons,
			Persons:    o.Persons,
			City:       o.City,
			DistanceKm: distance,
		})
		if err != nil {
			return err
		}
		o.Pricing = p

		if in.LoanRequested != nil {
			setLoan(o, *in.LoanRequested, now, s.loc)
		}
		o.UpdatedAt = now.UTC()

		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, history(o, actor.ID, commentCustomerEdit)); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order modified by customer", zap.String("order_number", number))
	return order, nil
}

func (s *Service) CancelByCustomer(ctx context.Context, actor auth.Identity, number string) (*domain.Order, error) {
	var order *domain.Order
	var effects afterCommit

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := s.lockOwned(ctx, tx, actor, number)
		if err != nil {
			return err
		}
		if o.Status.Terminal() {
			return domain.OrderClosedf("order %s is %s and can no longer change", o.Number, o.Status)
		}
		if o.Status != domain.StatusPending {
			return domain.InvalidStatef("order can only be cancelled by the customer while %s", domain.StatusPending)
		}

		if err := s.cancel(ctx, tx, o, actor.ID, nil, reasonCustomerCancel); err != nil {
			return err
		}

		cancelled := *o
		effects.add("cancellation notice", s.notify(notify.OrderCancelled(&cancelled, reasonCustomerCancel)))
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Cancelled(ctx, "customer")
	s.dispatch(ctx, effects)
	s.logger.Info("order cancelled by customer", zap.String("order_number", number))
	return order, nil
}

func (s *Service) ChangeStatus(ctx context.Context, actor auth.Identity, number string, target domain.Status, comment string) (*domain.Order, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	now := s.now()
	var order *domain.Order
	var outcome orderstate.Outcome
	var effects afterCommit

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := lockOrder(ctx, tx, number)
		if err != nil {
			return err
		}
		// Closed orders report as closed whatever the target.
		if target == domain.StatusCancelled && !o.Status.Terminal() {
			return domain.Validationf("cancelling requires a contact mode and a reason, use the cancel endpoint")
		}

		outcome, err = orderstate.Transition(o, target, now, s.loc)
		if err != nil {
			return err
		}

		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, history(o, actor.ID, comment)); err != nil {
			return err
		}

		if outcome.Notify {
			s.queueStatusNotification(&effects, o)
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(ctx, string(outcome.From), string(outcome.To))
	s.dispatch(ctx, effects)
	s.logger.Info("order status changed",
		zap.String("order_number", number),
		zap.String("from", string(outcome.From)),
		zap.String("to", string(outcome.To)),
		zap.String("actor_id", actor.ID.String()),
	)
	return order, nil
}

func (s *Service) CancelByStaff(ctx context.Context, actor auth.Identity, number string, mode domain.ContactMode, reason string) (*domain.Order, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if _, err := domain.ParseContactMode(string(mode)); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Validationf("a cancellation reason is required")
	}

	var order *domain.Order
	var effects afterCommit

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := lockOrder(ctx, tx, number)
		if err != nil {
			return err
		}
		if err := s.cancel(ctx, tx, o, actor.ID, &mode, reason); err != nil {
			return err
		}

		cancelled := *o
		effects.add("cancellation notice", s.notify(notify.OrderCancelled(&cancelled, reason)))
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Cancelled(ctx, "staff")
	s.dispatch(ctx, effects)
	s.logger.Info("order cancelled by staff",
		zap.String("order_number", number),
		zap.String("contact_mode", string(mode)),
		zap.String("actor_id", actor.ID.String()),
	)
	return order, nil
}

func (s *Service) MarkMaterialReturned(ctx context.Context, actor auth.Identity, number string) (*domain.Order, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}

	now := s.now()
	var order *domain.Order
	var outcome orderstate.Outcome
	var effects afterCommit

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := lockOrder(ctx, tx, number)
		if err != nil {
			return err
		}

		var late bool
		outcome, late, err = orderstate.SettleReturn(o, now, s.loc)
		if err != nil {
			return err
		}

		comment := commentReturnedOnTime
		if late {
			comment = commentReturnedLate
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, history(o, actor.ID, comment)); err != nil {
			return err
		}

		s.queueStatusNotification(&effects, o)
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(ctx, string(outcome.From), string(outcome.To))
	s.dispatch(ctx, effects)
	s.logger.Info("equipment returned",
		zap.String("order_number", number),
		zap.Bool("late_penalty", order.LatePenalty),
	)
	return order, nil
}

// Details is an order with its audit trail.
type Details struct {
	Order        *domain.Order         `json:"order"`
	History      []domain.HistoryEntry `json:"history"`
	Cancellation *domain.Cancellation  `json:"cancellation,omitempty"`
}

func (s *Service) Get(ctx context.Context, actor auth.Identity, number string) (*Details, error) {
	o, err := s.store.Order(ctx, number)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.NotFoundf("order not found")
	}
	if o.CustomerID != actor.ID && !actor.IsStaff() {
		return nil, domain.Forbiddenf("order belongs to another customer")
	}

	h, err := s.store.History(ctx, number)
	if err != nil {
		return nil, err
	}

	d := &Details{Order: o, History: h}
	if o.Status == domain.StatusCancelled {
		if d.Cancellation, err = s.store.Cancellation(ctx, number); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *Service) ListMine(ctx context.Context, actor auth.Identity) ([]domain.Order, error) {
	return s.store.ListByCustomer(ctx, actor.ID)
}

func (s *Service) List(ctx context.Context, actor auth.Identity, f ListFilter) ([]domain.Order, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Query = strings.TrimSpace(f.Query)
	return s.store.List(ctx, f)
}

// cancel moves o to cancelled, restores its stock unit and writes the
// cancellation record and history entry.
func (s *Service) cancel(ctx context.Context, tx Tx, o *domain.Order, by uuid.UUID, mode *domain.ContactMode, reason string) error {
	menu, err := tx.MenuForUpdate(ctx, o.MenuID)
	if err != nil {
		return err
	}

	if _, err := orderstate.Cancel(o, s.now()); err != nil {
		return err
	}

	if menu != nil && menu.TracksStock() {
		if err := tx.AdjustStock(ctx, menu.ID, 1); err != nil {
			return err
		}
	}
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return err
	}
	if err := tx.InsertCancellation(ctx, domain.Cancellation{
		OrderNumber: o.Number,
		CancelledBy: by,
		ContactMode: mode,
		Reason:      reason,
		CreatedAt:   o.UpdatedAt,
	}); err != nil {
		return err
	}
	return tx.AppendHistory(ctx, history(o, by, reason))
}

func (s *Service) lockOwned(ctx context.Context, tx Tx, actor auth.Identity, number string) (*domain.Order, error) {
	o, err := lockOrder(ctx, tx, number)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != actor.ID {
		return nil, domain.Forbiddenf("order belongs to another customer")
	}
	return o, nil
}

func lockOrder(ctx context.Context, tx Tx, number string) (*domain.Order, error) {
	o, err := tx.OrderForUpdate(ctx, number)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.NotFoundf("order not found")
	}
	return o, nil
}

func (s *Service) checkDelivery(serviceDate time.Time, address, city string) error {
	if serviceDate.IsZero() {
		return domain.Validationf("service_date is required")
	}
	if orderstate.Date(serviceDate).Before(orderstate.Today(s.now(), s.loc)) {
		return domain.Validationf("service_date must not be in the past")
	}
	if strings.TrimSpace(address) == "" {
		return domain.Validationf("address is required")
	}
	if strings.TrimSpace(city) == "" {
		return domain.Validationf("city is required")
	}
	return nil
}

func (s *Service) queueStatusNotification(effects *afterCommit, o *domain.Order) {
	n, ok := notify.StatusChanged(o)
	if !ok {
		return
	}
	effects.add(string(n.Kind)+" notice", s.notify(n))
}

func (s *Service) notify(n notify.Notification) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if s.notifier == nil {
			return nil
		}
		return s.notifier.Record(ctx, n)
	}
}

func (s *Service) forwardSummary(o *domain.Order) func(ctx context.Context) error {
	summary := domain.OrderSummary{
		OrderNumber: o.Number,
		MenuID:      o.MenuID,
		MenuTitle:   o.MenuTitle,
		Persons:     o.Persons,
		Total:       o.Total,
		CreatedAt:   o.CreatedAt,
	}
	return func(ctx context.Context) error {
		if s.analytics == nil {
			return nil
		}
		return s.analytics.RecordOrderSummary(ctx, summary)
	}
}

func checkOrderable(menu *domain.Menu, needStock bool) error {
	if menu == nil {
		return domain.NotFoundf("menu not found")
	}
	if !menu.Active {
		return domain.Validationf("menu is not available")
	}
	if needStock && menu.TracksStock() && *menu.Stock <= 0 {
		return domain.Validationf("menu is out of stock")
	}
	return nil
}

// setLoan applies the loan toggle. Turning the loan on sets a deadline if
// none exists; turning it off clears every loan field.
func setLoan(o *domain.Order, requested bool, now time.Time, loc *time.Location) {
	if !requested {
		o.LoanRequested = false
		o.LoanDeadline = nil
		o.LoanReturned = false
		o.LatePenalty = false
		return
	}
	o.LoanRequested = true
	if o.LoanDeadline == nil {
		d := orderstate.LoanDeadline(now, loc)
		o.LoanDeadline = &d
	}
}

func history(o *domain.Order, actor uuid.UUID, comment string) domain.HistoryEntry {
	h := domain.HistoryEntry{
		OrderNumber: o.Number,
		Status:      o.Status,
		ChangedAt:   o.UpdatedAt,
		ActorID:     &actor,
	}
	if c := strings.TrimSpace(comment); c != "" {
		h.Comment = &c
	}
	return h
}

// nullDecimal keeps a distance at the precision the orders table stores.
func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: pricing.Round2(*d), Valid: true}
}

func requireStaff(actor auth.Identity) error {
	if !actor.IsStaff() {
		return domain.Forbiddenf("staff role required")
	}
	return nil
}
