package orders

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joao-fontenele/catering-orders/internal/catalog"
	"github.com/joao-fontenele/catering-orders/internal/domain"
)

// memStore is an in-memory Store. WithinTx serializes transactions and
// applies a transaction's writes only when fn succeeds.
type memStore struct {
	mu    sync.Mutex
	state memState

	// failOn makes the named Tx method fail, to exercise rollback.
	failOn string
}

type memState struct {
	menus         map[int64]domain.Menu
	orders        map[string]domain.Order
	history       []domain.HistoryEntry
	cancellations map[string]domain.Cancellation
}

func newMemStore(menus ...domain.Menu) *memStore {
	s := &memStore{state: memState{
		menus:         map[int64]domain.Menu{},
		orders:        map[string]domain.Order{},
		cancellations: map[string]domain.Cancellation{},
	}}
	for _, m := range menus {
		s.state.menus[m.ID] = m
	}
	return s
}

func (st memState) clone() memState {
	c := memState{
		menus:         make(map[int64]domain.Menu, len(st.menus)),
		orders:        make(map[string]domain.Order, len(st.orders)),
		history:       slices.Clone(st.history),
		cancellations: make(map[string]domain.Cancellation, len(st.cancellations)),
	}
	for k, v := range st.menus {
		if v.Stock != nil {
			n := *v.Stock
			v.Stock = &n
		}
		c.menus[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.cancellations {
		c.cancellations[k] = v
	}
	return c
}

var errInjected = errors.New("injected failure")

func (s *memStore) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone(), failOn: s.failOn}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *memStore) Menu(_ context.Context, id int64) (*domain.Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.menus[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *memStore) Order(_ context.Context, number string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[number]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *memStore) History(_ context.Context, number string) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.HistoryEntry{}
	for _, h := range s.state.history {
		if h.OrderNumber == number {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *memStore) Cancellation(_ context.Context, number string) (*domain.Cancellation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.cancellations[number]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memStore) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]domain.Order, error) {
	return s.filter(func(o domain.Order) bool { return o.CustomerID == customerID }), nil
}

func (s *memStore) List(_ context.Context, f ListFilter) ([]domain.Order, error) {
	q := strings.ToLower(f.Query)
	out := s.filter(func(o domain.Order) bool {
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, o.Status) {
			return false
		}
		return q == "" || strings.Contains(strings.ToLower(o.Number), q) || strings.Contains(strings.ToLower(o.CustomerEmail), q)
	})
	if f.Offset >= len(out) {
		return []domain.Order{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) filter(keep func(domain.Order) bool) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Order{}
	for _, o := range s.state.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *memStore) stock(menuID int64) *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.menus[menuID].Stock
}

type memTx struct {
	state  memState
	failOn string
}

func (t *memTx) fail(op string) error {
	if t.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memTx) MenuForUpdate(_ context.Context, id int64) (*domain.Menu, error) {
	if err := t.fail("MenuForUpdate"); err != nil {
		return nil, err
	}
	m, ok := t.state.menus[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (t *memTx) AdjustStock(_ context.Context, menuID int64, delta int) error {
	if err := t.fail("AdjustStock"); err != nil {
		return err
	}
	m := t.state.menus[menuID]
	if m.Stock == nil || *m.Stock+delta < 0 {
		return catalog.ErrInsufficientStock
	}
	n := *m.Stock + delta
	m.Stock = &n
	t.state.menus[menuID] = m
	return nil
}

func (t *memTx) OrderForUpdate(_ context.Context, number string) (*domain.Order, error) {
	if err := t.fail("OrderForUpdate"); err != nil {
		return nil, err
	}
	o, ok := t.state.orders[number]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *domain.Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	if _, ok := t.state.orders[o.Number]; ok {
		return domain.Conflictf("order number %s already exists, please retry", o.Number)
	}
	t.state.orders[o.Number] = *o
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *domain.Order) error {
	if err := t.fail("UpdateOrder"); err != nil {
		return err
	}
	t.state.orders[o.Number] = *o
	return nil
}

func (t *memTx) AppendHistory(_ context.Context, h domain.HistoryEntry) error {
	if err := t.fail("AppendHistory"); err != nil {
		return err
	}
	t.state.history = append(t.state.history, h)
	return nil
}

func (t *memTx) InsertCancellation(_ context.Context, c domain.Cancellation) error {
	if err := t.fail("InsertCancellation"); err != nil {
		return err
	}
	if _, ok := t.state.cancellations[c.OrderNumber]; ok {
		return domain.OrderClosedf("order %s is already cancelled", c.OrderNumber)
	}
	t.state.cancellations[c.OrderNumber] = c
	return nil
}
