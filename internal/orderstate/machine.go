// Package orderstate holds the order status workflow: the transition table,
// the equipment-loan guards and the material-return settlement.
package orderstate

import (
	"slices"
	"time"

	"github.com/joao-fontenele/catering-orders/internal/domain"
)

// LoanPeriod is the number of days a customer has to return loaned equipment.
const LoanPeriod = 10

var transitions = map[domain.Status][]domain.Status{
	domain.StatusPending:                 {domain.StatusAccepted, domain.StatusCancelled},
	domain.StatusAccepted:                {domain.StatusInPreparation, domain.StatusCancelled},
	domain.StatusInPreparation:           {domain.StatusOutForDelivery, domain.StatusCancelled},
	domain.StatusOutForDelivery:          {domain.StatusDelivered},
	domain.StatusDelivered:               {domain.StatusAwaitingEquipmentReturn, domain.StatusCompleted},
	domain.StatusAwaitingEquipmentReturn: {domain.StatusCompleted},
	domain.StatusCompleted:               {},
	domain.StatusCancelled:               {},
}

// AllowedNext returns the statuses reachable from s in one step. Terminal and
// unknown statuses have none.
func AllowedNext(s domain.Status) []domain.Status {
	return slices.Clone(transitions[s])
}

// Table returns the full transition table.
func Table() map[domain.Status][]domain.Status {
	out := make(map[domain.Status][]domain.Status, len(transitions))
	for from, to := range transitions {
		out[from] = slices.Clone(to)
	}
	return out
}

func CanTransition(from, to domain.Status) bool {
	return slices.Contains(transitions[from], to)
}

// Outcome reports side effects the caller must carry out after a successful
// transition is persisted.
type Outcome struct {
	From   domain.Status
	To     domain.Status
	Notify bool
}

// Transition moves o to target if the table and the loan guards allow it.
// o is left untouched on error.
func Transition(o *domain.Order, target domain.Status, now time.Time, loc *time.Location) (Outcome, error) {
	from := o.Status
	if from.Terminal() {
		return Outcome{}, domain.OrderClosedf("order %s is %s and can no longer change", o.Number, from)
	}
	if !CanTransition(from, target) {
		return Outcome{}, domain.InvalidTransitionf("cannot move order from %s to %s", from, target)
	}

	switch target {
	case domain.StatusAwaitingEquipmentReturn:
		if !o.LoanRequested {
			return Outcome{}, domain.InvalidTransitionf("no equipment loan was requested for this order")
		}
	case domain.StatusCompleted:
		if o.LoanRequested && !o.LoanReturned {
			return Outcome{}, domain.InvalidTransitionf("material not returned yet")
		}
	}

	o.Status = target
	o.UpdatedAt = now
	if target == domain.StatusAwaitingEquipmentReturn && o.LoanDeadline == nil {
		deadline := LoanDeadline(now, loc)
		o.LoanDeadline = &deadline
	}

	return Outcome{
		From:   from,
		To:     target,
		Notify: target == domain.StatusAwaitingEquipmentReturn || target == domain.StatusCompleted,
	}, nil
}

// Cancel moves o to cancelled from any non-terminal status. Staff may cancel
// orders the transition table would not let them move otherwise.
func Cancel(o *domain.Order, now time.Time) (Outcome, error) {
	from := o.Status
	if from.Terminal() {
		return Outcome{}, domain.OrderClosedf("order %s is %s and can no longer change", o.Number, from)
	}
	o.Status = domain.StatusCancelled
	o.UpdatedAt = now
	return Outcome{From: from, To: domain.StatusCancelled}, nil
}

// SettleReturn records returned equipment, flags a late return and completes
// the order. It reports whether the late penalty applies.
func SettleReturn(o *domain.Order, now time.Time, loc *time.Location) (Outcome, bool, error) {
	if o.Status.Terminal() {
		return Outcome{}, false, domain.OrderClosedf("order %s is %s and can no longer change", o.Number, o.Status)
	}
	if o.Status != domain.StatusAwaitingEquipmentReturn {
		return Outcome{}, false, domain.InvalidStatef("equipment return can only be recorded while the order is %s", domain.StatusAwaitingEquipmentReturn)
	}
	if !o.LoanRequested {
		return Outcome{}, false, domain.InvalidStatef("no equipment loan was requested for this order")
	}

	settled := *o
	settled.LoanReturned = true
	settled.LatePenalty = o.LoanDeadline != nil && Today(now, loc).After(Date(*o.LoanDeadline))

	out, err := Transition(&settled, domain.StatusCompleted, now, loc)
	if err != nil {
		return Outcome{}, false, err
	}
	*o = settled
	return out, settled.LatePenalty, nil
}

// LoanDeadline is the return deadline for equipment loaned on now's date.
func LoanDeadline(now time.Time, loc *time.Location) time.Time {
	return Today(now, loc).AddDate(0, 0, LoanPeriod)
}

// Today is now's calendar date in loc, as midnight UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(now.In(loc))
}

// Date truncates t to its calendar date, as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
