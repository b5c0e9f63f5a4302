package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending                 Status = "pending"
	StatusAccepted                Status = "accepted"
	StatusInPreparation           Status = "in_preparation"
	StatusOutForDelivery          Status = "out_for_delivery"
	StatusDelivered               Status = "delivered"
	StatusAwaitingEquipmentReturn Status = "awaiting_equipment_return"
	StatusCompleted               Status = "completed"
	StatusCancelled               Status = "cancelled"
)

// Statuses lists every order status in workflow order.
var Statuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusInPreparation,
	StatusOutForDelivery,
	StatusDelivered,
	StatusAwaitingEquipmentReturn,
	StatusCompleted,
	StatusCancelled,
}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", Validationf("unknown order status %q", s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Pricing is the frozen cost breakdown stored on an order.
type Pricing struct {
	Gross           decimal.Decimal `json:"gross" db:"gross"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	Net             decimal.Decimal `json:"net" db:"net"`
	DistanceUsed    decimal.Decimal `json:"distance_used" db:"distance_used"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee" db:"delivery_fee"`
	Total           decimal.Decimal `json:"total" db:"total"`
}

type Order struct {
	Number        string    `json:"number" db:"number"`
	CustomerID    uuid.UUID `json:"customer_id" db:"customer_id"`
	CustomerEmail string    `json:"customer_email" db:"customer_email"`

	MenuID     int64           `json:"menu_id" db:"menu_id"`
	MenuTitle  string          `json:"menu_title" db:"menu_title"`
	UnitPrice  decimal.Decimal `json:"unit_price" db:"unit_price"`
	MinPersons int             `json:"min_persons" db:"min_persons"`
	Persons    int             `json:"persons" db:"persons"`

	ServiceDate  time.Time           `json:"service_date" db:"service_date"`
	DeliveryTime *string             `json:"delivery_time,omitempty" db:"delivery_time"`
	Address      string              `json:"address" db:"address"`
	City         string              `json:"city" db:"city"`
	PostalCode   *string             `json:"postal_code,omitempty" db:"postal_code"`
	DistanceKm   decimal.NullDecimal `json:"distance_km" db:"distance_km"`

	Pricing

	LoanRequested bool       `json:"loan_requested" db:"loan_requested"`
	LoanDeadline  *time.Time `json:"loan_deadline,omitempty" db:"loan_deadline"`
	LoanReturned  bool       `json:"loan_returned" db:"loan_returned"`
	LatePenalty   bool       `json:"late_penalty" db:"late_penalty"`

	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type HistoryEntry struct {
	OrderNumber string     `json:"-" db:"order_number"`
	Status      Status     `json:"status" db:"status"`
	ChangedAt   time.Time  `json:"changed_at" db:"changed_at"`
	ActorID     *uuid.UUID `json:"actor_id,omitempty" db:"actor_id"`
	Comment     *string    `json:"comment,omitempty" db:"comment"`
}

type ContactMode string

const (
	ContactModeGSM   ContactMode = "gsm"
	ContactModeEmail ContactMode = "email"
)

func ParseContactMode(s string) (ContactMode, error) {
	switch ContactMode(s) {
	case ContactModeGSM, ContactModeEmail:
		return ContactMode(s), nil
	}
	return "", Validationf("contact mode must be %q or %q", ContactModeGSM, ContactModeEmail)
}

type Cancellation struct {
	OrderNumber string       `json:"order_number" db:"order_number"`
	CancelledBy uuid.UUID    `json:"cancelled_by" db:"cancelled_by"`
	ContactMode *ContactMode `json:"contact_mode,omitempty" db:"contact_mode"`
	Reason      string       `json:"reason" db:"reason"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// OrderSummary is the denormalized record forwarded to analytics for each created order.
type OrderSummary struct {
	OrderNumber string          `json:"order_number"`
	MenuID      int64           `json:"menu_id"`
	MenuTitle   string          `json:"menu_title"`
	Persons     int             `json:"persons"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
}
