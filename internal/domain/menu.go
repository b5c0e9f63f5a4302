package domain

import "github.com/shopspring/decimal"

// Menu holds the catalog attributes an order is priced against.
// Stock is nil when the menu does not track stock.
type Menu struct {
	ID          int64           `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	Description string          `json:"description" db:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	MinPersons  int             `json:"min_persons" db:"min_persons"`
	Stock       *int            `json:"stock,omitempty" db:"stock"`
	Active      bool            `json:"active" db:"active"`
}

func (m *Menu) TracksStock() bool {
	return m.Stock != nil
}
