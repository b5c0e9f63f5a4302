// Package pricing computes the cost breakdown of a catering order.
//
// Every caller (quote, create, edit) goes through Engine.Compute so the
// discount and delivery rules live in exactly one place.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/catering-orders/internal/domain"
)

const (
	DefaultZeroFeeCity = "Bordeaux"

	// MaxPersons and MaxDistanceKm bound what an order snapshot can hold.
	MaxPersons    = 10000
	MaxDistanceKm = 10000
)

var (
	bulkDiscountPercent = decimal.NewFromInt(10)
	bulkThreshold       = 5
	deliveryBase        = decimal.RequireFromString("5")
	deliveryPerKm       = decimal.RequireFromString("0.59")
	hundred             = decimal.NewFromInt(100)
	maxDistance         = decimal.NewFromInt(MaxDistanceKm)
	// largest value a NUMERIC(12, 2) amount column accepts
	maxAmount = decimal.RequireFromString("9999999999.99")
)

type Input struct {
	UnitPrice  decimal.Decimal
	MinPersons int
	Persons    int
	City       string
	// DistanceKm is ignored for the zero-fee city and required elsewhere.
	DistanceKm *decimal.Decimal
}

type Engine struct {
	ZeroFeeCity string
}

func NewEngine(zeroFeeCity string) Engine {
	if strings.TrimSpace(zeroFeeCity) == "" {
		zeroFeeCity = DefaultZeroFeeCity
	}
	return Engine{ZeroFeeCity: zeroFeeCity}
}

func (e Engine) IsZeroFeeCity(city string) bool {
	return strings.EqualFold(strings.TrimSpace(city), strings.TrimSpace(e.ZeroFeeCity))
}

func (e Engine) Compute(in Input) (domain.Pricing, error) {
	if in.Persons <= 0 {
		return domain.Pricing{}, domain.Validationf("persons must be a positive number")
	}
	if in.Persons > MaxPersons {
		return domain.Pricing{}, domain.Validationf("persons must be at most %d", MaxPersons)
	}
	if in.Persons < in.MinPersons {
		return domain.Pricing{}, domain.Validationf("persons must be at least %d for this menu", in.MinPersons)
	}

	distance := decimal.Zero
	fee := decimal.Zero
	if !e.IsZeroFeeCity(in.City) {
		if in.DistanceKm == nil {
			return domain.Pricing{}, domain.Validationf("distance_km is required outside %s", e.ZeroFeeCity)
		}
		if in.DistanceKm.IsNegative() {
			return domain.Pricing{}, domain.Validationf("distance_km must not be negative")
		}
		if in.DistanceKm.GreaterThan(maxDistance) {
			return domain.Pricing{}, domain.Validationf("distance_km must be at most %d", MaxDistanceKm)
		}
		// Distances are stored to the cent, so the fee is computed on the stored value.
		distance = Round2(*in.DistanceKm)
		fee = Round2(deliveryBase.Add(deliveryPerKm.Mul(distance)))
	}

	gross := Round2(in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Persons))))

	discountPct := decimal.Zero
	if in.Persons >= in.MinPersons+bulkThreshold {
		discountPct = bulkDiscountPercent
	}
	discount := Round2(gross.Mul(discountPct).Div(hundred))
	net := gross.Sub(discount)
	total := Round2(net.Add(fee))
	if total.GreaterThan(maxAmount) {
		return domain.Pricing{}, domain.Validationf("order amount exceeds the supported maximum")
	}

	return domain.Pricing{
		Gross:           gross,
		DiscountPercent: discountPct,
		DiscountAmount:  discount,
		Net:             net,
		DistanceUsed:    distance,
		DeliveryFee:     fee,
		Total:           total,
	}, nil
}

// Round2 rounds half-up at the cent. Amounts are never negative here, so
// decimal's half-away-from-zero rounding is equivalent.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
