package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// RatePolicy supplies the tax and service charge rates of an outlet.
// The engine never decides rates itself.
type RatePolicy interface {
	TaxRate(ctx context.Context, outletID string) (decimal.Decimal, error)
	ServiceChargeRate(ctx context.Context, outletID string) (decimal.Decimal, error)
}

// FixedRates applies the same rates to every outlet.
type FixedRates struct {
	Tax           decimal.Decimal
	ServiceCharge decimal.Decimal
}

// NewFixedRates validates both rates.
func NewFixedRates(tax, serviceCharge decimal.Decimal) (FixedRates, error) {
	if err := validateRate("tax_rate", tax); err != nil {
		return FixedRates{}, err
	}
	if err := validateRate("service_charge_rate", serviceCharge); err != nil {
		return FixedRates{}, err
	}
	return FixedRates{Tax: tax, ServiceCharge: serviceCharge}, nil
}

func (f FixedRates) TaxRate(context.Context, string) (decimal.Decimal, error) {
	return f.Tax, nil
}

func (f FixedRates) ServiceChargeRate(context.Context, string) (decimal.Decimal, error) {
	return f.ServiceCharge, nil
}
