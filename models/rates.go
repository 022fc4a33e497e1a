package models

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MaxCharge is the largest unit or service charge accepted.
const MaxCharge = 1e9

// Rate holds the charges applied to one service type.
type Rate struct {
	UnitCharge    float64 `json:"unitCharge" yaml:"unit_charge" mapstructure:"unit_charge"`
	ServiceCharge float64 `json:"serviceCharge" yaml:"service_charge" mapstructure:"service_charge"`
}

// Validate reports whether both charges are usable.
func (r Rate) Validate() error {
	if !validCharge(r.UnitCharge) || !validCharge(r.ServiceCharge) {
		return ErrInvalidCharge
	}
	return nil
}

// DefaultRates returns the charges a fresh installation starts with.
func DefaultRates() map[ServiceType]Rate {
	return map[ServiceType]Rate{
		Electricity: {UnitCharge: 0.12, ServiceCharge: 10.0},
		Gas:         {UnitCharge: 0.08, ServiceCharge: 15.0},
		Water:       {UnitCharge: 0.05, ServiceCharge: 20.0},
	}
}

// RateTable is the pricing configuration consulted by every price computation.
// It is passed explicitly; there is no package-level instance.
type RateTable struct {
	rates map[ServiceType]Rate
}

// NewRateTable builds a table from the given rates. Service types missing from
// rates get their default charges.
func NewRateTable(rates map[ServiceType]Rate) (*RateTable, error) {
	defaults := DefaultRates()
	table := &RateTable{rates: make(map[ServiceType]Rate, len(defaults))}
	for _, t := range Values() {
		table.rates[t] = defaults[t]
	}
	for t, r := range rates {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownServiceType, string(t))
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", t, err)
		}
		table.rates[t] = r
	}
	return table, nil
}

// DefaultRateTable returns a table holding DefaultRates.
func DefaultRateTable() *RateTable {
	table, _ := NewRateTable(nil)
	return table
}

func (rt *RateTable) Rate(t ServiceType) Rate {
	return rt.rates[t]
}

func (rt *RateTable) UnitCharge(t ServiceType) float64 {
	return rt.rates[t].UnitCharge
}

func (rt *RateTable) ServiceCharge(t ServiceType) float64 {
	return rt.rates[t].ServiceCharge
}

// Set replaces both charges of t.
func (rt *RateTable) Set(t ServiceType, r Rate) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownServiceType, string(t))
	}
	if err := r.Validate(); err != nil {
		return err
	}
	rt.rates[t] = r
	return nil
}

// SetUnitCharge replaces the per-unit charge of t.
func (rt *RateTable) SetUnitCharge(t ServiceType, v float64) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownServiceType, string(t))
	}
	if !validCharge(v) {
		return ErrInvalidCharge
	}
	r := rt.rates[t]
	r.UnitCharge = v
	rt.rates[t] = r
	return nil
}

// SetServiceCharge replaces the flat service charge of t.
func (rt *RateTable) SetServiceCharge(t ServiceType, v float64) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownServiceType, string(t))
	}
	if !validCharge(v) {
		return ErrInvalidCharge
	}
	r := rt.rates[t]
	r.ServiceCharge = v
	rt.rates[t] = r
	return nil
}

// Rates returns a copy of the table contents.
func (rt *RateTable) Rates() map[ServiceType]Rate {
	out := make(map[ServiceType]Rate, len(rt.rates))
	for t, r := range rt.rates {
		out[t] = r
	}
	return out
}

func (rt *RateTable) Clone() *RateTable {
	return &RateTable{rates: rt.Rates()}
}

// ComputePrice returns measurement*UnitCharge + ServiceCharge, evaluated in
// decimal so the stored float is the closest value to the exact result.
// A result that does not fit in a float64 is rejected.
func ComputePrice(measurement float64, rate Rate) (float64, error) {
	if !validMeasurement(measurement) {
		return 0, ErrInvalidMeasurement
	}
	if err := rate.Validate(); err != nil {
		return 0, err
	}
	price := decimal.NewFromFloat(measurement).
		Mul(decimal.NewFromFloat(rate.UnitCharge)).
		Add(decimal.NewFromFloat(rate.ServiceCharge))
	f, _ := price.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: price out of range", ErrInvalidMeasurement)
	}
	return f, nil
}

func validCharge(v float64) bool {
	return v >= 0 && v <= MaxCharge && !math.IsNaN(v)
}

// SumPrices adds the stored prices of bills in decimal.
func SumPrices(bills []UtilityBill) float64 {
	total := decimal.Zero
	for _, b := range bills {
		total = total.Add(decimal.NewFromFloat(b.Price))
	}
	f, _ := total.Float64()
	return f
}
