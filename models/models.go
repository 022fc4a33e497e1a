package models

import (
	"fmt"
	"math"
	"strings"
)

// ServiceType is a utility category
type ServiceType string

const (
	Electricity ServiceType = "ELECTRICITY"
	Gas         ServiceType = "GAS"
	Water       ServiceType = "WATER"
)

// Values lists every service type in display order.
func Values() []ServiceType {
	return []ServiceType{Electricity, Gas, Water}
}

// ParseServiceType resolves a service type by name, ignoring case and
// surrounding spaces.
func ParseServiceType(name string) (ServiceType, error) {
	t := ServiceType(strings.ToUpper(strings.TrimSpace(name)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownServiceType, name)
	}
	return t, nil
}

func (t ServiceType) Valid() bool {
	switch t {
	case Electricity, Gas, Water:
		return true
	}
	return false
}

func (t ServiceType) String() string {
	return string(t)
}

// UtilityBill represents one charge for one customer and service type
type UtilityBill struct {
	ID               int         `json:"id"`
	Username         string      `json:"username"`
	ServiceType      ServiceType `json:"serviceType"`
	MeterMeasurement float64     `json:"meterMeasurement"`
	Price            float64     `json:"price"`
	Date             string      `json:"date"`
}

// NewUtilityBill stores the given fields as-is. The price is not recomputed.
func NewUtilityBill(id int, username string, t ServiceType, measurement, price float64, date string) UtilityBill {
	return UtilityBill{
		ID:               id,
		Username:         username,
		ServiceType:      t,
		MeterMeasurement: measurement,
		Price:            price,
		Date:             date,
	}
}

// SetMeterMeasurement updates the measurement only. Call SetPrice afterwards to
// keep the price consistent.
func (b *UtilityBill) SetMeterMeasurement(v float64) error {
	if !validMeasurement(v) {
		return ErrInvalidMeasurement
	}
	b.MeterMeasurement = v
	return nil
}

// SetPrice recomputes the price from the current measurement at the table's
// current rates for the bill's service type. The bill is left unchanged on
// error.
func (b *UtilityBill) SetPrice(rates *RateTable) error {
	price, err := ComputePrice(b.MeterMeasurement, rates.Rate(b.ServiceType))
	if err != nil {
		return err
	}
	b.Price = price
	return nil
}

// Validate performs basic validation on the bill fields.
func (b UtilityBill) Validate() error {
	if strings.TrimSpace(b.Username) == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if !b.ServiceType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownServiceType, string(b.ServiceType))
	}
	if !validMeasurement(b.MeterMeasurement) {
		return ErrInvalidMeasurement
	}
	if strings.TrimSpace(b.Date) == "" {
		return fmt.Errorf("%w: date cannot be empty", ErrInvalidInput)
	}
	return nil
}

// Customer represents a registered utility customer and the bills they own
type Customer struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Email        string `json:"email"`

	bills      []UtilityBill
	nextBillID int
}

// EmailKey is the form emails are compared in when checking for duplicates.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NewCustomer(username, passwordHash, email string) *Customer {
	return &Customer{
		Username:     username,
		PasswordHash: passwordHash,
		Email:        email,
		nextBillID:   1,
	}
}

// AddBill appends a bill numbered from this customer's own sequence.
func (c *Customer) AddBill(t ServiceType, measurement float64, date string, rates *RateTable) (UtilityBill, error) {
	if c.nextBillID < 1 {
		c.nextBillID = 1
	}
	bill := NewUtilityBill(c.nextBillID, c.Username, t, measurement, 0, date)
	if err := bill.SetPrice(rates); err != nil {
		return UtilityBill{}, err
	}
	c.nextBillID++
	c.bills = append(c.bills, bill)
	return bill, nil
}

// AttachBill appends a bill whose id was allocated elsewhere and moves the
// customer's own sequence past it.
func (c *Customer) AttachBill(bill UtilityBill) {
	c.bills = append(c.bills, bill)
	if bill.ID >= c.nextBillID {
		c.nextBillID = bill.ID + 1
	}
}

// EditBill changes the measurement of bill id and recomputes its price.
func (c *Customer) EditBill(id int, measurement float64, rates *RateTable) (UtilityBill, error) {
	i := c.indexOf(id)
	if i < 0 {
		return UtilityBill{}, fmt.Errorf("%w: %d", ErrBillNotFound, id)
	}
	edited := c.bills[i]
	if err := edited.SetMeterMeasurement(measurement); err != nil {
		return UtilityBill{}, err
	}
	if err := edited.SetPrice(rates); err != nil {
		return UtilityBill{}, err
	}
	c.bills[i] = edited
	return edited, nil
}

// SetBillPrice overwrites the stored price of bill id.
func (c *Customer) SetBillPrice(id int, price float64) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.bills[i].Price = price
	return true
}

// DeleteBill removes bill id. It reports false when no such bill exists.
func (c *Customer) DeleteBill(id int) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.bills = append(c.bills[:i], c.bills[i+1:]...)
	return true
}

func (c *Customer) FindBill(id int) (UtilityBill, error) {
	i := c.indexOf(id)
	if i < 0 {
		return UtilityBill{}, fmt.Errorf("%w: %d", ErrBillNotFound, id)
	}
	return c.bills[i], nil
}

// Bills returns the customer's bills in insertion order.
func (c *Customer) Bills() []UtilityBill {
	out := make([]UtilityBill, len(c.bills))
	copy(out, c.bills)
	return out
}

func (c *Customer) indexOf(id int) int {
	for i, b := range c.bills {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func validMeasurement(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
