package models

import "errors"

var (
	ErrBillNotFound       = errors.New("bill not found")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrDuplicateIdentity  = errors.New("identity already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnknownServiceType = errors.New("unknown service type")
	ErrInvalidCharge      = errors.New("charge must be a number between 0 and 1e9")
	ErrInvalidMeasurement = errors.New("meter measurement must be a non-negative number")
	ErrInvalidInput       = errors.New("invalid input")
)
