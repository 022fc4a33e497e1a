package store

import (
	"context"
	"errors"
	"fmt"

	"go-utility/models"
)

var (
	// ErrNoData is returned by a Repository when nothing has been saved yet.
	ErrNoData = errors.New("no data saved")
	// ErrPersistence wraps every failure to load or save state.
	ErrPersistence = errors.New("persistence failure")
)

// CustomerRecord is the persisted form of a customer. Bills live in the
// ledger and are not repeated here.
type CustomerRecord struct {
	Username     string `json:"username" gorm:"primaryKey"`
	PasswordHash string `json:"passwordHash" gorm:"not null"`
	Email        string `json:"email" gorm:"not null;uniqueIndex"`
}

// Repository loads and saves the whole application state. Every Save call
// replaces what was stored before.
type Repository interface {
	LoadBills(ctx context.Context) (BillSnapshot, error)
	SaveBills(ctx context.Context, snap BillSnapshot) error
	LoadCustomers(ctx context.Context) ([]CustomerRecord, error)
	SaveCustomers(ctx context.Context, customers []CustomerRecord) error
	LoadRates(ctx context.Context) (map[models.ServiceType]models.Rate, error)
	SaveRates(ctx context.Context, rates map[models.ServiceType]models.Rate) error
	Close() error
}

// Config selects and configures a Repository backend.
type Config struct {
	Driver     string `mapstructure:"driver"`
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the Repository named by cfg.Driver.
func Open(cfg Config) (Repository, error) {
	switch cfg.Driver {
	case DriverFile, "":
		repo, err := NewFileRepository(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case DriverSQLite:
		repo, err := OpenSQLRepository(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
