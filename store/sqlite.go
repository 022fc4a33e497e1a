package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-utility/models"
)

const nextBillIDKey = "next_bill_id"

type billRow struct {
	ID               int    `gorm:"primaryKey;autoIncrement:false"`
	Position         int    `gorm:"not null;index"`
	Username         string `gorm:"not null;index"`
	ServiceType      string `gorm:"not null"`
	MeterMeasurement float64
	Price            float64
	Date             string
}

func (billRow) TableName() string { return "bills" }

type rateRow struct {
	ServiceType   string `gorm:"primaryKey"`
	UnitCharge    float64
	ServiceCharge float64
}

func (rateRow) TableName() string { return "rates" }

type ledgerMeta struct {
	Name  string `gorm:"primaryKey"`
	Value int
}

func (ledgerMeta) TableName() string { return "ledger_meta" }

func (CustomerRecord) TableName() string { return "customers" }

// SQLRepository stores the state in a SQLite database through gorm.
type SQLRepository struct {
	db *gorm.DB
}

// OpenSQLRepository opens (or creates) the database at path and migrates the
// schema.
func OpenSQLRepository(path string) (*SQLRepository, error) {
	if path == "" {
		return nil, errors.New("sqlite path must be specified")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLRepository(db)
}

// NewSQLRepository migrates the schema on db.
func NewSQLRepository(db *gorm.DB) (*SQLRepository, error) {
	if err := db.AutoMigrate(&billRow{}, &CustomerRecord{}, &rateRow{}, &ledgerMeta{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLRepository{db: db}, nil
}

func (r *SQLRepository) LoadBills(ctx context.Context) (BillSnapshot, error) {
	var meta ledgerMeta
	err := r.db.WithContext(ctx).Where("name = ?", nextBillIDKey).First(&meta).Error
	hasMeta := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return BillSnapshot{}, fmt.Errorf("%w: load ledger meta: %v", ErrPersistence, err)
	}

	var rows []billRow
	if err := r.db.WithContext(ctx).Order("position").Find(&rows).Error; err != nil {
		return BillSnapshot{}, fmt.Errorf("%w: load bills: %v", ErrPersistence, err)
	}
	if !hasMeta && len(rows) == 0 {
		return BillSnapshot{}, ErrNoData
	}

	snap := BillSnapshot{NextID: meta.Value, Bills: make([]models.UtilityBill, 0, len(rows))}
	for _, row := range rows {
		snap.Bills = append(snap.Bills, models.NewUtilityBill(
			row.ID, row.Username, models.ServiceType(row.ServiceType), row.MeterMeasurement, row.Price, row.Date,
		))
	}
	return snap, nil
}

func (r *SQLRepository) SaveBills(ctx context.Context, snap BillSnapshot) error {
	rows := make([]billRow, 0, len(snap.Bills))
	for i, b := range snap.Bills {
		rows = append(rows, billRow{
			ID:               b.ID,
			Position:         i,
			Username:         b.Username,
			ServiceType:      string(b.ServiceType),
			MeterMeasurement: b.MeterMeasurement,
			Price:            b.Price,
			Date:             b.Date,
		})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&billRow{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		return tx.Save(&ledgerMeta{Name: nextBillIDKey, Value: snap.NextID}).Error
	})
	if err != nil {
		return fmt.Errorf("%w: save bills: %v", ErrPersistence, err)
	}
	return nil
}

func (r *SQLRepository) LoadCustomers(ctx context.Context) ([]CustomerRecord, error) {
	var customers []CustomerRecord
	if err := r.db.WithContext(ctx).Order("rowid").Find(&customers).Error; err != nil {
		return nil, fmt.Errorf("%w: load customers: %v", ErrPersistence, err)
	}
	if len(customers) == 0 {
		return nil, ErrNoData
	}
	return customers, nil
}

func (r *SQLRepository) SaveCustomers(ctx context.Context, customers []CustomerRecord) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CustomerRecord{}).Error; err != nil {
			return err
		}
		if len(customers) == 0 {
			return nil
		}
		return tx.Create(&customers).Error
	})
	if err != nil {
		return fmt.Errorf("%w: save customers: %v", ErrPersistence, err)
	}
	return nil
}

func (r *SQLRepository) LoadRates(ctx context.Context) (map[models.ServiceType]models.Rate, error) {
	var rows []rateRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: load rates: %v", ErrPersistence, err)
	}
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	rates := make(map[models.ServiceType]models.Rate, len(rows))
	for _, row := range rows {
		rates[models.ServiceType(row.ServiceType)] = models.Rate{
			UnitCharge:    row.UnitCharge,
			ServiceCharge: row.ServiceCharge,
		}
	}
	return rates, nil
}

func (r *SQLRepository) SaveRates(ctx context.Context, rates map[models.ServiceType]models.Rate) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for t, rate := range rates {
			row := rateRow{ServiceType: string(t), UnitCharge: rate.UnitCharge, ServiceCharge: rate.ServiceCharge}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: save rates: %v", ErrPersistence, err)
	}
	return nil
}

func (r *SQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
