package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"go-utility/models"
)

const (
	billsFile     = "bills.json"
	customersFile = "customers.json"
	ratesFile     = "rates.yaml"
)

// FileRepository keeps each part of the state in its own file under a data
// directory.
type FileRepository struct {
	dir string
}

// NewFileRepository creates dir if needed.
func NewFileRepository(dir string) (*FileRepository, error) {
	if dir == "" {
		return nil, errors.New("storage directory must be specified")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileRepository{dir: dir}, nil
}

func (r *FileRepository) LoadBills(ctx context.Context) (BillSnapshot, error) {
	var snap BillSnapshot
	if err := r.readJSON(ctx, billsFile, &snap); err != nil {
		return BillSnapshot{}, err
	}
	return snap, nil
}

func (r *FileRepository) SaveBills(ctx context.Context, snap BillSnapshot) error {
	if snap.Bills == nil {
		snap.Bills = []models.UtilityBill{}
	}
	return r.writeJSON(ctx, billsFile, snap)
}

func (r *FileRepository) LoadCustomers(ctx context.Context) ([]CustomerRecord, error) {
	var customers []CustomerRecord
	if err := r.readJSON(ctx, customersFile, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *FileRepository) SaveCustomers(ctx context.Context, customers []CustomerRecord) error {
	if customers == nil {
		customers = []CustomerRecord{}
	}
	return r.writeJSON(ctx, customersFile, customers)
}

func (r *FileRepository) LoadRates(ctx context.Context) (map[models.ServiceType]models.Rate, error) {
	data, err := r.read(ctx, ratesFile)
	if err != nil {
		return nil, err
	}
	rates := make(map[models.ServiceType]models.Rate)
	if err := yaml.Unmarshal(data, &rates); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrPersistence, ratesFile, err)
	}
	return rates, nil
}

func (r *FileRepository) SaveRates(ctx context.Context, rates map[models.ServiceType]models.Rate) error {
	data, err := yaml.Marshal(rates)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, ratesFile, err)
	}
	return r.write(ctx, ratesFile, data)
}

func (r *FileRepository) Close() error {
	return nil
}

func (r *FileRepository) readJSON(ctx context.Context, name string, v any) error {
	data, err := r.read(ctx, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrPersistence, name, err)
	}
	return nil
}

func (r *FileRepository) writeJSON(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, name, err)
	}
	return r.write(ctx, name, data)
}

func (r *FileRepository) read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, name, err)
	}
	return data, nil
}

// write replaces name atomically: the data goes to a temp file in the same
// directory which is then renamed over the target.
func (r *FileRepository) write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrPersistence, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(r.dir, name)); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrPersistence, name, err)
	}
	return nil
}
