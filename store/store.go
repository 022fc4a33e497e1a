package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"go-utility/models"
)

// State is the in-memory application state: customers, the bill ledger and
// the current rates.
type State struct {
	Customers []*models.Customer
	Ledger    *Ledger
	Rates     *models.RateTable
}

// FindCustomer looks a customer up by exact username.
func (st *State) FindCustomer(username string) (*models.Customer, error) {
	for _, c := range st.Customers {
		if c.Username == username {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrCustomerNotFound, username)
}

// RemoveCustomer drops the customer and reports whether it existed.
func (st *State) RemoveCustomer(username string) bool {
	for i, c := range st.Customers {
		if c.Username == username {
			st.Customers = append(st.Customers[:i], st.Customers[i+1:]...)
			return true
		}
	}
	return false
}

// Store guards State with a lock and writes the whole state through a
// Repository after every mutation.
type Store struct {
	mu       sync.RWMutex
	state    State
	repo     Repository
	defaults map[models.ServiceType]models.Rate
	log      *zap.Logger
}

// New returns an empty Store. defaults seeds the rate table when nothing has
// been persisted yet.
func New(repo Repository, defaults map[models.ServiceType]models.Rate, log *zap.Logger) (*Store, error) {
	rates, err := models.NewRateTable(defaults)
	if err != nil {
		return nil, fmt.Errorf("default rates: %w", err)
	}
	return &Store{
		state: State{
			Ledger: NewLedger(),
			Rates:  rates,
		},
		repo:     repo,
		defaults: defaults,
		log:      log.Named("store"),
	}, nil
}

// Load replaces the in-memory state with what the repository holds. Missing
// or unreadable parts start empty (rates start from the defaults); they are
// logged and never returned as errors.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := NewLedger()
	snap, err := s.repo.LoadBills(ctx)
	switch {
	case err == nil:
		if skipped := ledger.Restore(snap); skipped > 0 {
			s.log.Warn("Skipped bills with duplicate ids", zap.Int("skipped", skipped))
		}
	case errors.Is(err, ErrNoData):
		s.log.Info("No saved bills, starting with an empty ledger")
	default:
		s.log.Warn("Failed to load bills, starting with an empty ledger", zap.Error(err))
	}

	var customers []*models.Customer
	records, err := s.repo.LoadCustomers(ctx)
	switch {
	case err == nil:
		customers = buildCustomers(records, ledger, s.log)
	case errors.Is(err, ErrNoData):
		s.log.Info("No saved customers")
	default:
		s.log.Warn("Failed to load customers, starting with none", zap.Error(err))
	}

	rates, err := s.loadRates(ctx)
	if err != nil {
		s.log.Warn("Failed to load rates, using defaults", zap.Error(err))
		rates, _ = models.NewRateTable(s.defaults)
	}

	s.state = State{Customers: customers, Ledger: ledger, Rates: rates}
	s.log.Info("State loaded",
		zap.Int("customers", len(customers)),
		zap.Int("bills", ledger.Len()),
	)
}

func (s *Store) loadRates(ctx context.Context) (*models.RateTable, error) {
	persisted, err := s.repo.LoadRates(ctx)
	if errors.Is(err, ErrNoData) {
		return models.NewRateTable(s.defaults)
	}
	if err != nil {
		return nil, err
	}
	merged := make(map[models.ServiceType]models.Rate, len(s.defaults)+len(persisted))
	for t, r := range s.defaults {
		merged[t] = r
	}
	for t, r := range persisted {
		merged[t] = r
	}
	return models.NewRateTable(merged)
}

func buildCustomers(records []CustomerRecord, ledger *Ledger, log *zap.Logger) []*models.Customer {
	usernames := make(map[string]struct{}, len(records))
	emails := make(map[string]struct{}, len(records))
	customers := make([]*models.Customer, 0, len(records))
	for _, r := range records {
		_, dupUser := usernames[r.Username]
		_, dupEmail := emails[models.EmailKey(r.Email)]
		if dupUser || dupEmail {
			log.Warn("Skipped duplicate customer record", zap.String("username", r.Username))
			continue
		}
		usernames[r.Username] = struct{}{}
		emails[models.EmailKey(r.Email)] = struct{}{}

		c := models.NewCustomer(r.Username, r.PasswordHash, r.Email)
		for _, b := range ledger.ByUsername(r.Username) {
			c.AttachBill(b)
		}
		customers = append(customers, c)
	}
	return customers
}

// View runs fn with the state read-locked. fn must not modify the state.
func (s *Store) View(fn func(st *State) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&s.state)
}

// Update runs fn with the state write-locked and then saves the whole state.
// When fn fails nothing is saved. A failed save keeps the in-memory change
// and returns an error wrapping ErrPersistence.
func (s *Store) Update(ctx context.Context, fn func(st *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.state); err != nil {
		return err
	}
	if err := s.save(ctx); err != nil {
		s.log.Error("Failed to save state", zap.Error(err))
		if !errors.Is(err, ErrPersistence) {
			err = fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return err
	}
	return nil
}

// Save writes the current state without changing it.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.save(ctx)
	if err != nil && !errors.Is(err, ErrPersistence) {
		err = fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return err
}

func (s *Store) save(ctx context.Context) error {
	if err := s.repo.SaveBills(ctx, s.state.Ledger.Snapshot()); err != nil {
		return err
	}
	records := make([]CustomerRecord, 0, len(s.state.Customers))
	for _, c := range s.state.Customers {
		records = append(records, CustomerRecord{
			Username:     c.Username,
			PasswordHash: c.PasswordHash,
			Email:        c.Email,
		})
	}
	if err := s.repo.SaveCustomers(ctx, records); err != nil {
		return err
	}
	return s.repo.SaveRates(ctx, s.state.Rates.Rates())
}

// Close releases the repository.
func (s *Store) Close() error {
	return s.repo.Close()
}
