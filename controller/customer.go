package controller

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"go-utility/models"
	"go-utility/store"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// bcrypt only hashes the first 72 bytes and rejects longer input.
const maxPasswordBytes = 72

// ValidationError collects every problem found in one request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return models.ErrInvalidInput
}

// CustomerController manages registration, login and the bills a customer
// owns. Every bill change is applied to both the customer and the ledger.
type CustomerController struct {
	store    *store.Store
	validate *validator.Validate
	hashCost int
	log      *zap.Logger
}

type CustomerOption func(*CustomerController)

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) CustomerOption {
	return func(c *CustomerController) {
		c.hashCost = cost
	}
}

func NewCustomerController(st *store.Store, log *zap.Logger, opts ...CustomerOption) *CustomerController {
	c := &CustomerController{
		store:    st,
		validate: validator.New(),
		hashCost: bcrypt.DefaultCost,
		log:      log.Named("customers"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterNewUser creates a customer after checking the input and that neither
// the username nor the email is already registered.
func (c *CustomerController) RegisterNewUser(ctx context.Context, username, password, email string) (*models.Customer, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	var problems []string
	if username == "" {
		problems = append(problems, "Username cannot be empty")
	} else if !usernameRegex.MatchString(username) {
		problems = append(problems, "Username must contain only letters, digits, dots, dashes and underscores")
	}
	if password == "" {
		problems = append(problems, "Password cannot be empty")
	} else if len(password) > maxPasswordBytes {
		problems = append(problems, fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	if email == "" {
		problems = append(problems, "Email cannot be empty")
	} else if err := c.validate.Var(email, "email"); err != nil {
		problems = append(problems, "Invalid email format")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var created *models.Customer
	err = c.store.Update(ctx, func(st *store.State) error {
		if usernameTaken(st, username) {
			return fmt.Errorf("%w: username %s", models.ErrDuplicateIdentity, username)
		}
		if emailTaken(st, email) {
			return fmt.Errorf("%w: email %s", models.ErrDuplicateIdentity, email)
		}
		created = models.NewCustomer(username, string(hash), email)
		st.Customers = append(st.Customers, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("Registered customer", zap.String("username", username))
	return created, nil
}

// ValidateLogin reports whether username and password match a customer.
func (c *CustomerController) ValidateLogin(username, password string) bool {
	_, err := c.LoadCustomer(username, password)
	return err == nil
}

// LoadCustomer returns the customer whose credentials match, or
// ErrInvalidCredentials.
func (c *CustomerController) LoadCustomer(username, password string) (*models.Customer, error) {
	var found *models.Customer
	err := c.store.View(func(st *store.State) error {
		cust, err := st.FindCustomer(username)
		if err != nil {
			return models.ErrInvalidCredentials
		}
		if bcrypt.CompareHashAndPassword([]byte(cust.PasswordHash), []byte(password)) != nil {
			return models.ErrInvalidCredentials
		}
		found = cust
		return nil
	})
	return found, err
}

func (c *CustomerController) GetCustomerByUsername(username string) (*models.Customer, error) {
	var found *models.Customer
	err := c.store.View(func(st *store.State) error {
		cust, err := st.FindCustomer(username)
		found = cust
		return err
	})
	return found, err
}

func (c *CustomerController) IsUsernameTaken(username string) bool {
	var taken bool
	_ = c.store.View(func(st *store.State) error {
		taken = usernameTaken(st, username)
		return nil
	})
	return taken
}

func (c *CustomerController) IsEmailTaken(email string) bool {
	var taken bool
	_ = c.store.View(func(st *store.State) error {
		taken = emailTaken(st, email)
		return nil
	})
	return taken
}

// RemoveCustomer deletes the customer together with every bill they own.
func (c *CustomerController) RemoveCustomer(ctx context.Context, username string) error {
	var dropped int
	err := c.store.Update(ctx, func(st *store.State) error {
		if !st.RemoveCustomer(username) {
			return fmt.Errorf("%w: %s", models.ErrCustomerNotFound, username)
		}
		dropped = st.Ledger.DeleteByUsername(username)
		return nil
	})
	if err != nil {
		return err
	}
	c.log.Info("Removed customer", zap.String("username", username), zap.Int("bills", dropped))
	return nil
}

// Customers lists every registered customer in registration order.
func (c *CustomerController) Customers() []*models.Customer {
	var out []*models.Customer
	_ = c.store.View(func(st *store.State) error {
		out = make([]*models.Customer, len(st.Customers))
		copy(out, st.Customers)
		return nil
	})
	return out
}

// AddBill records a new bill for username priced at the current rates.
func (c *CustomerController) AddBill(ctx context.Context, username string, t models.ServiceType, measurement float64, date string) (models.UtilityBill, error) {
	candidate := models.NewUtilityBill(0, username, t, measurement, 0, strings.TrimSpace(date))
	if err := candidate.Validate(); err != nil {
		return models.UtilityBill{}, err
	}

	var bill models.UtilityBill
	err := c.store.Update(ctx, func(st *store.State) error {
		cust, err := st.FindCustomer(username)
		if err != nil {
			return err
		}
		bill, err = st.Ledger.Add(username, t, measurement, candidate.Date, st.Rates)
		if err != nil {
			return err
		}
		cust.AttachBill(bill)
		return nil
	})
	if err != nil {
		return models.UtilityBill{}, err
	}
	c.log.Info("Added bill",
		zap.String("username", username),
		zap.Int("bill_id", bill.ID),
		zap.String("service_type", t.String()),
		zap.Float64("price", bill.Price),
	)
	return bill, nil
}

// EditBill changes the measurement of one of the customer's bills and
// recomputes its price at the current rates.
func (c *CustomerController) EditBill(ctx context.Context, username string, id int, measurement float64) (models.UtilityBill, error) {
	var bill models.UtilityBill
	err := c.store.Update(ctx, func(st *store.State) error {
		cust, err := st.FindCustomer(username)
		if err != nil {
			return err
		}
		bill, err = cust.EditBill(id, measurement, st.Rates)
		if err != nil {
			return err
		}
		return st.Ledger.Replace(bill)
	})
	if err != nil {
		return models.UtilityBill{}, err
	}
	c.log.Info("Edited bill", zap.String("username", username), zap.Int("bill_id", id))
	return bill, nil
}

// DeleteBill removes one of the customer's bills and reports whether one was
// removed. Deleting a bill that does not exist is not an error.
func (c *CustomerController) DeleteBill(ctx context.Context, username string, id int) (bool, error) {
	var removed bool
	err := c.store.Update(ctx, func(st *store.State) error {
		cust, err := st.FindCustomer(username)
		if err != nil {
			return err
		}
		if cust.DeleteBill(id) {
			st.Ledger.Delete(id)
			removed = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		c.log.Info("Deleted bill", zap.String("username", username), zap.Int("bill_id", id))
	}
	return removed, nil
}

// Bills returns the customer's bills in the order they were added.
func (c *CustomerController) Bills(username string) ([]models.UtilityBill, error) {
	var bills []models.UtilityBill
	err := c.store.View(func(st *store.State) error {
		cust, err := st.FindCustomer(username)
		if err != nil {
			return err
		}
		bills = cust.Bills()
		return nil
	})
	return bills, err
}

func usernameTaken(st *store.State, username string) bool {
	_, err := st.FindCustomer(username)
	return err == nil
}

func emailTaken(st *store.State, email string) bool {
	for _, c := range st.Customers {
		if models.EmailKey(c.Email) == models.EmailKey(email) {
			return true
		}
	}
	return false
}
