package controller

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"go-utility/models"
	"go-utility/store"
)

type fixture struct {
	store     *store.Store
	customers *CustomerController
	services  *ServiceController
	staff     *StaffController
	dir       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return openFixture(t, dir)
}

func openFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	repo, err := store.NewFileRepository(dir)
	require.NoError(t, err)
	st, err := store.New(repo, models.DefaultRates(), zap.NewNop())
	require.NoError(t, err)
	st.Load(context.Background())

	log := zap.NewNop()
	return &fixture{
		store:     st,
		customers: NewCustomerController(st, log, WithHashCost(bcrypt.MinCost)),
		services:  NewServiceController(st, log),
		staff:     NewStaffController(st, log),
		dir:       dir,
	}
}

func (f *fixture) register(t *testing.T, username, email string) {
	t.Helper()
	_, err := f.customers.RegisterNewUser(context.Background(), username, "secret", email)
	require.NoError(t, err)
}

func TestRegisterNewUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cust, err := f.customers.RegisterNewUser(ctx, "alice", "secret", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", cust.Username)
	assert.NotEqual(t, "secret", cust.PasswordHash)

	tests := []struct {
		name     string
		username string
		password string
		email    string
		wantErr  error
	}{
		{"duplicate username", "alice", "pw", "other@example.com", models.ErrDuplicateIdentity},
		{"duplicate email", "bob", "pw", "alice@example.com", models.ErrDuplicateIdentity},
		{"duplicate email other case", "bob", "pw", " ALICE@Example.com", models.ErrDuplicateIdentity},
		{"password too long", "bob", strings.Repeat("p", 73), "bob@example.com", models.ErrInvalidInput},
		{"empty username", "", "pw", "bob@example.com", models.ErrInvalidInput},
		{"bad username", "bob,smith", "pw", "bob@example.com", models.ErrInvalidInput},
		{"empty password", "bob", "", "bob@example.com", models.ErrInvalidInput},
		{"bad email", "bob", "pw", "not-an-email", models.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.customers.RegisterNewUser(ctx, tt.username, tt.password, tt.email)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Len(t, f.customers.Customers(), 1)
	assert.True(t, f.customers.IsUsernameTaken("alice"))
	assert.False(t, f.customers.IsUsernameTaken("bob"))
	assert.True(t, f.customers.IsEmailTaken("alice@example.com"))
}

func TestRegisterCollectsAllProblems(t *testing.T) {
	f := newFixture(t)

	_, err := f.customers.RegisterNewUser(context.Background(), "", "", "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 3)
}

func TestRegisterAcceptsLongestPassword(t *testing.T) {
	f := newFixture(t)
	password := strings.Repeat("p", 72)

	_, err := f.customers.RegisterNewUser(context.Background(), "alice", password, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, f.customers.ValidateLogin("alice", password))

	_, err = f.customers.RegisterNewUser(context.Background(), "bob", password+"x", "bob@example.com")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Password must be at most 72 bytes"}, verr.Problems)
}

func TestValidateLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "alice@example.com")

	assert.True(t, f.customers.ValidateLogin("alice", "secret"))
	assert.False(t, f.customers.ValidateLogin("alice", "wrong"))
	assert.False(t, f.customers.ValidateLogin("nobody", "secret"))

	_, err := f.customers.LoadCustomer("alice", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	cust, err := f.customers.LoadCustomer("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", cust.Email)
}

func TestGetCustomerByUsername(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "alice@example.com")

	_, err := f.customers.GetCustomerByUsername("bob")
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)

	cust, err := f.customers.GetCustomerByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", cust.Username)
}

func TestBillLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")

	bill, err := f.customers.AddBill(ctx, "alice", models.Electricity, 150, "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, 28.0, bill.Price)

	edited, err := f.customers.EditBill(ctx, "alice", bill.ID, 200)
	require.NoError(t, err)
	assert.Equal(t, 34.0, edited.Price)

	all := f.staff.ViewAllBills()
	require.Len(t, all, 1)
	assert.Equal(t, edited, all[0], "ledger mirrors the customer edit")

	_, err = f.customers.EditBill(ctx, "alice", 999, 1)
	assert.ErrorIs(t, err, models.ErrBillNotFound)
	_, err = f.customers.EditBill(ctx, "alice", bill.ID, -1)
	assert.ErrorIs(t, err, models.ErrInvalidMeasurement)

	removed, err := f.customers.DeleteBill(ctx, "alice", 999)
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = f.customers.DeleteBill(ctx, "alice", bill.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	bills, err := f.customers.Bills("alice")
	require.NoError(t, err)
	assert.Empty(t, bills)
	assert.Empty(t, f.staff.ViewAllBills())
}

func TestAddBillRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")

	_, err := f.customers.AddBill(ctx, "alice", models.ServiceType("STEAM"), 1, "2024-01-01")
	assert.ErrorIs(t, err, models.ErrUnknownServiceType)
	_, err = f.customers.AddBill(ctx, "alice", models.Gas, -5, "2024-01-01")
	assert.ErrorIs(t, err, models.ErrInvalidMeasurement)
	_, err = f.customers.AddBill(ctx, "alice", models.Gas, 5, "  ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = f.customers.AddBill(ctx, "bob", models.Gas, 5, "2024-01-01")
	assert.ErrorIs(t, err, models.ErrCustomerNotFound)
}

func TestBillIDsAreSharedAcrossCustomers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")
	f.register(t, "bob", "bob@example.com")

	a, err := f.customers.AddBill(ctx, "alice", models.Gas, 1, "2024-01-01")
	require.NoError(t, err)
	b, err := f.customers.AddBill(ctx, "bob", models.Gas, 1, "2024-01-01")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	removed, err := f.customers.DeleteBill(ctx, "alice", b.ID)
	require.NoError(t, err)
	assert.False(t, removed)
	bills, err := f.customers.Bills("bob")
	require.NoError(t, err)
	assert.Len(t, bills, 1, "a customer cannot delete another customer's bill")
}

func TestRemoveCustomerDropsBills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")
	f.register(t, "bob", "bob@example.com")
	_, err := f.customers.AddBill(ctx, "alice", models.Water, 40, "2024-01-01")
	require.NoError(t, err)
	_, err = f.customers.AddBill(ctx, "bob", models.Water, 40, "2024-01-01")
	require.NoError(t, err)

	require.NoError(t, f.customers.RemoveCustomer(ctx, "alice"))
	assert.ErrorIs(t, f.customers.RemoveCustomer(ctx, "alice"), models.ErrCustomerNotFound)
	assert.Len(t, f.staff.ViewAllBills(), 1)
	assert.False(t, f.customers.IsEmailTaken("alice@example.com"))
}

func TestServiceController(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unit, err := f.services.GetUnitPrice(models.Electricity)
	require.NoError(t, err)
	assert.Equal(t, 0.12, unit)
	svc, err := f.services.GetServicePrice(models.Water)
	require.NoError(t, err)
	assert.Equal(t, 20.0, svc)

	_, err = f.services.GetUnitPrice(models.ServiceType("STEAM"))
	assert.ErrorIs(t, err, models.ErrUnknownServiceType)

	require.NoError(t, f.services.UpdateUnitCharges(ctx, models.Electricity, 2.0))
	require.NoError(t, f.services.UpdateServiceCharges(ctx, models.Electricity, 10.0))
	assert.ErrorIs(t, f.services.UpdateUnitCharges(ctx, models.Gas, -1), models.ErrInvalidCharge)

	assert.Equal(t, models.Rate{UnitCharge: 2.0, ServiceCharge: 10.0}, f.services.Rates()[models.Electricity])
	assert.Equal(t, 0.08, f.services.Rates()[models.Gas].UnitCharge)
}

func TestUpdateChargesIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unit, badService := 5.0, -1.0

	err := f.services.UpdateCharges(ctx, models.Gas, &unit, &badService)
	assert.ErrorIs(t, err, models.ErrInvalidCharge)
	assert.Equal(t, models.Rate{UnitCharge: 0.08, ServiceCharge: 15.0}, f.services.Rates()[models.Gas])

	huge := 1.7e308
	assert.ErrorIs(t, f.services.UpdateCharges(ctx, models.Gas, &huge, nil), models.ErrInvalidCharge)
	assert.ErrorIs(t, f.services.UpdateCharges(ctx, models.Gas, nil, nil), models.ErrInvalidInput)
	assert.ErrorIs(t, f.services.UpdateCharges(ctx, models.ServiceType("STEAM"), &unit, nil), models.ErrUnknownServiceType)

	service := 2.0
	require.NoError(t, f.services.UpdateCharges(ctx, models.Gas, &unit, &service))
	assert.Equal(t, models.Rate{UnitCharge: 5.0, ServiceCharge: 2.0}, f.services.Rates()[models.Gas])

	restarted := openFixture(t, f.dir)
	assert.Equal(t, models.Rate{UnitCharge: 5.0, ServiceCharge: 2.0}, restarted.services.Rates()[models.Gas])
}

func TestPriceFollowsCurrentRates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")
	require.NoError(t, f.services.UpdateUnitCharges(ctx, models.Electricity, 2.0))
	require.NoError(t, f.services.UpdateServiceCharges(ctx, models.Electricity, 10.0))

	first, err := f.customers.AddBill(ctx, "alice", models.Electricity, 40, "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, 90.0, first.Price)

	require.NoError(t, f.services.UpdateUnitCharges(ctx, models.Electricity, 3.0))
	bills, err := f.customers.Bills("alice")
	require.NoError(t, err)
	assert.Equal(t, 90.0, bills[0].Price, "stored bills keep their price")

	edited, err := f.customers.EditBill(ctx, "alice", first.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, 130.0, edited.Price)
}

func TestStaffViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")
	f.register(t, "malice", "malice@example.com")
	f.register(t, "bob", "bob@example.com")

	_, err := f.customers.AddBill(ctx, "alice", models.Electricity, 150, "2024-01-31")
	require.NoError(t, err)
	_, err = f.customers.AddBill(ctx, "malice", models.Gas, 100, "2024-01-31")
	require.NoError(t, err)
	_, err = f.customers.AddBill(ctx, "bob", models.Water, 40, "2024-01-31")
	require.NoError(t, err)

	assert.Equal(t, 73.0, f.staff.CalculateTotalPrice())
	assert.Len(t, f.staff.ViewAllBills(), 3)
	assert.Len(t, f.staff.ViewUserBills("alice"), 2)
	assert.Len(t, f.staff.ViewUserBills("bob"), 1)
	assert.Empty(t, f.staff.ViewUserBills("carol"))

	totals := f.staff.TotalsByServiceType()
	assert.Equal(t, 28.0, totals[models.Electricity])
	assert.Equal(t, 23.0, totals[models.Gas])
	assert.Equal(t, 22.0, totals[models.Water])
}

func TestOverridePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")
	bill, err := f.customers.AddBill(ctx, "alice", models.Gas, 100, "2024-01-31")
	require.NoError(t, err)

	got, err := f.staff.OverridePrice(ctx, bill.ID, 5.5)
	require.NoError(t, err)
	assert.Equal(t, 5.5, got.Price)
	assert.Equal(t, 100.0, got.MeterMeasurement)

	bills, err := f.customers.Bills("alice")
	require.NoError(t, err)
	assert.Equal(t, 5.5, bills[0].Price)

	_, err = f.staff.OverridePrice(ctx, 999, 1)
	assert.ErrorIs(t, err, models.ErrBillNotFound)
	_, err = f.staff.OverridePrice(ctx, bill.ID, -1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")
	first, err := f.customers.AddBill(ctx, "alice", models.Gas, 100, "2024-01-31")
	require.NoError(t, err)
	last, err := f.customers.AddBill(ctx, "alice", models.Gas, 50, "2024-02-29")
	require.NoError(t, err)
	_, err = f.customers.DeleteBill(ctx, "alice", last.ID)
	require.NoError(t, err)
	require.NoError(t, f.services.UpdateServiceCharges(ctx, models.Gas, 1))

	restarted := openFixture(t, f.dir)
	assert.True(t, restarted.customers.ValidateLogin("alice", "secret"))
	bills, err := restarted.customers.Bills("alice")
	require.NoError(t, err)
	assert.Equal(t, []models.UtilityBill{first}, bills)

	next, err := restarted.customers.AddBill(ctx, "alice", models.Gas, 10, "2024-03-31")
	require.NoError(t, err)
	assert.Greater(t, next.ID, last.ID, "ids are not reused after a restart")
	assert.Equal(t, 1.8, next.Price)
}
