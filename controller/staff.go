package controller

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"go-utility/models"
	"go-utility/store"
)

// StaffController offers the admin views over the bill ledger.
type StaffController struct {
	store *store.Store
	log   *zap.Logger
}

func NewStaffController(st *store.Store, log *zap.Logger) *StaffController {
	return &StaffController{store: st, log: log.Named("staff")}
}

// CalculateTotalPrice sums the stored price of every bill in the ledger.
func (s *StaffController) CalculateTotalPrice() float64 {
	var total float64
	_ = s.store.View(func(st *store.State) error {
		total = models.SumPrices(st.Ledger.Bills())
		return nil
	})
	return total
}

// TotalsByServiceType sums stored prices per service type. Every type is
// present in the result, with zero when it has no bills.
func (s *StaffController) TotalsByServiceType() map[models.ServiceType]float64 {
	sums := make(map[models.ServiceType]decimal.Decimal, len(models.Values()))
	for _, t := range models.Values() {
		sums[t] = decimal.Zero
	}
	_ = s.store.View(func(st *store.State) error {
		for _, b := range st.Ledger.Bills() {
			sums[b.ServiceType] = sums[b.ServiceType].Add(decimal.NewFromFloat(b.Price))
		}
		return nil
	})

	out := make(map[models.ServiceType]float64, len(sums))
	for t, d := range sums {
		out[t], _ = d.Float64()
	}
	return out
}

func (s *StaffController) ViewAllBills() []models.UtilityBill {
	var bills []models.UtilityBill
	_ = s.store.View(func(st *store.State) error {
		bills = st.Ledger.Bills()
		return nil
	})
	return bills
}

// ViewUserBills returns the bills whose owner's username contains query.
func (s *StaffController) ViewUserBills(query string) []models.UtilityBill {
	var bills []models.UtilityBill
	_ = s.store.View(func(st *store.State) error {
		bills = st.Ledger.Search(query)
		return nil
	})
	return bills
}

// OverridePrice sets the stored price of a bill directly, leaving its
// measurement untouched. The owning customer's copy is updated too.
func (s *StaffController) OverridePrice(ctx context.Context, id int, price float64) (models.UtilityBill, error) {
	if price < 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return models.UtilityBill{}, fmt.Errorf("%w: price must be a non-negative number", models.ErrInvalidInput)
	}

	var bill models.UtilityBill
	err := s.store.Update(ctx, func(st *store.State) error {
		if err := st.Ledger.EditPrice(id, price); err != nil {
			return err
		}
		bill, _ = st.Ledger.Find(id)
		if cust, err := st.FindCustomer(bill.Username); err == nil {
			cust.SetBillPrice(id, price)
		}
		return nil
	})
	if err != nil {
		return models.UtilityBill{}, err
	}
	s.log.Info("Overrode bill price", zap.Int("bill_id", id), zap.Float64("price", price))
	return bill, nil
}
