package store

import (
	"fmt"
	"strings"

	"go-utility/models"
)

// BillSnapshot is the persisted form of a Ledger.
type BillSnapshot struct {
	NextID int                  `json:"nextId"`
	Bills  []models.UtilityBill `json:"bills"`
}

// Ledger holds every bill of every customer, keyed by a store-wide id.
// Ids increase monotonically and are never handed out twice, even after the
// bill carrying the highest id is deleted.
type Ledger struct {
	bills  []models.UtilityBill
	nextID int
}

func NewLedger() *Ledger {
	return &Ledger{nextID: 1}
}

// NextID returns the next unused id and advances the counter.
func (l *Ledger) NextID() int {
	id := l.nextID
	l.nextID++
	return id
}

// Add records a new bill for username, priced at the table's current rates.
// No id is consumed when the price cannot be computed.
func (l *Ledger) Add(username string, t models.ServiceType, measurement float64, date string, rates *models.RateTable) (models.UtilityBill, error) {
	bill := models.NewUtilityBill(l.nextID, username, t, measurement, 0, date)
	if err := bill.SetPrice(rates); err != nil {
		return models.UtilityBill{}, err
	}
	l.NextID()
	l.bills = append(l.bills, bill)
	return bill, nil
}

func (l *Ledger) Find(id int) (models.UtilityBill, error) {
	i := l.indexOf(id)
	if i < 0 {
		return models.UtilityBill{}, fmt.Errorf("%w: %d", models.ErrBillNotFound, id)
	}
	return l.bills[i], nil
}

func (l *Ledger) Exists(id int) bool {
	return l.indexOf(id) >= 0
}

// EditPrice overwrites the stored price of bill id without looking at its
// measurement or the current rates.
func (l *Ledger) EditPrice(id int, price float64) error {
	i := l.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %d", models.ErrBillNotFound, id)
	}
	l.bills[i].Price = price
	return nil
}

// Replace overwrites the bill with the same id.
func (l *Ledger) Replace(bill models.UtilityBill) error {
	i := l.indexOf(bill.ID)
	if i < 0 {
		return fmt.Errorf("%w: %d", models.ErrBillNotFound, bill.ID)
	}
	l.bills[i] = bill
	return nil
}

// Delete removes bill id. It reports false when no such bill exists.
func (l *Ledger) Delete(id int) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.bills = append(l.bills[:i], l.bills[i+1:]...)
	return true
}

// DeleteByUsername removes every bill owned by username and returns how many
// were dropped.
func (l *Ledger) DeleteByUsername(username string) int {
	kept := l.bills[:0]
	for _, b := range l.bills {
		if b.Username != username {
			kept = append(kept, b)
		}
	}
	removed := len(l.bills) - len(kept)
	l.bills = kept
	return removed
}

// Bills returns all bills in insertion order.
func (l *Ledger) Bills() []models.UtilityBill {
	out := make([]models.UtilityBill, len(l.bills))
	copy(out, l.bills)
	return out
}

// ByUsername returns the bills owned by exactly username.
func (l *Ledger) ByUsername(username string) []models.UtilityBill {
	var out []models.UtilityBill
	for _, b := range l.bills {
		if b.Username == username {
			out = append(out, b)
		}
	}
	return out
}

// Search returns the bills whose owner contains query.
func (l *Ledger) Search(query string) []models.UtilityBill {
	var out []models.UtilityBill
	for _, b := range l.bills {
		if strings.Contains(b.Username, query) {
			out = append(out, b)
		}
	}
	return out
}

func (l *Ledger) Len() int {
	return len(l.bills)
}

// Snapshot returns the persisted form of the ledger.
func (l *Ledger) Snapshot() BillSnapshot {
	return BillSnapshot{NextID: l.nextID, Bills: l.Bills()}
}

// Restore replaces the ledger contents with snap. Bills repeating an id already
// seen are skipped and the counter ends past every restored id.
func (l *Ledger) Restore(snap BillSnapshot) (skipped int) {
	l.bills = make([]models.UtilityBill, 0, len(snap.Bills))
	l.nextID = 1
	seen := make(map[int]struct{}, len(snap.Bills))
	for _, b := range snap.Bills {
		if _, dup := seen[b.ID]; dup {
			skipped++
			continue
		}
		seen[b.ID] = struct{}{}
		l.bills = append(l.bills, b)
		if b.ID >= l.nextID {
			l.nextID = b.ID + 1
		}
	}
	if snap.NextID > l.nextID {
		l.nextID = snap.NextID
	}
	return skipped
}

func (l *Ledger) indexOf(id int) int {
	for i, b := range l.bills {
		if b.ID == id {
			return i
		}
	}
	return -1
}
