package moneta

import (
	"sort"
)

// PaymentStatus tracks how much of a transaction's amount has been settled.
type PaymentStatus string

const (
	StatusUnpaid  PaymentStatus = "unpaid"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
)

// DataSourceMode selects which backing store serves reads and writes.
type DataSourceMode string

const (
	// ModeLocal uses the on-device store; reads are one-shot.
	ModeLocal DataSourceMode = "local"

	// ModeRemote uses the cloud document store under the signed-in
	// principal's namespace; reads arrive over a live feed.
	ModeRemote DataSourceMode = "remote"
)

// RecentTransactionLimit bounds the snapshot's recent list. Display only;
// totals always cover the full month set.
const RecentTransactionLimit = 5

// Transaction is a single financial record.
//
// Amount is always a positive magnitude and IsExpense is the authoritative
// direction flag. Records arriving with a negative amount are folded into
// that representation by Normalize before anything else sees them.
type Transaction struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Amount           float64       `json:"amount"`
	IsExpense        bool          `json:"isExpense"`
	Date             Date          `json:"date"`
	Category         string        `json:"category"`
	Status           PaymentStatus `json:"status"`
	PaidAmount       *float64      `json:"paidAmount,omitempty"`
	IsCarriedForward bool          `json:"isCarriedForward"`
}

// Normalize folds a signed amount into magnitude+flag form and derives a
// missing status. It returns the receiver for chaining.
func (t *Transaction) Normalize() *Transaction {
	if t.Amount < 0 {
		t.Amount = -t.Amount
		t.IsExpense = true
	}
	if t.Status == "" {
		t.Status = DeriveStatus(t.Amount, t.PaidAmount)
	}
	return t
}

// Paid returns the paid amount, treating nil as zero.
func (t *Transaction) Paid() float64 {
	if t.PaidAmount == nil {
		return 0
	}
	return *t.PaidAmount
}

// Remaining returns the unpaid portion of the amount.
func (t *Transaction) Remaining() float64 {
	return t.Amount - t.Paid()
}

// Clone returns a deep copy.
func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.PaidAmount != nil {
		paid := *t.PaidAmount
		c.PaidAmount = &paid
	}
	return &c
}

// DeriveStatus computes the payment status from the paid/total pair:
// paid == amount is Paid, 0 < paid < amount is Partial, everything else
// (including nil) is Unpaid.
func DeriveStatus(amount float64, paid *float64) PaymentStatus {
	if paid == nil {
		return StatusUnpaid
	}
	switch {
	case *paid >= amount && amount > 0:
		return StatusPaid
	case *paid > 0:
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// ApplyPayment records an additional payment against a transaction and
// returns the updated copy. The paid amount never decreases and is clamped
// to the transaction amount, so repeated calls are monotonic.
func ApplyPayment(t *Transaction, amount float64) *Transaction {
	updated := t.Clone()
	if amount < 0 {
		amount = 0
	}
	paid := updated.Paid() + amount
	if paid > updated.Amount {
		paid = updated.Amount
	}
	updated.PaidAmount = &paid
	updated.Status = DeriveStatus(updated.Amount, updated.PaidAmount)
	return updated
}

// CategoryRules names the category sets with special month-boundary
// behavior: carry-forward categories roll unpaid balances into the next
// month, reset categories start every month from zero.
type CategoryRules struct {
	CarryForward []string
	Reset        []string
}

// IsCarryForward reports whether the category rolls over when unpaid.
func (r CategoryRules) IsCarryForward(category string) bool {
	return containsString(r.CarryForward, category)
}

// IsReset reports whether the category resets monthly.
func (r CategoryRules) IsReset(category string) bool {
	return containsString(r.Reset, category)
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// MonthlySnapshot is the fully-derived view of one month. It is recomputed
// from scratch on every update, never incrementally patched, so the derived
// fields cannot drift apart.
type MonthlySnapshot struct {
	Month          Month              `json:"month"`
	Income         float64            `json:"income"`
	Expenses       float64            `json:"expenses"`
	Balance        float64            `json:"balance"`
	CategoryTotals map[string]float64 `json:"categoryTotals"`
	UnpaidTotal    float64            `json:"unpaidTotal"`
	Recent         []*Transaction     `json:"recent"`
	CarriedForward []*Transaction     `json:"carriedForward"`
	ResetEligible  []*Transaction     `json:"resetEligible"`
	Budget         float64            `json:"budget"`
}

// EmptySnapshot returns an all-zero snapshot for the month. Used both for
// the empty-set case and as the clearly-empty fallback after an
// aggregation failure.
func EmptySnapshot(month Month) *MonthlySnapshot {
	return &MonthlySnapshot{
		Month:          month,
		CategoryTotals: map[string]float64{},
		Recent:         []*Transaction{},
		CarriedForward: []*Transaction{},
		ResetEligible:  []*Transaction{},
	}
}

// CashFlowPoint is one day on the cash-flow curve.
type CashFlowPoint struct {
	Date    Date    `json:"date"`
	Balance float64 `json:"balance"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// CashFlowSeries is the month's running-balance curve split into the
// actual segment (days already elapsed) and the projected remainder.
// Historical and Forecast never share a date, and together they cover
// every day of the month.
type CashFlowSeries struct {
	Month      Month           `json:"month"`
	Historical []CashFlowPoint `json:"historical"`
	Forecast   []CashFlowPoint `json:"forecast"`
}

// Principal identifies the signed-in user. A nil principal means
// signed-out, which drives ModeLocal.
type Principal struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

func sortByDateDesc(txns []*Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.After(txns[j].Date.Time)
	})
}
