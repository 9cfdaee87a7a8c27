package moneta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name          string
		in            Transaction
		wantAmount    float64
		wantIsExpense bool
		wantStatus    PaymentStatus
	}{
		{
			name:          "negative amount becomes expense magnitude",
			in:            Transaction{Amount: -42.50},
			wantAmount:    42.50,
			wantIsExpense: true,
			wantStatus:    StatusUnpaid,
		},
		{
			name:          "positive income untouched",
			in:            Transaction{Amount: 1000},
			wantAmount:    1000,
			wantIsExpense: false,
			wantStatus:    StatusUnpaid,
		},
		{
			name:          "explicit status preserved",
			in:            Transaction{Amount: -10, Status: StatusPaid},
			wantAmount:    10,
			wantIsExpense: true,
			wantStatus:    StatusPaid,
		},
		{
			name:          "missing status derived from paid amount",
			in:            Transaction{Amount: 100, IsExpense: true, PaidAmount: floatPtr(40)},
			wantAmount:    100,
			wantIsExpense: true,
			wantStatus:    StatusPartial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := tt.in
			got := txn.Normalize()
			assert.Same(t, &txn, got)
			assert.Equal(t, tt.wantAmount, txn.Amount)
			assert.Equal(t, tt.wantIsExpense, txn.IsExpense)
			assert.Equal(t, tt.wantStatus, txn.Status)
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, StatusUnpaid, DeriveStatus(100, nil))
	assert.Equal(t, StatusUnpaid, DeriveStatus(100, floatPtr(0)))
	assert.Equal(t, StatusPartial, DeriveStatus(100, floatPtr(40)))
	assert.Equal(t, StatusPaid, DeriveStatus(100, floatPtr(100)))
	assert.Equal(t, StatusPaid, DeriveStatus(100, floatPtr(150)))
}

func TestApplyPayment(t *testing.T) {
	bill := &Transaction{ID: "1", Title: "Electricity", Amount: 100, IsExpense: true, Status: StatusUnpaid}

	first := ApplyPayment(bill, 40)
	require.NotNil(t, first.PaidAmount)
	assert.Equal(t, 40.0, *first.PaidAmount)
	assert.Equal(t, StatusPartial, first.Status)
	assert.Equal(t, 60.0, first.Remaining())

	// Original is untouched.
	assert.Nil(t, bill.PaidAmount)
	assert.Equal(t, StatusUnpaid, bill.Status)

	second := ApplyPayment(first, 60)
	assert.Equal(t, 100.0, *second.PaidAmount)
	assert.Equal(t, StatusPaid, second.Status)

	// Overpaying clamps to the amount and the status stays Paid.
	third := ApplyPayment(second, 10)
	assert.Equal(t, 100.0, *third.PaidAmount)
	assert.Equal(t, StatusPaid, third.Status)

	// Negative payments never reduce the paid amount.
	fourth := ApplyPayment(third, -25)
	assert.Equal(t, 100.0, *fourth.PaidAmount)
}

func TestTransactionClone(t *testing.T) {
	original := &Transaction{ID: "1", Amount: 50, PaidAmount: floatPtr(20)}
	clone := original.Clone()

	*clone.PaidAmount = 99
	clone.Amount = 1

	assert.Equal(t, 20.0, *original.PaidAmount)
	assert.Equal(t, 50.0, original.Amount)
}

func TestCategoryRules(t *testing.T) {
	rules := CategoryRules{
		CarryForward: []string{"Rent", "Utilities"},
		Reset:        []string{"Groceries"},
	}

	assert.True(t, rules.IsCarryForward("Rent"))
	assert.False(t, rules.IsCarryForward("Groceries"))
	assert.True(t, rules.IsReset("Groceries"))
	assert.False(t, rules.IsReset(""))
}

func TestMonth(t *testing.T) {
	month := Month{Year: 2026, Month: time.February}

	assert.Equal(t, 28, month.Days())
	assert.Equal(t, "2026-02", month.String())
	assert.Equal(t, NewDate(2026, time.February, 1), month.FirstDay())
	assert.Equal(t, NewDate(2026, time.February, 28), month.LastDay())
	assert.Equal(t, Month{Year: 2026, Month: time.March}, month.Next())

	assert.True(t, month.Contains(NewDate(2026, time.February, 14)))
	assert.False(t, month.Contains(NewDate(2026, time.March, 1)))
	assert.False(t, month.Contains(NewDate(2025, time.February, 14)))

	// December rolls into January of the next year.
	dec := Month{Year: 2026, Month: time.December}
	assert.Equal(t, Month{Year: 2027, Month: time.January}, dec.Next())

	// Leap year.
	leap := Month{Year: 2028, Month: time.February}
	assert.Equal(t, 29, leap.Days())
}
