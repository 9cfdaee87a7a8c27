package moneta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectCashFlow_SegmentsCoverMonth(t *testing.T) {
	month := Month{Year: 2026, Month: time.August}
	today := NewDate(2026, time.August, 10)

	series := ProjectCashFlow(nil, nil, month, today)

	assert.Len(t, series.Historical, 10)
	assert.Len(t, series.Forecast, month.Days()-10)

	// The two segments never share a date and together cover every day.
	seen := map[string]bool{}
	for _, pt := range series.Historical {
		assert.False(t, seen[pt.Date.String()])
		seen[pt.Date.String()] = true
	}
	for _, pt := range series.Forecast {
		assert.False(t, seen[pt.Date.String()])
		seen[pt.Date.String()] = true
	}
	assert.Len(t, seen, month.Days())
}

func TestProjectCashFlow_HistoricalRunningBalance(t *testing.T) {
	month := Month{Year: 2026, Month: time.August}
	today := NewDate(2026, time.August, 3)
	txns := []*Transaction{
		{ID: "1", Amount: 300, Date: month.Day(1)},
		{ID: "2", Amount: 90, IsExpense: true, Date: month.Day(2)},
		{ID: "3", Amount: 30, IsExpense: true, Date: month.Day(2)},
	}

	series := ProjectCashFlow(txns, nil, month, today)

	require.Len(t, series.Historical, 3)
	assert.Equal(t, 300.0, series.Historical[0].Balance)
	assert.Equal(t, 300.0, series.Historical[0].Income)
	assert.Equal(t, 180.0, series.Historical[1].Balance)
	assert.Equal(t, 120.0, series.Historical[1].Expense)
	// Day 3 had no movement.
	assert.Equal(t, 180.0, series.Historical[2].Balance)
	assert.Equal(t, 0.0, series.Historical[2].Income)
}

func TestProjectCashFlow_ForecastExtrapolatesAverage(t *testing.T) {
	month := Month{Year: 2026, Month: time.August}
	today := NewDate(2026, time.August, 2)
	// Net +10/day over two elapsed days.
	txns := []*Transaction{
		{ID: "1", Amount: 10, Date: month.Day(1)},
		{ID: "2", Amount: 10, Date: month.Day(2)},
	}

	series := ProjectCashFlow(txns, nil, month, today)

	require.NotEmpty(t, series.Forecast)
	assert.InDelta(t, 30.0, series.Forecast[0].Balance, 1e-9)
	assert.InDelta(t, 40.0, series.Forecast[1].Balance, 1e-9)
	last := series.Forecast[len(series.Forecast)-1]
	assert.InDelta(t, float64(month.Days())*10, last.Balance, 1e-9)
}

func TestProjectCashFlow_ForecastSubtractsBillsOnDueDate(t *testing.T) {
	month := Month{Year: 2026, Month: time.August}
	today := NewDate(2026, time.August, 5)
	upcoming := []*Transaction{
		{ID: "rent", Amount: 500, IsExpense: true, Date: month.Day(10)},
		{ID: "insurance", Amount: 100, IsExpense: true, Date: month.Day(10)},
		{ID: "refund", Amount: 50, IsExpense: false, Date: month.Day(12)},
	}

	series := ProjectCashFlow(nil, upcoming, month, today)

	// Zero elapsed movement means zero average: forecast changes only on
	// bill due dates, and income-like upcoming entries are ignored.
	byDay := map[int]float64{}
	for _, pt := range series.Forecast {
		byDay[pt.Date.Day()] = pt.Balance
	}
	assert.Equal(t, 0.0, byDay[9])
	assert.Equal(t, -600.0, byDay[10])
	assert.Equal(t, -600.0, byDay[12])
	assert.Equal(t, -600.0, byDay[month.Days()])
}

func TestProjectCashFlow_TodayOutsideMonth(t *testing.T) {
	month := Month{Year: 2026, Month: time.August}

	// Before the month: everything is forecast.
	series := ProjectCashFlow(nil, nil, month, NewDate(2026, time.July, 20))
	assert.Empty(t, series.Historical)
	assert.Len(t, series.Forecast, month.Days())

	// After the month: everything is historical.
	series = ProjectCashFlow(nil, nil, month, NewDate(2026, time.September, 2))
	assert.Len(t, series.Historical, month.Days())
	assert.Empty(t, series.Forecast)
}
