package moneta

// ProjectCashFlow derives the month's cash-flow curve: one point per
// elapsed day computed from actual movement, then one projected point per
// remaining day.
//
// The forecast is a heuristic, not a guarantee. It extrapolates the
// average daily net of the elapsed days and subtracts known upcoming
// bills on their due dates; it will be wrong whenever spending is lumpy,
// and that is accepted.
func ProjectCashFlow(txns, upcoming []*Transaction, month Month, today Date) *CashFlowSeries {
	series := &CashFlowSeries{
		Month:      month,
		Historical: []CashFlowPoint{},
		Forecast:   []CashFlowPoint{},
	}

	days := month.Days()
	elapsed := elapsedDays(month, today)

	running := 0.0
	for day := 1; day <= elapsed; day++ {
		date := month.Day(day)
		income, expense := dailyMovement(txns, month, date)
		running += income - expense
		series.Historical = append(series.Historical, CashFlowPoint{
			Date:    date,
			Balance: running,
			Income:  income,
			Expense: expense,
		})
	}

	average := 0.0
	if elapsed > 0 {
		average = running / float64(elapsed)
	}

	for day := elapsed + 1; day <= days; day++ {
		date := month.Day(day)
		running += average
		running -= billsDue(upcoming, date)
		// Forecast points carry only the projected balance; fabricating a
		// per-day income/expense breakdown would be noise.
		series.Forecast = append(series.Forecast, CashFlowPoint{
			Date:    date,
			Balance: running,
		})
	}

	return series
}

// elapsedDays clamps today into the month: before the first day nothing
// has elapsed, after the last day the whole month has.
func elapsedDays(month Month, today Date) int {
	if today.Before(month.FirstDay().Time) {
		return 0
	}
	if !month.Contains(today) {
		return month.Days()
	}
	return today.Day()
}

// dailyMovement sums the income and expense dated exactly on the given
// day within the month.
func dailyMovement(txns []*Transaction, month Month, date Date) (income, expense float64) {
	for _, txn := range txns {
		if txn == nil || !month.Contains(txn.Date) || !txn.Date.SameDay(date) {
			continue
		}
		if txn.IsExpense {
			expense += txn.Amount
		} else {
			income += txn.Amount
		}
	}
	return income, expense
}

// billsDue sums upcoming expense amounts due on the exact date; multiple
// bills sharing a date are added together.
func billsDue(upcoming []*Transaction, date Date) float64 {
	total := 0.0
	for _, bill := range upcoming {
		if bill == nil || !bill.IsExpense {
			continue
		}
		if bill.Date.SameDay(date) {
			total += bill.Amount
		}
	}
	return total
}
