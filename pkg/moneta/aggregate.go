package moneta

// Aggregate derives the monthly snapshot from an unordered transaction
// set. It is a pure function: the same inputs always produce the same
// snapshot, and the input slice is never mutated.
//
// The pipeline re-filters by month even when the store already filtered at
// query time, so local one-shot loads and remote feed deliveries go
// through the same predicate.
func Aggregate(txns []*Transaction, month Month, rules CategoryRules) *MonthlySnapshot {
	snapshot := EmptySnapshot(month)

	scoped := make([]*Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn == nil || !month.Contains(txn.Date) {
			continue
		}
		scoped = append(scoped, txn)
	}

	for _, txn := range scoped {
		if txn.IsExpense {
			snapshot.Expenses += txn.Amount
			// Income is excluded from category totals; unknown or empty
			// categories accumulate under their literal string.
			snapshot.CategoryTotals[txn.Category] += txn.Amount
		} else {
			snapshot.Income += txn.Amount
		}

		if txn.Status != StatusPaid {
			snapshot.UnpaidTotal += txn.Remaining()
		}

		if txn.IsCarriedForward {
			snapshot.CarriedForward = append(snapshot.CarriedForward, txn)
		}
		if rules.IsReset(txn.Category) {
			snapshot.ResetEligible = append(snapshot.ResetEligible, txn)
		}
	}

	snapshot.Balance = snapshot.Income - snapshot.Expenses
	snapshot.Recent = recentTransactions(scoped, RecentTransactionLimit)

	return snapshot
}

// recentTransactions returns up to limit transactions ordered newest
// first. The copy keeps the caller's slice order untouched.
func recentTransactions(txns []*Transaction, limit int) []*Transaction {
	recent := make([]*Transaction, len(txns))
	copy(recent, txns)
	sortByDateDesc(recent)
	if len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}

// UnpaidOf filters a set to transactions whose status is not Paid.
func UnpaidOf(txns []*Transaction) []*Transaction {
	unpaid := make([]*Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn.Status != StatusPaid {
			unpaid = append(unpaid, txn)
		}
	}
	return unpaid
}

// CarriedForwardOf filters a set to carried-forward transactions.
func CarriedForwardOf(txns []*Transaction) []*Transaction {
	carried := make([]*Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn.IsCarriedForward {
			carried = append(carried, txn)
		}
	}
	return carried
}

// ByCategoryOf filters a set to one category.
func ByCategoryOf(txns []*Transaction, category string) []*Transaction {
	matched := make([]*Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn.Category == category {
			matched = append(matched, txn)
		}
	}
	return matched
}

// ByStatusOf filters a set to one payment status.
func ByStatusOf(txns []*Transaction, status PaymentStatus) []*Transaction {
	matched := make([]*Transaction, 0, len(txns))
	for _, txn := range txns {
		if txn.Status == status {
			matched = append(matched, txn)
		}
	}
	return matched
}
