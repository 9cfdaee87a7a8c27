package moneta

import (
	"context"

	"github.com/pkg/errors"
)

// processCarryForward runs the monthly maintenance operation for one
// month: every unpaid transaction in a carry-forward category is
// materialized as a new transaction on the first day of the following
// month, carrying the remaining unpaid amount. Originals are left in
// place as historical record. Reset categories need no writes at all: the
// new month simply starts without them.
//
// Idempotence policy: a candidate is skipped when the following month
// already holds a carried-forward transaction with the same title and
// category, so an immediate second run inserts nothing.
//
// The first persistence failure aborts the operation and is reported to
// the caller. Earlier inserts stand on the store's per-write atomicity;
// there is no cross-document transaction to roll them back with.
func processCarryForward(ctx context.Context, store Store, month Month, rules CategoryRules) (int, error) {
	current, err := store.List(ctx, month)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load month for carry-forward")
	}

	next, err := store.List(ctx, month.Next())
	if err != nil {
		return 0, errors.Wrap(err, "failed to load following month for carry-forward")
	}

	carried := 0
	for _, txn := range current {
		if txn == nil || !rules.IsCarryForward(txn.Category) {
			continue
		}
		if txn.Status == StatusPaid || txn.Remaining() <= 0 {
			continue
		}
		if alreadyCarried(next, txn) {
			continue
		}

		rollover := &Transaction{
			Title:            txn.Title,
			Amount:           txn.Remaining(),
			IsExpense:        txn.IsExpense,
			Date:             month.Next().FirstDay(),
			Category:         txn.Category,
			Status:           StatusUnpaid,
			IsCarriedForward: true,
		}

		if _, err := store.Insert(ctx, rollover); err != nil {
			return carried, WrapError(err, "carry_forward_failed",
				"failed to materialize carried-forward transaction")
		}
		carried++
	}

	return carried, nil
}

// alreadyCarried reports whether the following month already contains the
// rollover for the given original.
func alreadyCarried(next []*Transaction, original *Transaction) bool {
	for _, txn := range next {
		if txn == nil || !txn.IsCarriedForward {
			continue
		}
		if txn.Title == original.Title && txn.Category == original.Category {
			return true
		}
	}
	return false
}
