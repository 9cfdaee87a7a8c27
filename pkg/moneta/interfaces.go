package moneta

import (
	"context"
)

// Store is the uniform read/write contract over a backing transaction
// store. Two implementations exist: the on-device store and the cloud
// document store. The view model treats them interchangeably; only the
// selection differs by auth state.
type Store interface {
	// List retrieves the transactions of one month, newest first.
	List(ctx context.Context, month Month) ([]*Transaction, error)

	// ListUpcoming retrieves future-dated transactions after the given
	// date, soonest first, bounded by limit.
	ListUpcoming(ctx context.Context, after Date, limit int) ([]*Transaction, error)

	// Insert persists a new transaction and returns its assigned id.
	Insert(ctx context.Context, txn *Transaction) (string, error)

	// Update replaces the stored transaction with the given id.
	Update(ctx context.Context, id string, txn *Transaction) error

	// Delete removes the transaction with the given id.
	Delete(ctx context.Context, id string) error
}

// Feed delivers live transaction-set snapshots for a month. Subscribe
// returns a snapshot channel and an error channel; both are closed when
// the context is cancelled. Each delivered slice is a complete replacement
// set, never a delta.
type Feed interface {
	Subscribe(ctx context.Context, month Month) (<-chan []*Transaction, <-chan error, error)
}

// AuthProvider exposes the signed-in/signed-out signal. Current returns
// nil when signed out. Changes registers a single-consumer stream of
// principal transitions; the returned cancel removes the registration
// and closes the channel.
type AuthProvider interface {
	Current() *Principal
	Changes() (<-chan *Principal, func())
}

// BudgetProvider supplies the configured budget amount for a month.
type BudgetProvider interface {
	MonthlyBudget(ctx context.Context, month Month) (float64, error)
}

// Logger interface for logging
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
