// Package localstore is the on-device transaction store: a single sqlite
// file that backs local mode and serves as the fallback when the live
// feed dies.
package localstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/moneta-app/moneta-go/pkg/moneta"
)

// Store implements moneta.Store and moneta.BudgetProvider over sqlite.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the sqlite database at dbPath and runs
// pending migrations.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Wrap(err, "create db directory")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const transactionColumns = `id, title, amount, is_expense, date, category, status, paid_amount, carried_forward`

// List returns the month's transactions, newest first. Month filtering is
// pushed into the query; dates are stored as YYYY-MM-DD text so a string
// range matches the calendar range.
func (s *Store) List(ctx context.Context, month moneta.Month) ([]*moneta.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE date >= ? AND date <= ?
		 ORDER BY date DESC, id DESC`,
		month.FirstDay().String(), month.LastDay().String())
	if err != nil {
		return nil, errors.Wrap(err, "query month transactions")
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListUpcoming returns future-dated transactions after the given date,
// soonest first.
func (s *Store) ListUpcoming(ctx context.Context, after moneta.Date, limit int) ([]*moneta.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE date > ?
		 ORDER BY date ASC, id ASC
		 LIMIT ?`,
		after.String(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "query upcoming transactions")
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Insert stores a new transaction and returns the row id as a string.
func (s *Store) Insert(ctx context.Context, txn *moneta.Transaction) (string, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (title, amount, is_expense, date, category, status, paid_amount, carried_forward)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.Title, txn.Amount, boolToInt(txn.IsExpense), txn.Date.String(),
		txn.Category, string(txn.Status), paidValue(txn), boolToInt(txn.IsCarriedForward))
	if err != nil {
		return "", errors.Wrap(err, "insert transaction")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return "", errors.Wrap(err, "read inserted id")
	}

	txn.ID = strconv.FormatInt(id, 10)
	return txn.ID, nil
}

// Update replaces the stored transaction with the given id.
func (s *Store) Update(ctx context.Context, id string, txn *moneta.Transaction) error {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return errors.Wrapf(moneta.ErrNotFound, "invalid local id %q", id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		 SET title = ?, amount = ?, is_expense = ?, date = ?, category = ?, status = ?, paid_amount = ?, carried_forward = ?
		 WHERE id = ?`,
		txn.Title, txn.Amount, boolToInt(txn.IsExpense), txn.Date.String(),
		txn.Category, string(txn.Status), paidValue(txn), boolToInt(txn.IsCarriedForward),
		rowID)
	if err != nil {
		return errors.Wrap(err, "update transaction")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "read affected rows")
	}
	if affected == 0 {
		return moneta.ErrNotFound
	}
	return nil
}

// Delete removes the transaction with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	rowID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return errors.Wrapf(moneta.ErrNotFound, "invalid local id %q", id)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, rowID)
	if err != nil {
		return errors.Wrap(err, "delete transaction")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "read affected rows")
	}
	if affected == 0 {
		return moneta.ErrNotFound
	}
	return nil
}

// MonthlyBudget returns the configured budget for the month, zero when
// none is set.
func (s *Store) MonthlyBudget(ctx context.Context, month moneta.Month) (float64, error) {
	var amount float64
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM budgets WHERE year = ? AND month = ?`,
		month.Year, int(month.Month)).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "query monthly budget")
	}
	return amount, nil
}

// SetMonthlyBudget stores the budget amount for a month.
func (s *Store) SetMonthlyBudget(ctx context.Context, month moneta.Month, amount float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budgets (year, month, amount) VALUES (?, ?, ?)
		 ON CONFLICT (year, month) DO UPDATE SET amount = excluded.amount`,
		month.Year, int(month.Month), amount)
	return errors.Wrap(err, "set monthly budget")
}

func scanTransactions(rows *sql.Rows) ([]*moneta.Transaction, error) {
	txns := []*moneta.Transaction{}
	for rows.Next() {
		var (
			id       int64
			txn      moneta.Transaction
			expense  int
			date     string
			status   string
			paid     sql.NullFloat64
			carried  int
		)
		if err := rows.Scan(&id, &txn.Title, &txn.Amount, &expense, &date,
			&txn.Category, &status, &paid, &carried); err != nil {
			return nil, errors.Wrap(err, "scan transaction")
		}

		txn.ID = strconv.FormatInt(id, 10)
		txn.IsExpense = expense != 0
		txn.Status = moneta.PaymentStatus(status)
		txn.IsCarriedForward = carried != 0
		if paid.Valid {
			amount := paid.Float64
			txn.PaidAmount = &amount
		}
		if err := txn.Date.UnmarshalJSON([]byte(`"` + date + `"`)); err != nil {
			return nil, errors.Wrapf(err, "parse stored date %q", date)
		}

		txn.Normalize()
		txns = append(txns, &txn)
	}
	return txns, errors.Wrap(rows.Err(), "iterate transactions")
}

func paidValue(txn *moneta.Transaction) interface{} {
	if txn.PaidAmount == nil {
		return nil
	}
	return *txn.PaidAmount
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
