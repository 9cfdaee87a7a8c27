// Command dashboard renders the monthly snapshot and cash-flow series on
// the terminal, and runs the month-boundary maintenance operation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/moneta-app/moneta-go/internal/auth"
	"github.com/moneta-app/moneta-go/internal/config"
	"github.com/moneta-app/moneta-go/internal/localstore"
	"github.com/moneta-app/moneta-go/internal/remotestore"
	"github.com/moneta-app/moneta-go/pkg/moneta"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(cfg, logger); err != nil {
		logger.Error("dashboard failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, err := localstore.New(cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer local.Close()

	authSvc := auth.NewService()
	if cfg.SessionFile != "" {
		if err := authSvc.LoadSession(cfg.SessionFile); err != nil {
			logger.Warn("failed to load session, staying local", "error", err)
		}
	}

	opts := &moneta.Options{
		LocalStore: local,
		Auth:       authSvc,
		Budget:     local,
		Rules: moneta.CategoryRules{
			CarryForward: cfg.CarryForwardCategories,
			Reset:        cfg.ResetCategories,
		},
		Logger:            moneta.NewSlogLogger(logger),
		LoadingTimeout:    cfg.LoadingTimeout,
		UpcomingBillLimit: cfg.UpcomingBillLimit,
		SentryDSN:         cfg.SentryDSN,
	}

	if cfg.RemoteBaseURL != "" && authSvc.Session() != nil {
		remote, err := remotestore.New(&remotestore.Options{
			BaseURL:      cfg.RemoteBaseURL,
			Logger:       moneta.NewSlogLogger(logger),
			PollInterval: cfg.PollInterval,
		})
		if err != nil {
			return err
		}
		remote.SetSession(authSvc.Session())
		opts.RemoteStore = remote
		opts.Feed = remote
		opts.Budget = remote
	}

	vm, err := moneta.NewViewModel(opts)
	if err != nil {
		return err
	}
	defer vm.Close()

	states, stop := vm.Watch()
	defer stop()

	vm.Start(ctx)

	if len(os.Args) > 1 && os.Args[1] == "carry-forward" {
		carried, err := vm.ProcessMonthlyCarryForward(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("carried %d unpaid obligation(s) into %s\n", carried, vm.SelectedMonth().Next())
		return nil
	}

	state := awaitLoaded(states, 5*time.Second)
	printState(state)
	return nil
}

// awaitLoaded drains the state stream until loading settles or the wait
// expires, returning the last state seen.
func awaitLoaded(states <-chan moneta.State, wait time.Duration) moneta.State {
	deadline := time.After(wait)
	var last moneta.State
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return last
			}
			last = state
			if !state.Loading && state.Snapshot != nil {
				return state
			}
		case <-deadline:
			return last
		}
	}
}

func printState(state moneta.State) {
	snap := state.Snapshot
	if snap == nil {
		fmt.Println("no data")
		return
	}

	fmt.Printf("%s  [%s]\n", snap.Month, state.Mode)
	fmt.Printf("  income   %10.2f\n", snap.Income)
	fmt.Printf("  expenses %10.2f\n", snap.Expenses)
	fmt.Printf("  balance  %10.2f\n", snap.Balance)
	fmt.Printf("  unpaid   %10.2f\n", snap.UnpaidTotal)
	if snap.Budget > 0 {
		fmt.Printf("  budget   %10.2f (%.0f%% spent)\n", snap.Budget, 100*snap.Expenses/snap.Budget)
	}

	if len(snap.CategoryTotals) > 0 {
		fmt.Println("  by category:")
		for category, total := range snap.CategoryTotals {
			name := category
			if name == "" {
				name = "(uncategorized)"
			}
			fmt.Printf("    %-20s %10.2f\n", name, total)
		}
	}

	if state.CashFlow != nil {
		fmt.Printf("  cash flow: %d actual day(s), %d projected\n",
			len(state.CashFlow.Historical), len(state.CashFlow.Forecast))
		// Concatenate into a fresh slice; appending to Historical directly
		// could write into its spare capacity.
		points := make([]moneta.CashFlowPoint, 0, len(state.CashFlow.Historical)+len(state.CashFlow.Forecast))
		points = append(points, state.CashFlow.Historical...)
		points = append(points, state.CashFlow.Forecast...)
		if len(points) > 0 {
			fmt.Printf("  projected month-end balance: %.2f\n", points[len(points)-1].Balance)
		}
	}

	if len(snap.Recent) > 0 {
		fmt.Println("  recent:")
		for _, txn := range snap.Recent {
			direction := "+"
			if txn.IsExpense {
				direction = "-"
			}
			fmt.Printf("    %s  %s%9.2f  %s\n", txn.Date, direction, txn.Amount, txn.Title)
		}
	}
}
