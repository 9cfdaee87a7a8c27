package moneta

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLoadingTimeout bounds how long the loading flag may stay
	// pending while waiting for a first feed event.
	DefaultLoadingTimeout = 3 * time.Second

	// DefaultUpcomingBillLimit bounds the separate upcoming-bills query
	// feeding the forecast.
	DefaultUpcomingBillLimit = 20
)

// Options configures the view model.
type Options struct {
	// LocalStore backs ModeLocal. Required.
	LocalStore Store

	// RemoteStore backs ModeRemote. Optional; without it the view model
	// never leaves local mode.
	RemoteStore Store

	// Feed is the remote store's live subscription source.
	Feed Feed

	// Auth provides the signed-in/signed-out signal driving mode
	// selection. Optional; without it the view model stays local.
	Auth AuthProvider

	// Budget supplies monthly budget amounts for the snapshot.
	Budget BudgetProvider

	// Rules name the carry-forward and reset category sets.
	Rules CategoryRules

	// Logger for debug logging
	Logger Logger

	// LoadingTimeout overrides DefaultLoadingTimeout.
	LoadingTimeout time.Duration

	// UpcomingBillLimit overrides DefaultUpcomingBillLimit.
	UpcomingBillLimit int

	// Clock overrides wall-clock time. Tests use this to pin "today".
	Clock func() time.Time

	// SentryDSN enables Sentry error tracking when set
	SentryDSN string

	// SentryOptions allows custom Sentry configuration
	SentryOptions *sentry.ClientOptions
}

// State is the consolidated snapshot the presentation layer observes.
// Every field is derived; none is ever patched in place.
type State struct {
	Transactions []*Transaction
	Snapshot     *MonthlySnapshot
	CashFlow     *CashFlowSeries
	Loading      bool
	Month        Month
	Mode         DataSourceMode
	Err          error
}

// ViewModel is the single coherent object the presentation layer
// observes. It multiplexes between the local and remote stores, keeps the
// monthly aggregates current, and exposes the mutation API.
//
// All state writes are serialized through one mutex; async completions
// check their generation before applying results, so a torn-down or
// superseded operation discards its result instead of clobbering newer
// state.
type ViewModel struct {
	opts   *Options
	logger Logger
	rules  CategoryRules
	clock  func() time.Time

	// transMu serializes mode and month transitions end to end: the
	// decision which source serves and the subscription start/stop it
	// implies happen atomically with respect to each other. Without it a
	// sign-out could stop the feed between another transition's mode read
	// and its Start, leaving a live subscription feeding a local-mode
	// facade. Lock order: transMu before mu, never the reverse.
	transMu sync.Mutex

	subs *subscriptionManager

	mu          sync.Mutex
	ctx         context.Context
	state       State
	loadGen     uint64
	closed      bool
	watchers    map[int]chan State
	nextWatcher int
}

// NewViewModel creates a view model over the given stores.
func NewViewModel(opts *Options) (*ViewModel, error) {
	if opts == nil || opts.LocalStore == nil {
		return nil, errors.New("local store is required")
	}

	// Initialize Sentry if DSN is provided
	if opts.SentryDSN != "" || opts.SentryOptions != nil {
		sentryOpts := sentry.ClientOptions{}

		if opts.SentryOptions != nil {
			sentryOpts = *opts.SentryOptions
		}

		if opts.SentryDSN != "" {
			sentryOpts.Dsn = opts.SentryDSN
		}

		if sentryOpts.Environment == "" {
			sentryOpts.Environment = "production"
		}

		if err := sentry.Init(sentryOpts); err != nil {
			// Log error but don't fail construction
			if opts.Logger != nil {
				opts.Logger.Error("Failed to initialize Sentry", "error", err)
			}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	if opts.LoadingTimeout <= 0 {
		opts.LoadingTimeout = DefaultLoadingTimeout
	}
	if opts.UpcomingBillLimit <= 0 {
		opts.UpcomingBillLimit = DefaultUpcomingBillLimit
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	vm := &ViewModel{
		opts:     opts,
		logger:   logger,
		rules:    opts.Rules,
		clock:    clock,
		subs:     newSubscriptionManager(),
		watchers: make(map[int]chan State),
	}

	month := MonthOf(clock())
	vm.state = State{
		Month:        month,
		Mode:         ModeLocal,
		Transactions: []*Transaction{},
		Snapshot:     EmptySnapshot(month),
		CashFlow:     ProjectCashFlow(nil, nil, month, DateOf(clock())),
	}

	return vm, nil
}

// Start wires the auth signal and performs the initial load. The context
// owns every subscription and async load; cancelling it tears the view
// model's background work down.
func (vm *ViewModel) Start(ctx context.Context) {
	vm.mu.Lock()
	vm.ctx = ctx
	vm.mu.Unlock()

	var principal *Principal
	if vm.opts.Auth != nil {
		principal = vm.opts.Auth.Current()
	}
	vm.applyAuth(ctx, principal)

	if vm.opts.Auth != nil {
		go vm.watchAuth(ctx)
	}
}

func (vm *ViewModel) watchAuth(ctx context.Context) {
	changes, stop := vm.opts.Auth.Changes()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case principal, ok := <-changes:
			if !ok {
				return
			}
			vm.applyAuth(ctx, principal)
		}
	}
}

// applyAuth is the only place the auth signal transitions the data-source
// mode. Signed-in plus a configured remote store means remote; everything
// else means local.
func (vm *ViewModel) applyAuth(ctx context.Context, principal *Principal) {
	vm.transMu.Lock()
	defer vm.transMu.Unlock()

	mode := ModeLocal
	if principal != nil && vm.opts.RemoteStore != nil && vm.opts.Feed != nil {
		mode = ModeRemote
	}

	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return
	}
	vm.state.Mode = mode
	vm.state.Err = nil
	month := vm.state.Month
	vm.publishLocked()
	vm.mu.Unlock()

	if mode == ModeRemote {
		vm.subscribe(ctx, month)
	} else {
		vm.subs.Stop()
		vm.reload(ctx)
	}
}

// SetSelectedMonth switches the active month and re-derives everything
// for it. In remote mode the live feed is re-opened with the new filter.
func (vm *ViewModel) SetSelectedMonth(ctx context.Context, month Month) {
	vm.transMu.Lock()
	defer vm.transMu.Unlock()

	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return
	}
	vm.state.Month = month
	mode := vm.state.Mode
	vm.publishLocked()
	vm.mu.Unlock()

	if mode == ModeRemote {
		vm.subscribe(ctx, month)
	} else {
		vm.reload(ctx)
	}
}

// subscribe opens the live feed for the month. Callers hold transMu, so
// the mode decision that led here cannot be invalidated before Start; the
// manager guarantees the previous subscription is torn down first.
func (vm *ViewModel) subscribe(ctx context.Context, month Month) {
	vm.setLoading(true)

	_, err := vm.subs.Start(ctx, vm.opts.Feed, month, vm.opts.LoadingTimeout, feedHooks{
		OnSnapshot: func(gen uint64, txns []*Transaction) {
			if gen != vm.subs.Generation() || vm.Mode() != ModeRemote {
				return
			}
			vm.applySet(ctx, txns)
		},
		OnError: func(gen uint64, err error) {
			if gen != vm.subs.Generation() {
				return
			}
			vm.fallbackToLocal(ctx, err)
		},
		OnTimeout: func(gen uint64) {
			if gen != vm.subs.Generation() {
				return
			}
			vm.logger.Warn("no feed event within loading bound, clearing loading flag",
				"month", month.String())
			vm.noteLoadTimeout()
		},
	})
	if err != nil {
		vm.fallbackLocked(ctx, err)
	}
}

// fallbackToLocal handles a dead feed: the failure is reported, the mode
// flips to local, and a one-shot load replaces the live subscription.
func (vm *ViewModel) fallbackToLocal(ctx context.Context, cause error) {
	vm.transMu.Lock()
	defer vm.transMu.Unlock()
	vm.fallbackLocked(ctx, cause)
}

// fallbackLocked is fallbackToLocal with transMu already held.
func (vm *ViewModel) fallbackLocked(ctx context.Context, cause error) {
	err := WrapError(cause, "subscription_error", "live feed failed, falling back to local store")
	vm.logger.Error("subscription failed", "error", err)
	vm.captureError(err)

	vm.subs.Stop()

	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return
	}
	vm.state.Mode = ModeLocal
	vm.state.Err = errors.Wrap(ErrSubscriptionFailed, cause.Error())
	vm.publishLocked()
	vm.mu.Unlock()

	vm.reload(ctx)
}

// reload performs a one-shot load of the active month from the active
// store. The result is discarded when a newer reload, month change or
// mode change happened in the meantime.
func (vm *ViewModel) reload(ctx context.Context) {
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return
	}
	vm.loadGen++
	gen := vm.loadGen
	month := vm.state.Month
	store := vm.activeStoreLocked()
	vm.state.Loading = true
	vm.publishLocked()
	vm.mu.Unlock()

	txns, err := store.List(ctx, month)
	if err != nil {
		vm.logger.Error("failed to load month", "month", month.String(), "error", err)
		vm.captureError(err)
		vm.applyFailure(gen, month, errors.Wrap(err, "failed to load month"))
		return
	}

	vm.mu.Lock()
	stale := vm.closed || gen != vm.loadGen || month != vm.state.Month
	vm.mu.Unlock()
	if stale {
		return
	}

	vm.applySet(ctx, txns)
}

// applySet recomputes every derived view from a complete transaction set
// and publishes the new state. Derivation failures reset to a
// clearly-empty snapshot rather than publishing partial data.
func (vm *ViewModel) applySet(ctx context.Context, txns []*Transaction) {
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return
	}
	month := vm.state.Month
	store := vm.activeStoreLocked()
	vm.mu.Unlock()

	for _, txn := range txns {
		txn.Normalize()
	}

	today := DateOf(vm.clock())

	var upcoming []*Transaction
	budget := 0.0

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		upcoming, err = store.ListUpcoming(gctx, today, vm.opts.UpcomingBillLimit)
		return errors.Wrap(err, "failed to load upcoming bills")
	})
	if vm.opts.Budget != nil {
		g.Go(func() error {
			var err error
			budget, err = vm.opts.Budget.MonthlyBudget(gctx, month)
			return errors.Wrap(err, "failed to load monthly budget")
		})
	}
	if err := g.Wait(); err != nil {
		vm.logger.Error("failed to derive monthly views", "month", month.String(), "error", err)
		vm.captureError(err)
		vm.applyFailure(vm.currentLoadGen(), month, err)
		return
	}

	snapshot := Aggregate(txns, month, vm.rules)
	snapshot.Budget = budget
	series := ProjectCashFlow(txns, upcoming, month, today)

	vm.mu.Lock()
	if vm.closed || month != vm.state.Month {
		vm.mu.Unlock()
		return
	}
	vm.state.Transactions = txns
	vm.state.Snapshot = snapshot
	vm.state.CashFlow = series
	vm.state.Loading = false
	// A successful load clears earlier load failures, but a fallback cause
	// stays visible until the next mode transition resets it.
	if !errors.Is(vm.state.Err, ErrSubscriptionFailed) {
		vm.state.Err = nil
	}
	vm.publishLocked()
	vm.mu.Unlock()
}

// applyFailure publishes the clearly-empty state for a failed load,
// unless a newer load superseded this one.
func (vm *ViewModel) applyFailure(gen uint64, month Month, err error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed || gen != vm.loadGen || month != vm.state.Month {
		return
	}
	vm.state.Transactions = []*Transaction{}
	vm.state.Snapshot = EmptySnapshot(month)
	vm.state.CashFlow = ProjectCashFlow(nil, nil, month, DateOf(vm.clock()))
	vm.state.Loading = false
	vm.state.Err = err
	vm.publishLocked()
}

// AddTransaction persists a new transaction through the active store.
// In local mode the month is reloaded explicitly; in remote mode the live
// feed re-delivers the updated set, so no manual reload races it.
func (vm *ViewModel) AddTransaction(ctx context.Context, txn *Transaction) bool {
	store, mode, ok := vm.writeTarget()
	if !ok {
		return false
	}

	txn.Normalize()

	if _, err := store.Insert(ctx, txn); err != nil {
		vm.reportWriteFailure("add transaction", err)
		return false
	}

	if mode == ModeLocal {
		vm.reload(ctx)
	}
	return true
}

// UpdateTransaction replaces an existing transaction.
func (vm *ViewModel) UpdateTransaction(ctx context.Context, id string, txn *Transaction) bool {
	store, mode, ok := vm.writeTarget()
	if !ok {
		return false
	}

	txn.Normalize()

	if err := store.Update(ctx, id, txn); err != nil {
		vm.reportWriteFailure("update transaction", err)
		return false
	}

	if mode == ModeLocal {
		vm.reload(ctx)
	}
	return true
}

// DeleteTransaction removes a transaction.
func (vm *ViewModel) DeleteTransaction(ctx context.Context, id string) bool {
	store, mode, ok := vm.writeTarget()
	if !ok {
		return false
	}

	if err := store.Delete(ctx, id); err != nil {
		vm.reportWriteFailure("delete transaction", err)
		return false
	}

	if mode == ModeLocal {
		vm.reload(ctx)
	}
	return true
}

// RecordPayment adds a payment against a transaction: the paid amount
// grows by the given amount, clamped to the transaction total, and the
// status follows. The write goes through the active store like every
// other mutation.
func (vm *ViewModel) RecordPayment(ctx context.Context, txn *Transaction, amount float64) bool {
	store, mode, ok := vm.writeTarget()
	if !ok {
		return false
	}

	updated := ApplyPayment(txn, amount)

	if err := store.Update(ctx, updated.ID, updated); err != nil {
		vm.reportWriteFailure("record payment", err)
		return false
	}

	if mode == ModeLocal {
		vm.reload(ctx)
	}
	return true
}

// ProcessMonthlyCarryForward runs the month-boundary maintenance
// operation for the selected month and returns how many obligations were
// rolled over.
func (vm *ViewModel) ProcessMonthlyCarryForward(ctx context.Context) (int, error) {
	store, mode, ok := vm.writeTarget()
	if !ok {
		return 0, ErrClosed
	}

	vm.mu.Lock()
	month := vm.state.Month
	vm.mu.Unlock()

	carried, err := processCarryForward(ctx, store, month, vm.rules)
	if err != nil {
		vm.logger.Error("carry-forward failed", "month", month.String(), "error", err)
		vm.captureError(err)
		return carried, err
	}

	vm.logger.Info("carry-forward complete", "month", month.String(), "carried", carried)

	if mode == ModeLocal {
		vm.reload(ctx)
	}
	return carried, nil
}

// writeTarget resolves the store a mutation must use. Resolution happens
// under the same lock that serializes mode transitions, so a write lands
// fully on the mode that was active when it was issued.
func (vm *ViewModel) writeTarget() (Store, DataSourceMode, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed {
		return nil, ModeLocal, false
	}
	return vm.activeStoreLocked(), vm.state.Mode, true
}

func (vm *ViewModel) activeStoreLocked() Store {
	if vm.state.Mode == ModeRemote && vm.opts.RemoteStore != nil {
		return vm.opts.RemoteStore
	}
	return vm.opts.LocalStore
}

func (vm *ViewModel) reportWriteFailure(op string, err error) {
	wrapped := NewPersistenceError(op, err)
	vm.logger.Error(op+" failed", "error", err)
	vm.captureError(wrapped)

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed {
		return
	}
	vm.state.Err = wrapped
	vm.publishLocked()
}

func (vm *ViewModel) captureError(err error) {
	if vm.opts.SentryDSN == "" && vm.opts.SentryOptions == nil {
		return
	}
	sentry.CaptureException(err)
}

// noteLoadTimeout clears the pending loading flag after the bound
// elapsed without a first feed event. Not fatal: the subscription stays
// open and a later snapshot clears the error again.
func (vm *ViewModel) noteLoadTimeout() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed || !vm.state.Loading {
		return
	}
	vm.state.Loading = false
	vm.state.Err = ErrLoadTimeout
	vm.publishLocked()
}

func (vm *ViewModel) setLoading(loading bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.closed || vm.state.Loading == loading {
		return
	}
	vm.state.Loading = loading
	vm.publishLocked()
}

func (vm *ViewModel) currentLoadGen() uint64 {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.loadGen
}

// Snapshot returns a copy of the current observable state.
func (vm *ViewModel) Snapshot() State {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state
}

// Mode returns the active data-source mode.
func (vm *ViewModel) Mode() DataSourceMode {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state.Mode
}

// SelectedMonth returns the active month.
func (vm *ViewModel) SelectedMonth() Month {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state.Month
}

// SubscriptionState exposes where the live feed stands.
func (vm *ViewModel) SubscriptionState() SubscriptionState {
	return vm.subs.State()
}

// UnpaidTransactions returns the not-yet-settled transactions of the
// active month.
func (vm *ViewModel) UnpaidTransactions() []*Transaction {
	return UnpaidOf(vm.Snapshot().Transactions)
}

// CarriedForwardTransactions returns the active month's rolled-over
// obligations.
func (vm *ViewModel) CarriedForwardTransactions() []*Transaction {
	return CarriedForwardOf(vm.Snapshot().Transactions)
}

// ByCategory returns the active month's transactions in one category.
func (vm *ViewModel) ByCategory(category string) []*Transaction {
	return ByCategoryOf(vm.Snapshot().Transactions, category)
}

// ByStatus returns the active month's transactions with one status.
func (vm *ViewModel) ByStatus(status PaymentStatus) []*Transaction {
	return ByStatusOf(vm.Snapshot().Transactions, status)
}

// CategoryTotals returns the per-category expense totals of the active
// month.
func (vm *ViewModel) CategoryTotals() map[string]float64 {
	snap := vm.Snapshot().Snapshot
	if snap == nil {
		return map[string]float64{}
	}
	totals := make(map[string]float64, len(snap.CategoryTotals))
	for k, v := range snap.CategoryTotals {
		totals[k] = v
	}
	return totals
}

// Watch registers an observer. The channel conflates: it always holds the
// latest state, and a slow observer only ever misses intermediate states,
// never the newest one. The returned cancel removes the observer.
func (vm *ViewModel) Watch() (<-chan State, func()) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	id := vm.nextWatcher
	vm.nextWatcher++

	ch := make(chan State, 1)
	if !vm.closed {
		ch <- vm.state
		vm.watchers[id] = ch
	} else {
		close(ch)
	}

	cancel := func() {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if w, ok := vm.watchers[id]; ok {
			delete(vm.watchers, id)
			close(w)
		}
	}

	return ch, cancel
}

func (vm *ViewModel) publishLocked() {
	for _, ch := range vm.watchers {
		select {
		case ch <- vm.state:
		default:
			// Conflate: replace the stale pending state with the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- vm.state:
			default:
			}
		}
	}
}

// Close tears the live subscription down, stops publishing and flushes
// any pending Sentry events. Taking transMu first means no in-flight
// transition can start a subscription after the teardown here.
func (vm *ViewModel) Close() {
	vm.transMu.Lock()
	defer vm.transMu.Unlock()

	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return
	}
	vm.closed = true
	for id, ch := range vm.watchers {
		delete(vm.watchers, id)
		close(ch)
	}
	vm.mu.Unlock()

	vm.subs.Stop()

	if vm.opts.SentryDSN != "" || vm.opts.SentryOptions != nil {
		sentry.Flush(2 * time.Second)
	}
}
