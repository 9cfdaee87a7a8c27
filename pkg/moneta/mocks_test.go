package moneta

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of the Store interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) List(ctx context.Context, month Month) ([]*Transaction, error) {
	args := m.Called(ctx, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Transaction), args.Error(1)
}

func (m *MockStore) ListUpcoming(ctx context.Context, after Date, limit int) ([]*Transaction, error) {
	args := m.Called(ctx, after, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Transaction), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, txn *Transaction) (string, error) {
	args := m.Called(ctx, txn)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, id string, txn *Transaction) error {
	args := m.Called(ctx, id, txn)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// memStore is an in-memory Store for view-model flow tests.
type memStore struct {
	mu     sync.Mutex
	nextID int
	txns   map[string]*Transaction
	budget map[Month]float64
}

func newMemStore() *memStore {
	return &memStore{
		nextID: 1,
		txns:   make(map[string]*Transaction),
		budget: make(map[Month]float64),
	}
}

func (s *memStore) List(_ context.Context, month Month) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*Transaction{}
	for _, txn := range s.txns {
		if month.Contains(txn.Date) {
			matched = append(matched, txn.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date.Time)
	})
	return matched, nil
}

func (s *memStore) ListUpcoming(_ context.Context, after Date, limit int) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []*Transaction{}
	for _, txn := range s.txns {
		if txn.Date.After(after.Time) {
			matched = append(matched, txn.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Date.Before(matched[j].Date.Time)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *memStore) Insert(_ context.Context, txn *Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn.ID = strconv.Itoa(s.nextID)
	s.nextID++
	s.txns[txn.ID] = txn.Clone()
	return txn.ID, nil
}

func (s *memStore) Update(_ context.Context, id string, txn *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txns[id]; !ok {
		return ErrNotFound
	}
	updated := txn.Clone()
	updated.ID = id
	s.txns[id] = updated
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txns[id]; !ok {
		return ErrNotFound
	}
	delete(s.txns, id)
	return nil
}

func (s *memStore) MonthlyBudget(_ context.Context, month Month) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget[month], nil
}

// chanFeed is a scriptable Feed backed by channels the test controls.
type chanFeed struct {
	mu         sync.Mutex
	subscribes int
	active     int
	snapshots  chan []*Transaction
	errs       chan error
	failOpen   error
}

func newChanFeed() *chanFeed {
	return &chanFeed{}
}

func (f *chanFeed) Subscribe(ctx context.Context, _ Month) (<-chan []*Transaction, <-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribes++
	if f.failOpen != nil {
		return nil, nil, f.failOpen
	}

	snapshots := make(chan []*Transaction, 4)
	errs := make(chan error, 1)
	f.snapshots = snapshots
	f.errs = errs
	f.active++

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
		close(snapshots)
		close(errs)
	}()

	return snapshots, errs, nil
}

func (f *chanFeed) deliver(txns []*Transaction) {
	f.mu.Lock()
	ch := f.snapshots
	f.mu.Unlock()
	ch <- txns
}

func (f *chanFeed) fail(err error) {
	f.mu.Lock()
	ch := f.errs
	f.mu.Unlock()
	ch <- err
}

func (f *chanFeed) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *chanFeed) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

// staticAuth is an AuthProvider whose principal the test flips directly.
type staticAuth struct {
	mu        sync.Mutex
	principal *Principal
	changes   chan *Principal
}

func newStaticAuth(principal *Principal) *staticAuth {
	return &staticAuth{
		principal: principal,
		changes:   make(chan *Principal, 4),
	}
}

func (a *staticAuth) Current() *Principal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.principal
}

func (a *staticAuth) Changes() (<-chan *Principal, func()) {
	return a.changes, func() {}
}

func (a *staticAuth) set(principal *Principal) {
	a.mu.Lock()
	a.principal = principal
	a.mu.Unlock()
	a.changes <- principal
}

func floatPtr(v float64) *float64 {
	return &v
}
