package moneta

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// SubscriptionState represents where the live feed currently stands.
type SubscriptionState string

const (
	SubscriptionUnsubscribed SubscriptionState = "unsubscribed"
	SubscriptionSubscribing  SubscriptionState = "subscribing"
	SubscriptionActive       SubscriptionState = "active"
	SubscriptionErrorBackoff SubscriptionState = "error_backoff"
)

// feedHooks receive subscription lifecycle events. Every callback carries
// the generation it belongs to; the consumer discards events whose
// generation is no longer current.
type feedHooks struct {
	// OnSnapshot delivers a complete replacement transaction set.
	OnSnapshot func(gen uint64, txns []*Transaction)

	// OnError reports a feed failure. The subscription is dead afterwards.
	OnError func(gen uint64, err error)

	// OnTimeout fires when no event arrived within the loading bound. The
	// subscription stays open and may still deliver later.
	OnTimeout func(gen uint64)
}

// subscriptionManager owns at most one live feed subscription. Starting a
// new subscription always tears the previous one down first, so listeners
// never leak and no set is delivered twice.
type subscriptionManager struct {
	mu     sync.Mutex
	state  atomic.Value // SubscriptionState
	cancel context.CancelFunc
	gen    uint64
}

func newSubscriptionManager() *subscriptionManager {
	m := &subscriptionManager{}
	m.state.Store(SubscriptionUnsubscribed)
	return m
}

// State returns the current subscription state.
func (m *subscriptionManager) State() SubscriptionState {
	return m.state.Load().(SubscriptionState)
}

// Generation returns the id of the newest subscription. Events tagged
// with an older generation are stale.
func (m *subscriptionManager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// Start opens a feed subscription for the month, cancelling any previous
// one first. loadingBound caps how long the consumer's loading flag may
// stay pending before OnTimeout fires.
func (m *subscriptionManager) Start(ctx context.Context, feed Feed, month Month, loadingBound time.Duration, hooks feedHooks) (uint64, error) {
	m.mu.Lock()
	m.stopLocked()

	m.gen++
	gen := m.gen

	subCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state.Store(SubscriptionSubscribing)
	m.mu.Unlock()

	snapshots, feedErrs, err := feed.Subscribe(subCtx, month)
	if err != nil {
		m.mu.Lock()
		if gen == m.gen {
			m.state.Store(SubscriptionErrorBackoff)
			m.cancel = nil
		}
		m.mu.Unlock()
		cancel()
		return gen, errors.Wrap(err, "failed to open feed subscription")
	}

	go m.consume(subCtx, gen, loadingBound, snapshots, feedErrs, hooks)

	return gen, nil
}

// Stop tears down the active subscription, if any. Safe to call twice.
func (m *subscriptionManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *subscriptionManager) stopLocked() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.state.Store(SubscriptionUnsubscribed)
}

// consume pumps feed events until the subscription's context is
// cancelled or the feed fails.
func (m *subscriptionManager) consume(ctx context.Context, gen uint64, loadingBound time.Duration, snapshots <-chan []*Transaction, feedErrs <-chan error, hooks feedHooks) {
	timer := time.NewTimer(loadingBound)
	defer timer.Stop()

	firstEvent := true

	for {
		select {
		case <-ctx.Done():
			return

		case txns, ok := <-snapshots:
			if !ok {
				return
			}
			if firstEvent {
				firstEvent = false
				timer.Stop()
				m.transition(gen, SubscriptionSubscribing, SubscriptionActive)
			}
			if hooks.OnSnapshot != nil {
				hooks.OnSnapshot(gen, txns)
			}

		case err, ok := <-feedErrs:
			if !ok {
				feedErrs = nil
				continue
			}
			if err == nil {
				continue
			}
			m.fail(gen)
			if hooks.OnError != nil {
				hooks.OnError(gen, err)
			}
			return

		case <-timer.C:
			// The loading bound elapsed without a first event. The
			// subscription stays open; only the pending flag is released.
			if hooks.OnTimeout != nil {
				hooks.OnTimeout(gen)
			}
		}
	}
}

// transition moves the state only while this generation is still the
// newest one and the state matches the expected value.
func (m *subscriptionManager) transition(gen uint64, from, to SubscriptionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen && m.State() == from {
		m.state.Store(to)
	}
}

func (m *subscriptionManager) fail(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen {
		m.state.Store(SubscriptionErrorBackoff)
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
	}
}
