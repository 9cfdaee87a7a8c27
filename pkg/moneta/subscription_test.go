package moneta

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionManager_DeliversSnapshots(t *testing.T) {
	ctx := context.Background()
	feed := newChanFeed()
	mgr := newSubscriptionManager()
	defer mgr.Stop()

	received := make(chan []*Transaction, 4)
	gen, err := mgr.Start(ctx, feed, Month{Year: 2026, Month: time.August}, time.Second, feedHooks{
		OnSnapshot: func(g uint64, txns []*Transaction) {
			received <- txns
		},
	})
	require.NoError(t, err)
	assert.Equal(t, gen, mgr.Generation())
	assert.Equal(t, SubscriptionSubscribing, mgr.State())

	feed.deliver([]*Transaction{{ID: "1", Amount: 10}})

	select {
	case txns := <-received:
		require.Len(t, txns, 1)
		assert.Equal(t, "1", txns[0].ID)
	case <-time.After(time.Second):
		t.Fatal("snapshot never delivered")
	}

	require.Eventually(t, func() bool {
		return mgr.State() == SubscriptionActive
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriptionManager_SingleActiveSubscription(t *testing.T) {
	ctx := context.Background()
	feed := newChanFeed()
	mgr := newSubscriptionManager()
	defer mgr.Stop()

	month := Month{Year: 2026, Month: time.August}

	first, err := mgr.Start(ctx, feed, month, time.Second, feedHooks{})
	require.NoError(t, err)

	second, err := mgr.Start(ctx, feed, month.Next(), time.Second, feedHooks{})
	require.NoError(t, err)
	assert.Greater(t, second, first)

	// The first subscription is torn down before the second opens; only
	// one listener survives.
	assert.Equal(t, 2, feed.subscribeCount())
	require.Eventually(t, func() bool {
		return feed.activeCount() == 1
	}, time.Second, 5*time.Millisecond)

	mgr.Stop()
	assert.Equal(t, SubscriptionUnsubscribed, mgr.State())
	require.Eventually(t, func() bool {
		return feed.activeCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriptionManager_StaleSnapshotsCarryOldGeneration(t *testing.T) {
	ctx := context.Background()
	feed := newChanFeed()
	mgr := newSubscriptionManager()
	defer mgr.Stop()

	gens := make(chan uint64, 4)
	first, err := mgr.Start(ctx, feed, Month{Year: 2026, Month: time.August}, time.Second, feedHooks{
		OnSnapshot: func(g uint64, _ []*Transaction) { gens <- g },
	})
	require.NoError(t, err)
	feed.deliver([]*Transaction{{ID: "1"}})

	select {
	case g := <-gens:
		assert.Equal(t, first, g)
		// A consumer comparing against Generation() after a restart would
		// discard this event.
		assert.Equal(t, g, mgr.Generation())
	case <-time.After(time.Second):
		t.Fatal("snapshot never delivered")
	}
}

func TestSubscriptionManager_ErrorEntersBackoff(t *testing.T) {
	ctx := context.Background()
	feed := newChanFeed()
	mgr := newSubscriptionManager()
	defer mgr.Stop()

	failures := make(chan error, 1)
	_, err := mgr.Start(ctx, feed, Month{Year: 2026, Month: time.August}, time.Second, feedHooks{
		OnError: func(_ uint64, err error) { failures <- err },
	})
	require.NoError(t, err)

	feed.fail(errors.New("permission denied"))

	select {
	case err := <-failures:
		assert.EqualError(t, err, "permission denied")
	case <-time.After(time.Second):
		t.Fatal("feed error never surfaced")
	}
	assert.Equal(t, SubscriptionErrorBackoff, mgr.State())
}

func TestSubscriptionManager_LoadingTimeout(t *testing.T) {
	ctx := context.Background()
	feed := newChanFeed()
	mgr := newSubscriptionManager()
	defer mgr.Stop()

	timeouts := make(chan uint64, 1)
	gen, err := mgr.Start(ctx, feed, Month{Year: 2026, Month: time.August}, 20*time.Millisecond, feedHooks{
		OnTimeout: func(g uint64) { timeouts <- g },
	})
	require.NoError(t, err)

	select {
	case g := <-timeouts:
		assert.Equal(t, gen, g)
	case <-time.After(time.Second):
		t.Fatal("loading bound never fired")
	}

	// The subscription stays open and can still deliver afterwards.
	received := false
	assert.Equal(t, SubscriptionSubscribing, mgr.State())
	feed.deliver([]*Transaction{{ID: "late"}})
	require.Eventually(t, func() bool {
		received = mgr.State() == SubscriptionActive
		return received
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriptionManager_SubscribeFailure(t *testing.T) {
	ctx := context.Background()
	feed := newChanFeed()
	feed.failOpen = errors.New("unavailable")
	mgr := newSubscriptionManager()

	_, err := mgr.Start(ctx, feed, Month{Year: 2026, Month: time.August}, time.Second, feedHooks{})
	require.Error(t, err)
	assert.Equal(t, SubscriptionErrorBackoff, mgr.State())
}
