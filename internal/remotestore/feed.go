package remotestore

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/moneta-app/moneta-go/pkg/moneta"
)

// Subscribe opens a live feed of transaction-set snapshots for the month.
// The document API has no push channel, so the feed polls the list
// endpoint and emits a snapshot whenever the set changed. Both channels
// close when the context is cancelled or the feed fails.
func (s *Store) Subscribe(ctx context.Context, month moneta.Month) (<-chan []*moneta.Transaction, <-chan error, error) {
	if _, err := s.currentSession(); err != nil {
		return nil, nil, err
	}

	snapshots := make(chan []*moneta.Transaction, 1)
	feedErrs := make(chan error, 1)

	go s.poll(ctx, month, snapshots, feedErrs)

	return snapshots, feedErrs, nil
}

// poll fetches immediately, then on every tick. A fingerprint of the
// serialized set suppresses duplicate deliveries; the first fetch always
// delivers so subscribers reach their first event promptly.
func (s *Store) poll(ctx context.Context, month moneta.Month, snapshots chan<- []*moneta.Transaction, feedErrs chan<- error) {
	defer close(snapshots)
	defer close(feedErrs)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var lastFingerprint uint64
	first := true

	for {
		txns, err := s.List(ctx, month)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if s.logger != nil {
				s.logger.Error("feed poll failed", "month", month.String(), "error", err)
			}
			feedErrs <- err
			return
		}

		fp := fingerprint(txns)
		if first || fp != lastFingerprint {
			first = false
			lastFingerprint = fp
			select {
			case snapshots <- txns:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fingerprint hashes the serialized set. Serialization order is the
// server's, which is stable between unchanged polls.
func fingerprint(txns []*moneta.Transaction) uint64 {
	h := fnv.New64a()
	enc := json.NewEncoder(h)
	for _, txn := range txns {
		// Encoding a flat struct cannot fail.
		_ = enc.Encode(txn)
	}
	return h.Sum64()
}
