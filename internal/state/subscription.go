package state

import (
	"context"
	"sync"

	"github.com/njoerd114/countrysync/internal/model"
)

// Snapshot is one emission of a [Subscription]: the full ordered record set,
// or the error that prevented loading it.
type Snapshot struct {
	Countries []model.Country
	Err       error
}

// SnapshotFunc loads the current ordered record set.
type SnapshotFunc func(ctx context.Context) ([]model.Country, error)

// Subscription is a standing observation of a record set. It emits the
// current snapshot immediately and then once more after every [Subscription.Notify].
// Notifications that arrive while a snapshot is pending are coalesced, so
// every emission reflects a state at least as new as the last notification.
//
// The Events channel is closed once the subscription ends, either through
// [Subscription.Close] or cancellation of the context it was created with.
type Subscription struct {
	load    SnapshotFunc
	ch      chan Snapshot
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
	onClose func()
}

// NewSubscription starts a subscription that calls load for every emission.
// onClose, if non-nil, runs exactly once when the subscription ends.
func NewSubscription(ctx context.Context, load SnapshotFunc, onClose func()) *Subscription {
	s := &Subscription{
		load:    load,
		ch:      make(chan Snapshot),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go s.run(ctx)
	return s
}

// Events returns the channel of snapshots.
func (s *Subscription) Events() <-chan Snapshot { return s.ch }

// Notify schedules a fresh emission. It never blocks.
func (s *Subscription) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.ch)
	defer func() { _ = s.Close() }()

	for {
		if ctx.Err() != nil {
			return
		}

		countries, err := s.load(ctx)
		select {
		case s.ch <- Snapshot{Countries: countries, Err: err}:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}

		select {
		case <-s.notify:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
