// Package sync implements local-first synchronisation of country records.
// The local store is the source of truth; the remote source is consulted
// only when the store is empty, and its result is written back once.
//
// The package contains two main components:
//
//   - [Orchestrator] runs an activation: it observes the store, downloads
//     on an empty cache, and publishes the current record set to consumers.
//   - [NeighborResolver] answers "which stored countries border this one"
//     as a flat, repeatable query.
package sync

import (
	"context"

	"github.com/njoerd114/countrysync/internal/model"
	"github.com/njoerd114/countrysync/internal/state"
)

// RemoteSource fetches the full country list.
// Implemented by [restcountries.Client].
type RemoteSource interface {
	FetchAll(ctx context.Context) ([]model.Country, error)
}

// NeighborStore looks up stored records referenced by a border list.
type NeighborStore interface {
	FetchNeighbors(ctx context.Context, country model.Country) ([]model.Country, error)
}

// LocalStore provides access to the persisted record set.
// Implemented by [state.Store].
type LocalStore interface {
	NeighborStore
	ObserveAll(ctx context.Context) *state.Subscription
	BulkInsert(ctx context.Context, countries []model.Country) error
	ToggleFavorite(ctx context.Context, key string) (int64, error)
	IsEmpty(ctx context.Context) (bool, error)
}
