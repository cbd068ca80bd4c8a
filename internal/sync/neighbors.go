package sync

import (
	"context"
	"log/slog"

	"github.com/njoerd114/countrysync/internal/model"
)

// NeighborResolver looks up the stored records bordering a country. It keeps
// no state: every call queries the store again.
type NeighborResolver struct {
	store NeighborStore
	log   *slog.Logger
}

// NewNeighborResolver creates a resolver backed by store.
func NewNeighborResolver(store NeighborStore, logger *slog.Logger) *NeighborResolver {
	return &NeighborResolver{store: store, log: logger}
}

// Neighbors returns the stored countries whose identity code appears in
// country.Borders, ordered by display name. Border codes without a stored
// record are skipped. Store errors are returned unchanged.
func (r *NeighborResolver) Neighbors(ctx context.Context, country model.Country) ([]model.Country, error) {
	neighbors, err := r.store.FetchNeighbors(ctx, country)
	if err != nil {
		return nil, err
	}
	if len(neighbors) < len(country.Borders) {
		r.log.Debug("some border codes have no stored record",
			"country", country.CCA3,
			"borders", len(country.Borders),
			"resolved", len(neighbors),
		)
	}
	return neighbors, nil
}
