package setup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/countrysync/internal/restcountries"
)

// ProbeFunc checks that endpoint serves a decodable country list and returns
// how many records it holds.
type ProbeFunc func(ctx context.Context, endpoint string, timeout time.Duration) (int, error)

// ProbeEndpoint downloads the list once with the production client. Nothing
// is stored.
func ProbeEndpoint(logger *slog.Logger) ProbeFunc {
	return func(ctx context.Context, endpoint string, timeout time.Duration) (int, error) {
		client := restcountries.NewClient(endpoint, timeout, logger)
		countries, err := client.FetchAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("probing %s: %w", endpoint, err)
		}
		return len(countries), nil
	}
}
