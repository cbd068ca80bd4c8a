// Package restcountries is the remote source of country records. It issues a
// single anonymous GET against a REST Countries style endpoint and decodes
// the JSON array into [model.Country] values.
//
// There are no retries and no pagination: one request returns the whole
// dataset or fails with an error wrapping [ErrNetwork] or [ErrDecode].
package restcountries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/countrysync/internal/model"
)

// DefaultEndpoint is the public REST Countries v3.1 "all" endpoint.
const DefaultEndpoint = "https://restcountries.com/v3.1/all"

const (
	otelScope    = "countrysync/restcountries"
	spanFetchAll = "restcountries.fetch_all"
)

var (
	// ErrNetwork marks transport failures and non-2xx responses.
	ErrNetwork = errors.New("network error")

	// ErrDecode marks payloads that do not match the expected schema,
	// including records missing a required key.
	ErrDecode = errors.New("decode error")
)

// Client fetches the full country list from a fixed endpoint. Create one with
// [NewClient] or [NewClientWithHTTP].
type Client struct {
	endpoint string
	hc       *http.Client
	log      *slog.Logger
	tracer   trace.Tracer
}

// NewClient creates a Client with its own [http.Client] using the given
// request timeout.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	return NewClientWithHTTP(endpoint, &http.Client{Timeout: timeout}, logger)
}

// NewClientWithHTTP creates a Client with a caller-supplied HTTP client.
// Tests use it to point at an httptest server.
func NewClientWithHTTP(endpoint string, hc *http.Client, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		hc:       hc,
		log:      logger,
		tracer:   otel.Tracer(otelScope),
	}
}

// Endpoint returns the URL the client fetches from.
func (c *Client) Endpoint() string { return c.endpoint }

// FetchAll downloads and decodes every country record. Records are returned
// in wire order with Favorite=false.
func (c *Client) FetchAll(ctx context.Context) ([]model.Country, error) {
	ctx, span := c.tracer.Start(ctx, spanFetchAll)
	defer span.End()
	span.SetAttributes(attribute.String("http.url", c.endpoint))

	countries, err := c.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("countries.count", len(countries)))
	return countries, nil
}

func (c *Client) fetch(ctx context.Context) ([]model.Country, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrNetwork, c.endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little of the body so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, fmt.Errorf("%w: GET %s returned status %d", ErrNetwork, c.endpoint, resp.StatusCode)
	}

	var records []wireCountry
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: reading body: %v", ErrNetwork, ctx.Err())
		}
		return nil, fmt.Errorf("%w: parsing response from %s: %v", ErrDecode, c.endpoint, err)
	}

	countries, err := convertAll(records)
	if err != nil {
		return nil, err
	}

	c.log.Debug("fetched countries",
		"endpoint", c.endpoint,
		"count", len(countries),
		"elapsed", time.Since(start),
	)
	return countries, nil
}
