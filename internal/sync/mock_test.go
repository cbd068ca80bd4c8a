package sync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/njoerd114/countrysync/internal/model"
	"github.com/njoerd114/countrysync/internal/state"
)

var testLogger = slog.Default()

// --- Mock Remote Source ------------------------------------------------------

type mockRemote struct {
	mu        sync.Mutex
	countries []model.Country
	err       error
	calls     int

	// gate, when non-nil, blocks FetchAll until it is closed or ctx ends.
	gate chan struct{}
	// onFetch runs after the gate opens, before FetchAll returns.
	onFetch func()
}

func newMockRemote(countries ...model.Country) *mockRemote {
	return &mockRemote{countries: countries}
}

func (m *mockRemote) FetchAll(ctx context.Context) ([]model.Country, error) {
	m.mu.Lock()
	m.calls++
	gate := m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.onFetch != nil {
		m.onFetch()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return slices.Clone(m.countries), nil
}

func (m *mockRemote) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Mock Local Store --------------------------------------------------------

type mockStore struct {
	mu        sync.Mutex
	countries map[string]model.Country // CCA3 → record
	subs      map[int]*state.Subscription
	nextSub   int

	observeErr error
	insertErr  error

	inserts       [][]model.Country
	neighborCalls int
	neighborErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		countries: make(map[string]model.Country),
		subs:      make(map[int]*state.Subscription),
	}
}

// seed adds records without counting as a BulkInsert and notifies observers.
func (m *mockStore) seed(countries ...model.Country) {
	m.mu.Lock()
	for _, c := range countries {
		m.countries[c.CCA3] = c
	}
	m.mu.Unlock()
	m.notify()
}

func (m *mockStore) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		sub.Notify()
	}
}

func (m *mockStore) all(_ context.Context) ([]model.Country, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.observeErr != nil {
		return nil, m.observeErr
	}
	result := make([]model.Country, 0, len(m.countries))
	for _, c := range m.countries {
		result = append(result, c)
	}
	model.SortByName(result)
	return result, nil
}

func (m *mockStore) ObserveAll(ctx context.Context) *state.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	sub := state.NewSubscription(ctx, m.all, func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	})
	m.subs[id] = sub
	return sub
}

func (m *mockStore) BulkInsert(_ context.Context, countries []model.Country) error {
	if len(countries) == 0 {
		return nil
	}
	m.mu.Lock()
	if m.insertErr != nil {
		m.mu.Unlock()
		return m.insertErr
	}
	seen := make(map[string]bool, len(countries))
	for _, c := range countries {
		if _, ok := m.countries[c.CCA3]; ok || seen[c.CCA3] {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", state.ErrDuplicateKey, c.CCA3)
		}
		seen[c.CCA3] = true
	}
	for _, c := range countries {
		m.countries[c.CCA3] = c
	}
	m.inserts = append(m.inserts, slices.Clone(countries))
	m.mu.Unlock()

	m.notify()
	return nil
}

func (m *mockStore) ToggleFavorite(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	var n int64
	for code, c := range m.countries {
		if strings.EqualFold(c.Name.Common, key) || c.CCA3 == strings.ToUpper(key) {
			c.Favorite = !c.Favorite
			m.countries[code] = c
			n++
		}
	}
	m.mu.Unlock()

	if n > 0 {
		m.notify()
	}
	return n, nil
}

func (m *mockStore) IsEmpty(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.countries) == 0, nil
}

func (m *mockStore) FetchNeighbors(_ context.Context, country model.Country) ([]model.Country, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.neighborCalls++
	if m.neighborErr != nil {
		return nil, m.neighborErr
	}
	result := []model.Country{}
	for _, code := range country.Borders {
		if c, ok := m.countries[code]; ok {
			result = append(result, c)
		}
	}
	model.SortByName(result)
	return result, nil
}

// clear removes every record and notifies observers.
func (m *mockStore) clear() {
	m.mu.Lock()
	clear(m.countries)
	m.mu.Unlock()
	m.notify()
}

func (m *mockStore) insertCalls() [][]model.Country {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.inserts)
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.countries)
}

func (m *mockStore) get(code string) model.Country {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countries[code]
}

// --- Helpers -----------------------------------------------------------------

func country(code, name string, borders ...string) model.Country {
	c := model.Country{
		Name:    model.Name{Common: name, Official: "Official " + name},
		CCA3:    code,
		Status:  "officially-assigned",
		Region:  "Europe",
		Flag:    "🏳",
		Borders: borders,
	}
	c.Normalize()
	return c
}

func codes(countries []model.Country) []string {
	out := make([]string, len(countries))
	for i, c := range countries {
		out[i] = c.CCA3
	}
	return out
}
