package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/njoerd114/countrysync/internal/restcountries"
)

const eventTimeout = 5 * time.Second

// collectUntil reads events until one with the wanted state arrives and
// returns everything read so far, including that event.
func collectUntil(t *testing.T, events <-chan Event, want State) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("events closed before %s; got %v", want, states(got))
			}
			got = append(got, ev)
			if ev.State == want {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s; got %v", want, states(got))
		}
	}
}

// drain reads until the channel closes and returns what it read.
func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events to close; got %v", states(got))
		}
	}
}

func states(events []Event) []State {
	out := make([]State, len(events))
	for i, ev := range events {
		out[i] = ev.State
	}
	return out
}

func settle(t *testing.T, ctx context.Context, events <-chan Event) Event {
	t.Helper()
	wctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()
	ev, err := AwaitSettled(wctx, events)
	if err != nil {
		t.Fatalf("AwaitSettled: %v", err)
	}
	return ev
}

// ---------------------------------------------------------------------------
// Activation
// ---------------------------------------------------------------------------

func TestActivate_NonEmptyStoreSkipsRemote(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := newMockRemote(country("DEU", "Germany"))
	store := newMockStore()
	store.seed(country("ITA", "Italy"), country("FRA", "France"))

	o := NewOrchestrator(remote, store, testLogger)
	events := o.Activate(ctx)

	got := collectUntil(t, events, StatePopulated)
	if want := []State{StateLoading, StatePopulated}; !slices.Equal(states(got), want) {
		t.Errorf("states = %v, want %v", states(got), want)
	}
	if want := []string{"FRA", "ITA"}; !slices.Equal(codes(got[len(got)-1].Countries), want) {
		t.Errorf("published = %v, want %v", codes(got[len(got)-1].Countries), want)
	}
	if n := remote.callCount(); n != 0 {
		t.Errorf("remote called %d times, want 0", n)
	}
	if n := len(store.insertCalls()); n != 0 {
		t.Errorf("BulkInsert called %d times, want 0", n)
	}
	if o.State() != StatePopulated {
		t.Errorf("State() = %s, want populated", o.State())
	}
}

func TestActivate_EmptyStoreDownloadsOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := newMockRemote(
		country("ITA", "Italy", "AUT", "FRA"),
		country("FRA", "France", "ITA"),
		country("AUT", "Austria", "ITA"),
	)
	store := newMockStore()

	o := NewOrchestrator(remote, store, testLogger)
	events := o.Activate(ctx)

	got := collectUntil(t, events, StatePopulated)
	want := []State{StateLoading, StateEmpty, StateDownloading, StatePopulated}
	if !slices.Equal(states(got), want) {
		t.Errorf("states = %v, want %v", states(got), want)
	}
	if want := []string{"AUT", "FRA", "ITA"}; !slices.Equal(codes(got[len(got)-1].Countries), want) {
		t.Errorf("published = %v, want %v", codes(got[len(got)-1].Countries), want)
	}

	inserts := store.insertCalls()
	if len(inserts) != 1 {
		t.Fatalf("BulkInsert called %d times, want 1", len(inserts))
	}
	if want := []string{"ITA", "FRA", "AUT"}; !slices.Equal(codes(inserts[0]), want) {
		t.Errorf("inserted = %v, want exactly the fetched set %v", codes(inserts[0]), want)
	}
	if n := remote.callCount(); n != 1 {
		t.Errorf("remote called %d times, want 1", n)
	}

	// The post-insert store emission matches what was published and is not
	// repeated.
	cancel()
	for _, ev := range drain(t, events) {
		if ev.State == StatePopulated {
			t.Errorf("unexpected repeated populated event: %v", codes(ev.Countries))
		}
	}
}

func TestActivate_NetworkErrorFailsOnce(t *testing.T) {
	remote := newMockRemote()
	remote.err = fmt.Errorf("%w: status 503", restcountries.ErrNetwork)
	store := newMockStore()

	o := NewOrchestrator(remote, store, testLogger)
	got := drain(t, o.Activate(context.Background()))

	want := []State{StateLoading, StateEmpty, StateDownloading, StateFailed}
	if !slices.Equal(states(got), want) {
		t.Fatalf("states = %v, want %v", states(got), want)
	}
	failed := got[len(got)-1]
	if !errors.Is(failed.Err, restcountries.ErrNetwork) {
		t.Errorf("Err = %v, want ErrNetwork", failed.Err)
	}

	alert := o.Alert()
	if alert == nil {
		t.Fatal("expected an alert")
	}
	if alert.Title != "Error" {
		t.Errorf("alert title = %q, want %q", alert.Title, "Error")
	}
	if alert.Message == "" {
		t.Error("alert message is empty")
	}
	if !errors.Is(alert.Err, restcountries.ErrNetwork) {
		t.Errorf("alert.Err = %v, want ErrNetwork", alert.Err)
	}

	if store.count() != 0 {
		t.Errorf("store has %d records, want 0", store.count())
	}
	if n := len(store.insertCalls()); n != 0 {
		t.Errorf("BulkInsert called %d times, want 0", n)
	}
	if o.State() != StateFailed {
		t.Errorf("State() = %s, want failed", o.State())
	}
}

func TestActivate_ObserveErrorFails(t *testing.T) {
	remote := newMockRemote(country("ITA", "Italy"))
	store := newMockStore()
	store.observeErr = errors.New("disk gone")

	o := NewOrchestrator(remote, store, testLogger)
	ev := settle(t, context.Background(), o.Activate(context.Background()))

	if ev.State != StateFailed {
		t.Fatalf("state = %s, want failed", ev.State)
	}
	if !errors.Is(ev.Err, store.observeErr) {
		t.Errorf("Err = %v, want wrapped %v", ev.Err, store.observeErr)
	}
	if n := remote.callCount(); n != 0 {
		t.Errorf("remote called %d times, want 0", n)
	}
}

func TestActivate_InsertErrorFails(t *testing.T) {
	remote := newMockRemote(country("ITA", "Italy"))
	store := newMockStore()
	store.insertErr = errors.New("disk full")

	o := NewOrchestrator(remote, store, testLogger)
	ev := settle(t, context.Background(), o.Activate(context.Background()))

	if ev.State != StateFailed {
		t.Fatalf("state = %s, want failed", ev.State)
	}
	if !errors.Is(ev.Err, store.insertErr) {
		t.Errorf("Err = %v, want wrapped %v", ev.Err, store.insertErr)
	}
	if o.Alert() == nil {
		t.Error("expected an alert")
	}
}

func TestActivate_SkipsInsertWhenStoreFilledDuringDownload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := newMockRemote(country("ITA", "Italy"))
	store := newMockStore()
	remote.onFetch = func() { store.seed(country("DEU", "Germany")) }

	o := NewOrchestrator(remote, store, testLogger)
	ev := settle(t, ctx, o.Activate(ctx))

	if ev.State != StatePopulated {
		t.Fatalf("state = %s, want populated", ev.State)
	}
	if want := []string{"DEU"}; !slices.Equal(codes(ev.Countries), want) {
		t.Errorf("published = %v, want %v", codes(ev.Countries), want)
	}
	if n := len(store.insertCalls()); n != 0 {
		t.Errorf("BulkInsert called %d times, want 0", n)
	}
}

func TestActivate_EmptyRemoteSettlesPopulated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := newMockRemote()
	store := newMockStore()

	o := NewOrchestrator(remote, store, testLogger)
	events := o.Activate(ctx)

	got := collectUntil(t, events, StatePopulated)
	want := []State{StateLoading, StateEmpty, StateDownloading, StatePopulated}
	if !slices.Equal(states(got), want) {
		t.Errorf("states = %v, want %v", states(got), want)
	}
	ev := got[len(got)-1]
	if ev.Countries == nil || len(ev.Countries) != 0 {
		t.Errorf("published = %v, want an empty non-nil set", ev.Countries)
	}
	if o.State() != StatePopulated {
		t.Errorf("State() = %s, want populated", o.State())
	}
	if n := remote.callCount(); n != 1 {
		t.Errorf("remote called %d times, want 1", n)
	}
}

func TestActivate_ClearedStoreDownloadsAgain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := newMockRemote(country("FRA", "France"))
	store := newMockStore()
	store.seed(country("ITA", "Italy"))

	o := NewOrchestrator(remote, store, testLogger)
	events := o.Activate(ctx)
	collectUntil(t, events, StatePopulated)

	store.clear()

	got := collectUntil(t, events, StatePopulated)
	want := []State{StateEmpty, StateDownloading, StatePopulated}
	if !slices.Equal(states(got), want) {
		t.Errorf("states = %v, want %v", states(got), want)
	}
	if want := []string{"FRA"}; !slices.Equal(codes(got[len(got)-1].Countries), want) {
		t.Errorf("published = %v, want %v", codes(got[len(got)-1].Countries), want)
	}
	if want := []string{"FRA"}; !slices.Equal(codes(o.Countries()), want) {
		t.Errorf("Countries() = %v, want %v", codes(o.Countries()), want)
	}
	if n := remote.callCount(); n != 1 {
		t.Errorf("remote called %d times, want 1", n)
	}
}

func TestActivate_ReactivationCancelsInFlightDownload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := newMockRemote(country("ITA", "Italy"), country("FRA", "France"))
	remote.gate = make(chan struct{})
	store := newMockStore()

	o := NewOrchestrator(remote, store, testLogger)

	first := o.Activate(ctx)
	collectUntil(t, first, StateDownloading)

	second := o.Activate(ctx)

	// The superseded activation ends without publishing anything further.
	for _, ev := range drain(t, first) {
		t.Errorf("superseded activation published %s", ev.State)
	}

	collectUntil(t, second, StateDownloading)
	close(remote.gate)

	ev := settle(t, ctx, second)
	if ev.State != StatePopulated {
		t.Fatalf("state = %s, want populated", ev.State)
	}
	if want := []string{"FRA", "ITA"}; !slices.Equal(codes(ev.Countries), want) {
		t.Errorf("published = %v, want %v", codes(ev.Countries), want)
	}
	if n := len(store.insertCalls()); n != 1 {
		t.Errorf("BulkInsert called %d times, want 1", n)
	}
	if store.count() != 2 {
		t.Errorf("store has %d records, want 2", store.count())
	}
}

func TestActivate_ClearsPreviousAlert(t *testing.T) {
	remote := newMockRemote(country("ITA", "Italy"))
	remote.err = restcountries.ErrNetwork
	store := newMockStore()

	o := NewOrchestrator(remote, store, testLogger)
	drain(t, o.Activate(context.Background()))
	if o.Alert() == nil {
		t.Fatal("expected an alert after the failed activation")
	}

	remote.mu.Lock()
	remote.err = nil
	remote.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ev := settle(t, ctx, o.Activate(ctx))
	if ev.State != StatePopulated {
		t.Fatalf("state = %s, want populated", ev.State)
	}
	if o.Alert() != nil {
		t.Error("alert should be cleared by a new activation")
	}
}

func TestStop_ClosesEvents(t *testing.T) {
	store := newMockStore()
	store.seed(country("ITA", "Italy"))

	o := NewOrchestrator(newMockRemote(), store, testLogger)
	events := o.Activate(context.Background())
	settle(t, context.Background(), events)

	o.Stop()
	drain(t, events)
}

// ---------------------------------------------------------------------------
// Favorites and search
// ---------------------------------------------------------------------------

func TestToggleFavorite_PropagatesToActivation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMockStore()
	store.seed(country("ITA", "Italy"), country("FRA", "France"))

	o := NewOrchestrator(newMockRemote(), store, testLogger)
	events := o.Activate(ctx)
	settle(t, ctx, events)

	n, err := o.ToggleFavorite(ctx, "Italy")
	if err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if n != 1 {
		t.Fatalf("ToggleFavorite changed %d records, want 1", n)
	}

	got := collectUntil(t, events, StatePopulated)
	published := got[len(got)-1].Countries
	for _, c := range published {
		if want := c.CCA3 == "ITA"; c.Favorite != want {
			t.Errorf("%s favorite = %v, want %v", c.CCA3, c.Favorite, want)
		}
	}
	if !store.get("ITA").Favorite {
		t.Error("store record ITA is not a favorite")
	}

	fav := 0
	for _, c := range o.Countries() {
		if c.Favorite {
			fav++
		}
	}
	if fav != 1 {
		t.Errorf("Countries() has %d favorites, want 1", fav)
	}
}

func TestToggleFavorite_NoMatch(t *testing.T) {
	store := newMockStore()
	store.seed(country("ITA", "Italy"))

	o := NewOrchestrator(newMockRemote(), store, testLogger)
	n, err := o.ToggleFavorite(context.Background(), "Atlantis")
	if err != nil {
		t.Fatalf("ToggleFavorite: %v", err)
	}
	if n != 0 {
		t.Errorf("ToggleFavorite changed %d records, want 0", n)
	}
}

func TestSearch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMockStore()
	store.seed(country("ITA", "Italy"), country("FRA", "France"), country("DEU", "Germany"))

	o := NewOrchestrator(newMockRemote(), store, testLogger)
	settle(t, ctx, o.Activate(ctx))

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"FRA", "DEU", "ITA"}},
		{"ita", []string{"ITA"}},
		{"deu", []string{"DEU"}},
		{"an", []string{"FRA", "DEU"}},
		{"xyz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := codes(o.Search(tt.query)); !slices.Equal(got, tt.want) {
				t.Errorf("Search(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func TestDismissAlert(t *testing.T) {
	remote := newMockRemote()
	remote.err = restcountries.ErrNetwork

	o := NewOrchestrator(remote, newMockStore(), testLogger)
	drain(t, o.Activate(context.Background()))

	if o.Alert() == nil {
		t.Fatal("expected an alert")
	}
	o.DismissAlert()
	if o.Alert() != nil {
		t.Error("alert still present after DismissAlert")
	}
}

func TestAwaitSettled_ClosedChannel(t *testing.T) {
	ch := make(chan Event, 1)
	ch <- Event{State: StateLoading}
	close(ch)

	if _, err := AwaitSettled(context.Background(), ch); err == nil {
		t.Error("expected error when the channel closes before settling")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "idle"},
		{StateLoading, "loading"},
		{StatePopulated, "populated"},
		{StateEmpty, "empty"},
		{StateDownloading, "downloading"},
		{StateFailed, "failed"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
