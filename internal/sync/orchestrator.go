package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	gosync "sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/countrysync/internal/model"
)

const (
	otelScope        = "countrysync/sync"
	spanActivate     = "sync.activate"
	spanDownload     = "sync.download"
	metricDownloads  = "countrysync.sync.downloads"
	metricInserted   = "countrysync.sync.countries.inserted"
	metricErrors     = "countrysync.sync.errors"
	eventBufferSize  = 8
	alertTitle       = "Error"
	alertDismissText = "Dismiss"
)

// errSuperseded is returned internally when a newer activation took over
// while a download was in flight.
var errSuperseded = errors.New("activation superseded")

// State is a step of the activation state machine:
//
//	Idle → Loading → {Populated, Empty}
//	Empty → Downloading → {Populated, Failed}
//	Populated → Empty (store cleared)
//
// Any error moves the activation to Failed.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePopulated
	StateEmpty
	StateDownloading
	StateFailed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePopulated:
		return "populated"
	case StateEmpty:
		return "empty"
	case StateDownloading:
		return "downloading"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is published on every state transition of an activation. Countries
// is set for Populated events and Err for Failed events.
type Event struct {
	Activation string
	State      State
	Countries  []model.Country
	Err        error
}

// Alert is the single user-facing error of a failed activation.
type Alert struct {
	Title   string
	Message string
	Dismiss string
	Err     error
}

// Orchestrator performs local-first synchronisation. Create one with
// [NewOrchestrator] and start it with [Orchestrator.Activate].
type Orchestrator struct {
	remote RemoteSource
	store  LocalStore
	log    *slog.Logger

	mu        gosync.Mutex
	gen       uint64
	cancel    context.CancelFunc
	state     State
	countries []model.Country
	alert     *Alert

	// downloadMu serialises the check-then-insert step across activations.
	downloadMu gosync.Mutex

	// OTel instruments, no-op when telemetry is disabled.
	tracer       trace.Tracer
	cntDownloads metric.Int64Counter
	cntInserted  metric.Int64Counter
	cntErrors    metric.Int64Counter
}

// NewOrchestrator creates an Orchestrator wired to the given remote source and
// local store.
func NewOrchestrator(remote RemoteSource, store LocalStore, logger *slog.Logger) *Orchestrator {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Orchestrator{
		remote: remote,
		store:  store,
		log:    logger,

		tracer:       tracer,
		cntDownloads: mustCounter(metricDownloads, "Number of remote downloads triggered by an empty store"),
		cntInserted:  mustCounter(metricInserted, "Number of countries written to the local store"),
		cntErrors:    mustCounter(metricErrors, "Number of failed activations"),
	}
}

// Activate starts a new activation and returns its event channel. Any
// previous activation is cancelled first; it will not publish or insert
// anything after this call returns.
//
// The channel is closed when the activation ends: ctx is cancelled, a newer
// activation supersedes it, [Orchestrator.Stop] is called, or it fails.
// Consumers must drain the channel or cancel ctx.
func (o *Orchestrator) Activate(ctx context.Context) <-chan Event {
	actx, cancel := context.WithCancel(ctx)

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	gen := o.gen
	o.cancel = cancel
	o.state = StateIdle
	o.alert = nil
	o.mu.Unlock()

	id := uuid.NewString()
	events := make(chan Event, eventBufferSize)
	go o.run(actx, cancel, gen, id, events)
	return events
}

// Stop cancels the current activation, if any.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
}

// State returns the state of the current activation.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Countries returns a copy of the most recently published record set.
func (o *Orchestrator) Countries() []model.Country {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.countries)
}

// Search filters the current record set by query. See [model.Filter].
func (o *Orchestrator) Search(query string) []model.Country {
	return model.Filter(o.Countries(), query)
}

// Alert returns the pending alert, or nil.
func (o *Orchestrator) Alert() *Alert {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.alert == nil {
		return nil
	}
	a := *o.alert
	return &a
}

// DismissAlert clears the pending alert.
func (o *Orchestrator) DismissAlert() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.alert = nil
}

// ToggleFavorite flips the favorite flag of the record matching key in the
// store. The change reaches consumers through the store subscription of the
// running activation.
func (o *Orchestrator) ToggleFavorite(ctx context.Context, key string) (int64, error) {
	n, err := o.store.ToggleFavorite(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("toggling favorite: %w", err)
	}
	if n == 0 {
		o.log.Debug("favorite toggle matched no record", "key", key)
	}
	return n, nil
}

// AwaitSettled reads events until the activation is Populated or Failed and
// returns that event. It returns an error if the channel closes first or ctx
// is cancelled.
func AwaitSettled(ctx context.Context, events <-chan Event) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return Event{}, errors.New("activation ended before settling")
			}
			if ev.State == StatePopulated || ev.State == StateFailed {
				return ev, nil
			}
		}
	}
}

// run drives one activation until it ends.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, gen uint64, id string, events chan<- Event) {
	defer close(events)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, spanActivate)
	defer span.End()
	span.SetAttributes(attribute.String("sync.activation", id))

	log := o.log.With("activation", id)
	pub := publisher{o: o, gen: gen, id: id, events: events}

	log.Debug("activation started")
	if !pub.send(ctx, StateLoading, nil, nil) {
		return
	}

	sub := o.store.ObserveAll(ctx)
	defer func() { _ = sub.Close() }()

	// last is the record set most recently published as Populated.
	var last []model.Country

	for {
		select {
		case <-ctx.Done():
			log.Debug("activation ended", "reason", ctx.Err())
			return

		case snap, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return
				}
				o.fail(ctx, span, log, pub, errors.New("store subscription ended unexpectedly"))
				return
			}
			if snap.Err != nil {
				if ctx.Err() != nil {
					return
				}
				o.fail(ctx, span, log, pub, fmt.Errorf("loading local countries: %w", snap.Err))
				return
			}

			if len(snap.Countries) > 0 {
				if sameRecords(last, snap.Countries) {
					continue
				}
				last = snap.Countries
				log.Debug("local countries published", "count", len(snap.Countries))
				if !pub.send(ctx, StatePopulated, snap.Countries, nil) {
					return
				}
				continue
			}

			// An empty store, including one cleared while this activation
			// runs, triggers a download.
			log.Info("local store is empty, downloading countries")
			last = nil
			if !pub.send(ctx, StateEmpty, nil, nil) || !pub.send(ctx, StateDownloading, nil, nil) {
				return
			}

			countries, skipped, err := o.download(ctx, gen, log)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, errSuperseded) {
					log.Debug("download abandoned", "error", err)
					return
				}
				o.fail(ctx, span, log, pub, err)
				return
			}
			if skipped {
				// Another activation filled the store; its insert reaches us
				// through the subscription.
				continue
			}
			log.Info("countries downloaded", "count", len(countries))
			last = countries
			if !pub.send(ctx, StatePopulated, countries, nil) {
				return
			}
		}
	}
}

// download fetches the remote set and inserts it. skipped is true when the
// store was populated by another activation in the meantime. The returned set
// is sorted by name and never nil.
func (o *Orchestrator) download(ctx context.Context, gen uint64, log *slog.Logger) (countries []model.Country, skipped bool, err error) {
	ctx, span := o.tracer.Start(ctx, spanDownload)
	defer span.End()

	o.cntDownloads.Add(ctx, 1)

	fetched, err := o.remote.FetchAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("downloading countries: %w", err)
	}

	o.downloadMu.Lock()
	defer o.downloadMu.Unlock()

	if !o.isCurrent(gen) || ctx.Err() != nil {
		return nil, false, errSuperseded
	}

	empty, err := o.store.IsEmpty(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("checking local store before insert: %w", err)
	}
	if !empty {
		log.Info("local store already populated, skipping insert")
		return nil, true, nil
	}

	if err := o.store.BulkInsert(ctx, fetched); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("storing downloaded countries: %w", err)
	}
	o.cntInserted.Add(ctx, int64(len(fetched)))
	span.SetAttributes(attribute.Int("sync.inserted", len(fetched)))

	sorted := make([]model.Country, len(fetched))
	copy(sorted, fetched)
	model.SortByName(sorted)
	return sorted, false, nil
}

// fail records the alert, publishes the Failed event, and counts the error.
func (o *Orchestrator) fail(ctx context.Context, span trace.Span, log *slog.Logger, pub publisher, err error) {
	o.cntErrors.Add(ctx, 1)
	span.RecordError(err)
	log.Error("activation failed", "error", err)
	pub.send(ctx, StateFailed, nil, err)
}

// sameRecords reports whether a and b hold the same identity codes in the
// same order with the same favorite flags. Records are insert-only, so this
// is enough to detect a repeated emission.
func sameRecords(a, b []model.Country) bool {
	if a == nil || len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].CCA3 != b[i].CCA3 || a[i].Favorite != b[i].Favorite {
			return false
		}
	}
	return true
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

// publisher applies state changes for one activation and forwards them to
// its event channel. Changes from superseded activations are dropped.
type publisher struct {
	o      *Orchestrator
	gen    uint64
	id     string
	events chan<- Event
}

// send updates the shared state and emits an event. It returns false if the
// activation is no longer current or ctx was cancelled.
func (p publisher) send(ctx context.Context, st State, countries []model.Country, err error) bool {
	p.o.mu.Lock()
	if p.o.gen != p.gen {
		p.o.mu.Unlock()
		return false
	}
	p.o.state = st
	if st == StatePopulated {
		p.o.countries = countries
	}
	if err != nil {
		p.o.alert = &Alert{
			Title:   alertTitle,
			Message: err.Error(),
			Dismiss: alertDismissText,
			Err:     err,
		}
	}
	p.o.mu.Unlock()

	select {
	case p.events <- Event{Activation: p.id, State: st, Countries: countries, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}
