package polling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"staffdesk/core/alerts"
	"staffdesk/core/utils"
)

const DefaultInterval = 30 * time.Second

var ErrUnknownKey = errors.New("polling: unknown collection key")

type State int

const (
	Idle State = iota
	Fetching
	Merging
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Merging:
		return "merging"
	default:
		return "idle"
	}
}

// Fetcher returns an authoritative snapshot for one collection.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Event describes the outcome of one fetch cycle.
type Event struct {
	ViewID   string
	Key      string
	Revision uint64
	Count    int
	Changed  bool
	At       time.Time
	Err      error
}

type Observer interface {
	Record(ctx context.Context, ev Event)
}

type Options struct {
	ViewID   string
	Interval time.Duration
	Clock    clockwork.Clock
	Location *time.Location
	Logger   *utils.Logger
	Notifier alerts.Notifier
	Observer Observer
}

type entry struct {
	key   string
	state State
	fetch func(ctx context.Context) (any, error)
	merge func(v any, at time.Time) (changed bool, revision uint64, count int)
}

// Synchronizer keeps the collections of one mounted view fresh. It refreshes
// every tracked key on a fixed interval and on bound route changes, with at
// most one request in flight per key.
type Synchronizer struct {
	viewID   string
	interval time.Duration
	clock    clockwork.Clock
	logger   *utils.Logger
	notifier alerts.Notifier
	observer Observer
	cron     *cron.Cron
	flights  singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	routes  map[string][]string
	runCtx  context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

func New(opts Options) *Synchronizer {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = alerts.Discard{}
	}
	return &Synchronizer{
		viewID:   opts.ViewID,
		interval: interval,
		clock:    clock,
		logger:   opts.Logger.With("view", opts.ViewID),
		notifier: notifier,
		observer: opts.Observer,
		cron:     cron.New(cron.WithLocation(loc)),
		entries:  map[string]*entry{},
		routes:   map[string][]string{},
	}
}

// Track registers a collection under key, replacing any previous one.
func Track[T any](s *Synchronizer, key string, fetch Fetcher[T], observe ObserveFunc[T]) *Collection[T] {
	c := NewCollection[T](key, observe)
	e := &entry{
		key: key,
		fetch: func(ctx context.Context) (any, error) {
			return fetch(ctx)
		},
		merge: func(v any, at time.Time) (bool, uint64, int) {
			items, _ := v.([]T)
			changed := c.Merge(items, at)
			return changed, c.Revision(), c.Len()
		},
	}
	s.register(e)
	return c
}

func (s *Synchronizer) register(e *entry) {
	s.mu.Lock()
	s.entries[e.key] = e
	s.mu.Unlock()
}

func (s *Synchronizer) ViewID() string {
	return s.viewID
}

func (s *Synchronizer) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Synchronizer) State(key string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Idle, false
	}
	return e.state, true
}

func (s *Synchronizer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start arms the interval ticker and kicks off an immediate background
// refresh of every tracked key.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.cancel = cancel
	s.running = true
	ticker := s.clock.NewTicker(s.interval)
	s.wg.Add(1)
	s.mu.Unlock()

	s.refreshAll(runCtx)
	s.cron.Start()
	go s.loop(runCtx, ticker)
}

// Stop cancels the ticker and scheduled triggers and waits for background
// fetches to drain. No tick fires after Stop returns. If ctx ends first the
// drain continues on its own; Running reports true and Start is a no-op
// until it completes.
func (s *Synchronizer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel == nil || !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.cancel = nil
	s.runCtx = nil
	s.mu.Unlock()
	cancel()
	cronDone := s.cron.Stop()
	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-cronDone.Done()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) loop(ctx context.Context, ticker clockwork.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.refreshAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Synchronizer) refreshAll(ctx context.Context) {
	s.refreshBackground(ctx, s.Keys())
}

// refreshBackground spawns one silent refresh per idle key. Keys that are
// already fetching are skipped; the in-flight request will land shortly.
func (s *Synchronizer) refreshBackground(ctx context.Context, keys []string) {
	for _, key := range keys {
		s.mu.Lock()
		if s.cancel == nil {
			s.mu.Unlock()
			return
		}
		e, ok := s.entries[key]
		busy := ok && e.state != Idle
		if ok && !busy {
			s.wg.Add(1)
		}
		s.mu.Unlock()
		if !ok || busy {
			continue
		}
		go func(key string) {
			defer s.wg.Done()
			_ = s.do(ctx, key)
		}(key)
	}
}

// Refresh is an explicit, user-initiated refresh. Failures are returned and
// reported to the notifier; the cached value is left untouched.
func (s *Synchronizer) Refresh(ctx context.Context, key string) error {
	err := s.do(ctx, key)
	if err != nil && !errors.Is(err, ErrUnknownKey) && !errors.Is(err, context.Canceled) {
		s.notifier.Alert(ctx, alerts.Alert{Source: key, Message: err.Error(), At: s.clock.Now().UTC()})
	}
	return err
}

// Poll refreshes key once in background mode: the failure is logged and
// returned but never reported to the notifier.
func (s *Synchronizer) Poll(ctx context.Context, key string) error {
	return s.do(ctx, key)
}

// RefreshAll refreshes every key in the foreground and returns the first
// failure.
func (s *Synchronizer) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	for _, key := range s.Keys() {
		key := key
		g.Go(func() error { return s.Refresh(ctx, key) })
	}
	return g.Wait()
}

// BindRoute marks keys that must be refreshed immediately whenever
// navigation enters route.
func (s *Synchronizer) BindRoute(route string, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route] = append(s.routes[route], keys...)
}

// OnRouteChange refreshes the keys bound to route regardless of timer phase
// and waits for them. Failures are logged, never surfaced.
func (s *Synchronizer) OnRouteChange(ctx context.Context, route string) {
	s.mu.Lock()
	keys := append([]string(nil), s.routes[route]...)
	s.mu.Unlock()
	if len(keys) == 0 {
		return
	}
	var g errgroup.Group
	for _, key := range keys {
		key := key
		g.Go(func() error {
			_ = s.Poll(ctx, key)
			return nil
		})
	}
	_ = g.Wait()
}

// Schedule adds a cron-triggered background refresh of keys, on top of the
// interval. Triggers only fire while the synchronizer is running.
func (s *Synchronizer) Schedule(spec string, keys ...string) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		if ctx == nil {
			return
		}
		s.logger.Debugf("scheduled refresh %v", keys)
		s.refreshBackground(ctx, keys)
	})
	return err
}

func (s *Synchronizer) do(ctx context.Context, key string) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownKey
	}
	ch := s.flights.DoChan(key, func() (any, error) {
		return nil, s.run(ctx, e)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) run(ctx context.Context, e *entry) error {
	s.setState(e, Fetching)
	defer s.setState(e, Idle)
	v, err := e.fetch(ctx)
	now := s.clock.Now().UTC()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warnf("sync %s: %v", e.key, err)
		}
		s.record(ctx, Event{ViewID: s.viewID, Key: e.key, At: now, Err: err})
		return err
	}
	s.setState(e, Merging)
	changed, rev, count := e.merge(v, now)
	if changed {
		s.logger.Debugf("sync %s: revision=%d count=%d", e.key, rev, count)
	}
	s.record(ctx, Event{ViewID: s.viewID, Key: e.key, Revision: rev, Count: count, Changed: changed, At: now})
	return nil
}

func (s *Synchronizer) setState(e *entry, st State) {
	s.mu.Lock()
	e.state = st
	s.mu.Unlock()
}

func (s *Synchronizer) record(ctx context.Context, ev Event) {
	if s.observer == nil {
		return
	}
	s.observer.Record(context.WithoutCancel(ctx), ev)
}
