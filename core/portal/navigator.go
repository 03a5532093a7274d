// Package portal mounts the screens of the portal one at a time, giving each
// mount its own synchronizer so leaving a screen stops its polling.
package portal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"

	"staffdesk/core/alerts"
	"staffdesk/core/polling"
	"staffdesk/core/utils"
)

var ErrUnknownRoute = errors.New("portal: unknown route")

// View is what a mounted screen exposes to the outside.
type View interface {
	Snapshot() any
}

// Lifecycle is implemented by views that run extra background work beside
// their synchronizer.
type Lifecycle interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
}

// Factory builds a view around a freshly created synchronizer.
type Factory func(s *polling.Synchronizer, viewID string) (View, error)

type snapshotter[S any] interface {
	Snapshot() S
}

type adapted[S any, V snapshotter[S]] struct {
	v V
}

func (a adapted[S, V]) Snapshot() any { return a.v.Snapshot() }
func (a adapted[S, V]) Unwrap() any   { return a.v }

// Adapt exposes a view with a typed Snapshot as a View.
func Adapt[S any, V snapshotter[S]](v V) View {
	return adapted[S, V]{v: v}
}

func unwrap(v View) any {
	if u, ok := v.(interface{ Unwrap() any }); ok {
		return u.Unwrap()
	}
	return v
}

type Mount struct {
	Route     string
	ViewID    string
	MountedAt time.Time
	View      View

	sync *polling.Synchronizer
}

func (m *Mount) Sync() *polling.Synchronizer {
	return m.sync
}

// As returns the concrete view behind m.
func As[T any](m *Mount) (T, bool) {
	var zero T
	if m == nil {
		return zero, false
	}
	t, ok := unwrap(m.View).(T)
	return t, ok
}

type Options struct {
	// BaseContext outlives any single request; mounted synchronizers run
	// under it until unmounted.
	BaseContext context.Context
	Shell       *polling.Synchronizer
	Interval    time.Duration
	Clock       clockwork.Clock
	Location    *time.Location
	Logger      *utils.Logger
	Notifier    alerts.Notifier
	Observer    polling.Observer
}

type Navigator struct {
	opts   Options
	logger *utils.Logger

	nav     sync.Mutex
	mu      sync.Mutex
	routes  map[string]Factory
	current *Mount
}

func NewNavigator(opts Options) *Navigator {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Navigator{
		opts:   opts,
		logger: opts.Logger.With("component", "navigator"),
		routes: map[string]Factory{},
	}
}

func (n *Navigator) Register(route string, f Factory) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[route] = f
}

func (n *Navigator) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.routes))
	for r := range n.routes {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (n *Navigator) Current() *Mount {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Navigate unmounts the current view and mounts route. Navigating to the
// route already mounted keeps the mount. In both cases the shell's keys
// bound to route are refreshed before Navigate returns.
func (n *Navigator) Navigate(ctx context.Context, route string) (*Mount, error) {
	n.nav.Lock()
	defer n.nav.Unlock()

	n.mu.Lock()
	f, ok := n.routes[route]
	prev := n.current
	n.mu.Unlock()
	if !ok {
		return nil, ErrUnknownRoute
	}

	m := prev
	if prev == nil || prev.Route != route {
		if prev != nil {
			n.unmount(ctx, prev)
		}
		var err error
		m, err = n.mount(route, f)
		if err != nil {
			return nil, err
		}
	}
	if n.opts.Shell != nil {
		n.opts.Shell.OnRouteChange(ctx, route)
	}
	return m, nil
}

// Refresh is a user-initiated refresh of every collection of the mounted
// view.
func (n *Navigator) Refresh(ctx context.Context) error {
	m := n.Current()
	if m == nil {
		return nil
	}
	return m.sync.RefreshAll(ctx)
}

func (n *Navigator) Close(ctx context.Context) error {
	n.nav.Lock()
	defer n.nav.Unlock()
	n.mu.Lock()
	prev := n.current
	n.mu.Unlock()
	if prev != nil {
		n.unmount(ctx, prev)
	}
	return nil
}

func (n *Navigator) mount(route string, f Factory) (*Mount, error) {
	viewID := uuid.Must(uuid.NewV4()).String()
	s := polling.New(polling.Options{
		ViewID:   viewID,
		Interval: n.opts.Interval,
		Clock:    n.opts.Clock,
		Location: n.opts.Location,
		Logger:   n.opts.Logger,
		Notifier: n.opts.Notifier,
		Observer: n.opts.Observer,
	})
	v, err := f(s, viewID)
	if err != nil {
		return nil, err
	}
	m := &Mount{Route: route, ViewID: viewID, MountedAt: n.opts.Clock.Now().UTC(), View: v, sync: s}
	s.Start(n.opts.BaseContext)
	if lc, ok := unwrap(v).(Lifecycle); ok {
		lc.Start(n.opts.BaseContext)
	}
	n.mu.Lock()
	n.current = m
	n.mu.Unlock()
	n.logger.Debugf("mounted %s as %s", route, viewID)
	return m, nil
}

func (n *Navigator) unmount(ctx context.Context, m *Mount) {
	if lc, ok := unwrap(m.View).(Lifecycle); ok {
		if err := lc.Stop(ctx); err != nil {
			n.logger.Warnf("unmount %s: %v", m.Route, err)
		}
	}
	if err := m.sync.Stop(ctx); err != nil {
		n.logger.Warnf("unmount %s: %v", m.Route, err)
	}
	n.mu.Lock()
	if n.current == m {
		n.current = nil
	}
	n.mu.Unlock()
}
