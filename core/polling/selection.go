package polling

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"staffdesk/core/utils"
)

// Selection couples a selected entity with its detail record and a dependent
// sub-collection (a chat room and its messages). Changing the selection
// clears both before anything is fetched, and responses captured under an
// older selection are dropped.
type Selection[D any, I any] struct {
	loadDetail func(ctx context.Context, id int64) (D, error)
	loadItems  func(ctx context.Context, id int64) ([]I, error)
	clock      clockwork.Clock
	logger     *utils.Logger

	mu        sync.Mutex
	gen       uint64
	itemsGen  uint64
	selected  int64
	active    bool
	detail    *D
	items     *Collection[I]
	syncItems func(ctx context.Context) error
}

func NewSelection[D any, I any](
	key string,
	loadDetail func(ctx context.Context, id int64) (D, error),
	loadItems func(ctx context.Context, id int64) ([]I, error),
	observe ObserveFunc[I],
	clock clockwork.Clock,
	logger *utils.Logger,
) *Selection[D, I] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Selection[D, I]{
		loadDetail: loadDetail,
		loadItems:  loadItems,
		clock:      clock,
		logger:     logger.With("selection", key),
		items:      NewCollection[I](key, observe),
	}
}

// Select switches to id. State for the previous selection is cleared
// synchronously; detail and items are then fetched concurrently.
func (s *Selection[D, I]) Select(ctx context.Context, id int64) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.selected = id
	s.active = true
	s.detail = nil
	s.items.Reset()
	s.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		d, err := s.loadDetail(ctx, id)
		if err != nil {
			return err
		}
		s.applyDetail(gen, d)
		return nil
	})
	g.Go(func() error {
		return s.loadSelectedItems(ctx, gen)
	})
	err := g.Wait()
	if err != nil && !s.current(gen) {
		s.logger.Debugf("discarding failure for stale selection %d: %v", id, err)
		return nil
	}
	return err
}

// loadSelectedItems fetches the items of selection gen. When the
// sub-collection is tracked by a synchronizer the fetch joins its flight for
// the key; a joined flight that still served an older selection is retried.
func (s *Selection[D, I]) loadSelectedItems(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	run := s.syncItems
	s.mu.Unlock()
	if run == nil {
		run = s.RefreshItems
	}
	for {
		if err := run(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		done := s.gen != gen || s.itemsGen == gen
		s.mu.Unlock()
		if done {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// RefreshItems re-fetches the sub-collection of the current selection.
func (s *Selection[D, I]) RefreshItems(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	gen, id := s.gen, s.selected
	s.mu.Unlock()
	items, err := s.loadItems(ctx, id)
	if err != nil {
		if !s.current(gen) {
			return nil
		}
		return err
	}
	s.applyItems(gen, items)
	return nil
}

func (s *Selection[D, I]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.active = false
	s.selected = 0
	s.detail = nil
	s.items.Reset()
}

func (s *Selection[D, I]) Selected() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.active
}

func (s *Selection[D, I]) Detail() (D, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detail == nil {
		var zero D
		return zero, false
	}
	return *s.detail, true
}

func (s *Selection[D, I]) Items() *Collection[I] {
	return s.items
}

func (s *Selection[D, I]) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Selection[D, I]) applyDetail(gen uint64, d D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debugf("dropping stale detail for selection %d", s.selected)
		return
	}
	s.detail = &d
}

func (s *Selection[D, I]) applyItems(gen uint64, items []I) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debugf("dropping stale items for selection %d", s.selected)
		return
	}
	s.items.Merge(items, s.clock.Now().UTC())
	s.itemsGen = gen
}

// TrackSelection polls the sub-collection of whatever sel has selected under
// key. Nothing is fetched while sel is cleared. Item fetches started by
// sel.Select share the key's flight, so polls and selection never overlap.
func TrackSelection[D any, I any](s *Synchronizer, key string, sel *Selection[D, I]) {
	sel.mu.Lock()
	sel.syncItems = func(ctx context.Context) error { return s.Poll(ctx, key) }
	sel.mu.Unlock()
	s.register(&entry{
		key: key,
		fetch: func(ctx context.Context) (any, error) {
			before := sel.Items().Revision()
			return before, sel.RefreshItems(ctx)
		},
		merge: func(v any, at time.Time) (bool, uint64, int) {
			before, _ := v.(uint64)
			rev := sel.Items().Revision()
			return rev != before, rev, sel.Items().Len()
		},
	})
}
