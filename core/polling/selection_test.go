package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"staffdesk/core/utils"
)

type room struct {
	ID   int64
	Name string
}

// gatedRooms lets a test release each room's responses in any order.
type gatedRooms struct {
	mu    sync.Mutex
	gates map[int64]chan struct{}
	fail  map[int64]error
}

func newGatedRooms(ids ...int64) *gatedRooms {
	g := &gatedRooms{gates: map[int64]chan struct{}{}, fail: map[int64]error{}}
	for _, id := range ids {
		g.gates[id] = make(chan struct{})
	}
	return g
}

func (g *gatedRooms) wait(id int64) error {
	g.mu.Lock()
	gate := g.gates[id]
	err := g.fail[id]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (g *gatedRooms) release(id int64) { close(g.gates[id]) }

func (g *gatedRooms) detail(ctx context.Context, id int64) (room, error) {
	if err := g.wait(id); err != nil {
		return room{}, err
	}
	return room{ID: id, Name: "room"}, nil
}

func (g *gatedRooms) messages(ctx context.Context, id int64) ([]app, error) {
	if err := g.wait(id); err != nil {
		return nil, err
	}
	return []app{{ID: id * 10}, {ID: id*10 + 1}}, nil
}

func newRoomSelection(g *gatedRooms) *Selection[room, app] {
	return NewSelection[room, app]("messages", g.detail, g.messages, appKey, clockwork.NewFakeClock(), utils.NewDiscardLogger())
}

func TestSelectClearsPreviousStateImmediately(t *testing.T) {
	g := newGatedRooms(2)
	sel := newRoomSelection(g)
	g.gates[1] = nil
	require.NoError(t, sel.Select(context.Background(), 1))
	require.Equal(t, 2, sel.Items().Len())

	done := make(chan error, 1)
	go func() { done <- sel.Select(context.Background(), 2) }()
	require.Eventually(t, func() bool {
		id, _ := sel.Selected()
		return id == 2
	}, waitFor, tick)
	_, ok := sel.Detail()
	require.False(t, ok)
	require.Zero(t, sel.Items().Len())

	g.release(2)
	require.NoError(t, <-done)
	d, ok := sel.Detail()
	require.True(t, ok)
	require.Equal(t, int64(2), d.ID)
	require.Equal(t, int64(20), sel.Items().Snapshot()[0].ID)
}

func TestOutOfOrderResponsesAreDiscarded(t *testing.T) {
	g := newGatedRooms(1, 2)
	sel := newRoomSelection(g)

	first := make(chan error, 1)
	go func() { first <- sel.Select(context.Background(), 1) }()
	require.Eventually(t, func() bool {
		id, _ := sel.Selected()
		return id == 1
	}, waitFor, tick)

	second := make(chan error, 1)
	go func() { second <- sel.Select(context.Background(), 2) }()
	require.Eventually(t, func() bool {
		id, _ := sel.Selected()
		return id == 2
	}, waitFor, tick)

	g.release(2)
	require.NoError(t, <-second)
	g.release(1)
	require.NoError(t, <-first)

	d, ok := sel.Detail()
	require.True(t, ok)
	require.Equal(t, int64(2), d.ID)
	for _, m := range sel.Items().Snapshot() {
		require.Contains(t, []int64{20, 21}, m.ID)
	}
}

func TestStaleFailureIsSilent(t *testing.T) {
	g := newGatedRooms(1)
	g.fail[1] = errors.New("gone")
	sel := newRoomSelection(g)
	g.gates[2] = nil

	first := make(chan error, 1)
	go func() { first <- sel.Select(context.Background(), 1) }()
	require.Eventually(t, func() bool {
		id, _ := sel.Selected()
		return id == 1
	}, waitFor, tick)
	require.NoError(t, sel.Select(context.Background(), 2))
	g.release(1)
	require.NoError(t, <-first)
}

func TestCurrentFailureIsReturned(t *testing.T) {
	g := newGatedRooms()
	g.fail[3] = errors.New("forbidden")
	sel := newRoomSelection(g)
	require.Error(t, sel.Select(context.Background(), 3))
	_, ok := sel.Detail()
	require.False(t, ok)
}

func TestRefreshItemsWithoutSelectionIsNoop(t *testing.T) {
	sel := newRoomSelection(newGatedRooms())
	require.NoError(t, sel.RefreshItems(context.Background()))
	require.False(t, sel.Items().Loaded())
}

func TestClearDeselects(t *testing.T) {
	sel := newRoomSelection(newGatedRooms())
	require.NoError(t, sel.Select(context.Background(), 4))
	rev := sel.Items().Revision()
	require.NoError(t, sel.RefreshItems(context.Background()))
	require.Equal(t, rev, sel.Items().Revision())

	sel.Clear()
	_, active := sel.Selected()
	require.False(t, active)
	require.Zero(t, sel.Items().Len())
}

func TestTrackSelectionPollsSelectedRoom(t *testing.T) {
	g := newGatedRooms()
	sel := newRoomSelection(g)
	s := New(Options{ViewID: "chat", Clock: clockwork.NewFakeClock(), Logger: utils.NewDiscardLogger()})
	TrackSelection(s, "messages", sel)

	require.NoError(t, s.Refresh(context.Background(), "messages"))
	require.False(t, sel.Items().Loaded())

	require.NoError(t, sel.Select(context.Background(), 5))
	rev := sel.Items().Revision()
	require.NoError(t, s.Refresh(context.Background(), "messages"))
	require.Equal(t, rev, sel.Items().Revision())
	require.Equal(t, 2, sel.Items().Len())
}

func TestSelectSharesFlightWithPolls(t *testing.T) {
	var inFlight, peak atomic.Int32
	gate := make(chan struct{})
	entered := make(chan struct{}, 4)
	load := func(ctx context.Context, id int64) ([]app, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := peak.Load()
			if n <= m || peak.CompareAndSwap(m, n) {
				break
			}
		}
		entered <- struct{}{}
		<-gate
		return []app{{ID: id}}, nil
	}
	detail := func(ctx context.Context, id int64) (room, error) { return room{ID: id}, nil }
	sel := NewSelection[room, app]("messages", detail, load, appKey, clockwork.NewFakeClock(), utils.NewDiscardLogger())
	s := New(Options{ViewID: "chat", Clock: clockwork.NewFakeClock(), Logger: utils.NewDiscardLogger()})
	TrackSelection(s, "messages", sel)

	selected := make(chan error, 1)
	go func() { selected <- sel.Select(context.Background(), 5) }()
	<-entered
	refreshed := make(chan error, 1)
	go func() { refreshed <- s.Refresh(context.Background(), "messages") }()
	require.Never(t, func() bool { return len(entered) > 0 }, 50*time.Millisecond, tick)

	close(gate)
	require.NoError(t, <-selected)
	require.NoError(t, <-refreshed)
	require.Equal(t, int32(1), peak.Load())
	require.Equal(t, []app{{ID: 5}}, sel.Items().Snapshot())
}

func TestSelectAfterJoiningStalePollLoadsNewRoom(t *testing.T) {
	g := newGatedRooms()
	sel := newRoomSelection(g)
	s := New(Options{ViewID: "chat", Clock: clockwork.NewFakeClock(), Logger: utils.NewDiscardLogger()})
	TrackSelection(s, "messages", sel)
	require.NoError(t, sel.Select(context.Background(), 1))

	g.mu.Lock()
	g.gates[1] = make(chan struct{})
	g.mu.Unlock()
	polled := make(chan error, 1)
	go func() { polled <- s.Refresh(context.Background(), "messages") }()
	require.Eventually(t, func() bool {
		st, _ := s.State("messages")
		return st == Fetching
	}, waitFor, tick)

	selected := make(chan error, 1)
	go func() { selected <- sel.Select(context.Background(), 2) }()
	require.Eventually(t, func() bool {
		_, ok := sel.Detail()
		return ok
	}, waitFor, tick)

	g.release(1)
	require.NoError(t, <-polled)
	require.NoError(t, <-selected)
	ids := []int64{}
	for _, m := range sel.Items().Snapshot() {
		ids = append(ids, m.ID)
	}
	require.Equal(t, []int64{20, 21}, ids)
}
