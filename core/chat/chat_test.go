package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"staffdesk/core/alerts"
	"staffdesk/core/auth"
	"staffdesk/core/authz"
	"staffdesk/core/polling"
	"staffdesk/core/portalapi"
	"staffdesk/core/utils"
)

type fakeChat struct {
	mu       sync.Mutex
	rooms    []portalapi.Room
	roomsErr error
	messages map[int64][]portalapi.Message
	msgsErr  error
	sendErr  error
	sent     []string
}

func (f *fakeChat) Rooms(ctx context.Context) ([]portalapi.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roomsErr != nil {
		return nil, f.roomsErr
	}
	return append([]portalapi.Room(nil), f.rooms...), nil
}

func (f *fakeChat) Room(ctx context.Context, id int64) (*portalapi.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rooms {
		if r.ID == id {
			r := r
			return &r, nil
		}
	}
	return nil, &portalapi.APIError{Status: 404, Message: "room not found"}
}

func (f *fakeChat) Messages(ctx context.Context, roomID int64) ([]portalapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgsErr != nil {
		return nil, f.msgsErr
	}
	return append([]portalapi.Message(nil), f.messages[roomID]...), nil
}

func (f *fakeChat) SendMessage(ctx context.Context, roomID int64, text string) (*portalapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, text)
	m := portalapi.Message{ID: int64(100 + len(f.sent)), RoomID: roomID, Body: text}
	f.messages[roomID] = append(f.messages[roomID], m)
	return &m, nil
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		rooms: []portalapi.Room{
			{ID: 1, Name: "general", GroupID: 40},
			{ID: 2, Name: "ops", ChainFields: portalapi.ChainFields{Approver2ID: 7}},
		},
		messages: map[int64][]portalapi.Message{
			1: {{ID: 1, RoomID: 1, Body: "hi"}},
			2: {{ID: 2, RoomID: 2, Body: "deploy?"}, {ID: 3, RoomID: 2, Body: "tonight"}},
		},
	}
}

type harness struct {
	clock *clockwork.FakeClock
	sync  *polling.Synchronizer
	inbox *alerts.Inbox
	view  *View
}

func newHarness(t *testing.T, src Source) *harness {
	t.Helper()
	fc := clockwork.NewFakeClock()
	inbox := alerts.NewInbox(0)
	logger := utils.NewDiscardLogger()
	s := polling.New(polling.Options{ViewID: "v1", Clock: fc, Logger: logger, Notifier: inbox})
	sess := &auth.Session{Actor: authz.Actor{ID: 9, DelegationGroupIDs: []authz.GroupID{7}, MemberGroupIDs: []authz.GroupID{40}}}
	v := NewView(s, src, sess, Options{ViewID: "v1", MessagesInterval: 5 * time.Second, Clock: fc, Logger: logger, Notifier: inbox})
	t.Cleanup(func() {
		_ = v.Stop(context.Background())
		_ = s.Stop(context.Background())
	})
	return &harness{clock: fc, sync: s, inbox: inbox, view: v}
}

func TestFailedSendKeepsDraftAndAlerts(t *testing.T) {
	src := newFakeChat()
	h := newHarness(t, src)
	require.NoError(t, h.view.Select(context.Background(), 1))

	src.sendErr = &portalapi.APIError{Status: 500, Message: "database unavailable"}
	h.view.Composer().SetDraft("see you at 3")
	_, err := h.view.Send(context.Background())
	require.Error(t, err)
	require.Equal(t, "see you at 3", h.view.Composer().Draft())

	got := h.inbox.Drain()
	require.Len(t, got, 1)
	require.Equal(t, "chat.send", got[0].Source)
	require.Contains(t, got[0].Message, "database unavailable")

	src.mu.Lock()
	src.sendErr = nil
	src.mu.Unlock()
	msg, err := h.view.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, "see you at 3", msg.Body)
	require.Empty(t, h.view.Composer().Draft())
	require.Len(t, h.view.Snapshot().Messages, 2)
}

func TestSendSucceedsQuietlyWhenFollowUpSyncFails(t *testing.T) {
	src := newFakeChat()
	h := newHarness(t, src)
	require.NoError(t, h.view.Select(context.Background(), 1))
	before := h.view.Snapshot().Messages

	src.mu.Lock()
	src.msgsErr = &portalapi.APIError{Status: 503, Message: "upstream busy"}
	src.mu.Unlock()
	h.view.Composer().SetDraft("on my way")
	msg, err := h.view.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, "on my way", msg.Body)
	require.Empty(t, h.view.Composer().Draft())
	require.Zero(t, h.inbox.Len())
	require.Equal(t, before, h.view.Snapshot().Messages)
}

func TestSendRequiresTextAndRoom(t *testing.T) {
	h := newHarness(t, newFakeChat())
	_, err := h.view.Send(context.Background())
	require.ErrorIs(t, err, ErrEmptyDraft)

	h.view.Composer().SetDraft("hello")
	_, err = h.view.Send(context.Background())
	require.ErrorIs(t, err, ErrNoRoom)
	require.Equal(t, "hello", h.view.Composer().Draft())
	require.Zero(t, h.inbox.Len())
}

func TestComposerKeepsTextTypedDuringSend(t *testing.T) {
	var c *Composer
	c = NewComposer(func(ctx context.Context, roomID int64, text string) (*portalapi.Message, error) {
		c.SetDraft("second thought")
		return &portalapi.Message{ID: 1, Body: text}, nil
	}, nil, nil)
	c.SetDraft("first")
	_, err := c.Send(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "second thought", c.Draft())
}

func TestSelectingRoomSwapsMessages(t *testing.T) {
	h := newHarness(t, newFakeChat())
	require.NoError(t, h.view.Select(context.Background(), 2))
	snap := h.view.Snapshot()
	require.Equal(t, int64(2), snap.SelectedRoomID)
	require.NotNil(t, snap.SelectedRoom)
	require.Len(t, snap.Messages, 2)

	require.NoError(t, h.view.Select(context.Background(), 1))
	snap = h.view.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Equal(t, "hi", snap.Messages[0].Body)

	require.Error(t, h.view.Select(context.Background(), 99))
	snap = h.view.Snapshot()
	require.Nil(t, snap.SelectedRoom)
	require.Empty(t, snap.Messages)
	require.Equal(t, 1, h.inbox.Len())
}

func TestRoomListSurvivesBackgroundFailure(t *testing.T) {
	src := newFakeChat()
	h := newHarness(t, src)
	require.NoError(t, h.sync.Refresh(context.Background(), RoomsKey))
	before := h.view.Snapshot()
	require.Len(t, before.Rooms, 2)

	src.mu.Lock()
	src.roomsErr = errors.New("dial tcp: connection refused")
	src.mu.Unlock()
	h.sync.Start(context.Background())
	require.Eventually(t, func() bool {
		st, _ := h.sync.State(RoomsKey)
		return st == polling.Idle
	}, 2*time.Second, 5*time.Millisecond)
	h.clock.Advance(30 * time.Second)
	require.Never(t, func() bool { return h.inbox.Len() > 0 }, 100*time.Millisecond, 5*time.Millisecond)

	after := h.view.Snapshot()
	require.Equal(t, before.Rooms, after.Rooms)
	require.Equal(t, before.RoomsRevision, after.RoomsRevision)
}

func TestRoomCapabilities(t *testing.T) {
	h := newHarness(t, newFakeChat())
	require.NoError(t, h.sync.Refresh(context.Background(), RoomsKey))
	rows := h.view.Snapshot().Rooms
	require.Equal(t, authz.Capability{CanView: true}, rows[0].Capability)
	require.Equal(t, authz.Full(), rows[1].Capability)
}
