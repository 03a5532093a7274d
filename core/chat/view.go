package chat

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"staffdesk/core/alerts"
	"staffdesk/core/auth"
	"staffdesk/core/authz"
	"staffdesk/core/polling"
	"staffdesk/core/portalapi"
	"staffdesk/core/utils"
)

const (
	Route       = "chat"
	RoomsKey    = "rooms"
	MessagesKey = "messages"
)

type Source interface {
	Rooms(ctx context.Context) ([]portalapi.Room, error)
	Room(ctx context.Context, id int64) (*portalapi.Room, error)
	Messages(ctx context.Context, roomID int64) ([]portalapi.Message, error)
	SendMessage(ctx context.Context, roomID int64, text string) (*portalapi.Message, error)
}

type Options struct {
	ViewID           string
	MessagesInterval time.Duration
	Clock            clockwork.Clock
	Logger           *utils.Logger
	Notifier         alerts.Notifier
	Observer         polling.Observer
}

func roomKey(r portalapi.Room) string {
	key := strconv.FormatInt(r.ID, 10) + ":" + strconv.Itoa(r.UnreadCount)
	if r.LastMessageAt != nil {
		key += ":" + strconv.FormatInt(r.LastMessageAt.UnixNano(), 10)
	}
	return key
}

func messageKey(m portalapi.Message) string {
	return strconv.FormatInt(m.ID, 10)
}

type RoomRow struct {
	Room       portalapi.Room   `json:"room"`
	Capability authz.Capability `json:"capability"`
}

type Snapshot struct {
	Rooms            []RoomRow           `json:"rooms"`
	RoomsRevision    uint64              `json:"rooms_revision"`
	SelectedRoomID   int64               `json:"selected_room_id,omitempty"`
	SelectedRoom     *portalapi.Room     `json:"selected_room,omitempty"`
	Messages         []portalapi.Message `json:"messages"`
	MessagesRevision uint64              `json:"messages_revision"`
	Draft            string              `json:"draft"`
	Sending          bool                `json:"sending"`
}

// View is the chat screen: the room list polls on the view's synchronizer,
// the open room's messages poll on a faster one owned by the view.
type View struct {
	session  *auth.Session
	logger   *utils.Logger
	notifier alerts.Notifier
	clock    clockwork.Clock

	rooms     *polling.Collection[portalapi.Room]
	selection *polling.Selection[portalapi.Room, portalapi.Message]
	messages  *polling.Synchronizer
	composer  *Composer
}

func NewView(s *polling.Synchronizer, src Source, session *auth.Session, opts Options) *View {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = alerts.Discard{}
	}
	v := &View{
		session:  session,
		logger:   opts.Logger.With("view", Route),
		notifier: notifier,
		clock:    clock,
	}
	v.rooms = polling.Track[portalapi.Room](s, RoomsKey, src.Rooms, roomKey)
	v.selection = polling.NewSelection[portalapi.Room, portalapi.Message](
		MessagesKey,
		func(ctx context.Context, id int64) (portalapi.Room, error) {
			r, err := src.Room(ctx, id)
			if err != nil {
				return portalapi.Room{}, err
			}
			return *r, nil
		},
		src.Messages,
		messageKey,
		clock,
		opts.Logger,
	)
	v.messages = polling.New(polling.Options{
		ViewID:   opts.ViewID,
		Interval: opts.MessagesInterval,
		Clock:    clock,
		Logger:   opts.Logger,
		Notifier: notifier,
		Observer: opts.Observer,
	})
	polling.TrackSelection(v.messages, MessagesKey, v.selection)
	v.composer = NewComposer(src.SendMessage, notifier, clock)
	return v
}

func (v *View) Start(ctx context.Context) {
	v.messages.Start(ctx)
}

func (v *View) Stop(ctx context.Context) error {
	return v.messages.Stop(ctx)
}

func (v *View) Composer() *Composer {
	return v.composer
}

// Select opens roomID. The previous room's messages are gone before this
// returns or fails.
func (v *View) Select(ctx context.Context, roomID int64) error {
	err := v.selection.Select(ctx, roomID)
	if err != nil {
		v.notifier.Alert(ctx, alerts.Alert{Source: "chat.select", Message: err.Error(), At: v.clock.Now().UTC()})
	}
	return err
}

func (v *View) Close() {
	v.selection.Clear()
}

// Send posts the draft to the open room and then refreshes its messages.
func (v *View) Send(ctx context.Context) (*portalapi.Message, error) {
	roomID, _ := v.selection.Selected()
	msg, err := v.composer.Send(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := v.messages.Poll(ctx, MessagesKey); err != nil {
		v.logger.Debugf("refresh after send: %v", err)
	}
	return msg, nil
}

func (v *View) Snapshot() Snapshot {
	rooms := v.rooms.Snapshot()
	rows := make([]RoomRow, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, RoomRow{Room: r, Capability: v.capability(r)})
	}
	snap := Snapshot{
		Rooms:            rows,
		RoomsRevision:    v.rooms.Revision(),
		Messages:         v.selection.Items().Snapshot(),
		MessagesRevision: v.selection.Items().Revision(),
		Draft:            v.composer.Draft(),
		Sending:          v.composer.Sending(),
	}
	if snap.Messages == nil {
		snap.Messages = []portalapi.Message{}
	}
	if id, ok := v.selection.Selected(); ok {
		snap.SelectedRoomID = id
		if room, ok := v.selection.Detail(); ok {
			snap.SelectedRoom = &room
		}
	}
	return snap
}

func (v *View) capability(r portalapi.Room) authz.Capability {
	if v.session == nil {
		return authz.FailClosed()
	}
	return authz.Resolve(v.session.Actor, r.Entity())
}
