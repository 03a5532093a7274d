package approvals

import (
	"context"
	"strconv"

	"staffdesk/core/auth"
	"staffdesk/core/authz"
	"staffdesk/core/polling"
	"staffdesk/core/portalapi"
)

const (
	Route      = "approvals"
	PendingKey = "pending"
)

// Source lists applications awaiting the signed-in actor.
type Source interface {
	PendingApplications(ctx context.Context) ([]portalapi.Application, error)
}

// applicationKey is the badge's observable key: only membership of the
// pending set matters for the counter.
func applicationKey(a portalapi.Application) string {
	return strconv.FormatInt(a.ID, 10)
}

// rowKey also tracks status so the approvals screen picks up transitions.
func rowKey(a portalapi.Application) string {
	return strconv.FormatInt(a.ID, 10) + ":" + a.Status
}

// Badge is the shell-level pending approvals counter.
type Badge struct {
	pending *polling.Collection[portalapi.Application]
}

// NewBadge tracks the pending list on the shell synchronizer and binds it to
// the approvals route so navigating there refreshes the counter at once.
func NewBadge(s *polling.Synchronizer, src Source) *Badge {
	c := polling.Track[portalapi.Application](s, PendingKey, src.PendingApplications, applicationKey)
	s.BindRoute(Route, PendingKey)
	return &Badge{pending: c}
}

func (b *Badge) Count() int {
	return b.pending.Len()
}

func (b *Badge) Revision() uint64 {
	return b.pending.Revision()
}

func (b *Badge) Loaded() bool {
	return b.pending.Loaded()
}

type Item struct {
	Application portalapi.Application `json:"application"`
	Capability  authz.Capability      `json:"capability"`
}

type Snapshot struct {
	Revision uint64 `json:"revision"`
	Loaded   bool   `json:"loaded"`
	Items    []Item `json:"items"`
}

// View backs the approvals screen.
type View struct {
	session *auth.Session
	pending *polling.Collection[portalapi.Application]
}

func NewView(s *polling.Synchronizer, src Source, session *auth.Session) *View {
	return &View{
		session: session,
		pending: polling.Track[portalapi.Application](s, PendingKey, src.PendingApplications, rowKey),
	}
}

// Snapshot resolves capability per row against the current actor. Nothing is
// cached between calls.
func (v *View) Snapshot() Snapshot {
	apps := v.pending.Snapshot()
	items := make([]Item, 0, len(apps))
	for _, a := range apps {
		items = append(items, Item{Application: a, Capability: v.capability(a)})
	}
	return Snapshot{Revision: v.pending.Revision(), Loaded: v.pending.Loaded(), Items: items}
}

func (v *View) capability(a portalapi.Application) authz.Capability {
	if v.session == nil {
		return authz.FailClosed()
	}
	return authz.Resolve(v.session.Actor, a.Entity())
}
