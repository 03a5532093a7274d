package contacts

import (
	"context"
	"fmt"

	"staffdesk/core/auth"
	"staffdesk/core/authz"
	"staffdesk/core/polling"
	"staffdesk/core/portalapi"
	"staffdesk/core/utils"
)

const (
	Route     = "contacts"
	GroupsKey = "groups"
)

type Source interface {
	AccessibleGroups(ctx context.Context) ([]portalapi.Group, error)
	GroupMembers(ctx context.Context, groupID int64) ([]portalapi.Member, error)
}

// groupKey covers every field that changes what the contacts screen shows
// or what the actor may do with a group.
func groupKey(g portalapi.Group) string {
	c := g.Chain()
	return fmt.Sprintf("%d:%s:%d:%d:%d:%d:%d", g.ID, g.Name, g.ParentID, c.Checker, c.Approver1, c.Approver2, c.Approver3)
}

type Row struct {
	Group      portalapi.Group  `json:"group"`
	Capability authz.Capability `json:"capability"`
}

type Snapshot struct {
	Revision uint64 `json:"revision"`
	Loaded   bool   `json:"loaded"`
	Groups   []Row  `json:"groups"`
}

type View struct {
	src     Source
	session *auth.Session
	logger  *utils.Logger
	groups  *polling.Collection[portalapi.Group]
}

func NewView(s *polling.Synchronizer, src Source, session *auth.Session, logger *utils.Logger) *View {
	return &View{
		src:     src,
		session: session,
		logger:  logger.With("view", Route),
		groups:  polling.Track[portalapi.Group](s, GroupsKey, src.AccessibleGroups, groupKey),
	}
}

func (v *View) Snapshot() Snapshot {
	groups := v.groups.Snapshot()
	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, Row{Group: g, Capability: v.capability(g)})
	}
	return Snapshot{Revision: v.groups.Revision(), Loaded: v.groups.Loaded(), Groups: rows}
}

// Members lists a department's members when the actor can see the group.
// A 403 from the portal is treated as an empty listing.
func (v *View) Members(ctx context.Context, groupID int64) ([]portalapi.Member, error) {
	g, ok := v.find(groupID)
	if !ok || !v.capability(g).CanView {
		return []portalapi.Member{}, nil
	}
	members, err := v.src.GroupMembers(ctx, groupID)
	if portalapi.IsForbidden(err) {
		v.logger.Debugf("members of group %d: %v", groupID, err)
		return []portalapi.Member{}, nil
	}
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (v *View) find(groupID int64) (portalapi.Group, bool) {
	for _, g := range v.groups.Snapshot() {
		if g.ID == groupID {
			return g, true
		}
	}
	return portalapi.Group{}, false
}

func (v *View) capability(g portalapi.Group) authz.Capability {
	if v.session == nil {
		return authz.FailClosed()
	}
	return authz.Resolve(v.session.Actor, g.Entity())
}
