package auth

import (
	"context"

	"staffdesk/core/authz"
	"staffdesk/core/portalapi"
	"staffdesk/core/utils"
)

type GroupSource interface {
	Group(ctx context.Context, id int64) (*portalapi.Group, error)
	GroupMembers(ctx context.Context, groupID int64) ([]portalapi.Member, error)
}

// Prober answers capability questions that need a round trip. It never
// returns an error: anything it cannot confirm resolves to no capability.
type Prober struct {
	src    GroupSource
	logger *utils.Logger
}

func NewProber(src GroupSource, logger *utils.Logger) *Prober {
	return &Prober{src: src, logger: logger.With("component", "probe")}
}

func (p *Prober) GroupCapability(ctx context.Context, sess *Session, groupID int64) authz.Capability {
	if sess == nil {
		return authz.FailClosed()
	}
	if sess.Actor.IsSystemAdmin {
		return authz.Full()
	}
	group, err := p.src.Group(ctx, groupID)
	if err != nil {
		p.logFailure("group", groupID, err)
		return authz.FailClosed()
	}
	caps := authz.ResolveCapability(sess.Actor, group.Chain())
	if !caps.CanView {
		caps.CanView = p.IsDirectMember(ctx, sess.Actor, group.ID)
	}
	return caps
}

// IsDirectMember checks the actor's own group list first and falls back to
// the member listing; a 403 there means "not a member".
func (p *Prober) IsDirectMember(ctx context.Context, actor authz.Actor, groupID int64) bool {
	if authz.IsDirectMember(actor, authz.GroupID(groupID)) {
		return true
	}
	members, err := p.src.GroupMembers(ctx, groupID)
	if err != nil {
		p.logFailure("members", groupID, err)
		return false
	}
	for _, m := range members {
		if m.UserID == actor.ID {
			return true
		}
	}
	return false
}

func (p *Prober) logFailure(what string, groupID int64, err error) {
	switch {
	case portalapi.IsForbidden(err):
		p.logger.Debugf("probe %s group=%d forbidden", what, groupID)
	case portalapi.IsTransient(err):
		p.logger.Warnf("probe %s group=%d: %v", what, groupID, err)
	default:
		p.logger.Errorf("probe %s group=%d: %v", what, groupID, err)
	}
}
