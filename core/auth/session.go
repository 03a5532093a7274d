package auth

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"staffdesk/core/authz"
	"staffdesk/core/portalapi"
	"staffdesk/core/rbac"
	"staffdesk/core/utils"
)

// ProfileSource is the slice of the portal API needed to build an actor.
type ProfileSource interface {
	Me(ctx context.Context) (*portalapi.Profile, error)
	MyDelegationGroups(ctx context.Context) ([]portalapi.DelegationGroup, error)
}

// Session is the locally loaded identity of the bearer-token holder.
type Session struct {
	ID       string
	Username string
	Roles    []string
	Actor    authz.Actor
	LoadedAt time.Time
}

type SessionManager struct {
	src    ProfileSource
	policy *rbac.Policy
	logger *utils.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
}

func NewSessionManager(src ProfileSource, policy *rbac.Policy, logger *utils.Logger) *SessionManager {
	return &SessionManager{src: src, policy: policy, logger: logger.With("component", "auth"), now: func() time.Time { return time.Now().UTC() }}
}

// Load fetches the profile and delegation memberships. A 403 on the
// delegation listing leaves the actor with no chain membership; any other
// failure is returned so the caller can fail closed.
func (m *SessionManager) Load(ctx context.Context) (*Session, error) {
	profile, err := m.src.Me(ctx)
	if err != nil {
		return nil, err
	}
	delegations := profile.DelegationGroups()
	groups, err := m.src.MyDelegationGroups(ctx)
	switch {
	case err == nil:
		delegations = mergeGroups(delegations, groups)
	case portalapi.IsForbidden(err):
		m.logger.Debugf("delegation groups forbidden for user=%s", profile.Username)
	default:
		return nil, err
	}
	actor := authz.Actor{
		ID:                 profile.ID,
		DelegationGroupIDs: delegations,
		MemberGroupIDs:     profile.MemberGroups(),
		IsSystemAdmin:      profile.IsSystemAdmin || m.policy.IsSystemAdmin(profile.Roles),
	}
	return &Session{
		ID:       uuid.Must(uuid.NewV4()).String(),
		Username: profile.Username,
		Roles:    profile.Roles,
		Actor:    actor,
		LoadedAt: m.now(),
	}, nil
}

// Current returns the loaded session, loading it on first use. It returns
// nil while the portal cannot be reached; callers fail closed.
func (m *SessionManager) Current(ctx context.Context) *Session {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess != nil {
		return sess
	}
	sess, err := m.Reload(ctx)
	if err != nil {
		m.logger.Warnf("load session: %v", err)
		return nil
	}
	return sess
}

// Fresh reloads the session so membership changes reach the next
// capability check. It returns nil when the reload fails.
func (m *SessionManager) Fresh(ctx context.Context) *Session {
	sess, err := m.Reload(ctx)
	if err != nil {
		m.logger.Warnf("reload session: %v", err)
		return nil
	}
	return sess
}

// Reload replaces the cached session with a fresh one. On failure the
// previous session is dropped.
func (m *SessionManager) Reload(ctx context.Context) (*Session, error) {
	sess, err := m.Load(ctx)
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return sess, err
}

func mergeGroups(base []authz.GroupID, extra []portalapi.DelegationGroup) []authz.GroupID {
	seen := make(map[authz.GroupID]struct{}, len(base)+len(extra))
	out := make([]authz.GroupID, 0, len(base)+len(extra))
	for _, id := range base {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, g := range extra {
		id := authz.GroupID(g.ID)
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
