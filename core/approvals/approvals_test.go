package approvals

import (
	"context"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"staffdesk/core/auth"
	"staffdesk/core/authz"
	"staffdesk/core/polling"
	"staffdesk/core/portalapi"
	"staffdesk/core/utils"
)

type fakeSource struct {
	mu    sync.Mutex
	apps  []portalapi.Application
	calls int
}

func (f *fakeSource) PendingApplications(ctx context.Context) ([]portalapi.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return append([]portalapi.Application(nil), f.apps...), nil
}

func newSync(t *testing.T) *polling.Synchronizer {
	t.Helper()
	s := polling.New(polling.Options{ViewID: "shell", Clock: clockwork.NewFakeClock(), Logger: utils.NewDiscardLogger()})
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestBadgeCountsPendingAndKeepsRevisionOnSameIDs(t *testing.T) {
	src := &fakeSource{apps: []portalapi.Application{{ID: 1}, {ID: 2}, {ID: 3}}}
	s := newSync(t)
	badge := NewBadge(s, src)

	require.NoError(t, s.Refresh(context.Background(), PendingKey))
	require.Equal(t, 3, badge.Count())
	rev := badge.Revision()

	src.mu.Lock()
	src.apps = []portalapi.Application{{ID: 1, Status: "checked"}, {ID: 2}, {ID: 3}}
	src.mu.Unlock()
	require.NoError(t, s.Refresh(context.Background(), PendingKey))
	require.Equal(t, 3, badge.Count())
	require.Equal(t, rev, badge.Revision())
}

func TestBadgeRefreshesOnApprovalsRoute(t *testing.T) {
	src := &fakeSource{apps: []portalapi.Application{{ID: 1}}}
	s := newSync(t)
	badge := NewBadge(s, src)

	s.OnRouteChange(context.Background(), "contacts")
	require.False(t, badge.Loaded())
	s.OnRouteChange(context.Background(), Route)
	require.True(t, badge.Loaded())
	require.Equal(t, 1, src.calls)
}

func TestViewResolvesCapabilityPerRow(t *testing.T) {
	src := &fakeSource{apps: []portalapi.Application{
		{ID: 1, ChainFields: portalapi.ChainFields{Approver1ID: 7}},
		{ID: 2, ChainFields: portalapi.ChainFields{CheckerID: 3, Approver1ID: 9}},
		{ID: 3},
		{ID: 4, GroupID: 40},
	}}
	s := newSync(t)
	sess := &auth.Session{Actor: authz.Actor{ID: 5, DelegationGroupIDs: []authz.GroupID{3, 7}, MemberGroupIDs: []authz.GroupID{40}}}
	view := NewView(s, src, sess)
	require.NoError(t, s.Refresh(context.Background(), PendingKey))

	snap := view.Snapshot()
	require.True(t, snap.Loaded)
	require.Len(t, snap.Items, 4)
	require.Equal(t, authz.Full(), snap.Items[0].Capability)
	require.Equal(t, authz.Capability{CanView: true}, snap.Items[1].Capability)
	require.Equal(t, authz.FailClosed(), snap.Items[2].Capability)
	require.Equal(t, authz.Capability{CanView: true}, snap.Items[3].Capability)
}

func TestViewWithoutSessionFailsClosed(t *testing.T) {
	src := &fakeSource{apps: []portalapi.Application{{ID: 1, ChainFields: portalapi.ChainFields{Approver1ID: 7}}}}
	s := newSync(t)
	view := NewView(s, src, nil)
	require.NoError(t, s.Refresh(context.Background(), PendingKey))
	require.Equal(t, authz.FailClosed(), view.Snapshot().Items[0].Capability)
}
