package appbootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"staffdesk/config"
	"staffdesk/core/contacts"
	"staffdesk/core/portal"
	"staffdesk/core/store"
	"staffdesk/core/utils"
)

func fakePortalServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":7,"username":"kim","roles":["employee"],"group_ids":[40],"delegation_group_ids":[3,null,""]}}`))
	})
	mux.HandleFunc("/delegation-groups/mine", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"delegation_groups":[{"id":3},{"id":9}]}`))
	})
	mux.HandleFunc("/applications/pending", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"applications":[{"id":1,"approver_1_id":3},{"id":2,"checker_id":"0"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.AppConfig {
	return &config.AppConfig{
		ListenAddr: "127.0.0.1:0",
		Portal:     config.PortalConfig{BaseURL: baseURL, Token: "t", RequestTimeout: 5 * time.Second},
		Sync:       config.SyncConfig{Interval: 30 * time.Second, CalendarCron: "0 0 * * *", Timezone: "UTC"},
		Journal:    config.JournalConfig{Enabled: true, Driver: "sqlite", URL: filepath.Join(t.TempDir(), "journal.db")},
	}
}

func TestComposeRuntimeWiresEverything(t *testing.T) {
	srv := fakePortalServer(t)
	ctx := context.Background()
	rc, err := composeRuntime(ctx, testConfig(t, srv.URL), utils.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	deps := rc.serverDeps
	require.NotNil(t, deps.Journal)
	require.Len(t, rc.workers, 1)
	require.Equal(t, []string{"approvals", "attendance", "chat", "contacts"}, deps.Navigator.Routes())

	sess := deps.Sessions.Current(ctx)
	require.NotNil(t, sess)
	require.Equal(t, "kim", sess.Username)

	m, err := deps.Navigator.Navigate(ctx, "approvals")
	require.NoError(t, err)
	require.Equal(t, 2, deps.Badge.Count())
	require.Eventually(t, func() bool {
		items, err := deps.Journal.List(ctx, journalFilter(m.ViewID))
		return err == nil && len(items) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, deps.Navigator.Close(ctx))
}

func TestComposeRuntimeWithoutJournal(t *testing.T) {
	srv := fakePortalServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Journal.Enabled = false
	rc, err := composeRuntime(context.Background(), cfg, utils.NewDiscardLogger())
	require.NoError(t, err)
	require.Nil(t, rc.serverDeps.Journal)
	require.NoError(t, rc.Close())
}

func TestRemountSeesDelegationChange(t *testing.T) {
	var delegated atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":7,"username":"kim","roles":["employee"]}}`))
	})
	mux.HandleFunc("/delegation-groups/mine", func(w http.ResponseWriter, r *http.Request) {
		if delegated.Load() {
			_, _ = w.Write([]byte(`{"delegation_groups":[{"id":3}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"delegation_groups":[]}`))
	})
	mux.HandleFunc("/groups/accessible", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"groups":[{"id":50,"name":"Finance","approver_1_id":3}]}`))
	})
	mux.HandleFunc("/applications/pending", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"applications":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	cfg.Journal.Enabled = false
	ctx := context.Background()
	rc, err := composeRuntime(ctx, cfg, utils.NewDiscardLogger())
	require.NoError(t, err)
	nav := rc.serverDeps.Navigator
	t.Cleanup(func() { _ = nav.Close(ctx) })

	canApprove := func() bool {
		m, err := nav.Navigate(ctx, "contacts")
		require.NoError(t, err)
		v, ok := portal.As[*contacts.View](m)
		require.True(t, ok)
		var snap contacts.Snapshot
		require.Eventually(t, func() bool {
			snap = v.Snapshot()
			return len(snap.Groups) == 1
		}, 2*time.Second, 10*time.Millisecond)
		return snap.Groups[0].Capability.CanApprove
	}

	require.False(t, canApprove())
	delegated.Store(true)
	_, err = nav.Navigate(ctx, "approvals")
	require.NoError(t, err)
	require.True(t, canApprove())
}

func journalFilter(viewID string) store.JournalFilter {
	return store.JournalFilter{ViewID: viewID}
}
