package appbootstrap

import (
	"context"
	"database/sql"

	"github.com/jonboulle/clockwork"

	"staffdesk/api"
	"staffdesk/config"
	"staffdesk/core/alerts"
	"staffdesk/core/approvals"
	"staffdesk/core/attendance"
	"staffdesk/core/auth"
	"staffdesk/core/chat"
	"staffdesk/core/contacts"
	"staffdesk/core/polling"
	"staffdesk/core/portal"
	"staffdesk/core/portalapi"
	"staffdesk/core/rbac"
	"staffdesk/core/store"
	"staffdesk/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	workers    []api.BackgroundWorker
	db         *sql.DB
}

func (rc *runtimeComposition) Close() error {
	if rc.db == nil {
		return nil
	}
	return rc.db.Close()
}

func composeRuntime(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*runtimeComposition, error) {
	client := portalapi.NewClient(cfg.Portal, logger)
	policy, err := rbac.NewPolicy(rbac.DefaultRoles())
	if err != nil {
		return nil, err
	}
	sessions := auth.NewSessionManager(client, policy, logger)
	prober := auth.NewProber(client, logger)
	inbox := alerts.NewInbox(0)
	clock := clockwork.NewRealClock()

	rc := &runtimeComposition{}
	var (
		journal  store.JournalStore
		observer polling.Observer
	)
	if cfg.Journal.Enabled {
		db, err := store.NewDB(ctx, cfg.Journal)
		if err != nil {
			return nil, err
		}
		if err := store.ApplyMigrations(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		rc.db = db
		journal = store.NewJournalStore(db, logger)
		observer = journal
	}

	shell := polling.New(polling.Options{
		ViewID:   "shell",
		Interval: cfg.EffectiveSyncInterval(),
		Clock:    clock,
		Location: cfg.Location(),
		Logger:   logger,
		Notifier: inbox,
		Observer: observer,
	})
	badge := approvals.NewBadge(shell, client)

	nav := portal.NewNavigator(portal.Options{
		BaseContext: ctx,
		Shell:       shell,
		Interval:    cfg.EffectiveSyncInterval(),
		Clock:       clock,
		Location:    cfg.Location(),
		Logger:      logger,
		Notifier:    inbox,
		Observer:    observer,
	})
	registerViews(ctx, nav, viewDeps{
		client:   client,
		sessions: sessions,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		inbox:    inbox,
		observer: observer,
	})

	rc.serverDeps = api.ServerDeps{
		Navigator: nav,
		Badge:     badge,
		Sessions:  sessions,
		Prober:    prober,
		Policy:    policy,
		Inbox:     inbox,
		Journal:   journal,
	}
	rc.workers = []api.BackgroundWorker{shell}
	return rc, nil
}

type viewDeps struct {
	client   *portalapi.Client
	sessions *auth.SessionManager
	cfg      *config.AppConfig
	clock    clockwork.Clock
	logger   *utils.Logger
	inbox    *alerts.Inbox
	observer polling.Observer
}

// registerViews binds every screen to a factory. Views that resolve
// capabilities reload the session on mount, so delegation changes apply on
// the next navigation and a failed reload mounts the view fail-closed.
func registerViews(ctx context.Context, nav *portal.Navigator, d viewDeps) {
	nav.Register(approvals.Route, func(s *polling.Synchronizer, viewID string) (portal.View, error) {
		return portal.Adapt[approvals.Snapshot](approvals.NewView(s, d.client, d.sessions.Fresh(ctx))), nil
	})
	nav.Register(chat.Route, func(s *polling.Synchronizer, viewID string) (portal.View, error) {
		v := chat.NewView(s, d.client, d.sessions.Fresh(ctx), chat.Options{
			ViewID:           viewID,
			MessagesInterval: d.cfg.EffectiveMessagesInterval(),
			Clock:            d.clock,
			Logger:           d.logger,
			Notifier:         d.inbox,
			Observer:         d.observer,
		})
		return portal.Adapt[chat.Snapshot](v), nil
	})
	nav.Register(contacts.Route, func(s *polling.Synchronizer, viewID string) (portal.View, error) {
		return portal.Adapt[contacts.Snapshot](contacts.NewView(s, d.client, d.sessions.Fresh(ctx), d.logger)), nil
	})
	nav.Register(attendance.Route, func(s *polling.Synchronizer, viewID string) (portal.View, error) {
		v, err := attendance.NewView(s, d.client, d.clock, d.cfg.Location(), d.cfg.Sync.CalendarCron)
		if err != nil {
			return nil, err
		}
		return portal.Adapt[attendance.Snapshot](v), nil
	})
}

// Run composes the runtime and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) error {
	rc, err := composeRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logger.Warnf("close journal: %v", err)
		}
	}()
	if sess := rc.serverDeps.Sessions.Current(ctx); sess != nil {
		logger.Printf("signed in as %s", sess.Username)
	}
	srv := api.NewServer(cfg, rc.serverDeps, rc.workers, logger)
	return srv.Run(ctx)
}
