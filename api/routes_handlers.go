package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"staffdesk/api/handlers"
	"staffdesk/core/rbac"
)

type routeHandlers struct {
	navigation   *handlers.NavigationHandler
	chat         *handlers.ChatHandler
	contacts     *handlers.ContactsHandler
	capabilities *handlers.CapabilityHandler
	alerts       *handlers.AlertsHandler
	journal      *handlers.JournalHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		navigation:   handlers.NewNavigationHandler(s.navigator, s.badge, s.sessions, s.policy, s.logger),
		chat:         handlers.NewChatHandler(s.navigator),
		contacts:     handlers.NewContactsHandler(s.navigator),
		capabilities: handlers.NewCapabilityHandler(s.prober, s.sessions),
		alerts:       handlers.NewAlertsHandler(s.inbox),
		journal:      handlers.NewJournalHandler(s.journal, s.logger),
	}
}

func (s *Server) registerRoutes() {
	router := chi.NewRouter()
	router.Use(s.recoverMiddleware, s.loggingMiddleware, s.jsonMiddleware)
	h := s.newRouteHandlers()

	router.Route("/api", func(apiRouter chi.Router) {
		apiRouter.MethodFunc("POST", "/navigate", h.navigation.Navigate)
		apiRouter.MethodFunc("GET", "/shell", h.navigation.Shell)
		apiRouter.MethodFunc("GET", "/view", h.navigation.View)
		apiRouter.MethodFunc("POST", "/view/refresh", h.navigation.Refresh)

		apiRouter.MethodFunc("POST", "/chat/select", s.requirePermission(rbac.PermChatUse)(h.chat.Select))
		apiRouter.MethodFunc("PUT", "/chat/draft", s.requirePermission(rbac.PermChatUse)(h.chat.SetDraft))
		apiRouter.MethodFunc("POST", "/chat/send", s.requirePermission(rbac.PermChatUse)(h.chat.Send))

		apiRouter.MethodFunc("GET", "/contacts/groups/{id:[0-9]+}/members", s.requirePermission(rbac.PermContactsView)(h.contacts.Members))
		apiRouter.MethodFunc("GET", "/capabilities/groups/{id:[0-9]+}", h.capabilities.Group)

		apiRouter.MethodFunc("GET", "/alerts", h.alerts.Drain)
		apiRouter.MethodFunc("GET", "/sync/journal", h.journal.List)
	})
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	s.router = router
}
