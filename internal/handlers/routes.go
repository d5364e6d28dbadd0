package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.log != nil && h.log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// optionalVoter attaches the bearer-token voter when voter tokens are enabled
func (h *Handlers) optionalVoter(next http.Handler) http.Handler {
	if h.Tokens == nil {
		return next
	}
	return h.Tokens.OptionalVoter(next)
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(h.realIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(h.Metrics.Middleware)

	// Long-lived connection, outside the request timeout
	if h.Hub != nil {
		r.Get("/ws", h.Hub.ServeWs)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Method(http.MethodGet, "/metrics", h.Metrics.Handler())

		// Vote API (public)
		r.Get("/api/vote/sites", h.handleListVoteSites)
		r.Get("/api/vote/sites/{siteID}/qr", h.handleSiteQRCode)
		r.With(h.optionalVoter).Post("/api/vote/sites/{siteID}/done", h.handleVoteDone)
		r.Get("/api/vote/users/{name}", h.handleVoteStatus)
		r.Get("/api/vote/top", h.handleTopVoters)
		r.Get("/api/vote/pingback/{domain}", h.handlePingback)
		r.Post("/api/vote/pingback/{domain}", h.handlePingback)

		// Auth routes (public)
		r.Post("/admin/login", h.handleLogin)
		r.Post("/admin/logout", h.handleLogout)

		// Admin API (protected)
		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAuthAPI)

			r.Post("/api/auth/token", h.handleIssueToken)

			// Sites
			r.Get("/api/admin/sites", h.handleGetSites)
			r.Post("/api/admin/sites", h.handleCreateSite)
			r.Put("/api/admin/sites/{id}", h.handleUpdateSite)

			// Rewards
			r.Get("/api/admin/rewards", h.handleGetRewards)
			r.Post("/api/admin/rewards", h.handleCreateReward)

			// Servers and their command queues
			r.Get("/api/admin/servers", h.handleGetServers)
			r.Post("/api/admin/servers", h.handleCreateServer)
			r.Get("/api/admin/servers/{id}/commands", h.handlePendingCommands)
			r.Post("/api/admin/commands/{id}/dispatched", h.handleMarkDispatched)

			// Users and votes
			r.Post("/api/admin/users", h.handleCreateUser)
			r.Get("/api/admin/users/{name}", h.handleGetUser)
			r.Get("/api/admin/votes", h.handleGetVotes)

			r.Get("/api/admin/verifiers", h.handleGetVerifiers)
		})
	})

	return r
}
