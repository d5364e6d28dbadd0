package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/voterewards/internal/services"
)

func (h *Handlers) handleGetSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.Admin.ListSites(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, sites)
}

func (h *Handlers) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	var req services.Site
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	id, err := h.Admin.CreateSite(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondCreated(w, IDResponse{ID: id})
}

func (h *Handlers) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	id, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req services.Site
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	if err := h.Admin.UpdateSite(r.Context(), id, req); err != nil {
		h.respondError(w, err)
		return
	}
	respondSuccess(w, "Site updated")
}

func (h *Handlers) handleGetRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Admin.ListRewards(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, rewards)
}

func (h *Handlers) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req services.Reward
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	id, err := h.Admin.CreateReward(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondCreated(w, IDResponse{ID: id})
}

func (h *Handlers) handleGetServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.Admin.ListServers(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, servers)
}

func (h *Handlers) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req ServerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	id, err := h.Admin.CreateServer(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondCreated(w, IDResponse{ID: id})
}

// handlePendingCommands lists the reward commands a game server has not run yet
func (h *Handlers) handlePendingCommands(w http.ResponseWriter, r *http.Request) {
	serverID, err := parseIntParam(r, "id")
	if err != nil {
		h.respondError(w, err)
		return
	}

	commands, err := h.Commands.PendingCommands(r.Context(), serverID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, CommandsResponse{Commands: commands})
}

// handleMarkDispatched acknowledges a command the game server has run
func (h *Handlers) handleMarkDispatched(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, BadRequest("Missing id parameter"))
		return
	}

	if err := h.Commands.MarkDispatched(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	respondSuccess(w, "Command marked as dispatched")
}

func (h *Handlers) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	id, err := h.Admin.CreateUser(r.Context(), req.Name, req.GameID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondCreated(w, IDResponse{ID: id})
}

func (h *Handlers) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Admin.GetUser(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, user)
}

func (h *Handlers) handleGetVotes(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	votes, err := h.Admin.ListVotes(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, votes)
}

func (h *Handlers) handleGetVerifiers(w http.ResponseWriter, r *http.Request) {
	respondOK(w, VerifiersResponse{Domains: h.Admin.Verifiers()})
}
