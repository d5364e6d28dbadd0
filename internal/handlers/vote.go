package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/voterewards/internal/auth"
	"github.com/abrezinsky/voterewards/internal/services"
)

// clientIP returns the voter address. realIP has already applied trusted proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// handleListVoteSites returns the enabled sites and the servers a voter may pick
func (h *Handlers) handleListVoteSites(w http.ResponseWriter, r *http.Request) {
	listing, err := h.Admission.ListSites(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, listing)
}

// handleVoteDone runs a vote attempt for the site
func (h *Handlers) handleVoteDone(w http.ResponseWriter, r *http.Request) {
	siteID, err := parseIntParam(r, "siteID")
	if err != nil {
		h.respondError(w, err)
		return
	}

	voter, authenticated := auth.VoterFromContext(r.Context())

	var req VoteDoneRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.respondError(w, err)
			return
		}
	}
	if !authenticated && strings.TrimSpace(req.User) == "" {
		h.respondError(w, Unauthorized("A user name or voter token is required"))
		return
	}

	vr := services.VoteRequest{
		SiteID:      siteID,
		UserName:    req.User,
		ServerToken: req.ServerID,
		IP:          clientIP(r),
	}
	if authenticated {
		vr.SessionUser = voter
	}

	result, err := h.Admission.Vote(r.Context(), vr)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, result)
}

// handleVoteStatus returns the next vote time per site and the vote counts of a user
func (h *Handlers) handleVoteStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if strings.TrimSpace(name) == "" {
		h.respondError(w, BadRequest("Missing name parameter"))
		return
	}

	status, err := h.Admission.VoteStatus(r.Context(), name, clientIP(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, status)
}

// handleTopVoters returns the leaderboard of the current month
func (h *Handlers) handleTopVoters(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	voters, err := h.Admission.TopVoters(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondOK(w, TopVotersResponse{Voters: voters})
}

// handleSiteQRCode serves a PNG QR code of a site's vote link
func (h *Handlers) handleSiteQRCode(w http.ResponseWriter, r *http.Request) {
	siteID, err := parseIntParam(r, "siteID")
	if err != nil {
		h.respondError(w, err)
		return
	}

	png, err := h.Admission.SiteQRCode(r.Context(), siteID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

// handlePingback records a vote confirmation sent by a voting site
func (h *Handlers) handlePingback(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")

	ip, err := h.Pingback.Receive(r.Context(), domain, r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if h.log != nil {
		h.log.Debug("Pingback received", "domain", domain, "ip", ip)
	}
	respondSuccess(w, "ok")
}
