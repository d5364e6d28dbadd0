package handlers

import (
	"net/netip"

	"github.com/abrezinsky/voterewards/internal/auth"
	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/metrics"
	"github.com/abrezinsky/voterewards/internal/services"
	"github.com/abrezinsky/voterewards/internal/websocket"
)

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Admission services.AdmissionServicer
	Pingback  services.PingbackServicer
	Commands  services.CommandServicer
	Admin     services.AdminServicer
	Auth      *auth.Auth
	Tokens    *auth.VoterTokens
	Hub       *websocket.Hub
	Metrics   *metrics.Metrics
	log       logger.Logger

	trustedProxies []netip.Prefix
}

// New creates a new Handlers instance with all dependencies.
// hub and m may be nil; their routes then answer 404.
func New(
	admission services.AdmissionServicer,
	pingback services.PingbackServicer,
	commands services.CommandServicer,
	admin services.AdminServicer,
	adminAuth *auth.Auth,
	tokens *auth.VoterTokens,
	hub *websocket.Hub,
	m *metrics.Metrics,
	log logger.Logger,
) *Handlers {
	return &Handlers{
		Admission: admission,
		Pingback:  pingback,
		Commands:  commands,
		Admin:     admin,
		Auth:      adminAuth,
		Tokens:    tokens,
		Hub:       hub,
		Metrics:   m,
		log:       log,
	}
}

// SetTrustedProxies sets the peers whose forwarding headers name the voter address
func (h *Handlers) SetTrustedProxies(prefixes []netip.Prefix) {
	h.trustedProxies = prefixes
}
