package handlers

import (
	"github.com/abrezinsky/voterewards/internal/models"
)

// IDResponse is the response for create operations
type IDResponse struct {
	ID int64 `json:"id"`
}

// TokenResponse carries an admin session or voter token with its expiry
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// TopVotersResponse is the leaderboard of the current month
type TopVotersResponse struct {
	Voters []models.TopVoter `json:"voters"`
}

// CommandsResponse lists the commands waiting for a game server
type CommandsResponse struct {
	Commands []models.RewardCommand `json:"commands"`
}

// VerifiersResponse lists the domains with a registered verifier
type VerifiersResponse struct {
	Domains []string `json:"domains"`
}
