package models

import "time"

// Server is a game server that can receive reward commands
type Server struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is a member who votes. GameID is the in-game identifier
// some voting sites expect in their verification API.
type User struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	GameID string `json:"game_id,omitempty"`
}

// Site is an external list/ranking site users vote on
type Site struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	URL             string   `json:"url"`
	VoteDelay       int      `json:"vote_delay"` // minutes
	VerificationKey string   `json:"verification_key,omitempty"`
	HasVerification bool     `json:"has_verification"`
	Enabled         bool     `json:"is_enabled"`
	Rewards         []Reward `json:"rewards,omitempty"`
}

// VoteDelayDuration returns the cooldown window as a duration
func (s Site) VoteDelayDuration() time.Duration {
	return time.Duration(s.VoteDelay) * time.Minute
}

// Reward is a weighted prize granted after an admitted vote
type Reward struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Chances  float64  `json:"chances"`
	Servers  []int    `json:"servers,omitempty"`  // Empty/nil means every server is eligible
	Commands []string `json:"commands,omitempty"` // Supports {player}, {reward} and {site}
	Sites    []int    `json:"sites,omitempty"`
	Enabled  bool     `json:"is_enabled"`
}

// EligibleFor reports whether the reward may be granted on serverID
func (r Reward) EligibleFor(serverID int) bool {
	if len(r.Servers) == 0 {
		return true
	}
	for _, id := range r.Servers {
		if id == serverID {
			return true
		}
	}
	return false
}

// Vote is a recorded, admitted vote. Votes are never updated.
type Vote struct {
	ID        int       `json:"id"`
	SiteID    int       `json:"site_id"`
	UserID    int       `json:"user_id"`
	RewardID  *int      `json:"reward_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TopVoter is a leaderboard row
type TopVoter struct {
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
	Votes  int    `json:"votes"`
}

// RewardCommand is a queued reward effect waiting for a game server to pick it up
type RewardCommand struct {
	ID           string     `json:"id"`
	VoteID       int        `json:"vote_id"`
	ServerID     int        `json:"server_id"`
	Command      string     `json:"command"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
