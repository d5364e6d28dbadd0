package handlers

// VoteDoneRequest represents a vote attempt on a site
type VoteDoneRequest struct {
	User string `json:"user"`
	// ServerID is the sealed server token from the site listing
	ServerID string `json:"server_id"`
}

// LoginRequest represents an admin login
type LoginRequest struct {
	Password string `json:"password"`
}

// TokenRequest represents a request to issue a voter token
type TokenRequest struct {
	User string `json:"user"`
}

// ServerCreateRequest represents a request to create a game server
type ServerCreateRequest struct {
	Name string `json:"name"`
}

// UserCreateRequest represents a request to create a user
type UserCreateRequest struct {
	Name   string `json:"name"`
	GameID string `json:"game_id"`
}
