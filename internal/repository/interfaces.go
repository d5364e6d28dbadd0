package repository

import (
	"context"
	"time"

	"github.com/abrezinsky/voterewards/internal/models"
)

// ServerRepository defines game server data operations
type ServerRepository interface {
	ListServers(ctx context.Context) ([]models.Server, error)
	CreateServer(ctx context.Context, name string) (int64, error)
}

// UserRepository defines user data operations
type UserRepository interface {
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	CreateUser(ctx context.Context, name, gameID string) (int64, error)
}

// SiteRepository defines vote site data operations
type SiteRepository interface {
	ListSites(ctx context.Context, enabledOnly bool) ([]models.Site, error)
	GetSite(ctx context.Context, id int) (*models.Site, error)
	CreateSite(ctx context.Context, site models.Site) (int64, error)
	UpdateSite(ctx context.Context, site models.Site) error
}

// RewardRepository defines reward data operations
type RewardRepository interface {
	ListRewards(ctx context.Context) ([]models.Reward, error)
	ListSiteRewards(ctx context.Context, siteID int) ([]models.Reward, error)
	CreateReward(ctx context.Context, reward models.Reward) (int64, error)
}

// VoteRepository defines vote data operations
type VoteRepository interface {
	CreateVote(ctx context.Context, siteID, userID int, rewardID *int, at time.Time) (int64, error)
	LastVoteSince(ctx context.Context, siteID, userID int, since time.Time) (*time.Time, error)
	CountUserVotes(ctx context.Context, userID int, since time.Time) (int, error)
	UserPosition(ctx context.Context, userID int, since time.Time) (int, error)
	TopVoters(ctx context.Context, since time.Time, limit int) ([]models.TopVoter, error)
	ListVotes(ctx context.Context, limit int) ([]VoteLogRow, error)
}

// CommandRepository defines reward command queue operations
type CommandRepository interface {
	EnqueueCommands(ctx context.Context, commands []models.RewardCommand) error
	PendingCommands(ctx context.Context, serverID int) ([]models.RewardCommand, error)
	MarkCommandDispatched(ctx context.Context, id string, at time.Time) error
}

// SettingsRepository defines settings data operations
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// FullRepository combines all repository interfaces
// Use this when a service needs access to multiple domains
type FullRepository interface {
	ServerRepository
	UserRepository
	SiteRepository
	RewardRepository
	VoteRepository
	CommandRepository
	SettingsRepository
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)
