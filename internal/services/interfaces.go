package services

import (
	"context"
	"net/http"
	"time"

	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/repository"
)

// AdmissionServicer defines the interface for vote admission operations
type AdmissionServicer interface {
	Vote(ctx context.Context, req VoteRequest) (*VoteResult, error)
	NextVoteTime(ctx context.Context, site *models.Site, user *models.User, ip string) (*time.Time, error)
	VoteStatus(ctx context.Context, name, ip string) (*UserVoteStatus, error)
	TopVoters(ctx context.Context, limit int) ([]models.TopVoter, error)
	ListSites(ctx context.Context) (*SiteListing, error)
	SiteQRCode(ctx context.Context, siteID int) ([]byte, error)
	SetBroadcaster(b Broadcaster)
}

// PingbackServicer defines the interface for pingback intake
type PingbackServicer interface {
	Receive(ctx context.Context, domain string, r *http.Request) (string, error)
}

// CommandServicer defines the interface for the reward command queue
type CommandServicer interface {
	RewardDispatcher
	PendingCommands(ctx context.Context, serverID int) ([]models.RewardCommand, error)
	MarkDispatched(ctx context.Context, id string) error
}

// AdminServicer defines the interface for admin data operations
type AdminServicer interface {
	ListSites(ctx context.Context) ([]models.Site, error)
	CreateSite(ctx context.Context, in Site) (int64, error)
	UpdateSite(ctx context.Context, id int, in Site) error
	ListRewards(ctx context.Context) ([]models.Reward, error)
	CreateReward(ctx context.Context, in Reward) (int64, error)
	ListServers(ctx context.Context) ([]models.Server, error)
	CreateServer(ctx context.Context, name string) (int64, error)
	CreateUser(ctx context.Context, name, gameID string) (int64, error)
	GetUser(ctx context.Context, name string) (*models.User, error)
	ListVotes(ctx context.Context, limit int) ([]repository.VoteLogRow, error)
	Verifiers() []string
}

// Ensure concrete types implement interfaces
var (
	_ AdmissionServicer = (*AdmissionService)(nil)
	_ PingbackServicer  = (*PingbackService)(nil)
	_ CommandServicer   = (*CommandDispatcher)(nil)
	_ AdminServicer     = (*AdminService)(nil)
)
