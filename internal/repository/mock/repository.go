package mock

import (
	"context"
	"time"

	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
// This provides a flexible way to test error paths without complex database manipulation.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.CreateVoteError = errors.New("database error")
//	svc := services.NewAdmissionService(log, mockRepo, ...)
//	_, err := svc.Vote(ctx, req)
//	// err will now contain the injected error
type Repository struct {
	repository.FullRepository

	// ===== Server Errors =====
	ListServersError  error
	CreateServerError error

	// ===== User Errors =====
	GetUserByNameError error
	CreateUserError    error

	// ===== Site Errors =====
	ListSitesError  error
	GetSiteError    error
	CreateSiteError error
	UpdateSiteError error

	// ===== Reward Errors =====
	ListRewardsError     error
	ListSiteRewardsError error
	CreateRewardError    error

	// ===== Vote Errors =====
	CreateVoteError     error
	LastVoteSinceError  error
	CountUserVotesError error
	UserPositionError   error
	TopVotersError      error
	ListVotesError      error

	// ===== Command Errors =====
	EnqueueCommandsError       error
	PendingCommandsError       error
	MarkCommandDispatchedError error

	// ===== Settings Errors =====
	GetSettingError error
	SetSettingError error

	// CreateVoteCalls counts CreateVote invocations, including failed ones
	CreateVoteCalls int
}

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.FullRepository) *Repository {
	return &Repository{
		FullRepository: real,
	}
}

// ===== Server Methods =====

func (m *Repository) ListServers(ctx context.Context) ([]models.Server, error) {
	if m.ListServersError != nil {
		return nil, m.ListServersError
	}
	return m.FullRepository.ListServers(ctx)
}

func (m *Repository) CreateServer(ctx context.Context, name string) (int64, error) {
	if m.CreateServerError != nil {
		return 0, m.CreateServerError
	}
	return m.FullRepository.CreateServer(ctx, name)
}

// ===== User Methods =====

func (m *Repository) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	if m.GetUserByNameError != nil {
		return nil, m.GetUserByNameError
	}
	return m.FullRepository.GetUserByName(ctx, name)
}

func (m *Repository) CreateUser(ctx context.Context, name, gameID string) (int64, error) {
	if m.CreateUserError != nil {
		return 0, m.CreateUserError
	}
	return m.FullRepository.CreateUser(ctx, name, gameID)
}

// ===== Site Methods =====

func (m *Repository) ListSites(ctx context.Context, enabledOnly bool) ([]models.Site, error) {
	if m.ListSitesError != nil {
		return nil, m.ListSitesError
	}
	return m.FullRepository.ListSites(ctx, enabledOnly)
}

func (m *Repository) GetSite(ctx context.Context, id int) (*models.Site, error) {
	if m.GetSiteError != nil {
		return nil, m.GetSiteError
	}
	return m.FullRepository.GetSite(ctx, id)
}

func (m *Repository) CreateSite(ctx context.Context, site models.Site) (int64, error) {
	if m.CreateSiteError != nil {
		return 0, m.CreateSiteError
	}
	return m.FullRepository.CreateSite(ctx, site)
}

func (m *Repository) UpdateSite(ctx context.Context, site models.Site) error {
	if m.UpdateSiteError != nil {
		return m.UpdateSiteError
	}
	return m.FullRepository.UpdateSite(ctx, site)
}

// ===== Reward Methods =====

func (m *Repository) ListRewards(ctx context.Context) ([]models.Reward, error) {
	if m.ListRewardsError != nil {
		return nil, m.ListRewardsError
	}
	return m.FullRepository.ListRewards(ctx)
}

func (m *Repository) ListSiteRewards(ctx context.Context, siteID int) ([]models.Reward, error) {
	if m.ListSiteRewardsError != nil {
		return nil, m.ListSiteRewardsError
	}
	return m.FullRepository.ListSiteRewards(ctx, siteID)
}

func (m *Repository) CreateReward(ctx context.Context, reward models.Reward) (int64, error) {
	if m.CreateRewardError != nil {
		return 0, m.CreateRewardError
	}
	return m.FullRepository.CreateReward(ctx, reward)
}

// ===== Vote Methods =====

func (m *Repository) CreateVote(ctx context.Context, siteID, userID int, rewardID *int, at time.Time) (int64, error) {
	m.CreateVoteCalls++
	if m.CreateVoteError != nil {
		return 0, m.CreateVoteError
	}
	return m.FullRepository.CreateVote(ctx, siteID, userID, rewardID, at)
}

func (m *Repository) LastVoteSince(ctx context.Context, siteID, userID int, since time.Time) (*time.Time, error) {
	if m.LastVoteSinceError != nil {
		return nil, m.LastVoteSinceError
	}
	return m.FullRepository.LastVoteSince(ctx, siteID, userID, since)
}

func (m *Repository) CountUserVotes(ctx context.Context, userID int, since time.Time) (int, error) {
	if m.CountUserVotesError != nil {
		return 0, m.CountUserVotesError
	}
	return m.FullRepository.CountUserVotes(ctx, userID, since)
}

func (m *Repository) UserPosition(ctx context.Context, userID int, since time.Time) (int, error) {
	if m.UserPositionError != nil {
		return 0, m.UserPositionError
	}
	return m.FullRepository.UserPosition(ctx, userID, since)
}

func (m *Repository) TopVoters(ctx context.Context, since time.Time, limit int) ([]models.TopVoter, error) {
	if m.TopVotersError != nil {
		return nil, m.TopVotersError
	}
	return m.FullRepository.TopVoters(ctx, since, limit)
}

func (m *Repository) ListVotes(ctx context.Context, limit int) ([]repository.VoteLogRow, error) {
	if m.ListVotesError != nil {
		return nil, m.ListVotesError
	}
	return m.FullRepository.ListVotes(ctx, limit)
}

// ===== Command Methods =====

func (m *Repository) EnqueueCommands(ctx context.Context, commands []models.RewardCommand) error {
	if m.EnqueueCommandsError != nil {
		return m.EnqueueCommandsError
	}
	return m.FullRepository.EnqueueCommands(ctx, commands)
}

func (m *Repository) PendingCommands(ctx context.Context, serverID int) ([]models.RewardCommand, error) {
	if m.PendingCommandsError != nil {
		return nil, m.PendingCommandsError
	}
	return m.FullRepository.PendingCommands(ctx, serverID)
}

func (m *Repository) MarkCommandDispatched(ctx context.Context, id string, at time.Time) error {
	if m.MarkCommandDispatchedError != nil {
		return m.MarkCommandDispatchedError
	}
	return m.FullRepository.MarkCommandDispatched(ctx, id, at)
}

// ===== Settings Methods =====

func (m *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	if m.GetSettingError != nil {
		return "", m.GetSettingError
	}
	return m.FullRepository.GetSetting(ctx, key)
}

func (m *Repository) SetSetting(ctx context.Context, key, value string) error {
	if m.SetSettingError != nil {
		return m.SetSettingError
	}
	return m.FullRepository.SetSetting(ctx, key, value)
}

var _ repository.FullRepository = (*Repository)(nil)
