package services

import (
	"context"
	"math"
	"net/url"
	"strings"

	"github.com/abrezinsky/voterewards/internal/errors"
	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/repository"
	"github.com/abrezinsky/voterewards/internal/verification"
)

// AdminServiceRepository defines the repository methods needed by AdminService
type AdminServiceRepository interface {
	repository.ServerRepository
	repository.UserRepository
	repository.SiteRepository
	repository.RewardRepository
	ListVotes(ctx context.Context, limit int) ([]repository.VoteLogRow, error)
}

// AdminService handles the seeding and inspection of sites, rewards, servers and users
type AdminService struct {
	log      logger.Logger
	repo     AdminServiceRepository
	registry *verification.Registry
}

// NewAdminService creates a new AdminService
func NewAdminService(log logger.Logger, repo AdminServiceRepository, registry *verification.Registry) *AdminService {
	if registry == nil {
		registry = verification.NewRegistry()
	}
	return &AdminService{log: log, repo: repo, registry: registry}
}

// Site is the input for creating or updating a vote site
type Site struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	VoteDelay       int    `json:"vote_delay"`
	VerificationKey string `json:"verification_key"`
	HasVerification bool   `json:"has_verification"`
	Enabled         *bool  `json:"is_enabled"`
}

// Reward is the input for creating a reward
type Reward struct {
	Name     string   `json:"name"`
	Chances  float64  `json:"chances"`
	Servers  []int    `json:"servers"`
	Commands []string `json:"commands"`
	Sites    []int    `json:"sites"`
	Enabled  *bool    `json:"is_enabled"`
}

// ListSites returns every site, enabled or not
func (s *AdminService) ListSites(ctx context.Context) ([]models.Site, error) {
	return s.repo.ListSites(ctx, false)
}

// CreateSite validates and stores a new site
func (s *AdminService) CreateSite(ctx context.Context, in Site) (int64, error) {
	site, err := s.validateSite(in)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateSite(ctx, site)
	if err != nil {
		return 0, err
	}
	s.log.Info("Site created", "site_id", id, "name", site.Name)
	return id, nil
}

// UpdateSite validates and replaces an existing site
func (s *AdminService) UpdateSite(ctx context.Context, id int, in Site) error {
	site, err := s.validateSite(in)
	if err != nil {
		return err
	}
	site.ID = id
	err = s.repo.UpdateSite(ctx, site)
	if err == repository.ErrNotFound {
		return ErrSiteNotFound
	}
	return err
}

func (s *AdminService) validateSite(in Site) (models.Site, error) {
	site := models.Site{
		Name:            strings.TrimSpace(in.Name),
		URL:             strings.TrimSpace(in.URL),
		VoteDelay:       in.VoteDelay,
		VerificationKey: strings.TrimSpace(in.VerificationKey),
		HasVerification: in.HasVerification,
		Enabled:         in.Enabled == nil || *in.Enabled,
	}

	if site.Name == "" {
		return site, errors.Validation("site name is required")
	}
	if u, err := url.Parse(site.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return site, errors.Validationf("invalid site url %q", site.URL)
	}
	if site.VoteDelay < 0 {
		return site, errors.Validation("vote delay must not be negative")
	}

	if site.HasVerification {
		if v, ok := s.registry.ForURL(site.URL); ok && v.RequiresKey() && site.VerificationKey == "" {
			return site, errors.Validationf("%s is required to verify votes on this site", v.KeyLabel())
		}
	}
	return site, nil
}

// ListRewards returns every reward
func (s *AdminService) ListRewards(ctx context.Context) ([]models.Reward, error) {
	return s.repo.ListRewards(ctx)
}

// CreateReward validates and stores a new reward
func (s *AdminService) CreateReward(ctx context.Context, in Reward) (int64, error) {
	reward := models.Reward{
		Name:     strings.TrimSpace(in.Name),
		Chances:  in.Chances,
		Servers:  in.Servers,
		Commands: in.Commands,
		Sites:    in.Sites,
		Enabled:  in.Enabled == nil || *in.Enabled,
	}

	if reward.Name == "" {
		return 0, errors.Validation("reward name is required")
	}
	if reward.Chances < 0 || math.IsNaN(reward.Chances) || math.IsInf(reward.Chances, 0) {
		return 0, errors.Validation("chances must be a non-negative number")
	}

	id, err := s.repo.CreateReward(ctx, reward)
	if err != nil {
		return 0, err
	}
	s.log.Info("Reward created", "reward_id", id, "name", reward.Name)
	return id, nil
}

// ListServers returns every game server
func (s *AdminService) ListServers(ctx context.Context) ([]models.Server, error) {
	return s.repo.ListServers(ctx)
}

// CreateServer stores a new game server
func (s *AdminService) CreateServer(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.Validation("server name is required")
	}
	return s.repo.CreateServer(ctx, name)
}

// CreateUser stores a new user. Names are unique, ignoring case.
func (s *AdminService) CreateUser(ctx context.Context, name, gameID string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.Validation("user name is required")
	}
	id, err := s.repo.CreateUser(ctx, name, strings.TrimSpace(gameID))
	if repository.IsUniqueViolation(err) {
		return 0, errors.Conflict("user already exists")
	}
	return id, err
}

// GetUser looks a user up by name
func (s *AdminService) GetUser(ctx context.Context, name string) (*models.User, error) {
	user, err := s.repo.GetUserByName(ctx, strings.TrimSpace(name))
	if err == repository.ErrNotFound {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ListVotes returns the latest votes. A non-positive limit defaults to 100.
func (s *AdminService) ListVotes(ctx context.Context, limit int) ([]repository.VoteLogRow, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListVotes(ctx, limit)
}

// Verifiers lists the domains a verifier is registered for
func (s *AdminService) Verifiers() []string {
	return s.registry.Domains()
}
