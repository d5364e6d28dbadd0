package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"golang.org/x/sync/errgroup"

	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/metrics"
	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/repository"
	"github.com/abrezinsky/voterewards/internal/rewards"
	"github.com/abrezinsky/voterewards/internal/serverid"
	"github.com/abrezinsky/voterewards/internal/store"
	"github.com/abrezinsky/voterewards/internal/verification"
)

// Vote result statuses
const (
	StatusSuccess = "success"
	StatusPending = "pending"
)

// Admission outcomes, as reported to metrics
const (
	outcomeAdmitted        = "admitted"
	outcomeTooSoon         = "too_soon"
	outcomePending         = "pending"
	outcomeNotVerified     = "not_verified"
	outcomeUnauthenticated = "unauthenticated"
	outcomeError           = "error"
)

const unknownReward = "Unknown"

// AdmissionRepository defines the repository methods needed by AdmissionService
type AdmissionRepository interface {
	repository.ServerRepository
	repository.UserRepository
	repository.SiteRepository
	repository.RewardRepository
	repository.VoteRepository
}

// VoteVerifier runs a site verifier against a vote attempt
type VoteVerifier interface {
	Verify(ctx context.Context, v *verification.Verifier, req verification.Request) verification.Outcome
}

// Broadcaster defines the interface for broadcasting admitted votes to clients
type Broadcaster interface {
	BroadcastVote(event VoteEvent)
}

// VoteEvent is pushed to live clients when a vote is admitted
type VoteEvent struct {
	SiteID   int    `json:"site_id"`
	SiteName string `json:"site"`
	User     string `json:"user"`
	Reward   string `json:"reward,omitempty"`
}

// AdmissionConfig holds the cooldown policy of the admission controller
type AdmissionConfig struct {
	// CooldownNamespace prefixes the per site and IP cooldown keys
	CooldownNamespace string
	// FixedResetHosts lists sites (matched as a substring of the site URL)
	// whose cooldown resets at midnight in ResetLocation instead of sliding
	FixedResetHosts []string
	// ResetLocation is the reference timezone of fixed-reset sites and of
	// monthly statistics
	ResetLocation *time.Location
}

// DefaultAdmissionConfig returns the default cooldown policy
func DefaultAdmissionConfig() AdmissionConfig {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		loc = time.UTC
	}
	return AdmissionConfig{
		CooldownNamespace: store.DefaultCooldownNamespace,
		FixedResetHosts:   []string{"gtop100.com"},
		ResetLocation:     loc,
	}
}

// AdmissionService decides whether a vote counts, records it and grants its reward
type AdmissionService struct {
	log         logger.Logger
	repo        AdmissionRepository
	cooldowns   store.CooldownStore
	registry    *verification.Registry
	verifier    VoteVerifier
	selector    *rewards.Selector
	dispatcher  RewardDispatcher
	sealer      *serverid.Sealer
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	cfg         AdmissionConfig
	locks       *keyedLocker
	now         func() time.Time
}

// NewAdmissionService creates a new AdmissionService
func NewAdmissionService(
	log logger.Logger,
	repo AdmissionRepository,
	cooldowns store.CooldownStore,
	registry *verification.Registry,
	verifier VoteVerifier,
	selector *rewards.Selector,
	dispatcher RewardDispatcher,
	cfg AdmissionConfig,
) *AdmissionService {
	if cfg.CooldownNamespace == "" {
		cfg.CooldownNamespace = store.DefaultCooldownNamespace
	}
	if cfg.ResetLocation == nil {
		cfg.ResetLocation = time.UTC
	}
	if registry == nil {
		registry = verification.NewRegistry()
	}
	if selector == nil {
		selector = rewards.NewSelector(nil)
	}
	return &AdmissionService{
		log:        log,
		repo:       repo,
		cooldowns:  cooldowns,
		registry:   registry,
		verifier:   verifier,
		selector:   selector,
		dispatcher: dispatcher,
		cfg:        cfg,
		locks:      newKeyedLocker(),
		now:        time.Now,
	}
}

// SetBroadcaster sets the broadcaster for admitted votes
func (s *AdmissionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetMetrics attaches collectors for admission outcomes
func (s *AdmissionService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetSealer sets the sealer used to open server tokens
func (s *AdmissionService) SetSealer(sealer *serverid.Sealer) {
	s.sealer = sealer
}

// SetClock replaces the time source (tests)
func (s *AdmissionService) SetClock(now func() time.Time) {
	s.now = now
}

// VoteRequest is a vote attempt
type VoteRequest struct {
	SiteID int
	// UserName identifies the voter when there is no authenticated session
	UserName string
	// SessionUser is the authenticated voter, if any
	SessionUser *models.User
	// ServerToken is a sealed server id, or empty for no server filter
	ServerToken string
	IP          string
}

// VoteResult contains the result of an admitted or pending vote
type VoteResult struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	VoteID  int            `json:"-"`
	Reward  *models.Reward `json:"-"`
}

// Vote runs a vote attempt through cooldown, verification and the
// post-verification re-check, then records it and grants a reward.
func (s *AdmissionService) Vote(ctx context.Context, req VoteRequest) (*VoteResult, error) {
	result, err := s.vote(ctx, req)
	s.metrics.ObserveAdmission(admissionOutcome(result, err))
	return result, err
}

func (s *AdmissionService) vote(ctx context.Context, req VoteRequest) (*VoteResult, error) {
	user, err := s.resolveUser(ctx, req)
	if err != nil {
		return nil, err
	}

	site, err := s.enabledSite(ctx, req.SiteID)
	if err != nil {
		return nil, err
	}

	serverID, err := s.openServerToken(req.ServerToken)
	if err != nil {
		return nil, err
	}

	if err := s.checkCooldown(ctx, site, user, req.IP); err != nil {
		return nil, err
	}

	if site.HasVerification {
		switch s.verify(ctx, site, user, req.IP) {
		case verification.Pending:
			s.log.Debug("Vote pending verification", "site_id", site.ID, "user", user.Name)
			return &VoteResult{Status: StatusPending}, nil
		case verification.Rejected:
			s.log.Info("Vote not verified", "site_id", site.ID, "user", user.Name, "ip", req.IP)
			return nil, ErrVoteNotVerified
		}
	}

	unlock := s.locks.Lock(fmt.Sprintf("%d.%d", site.ID, user.ID))
	defer unlock()

	// Verification can take seconds; another attempt may have been admitted meanwhile
	if err := s.checkCooldown(ctx, site, user, req.IP); err != nil {
		return nil, err
	}

	return s.admit(ctx, site, user, req.IP, serverID)
}

func admissionOutcome(result *VoteResult, err error) string {
	var tooSoon *TooSoonError
	switch {
	case err == nil && result != nil && result.Status == StatusPending:
		return outcomePending
	case err == nil:
		return outcomeAdmitted
	case stderrors.As(err, &tooSoon):
		return outcomeTooSoon
	case err == ErrVoteNotVerified:
		return outcomeNotVerified
	case err == ErrUnauthenticated:
		return outcomeUnauthenticated
	default:
		return outcomeError
	}
}

// admit commits an eligible vote. The cooldown entry is written first so a
// failure further down never lets the same IP vote again straight away.
func (s *AdmissionService) admit(ctx context.Context, site *models.Site, user *models.User, ip string, serverID *int) (*VoteResult, error) {
	now := s.now()

	next := now.Add(site.VoteDelayDuration())
	if err := s.cooldowns.PutUntil(ctx, s.cooldownKey(site.ID, ip), next); err != nil {
		return nil, fmt.Errorf("failed to store cooldown: %w", err)
	}

	candidates, err := s.repo.ListSiteRewards(ctx, site.ID)
	if err != nil {
		return nil, err
	}
	reward := s.selector.Select(candidates, serverID)

	var rewardID *int
	if reward != nil {
		rewardID = &reward.ID
	}
	voteID, err := s.repo.CreateVote(ctx, site.ID, user.ID, rewardID, now)
	if err != nil {
		return nil, err
	}
	vote := models.Vote{ID: int(voteID), SiteID: site.ID, UserID: user.ID, RewardID: rewardID, CreatedAt: now}

	rewardName := unknownReward
	if reward != nil {
		rewardName = reward.Name
		s.metrics.ObserveReward(reward.Name)

		if s.dispatcher != nil {
			grant := Grant{Vote: vote, Reward: *reward, Site: *site, User: *user, ServerID: serverID}
			if err := s.dispatcher.Dispatch(ctx, grant); err != nil {
				s.log.Error("Failed to dispatch reward", "vote_id", vote.ID, "reward", reward.Name, "error", err)
			}
		}
	}

	s.log.Info("Vote admitted", "site_id", site.ID, "user", user.Name, "ip", ip, "reward", rewardName)

	if s.broadcaster != nil {
		event := VoteEvent{SiteID: site.ID, SiteName: site.Name, User: user.Name}
		if reward != nil {
			event.Reward = reward.Name
		}
		s.broadcaster.BroadcastVote(event)
	}

	return &VoteResult{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Your vote has been taken into account, you will soon receive the reward « %s »!", rewardName),
		VoteID:  vote.ID,
		Reward:  reward,
	}, nil
}

func (s *AdmissionService) resolveUser(ctx context.Context, req VoteRequest) (*models.User, error) {
	if req.SessionUser != nil {
		return req.SessionUser, nil
	}
	name := strings.TrimSpace(req.UserName)
	if name == "" {
		return nil, ErrUnauthenticated
	}
	user, err := s.repo.GetUserByName(ctx, name)
	if err == repository.ErrNotFound {
		return nil, ErrUnauthenticated
	}
	return user, err
}

func (s *AdmissionService) enabledSite(ctx context.Context, id int) (*models.Site, error) {
	site, err := s.repo.GetSite(ctx, id)
	if err != nil {
		if stderrors.Is(err, ErrSiteNotFound) {
			return nil, ErrSiteNotFound
		}
		return nil, err
	}
	if !site.Enabled {
		return nil, ErrSiteNotFound
	}
	return site, nil
}

func (s *AdmissionService) openServerToken(token string) (*int, error) {
	if token == "" {
		return nil, nil
	}
	if s.sealer == nil {
		return nil, ErrInvalidServer
	}
	id, err := s.sealer.OpenOptional(token)
	if err != nil {
		return nil, ErrInvalidServer
	}
	return id, nil
}

// verify runs the site's verifier. A site flagged for verification
// without a registered verifier is admitted.
func (s *AdmissionService) verify(ctx context.Context, site *models.Site, user *models.User, ip string) verification.Outcome {
	v, ok := s.registry.ForURL(site.URL)
	if !ok || s.verifier == nil {
		s.log.Debug("No verifier for site", "site_id", site.ID, "url", site.URL)
		return verification.Verified
	}
	return s.verifier.Verify(ctx, v, verification.Request{
		VoteURL:     site.URL,
		User:        *user,
		IP:          ip,
		ExplicitKey: site.VerificationKey,
	})
}

func (s *AdmissionService) checkCooldown(ctx context.Context, site *models.Site, user *models.User, ip string) error {
	next, err := s.NextVoteTime(ctx, site, user, ip)
	if err != nil {
		return err
	}
	if next != nil {
		return newTooSoonError(*next, s.now())
	}
	return nil
}

// NextVoteTime returns when user may vote again on site from ip, or nil
// when they may vote now. Recent votes in the history take precedence over
// the per-IP cooldown entry.
func (s *AdmissionService) NextVoteTime(ctx context.Context, site *models.Site, user *models.User, ip string) (*time.Time, error) {
	now := s.now()
	fixedReset := s.isFixedReset(site)

	cutoff := now.Add(-site.VoteDelayDuration())
	if fixedReset {
		cutoff = startOfDay(now, s.cfg.ResetLocation)
	}

	last, err := s.repo.LastVoteSince(ctx, site.ID, user.ID, cutoff)
	if err != nil {
		return nil, err
	}
	if last != nil {
		next := last.Add(site.VoteDelayDuration())
		if fixedReset {
			next = endOfDay(now, s.cfg.ResetLocation)
		}
		return &next, nil
	}

	until, ok, err := s.cooldowns.Get(ctx, s.cooldownKey(site.ID, ip))
	if err != nil {
		return nil, err
	}
	if !ok || !until.After(now) {
		return nil, nil
	}
	return &until, nil
}

func (s *AdmissionService) isFixedReset(site *models.Site) bool {
	for _, host := range s.cfg.FixedResetHosts {
		if host != "" && strings.Contains(site.URL, host) {
			return true
		}
	}
	return false
}

func (s *AdmissionService) cooldownKey(siteID int, ip string) string {
	return store.CooldownKey(s.cfg.CooldownNamespace, siteID, ip)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// endOfDay returns the last microsecond of t's day in loc
func endOfDay(t time.Time, loc *time.Location) time.Time {
	return startOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Microsecond)
}

func (s *AdmissionService) startOfMonth() time.Time {
	t := s.now().In(s.cfg.ResetLocation)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, s.cfg.ResetLocation)
}

// UserVoteStatus is the verification-status answer for a user
type UserVoteStatus struct {
	User string `json:"user"`
	// Sites maps each enabled site id to the next vote time in unix
	// milliseconds, or null when the user can vote now
	Sites         map[int]*int64 `json:"sites"`
	TotalVotes    int            `json:"total_votes"`
	MonthVotes    int            `json:"month_votes"`
	MonthPosition int            `json:"month_position"`
}

// VoteStatus returns per-site next vote times and the vote statistics of a user
func (s *AdmissionService) VoteStatus(ctx context.Context, name, ip string) (*UserVoteStatus, error) {
	user, err := s.repo.GetUserByName(ctx, strings.TrimSpace(name))
	if err == repository.ErrNotFound {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	sites, err := s.repo.ListSites(ctx, true)
	if err != nil {
		return nil, err
	}

	status := &UserVoteStatus{User: user.Name, Sites: make(map[int]*int64, len(sites))}
	nextTimes := make([]*int64, len(sites))
	monthStart := s.startOfMonth()

	g, gctx := errgroup.WithContext(ctx)
	for i := range sites {
		site := &sites[i]
		g.Go(func() error {
			next, err := s.NextVoteTime(gctx, site, user, ip)
			if err != nil {
				return err
			}
			if next != nil {
				ms := next.UnixMilli()
				nextTimes[i] = &ms
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		status.TotalVotes, err = s.repo.CountUserVotes(gctx, user.ID, time.Time{})
		return err
	})
	g.Go(func() error {
		var err error
		status.MonthVotes, err = s.repo.CountUserVotes(gctx, user.ID, monthStart)
		return err
	})
	g.Go(func() error {
		var err error
		status.MonthPosition, err = s.repo.UserPosition(gctx, user.ID, monthStart)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, site := range sites {
		status.Sites[site.ID] = nextTimes[i]
	}
	return status, nil
}

// TopVoters returns the month's best voters. A non-positive limit defaults to 10.
func (s *AdmissionService) TopVoters(ctx context.Context, limit int) ([]models.TopVoter, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.TopVoters(ctx, s.startOfMonth(), limit)
}

// PublicServer is a game server as offered to voters
type PublicServer struct {
	Token string `json:"id"`
	Name  string `json:"name"`
}

// SiteListing is the public vote page data
type SiteListing struct {
	Sites   []models.Site  `json:"sites"`
	Servers []PublicServer `json:"servers"`
}

// ListSites returns the enabled sites with their rewards and the servers a
// voter may pick, each identified by a sealed token
func (s *AdmissionService) ListSites(ctx context.Context) (*SiteListing, error) {
	sites, err := s.repo.ListSites(ctx, true)
	if err != nil {
		return nil, err
	}
	for i := range sites {
		siteRewards, err := s.repo.ListSiteRewards(ctx, sites[i].ID)
		if err != nil {
			return nil, err
		}
		sites[i].Rewards = siteRewards
		sites[i].VerificationKey = ""
	}

	listing := &SiteListing{Sites: sites, Servers: []PublicServer{}}
	if s.sealer == nil {
		return listing, nil
	}

	servers, err := s.repo.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	for _, srv := range servers {
		token, err := s.sealer.Seal(srv.ID)
		if err != nil {
			return nil, err
		}
		listing.Servers = append(listing.Servers, PublicServer{Token: token, Name: srv.Name})
	}
	return listing, nil
}

// SiteQRCode returns a PNG QR code of an enabled site's vote link
func (s *AdmissionService) SiteQRCode(ctx context.Context, siteID int) ([]byte, error) {
	site, err := s.enabledSite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(site.URL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}
