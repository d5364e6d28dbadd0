package services

import (
	"context"
	"net/http"

	"github.com/abrezinsky/voterewards/internal/errors"
	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/verification"
)

// PingbackHandler records a pingback for a verifier. keys are the site keys
// the pingback may carry.
type PingbackHandler interface {
	HandlePingback(ctx context.Context, v *verification.Verifier, r *http.Request, keys []string) (string, error)
}

// PingbackRepository lists the sites whose keys authenticate pingbacks
type PingbackRepository interface {
	ListSites(ctx context.Context, enabledOnly bool) ([]models.Site, error)
}

// PingbackService receives vote confirmations pushed by voting sites
type PingbackService struct {
	log      logger.Logger
	repo     PingbackRepository
	registry *verification.Registry
	handler  PingbackHandler
}

// NewPingbackService creates a new PingbackService
func NewPingbackService(log logger.Logger, repo PingbackRepository, registry *verification.Registry, handler PingbackHandler) *PingbackService {
	return &PingbackService{log: log, repo: repo, registry: registry, handler: handler}
}

// Receive records the pingback r sent by the site registered under domain
// and returns the voter IP it confirms
func (s *PingbackService) Receive(ctx context.Context, domain string, r *http.Request) (string, error) {
	v, ok := s.registry.ForDomain(domain)
	if !ok || !v.HasPingback() {
		s.log.Debug("Pingback for unknown domain", "domain", domain)
		return "", ErrNoPingback
	}

	keys, err := s.siteKeys(ctx, v)
	if err != nil {
		return "", errors.Internal(err)
	}

	ip, err := s.handler.HandlePingback(ctx, v, r, keys)
	switch {
	case err == verification.ErrMissingIP:
		return "", errors.InvalidInput("pingback has no voter ip")
	case err == verification.ErrInvalidPingbackKey:
		return "", ErrInvalidPingbackKey
	case err != nil:
		return "", err
	}
	return ip, nil
}

// siteKeys returns the verification keys of the enabled sites checked by v.
// It is empty when v does not authenticate its pingbacks.
func (s *PingbackService) siteKeys(ctx context.Context, v *verification.Verifier) ([]string, error) {
	if v.PingbackKeyParam() == "" {
		return nil, nil
	}

	sites, err := s.repo.ListSites(ctx, true)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, site := range sites {
		if !site.HasVerification || site.VerificationKey == "" {
			continue
		}
		if sv, ok := s.registry.ForURL(site.URL); ok && sv.Domain == v.Domain {
			keys = append(keys, site.VerificationKey)
		}
	}
	return keys, nil
}
