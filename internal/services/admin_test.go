package services_test

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/abrezinsky/voterewards/internal/errors"
	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/repository"
	"github.com/abrezinsky/voterewards/internal/services"
	tu "github.com/abrezinsky/voterewards/internal/testutil"
	"github.com/abrezinsky/voterewards/internal/verification"
)

func setupAdminService(t *testing.T) (*services.AdminService, *repository.Repository) {
	t.Helper()
	repo := tu.NewTestRepository(t)
	registry := verification.NewRegistry(
		verification.For("keyed.test").WithAPIURL("https://keyed.test/api?token={server}").RequireKey("API token").VerifyByValue("1"),
	)
	return services.NewAdminService(logger.Discard(), repo, registry), repo
}

func boolPtr(b bool) *bool { return &b }

func TestAdminService_CreateSite(t *testing.T) {
	svc, _ := setupAdminService(t)
	ctx := context.Background()

	id, err := svc.CreateSite(ctx, services.Site{Name: " List ", URL: "https://list.test/vote", VoteDelay: 90})
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}

	sites, err := svc.ListSites(ctx)
	if err != nil {
		t.Fatalf("ListSites failed: %v", err)
	}
	if len(sites) != 1 || sites[0].ID != int(id) {
		t.Fatalf("expected created site, got %+v", sites)
	}
	if sites[0].Name != "List" || !sites[0].Enabled || sites[0].VoteDelay != 90 {
		t.Errorf("unexpected site %+v", sites[0])
	}
}

func TestAdminService_CreateSite_Validation(t *testing.T) {
	svc, _ := setupAdminService(t)

	tests := []struct {
		name string
		site services.Site
	}{
		{"missing name", services.Site{URL: "https://list.test"}},
		{"relative url", services.Site{Name: "List", URL: "list.test/vote"}},
		{"unsupported scheme", services.Site{Name: "List", URL: "ftp://list.test"}},
		{"negative delay", services.Site{Name: "List", URL: "https://list.test", VoteDelay: -1}},
		{"missing required key", services.Site{Name: "Keyed", URL: "https://keyed.test/1", HasVerification: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSite(context.Background(), tt.site)
			if apperrors.KindOf(err) != apperrors.ErrValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAdminService_CreateSite_RequiredKeyProvided(t *testing.T) {
	svc, _ := setupAdminService(t)

	_, err := svc.CreateSite(context.Background(), services.Site{
		Name: "Keyed", URL: "https://keyed.test/1", HasVerification: true, VerificationKey: "abc",
	})
	if err != nil {
		t.Errorf("CreateSite failed: %v", err)
	}
}

func TestAdminService_UpdateSite(t *testing.T) {
	svc, repo := setupAdminService(t)
	ctx := context.Background()

	id, err := svc.CreateSite(ctx, services.Site{Name: "List", URL: "https://list.test", VoteDelay: 60})
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}

	err = svc.UpdateSite(ctx, int(id), services.Site{Name: "List", URL: "https://list.test", VoteDelay: 120, Enabled: boolPtr(false)})
	if err != nil {
		t.Fatalf("UpdateSite failed: %v", err)
	}

	site, err := repo.GetSite(ctx, int(id))
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if site.VoteDelay != 120 || site.Enabled {
		t.Errorf("unexpected site after update %+v", site)
	}

	err = svc.UpdateSite(ctx, 999, services.Site{Name: "List", URL: "https://list.test"})
	if !errors.Is(err, services.ErrSiteNotFound) {
		t.Errorf("expected ErrSiteNotFound, got %v", err)
	}
}

func TestAdminService_CreateReward(t *testing.T) {
	svc, _ := setupAdminService(t)
	ctx := context.Background()

	siteID, err := svc.CreateSite(ctx, services.Site{Name: "List", URL: "https://list.test"})
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}

	_, err = svc.CreateReward(ctx, services.Reward{
		Name: "Gold", Chances: 12.5, Sites: []int{int(siteID)}, Commands: []string{"give {player} gold"},
	})
	if err != nil {
		t.Fatalf("CreateReward failed: %v", err)
	}

	rewards, err := svc.ListRewards(ctx)
	if err != nil {
		t.Fatalf("ListRewards failed: %v", err)
	}
	if len(rewards) != 1 || rewards[0].Chances != 12.5 || !rewards[0].Enabled {
		t.Errorf("unexpected rewards %+v", rewards)
	}

	for _, bad := range []services.Reward{{Name: ""}, {Name: "Negative", Chances: -1}} {
		if _, err := svc.CreateReward(ctx, bad); apperrors.KindOf(err) != apperrors.ErrValidation {
			t.Errorf("expected validation error for %+v, got %v", bad, err)
		}
	}
}

func TestAdminService_ServersAndUsers(t *testing.T) {
	svc, _ := setupAdminService(t)
	ctx := context.Background()

	if _, err := svc.CreateServer(ctx, "Lobby"); err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if _, err := svc.CreateServer(ctx, " "); apperrors.KindOf(err) != apperrors.ErrValidation {
		t.Errorf("expected validation error, got %v", err)
	}
	servers, err := svc.ListServers(ctx)
	if err != nil || len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d (%v)", len(servers), err)
	}

	if _, err := svc.CreateUser(ctx, "Steve", "uuid-1"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := svc.CreateUser(ctx, "steve", ""); apperrors.KindOf(err) != apperrors.ErrConflict {
		t.Errorf("expected conflict for duplicate name, got %v", err)
	}

	user, err := svc.GetUser(ctx, "STEVE")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user.GameID != "uuid-1" {
		t.Errorf("expected game id uuid-1, got %q", user.GameID)
	}
	if _, err := svc.GetUser(ctx, "nobody"); !errors.Is(err, services.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAdminService_Verifiers(t *testing.T) {
	svc, _ := setupAdminService(t)
	domains := svc.Verifiers()
	if len(domains) != 1 || domains[0] != "keyed.test" {
		t.Errorf("unexpected verifiers %v", domains)
	}
}

func TestAdminService_ListVotesDefaultsLimit(t *testing.T) {
	svc, _ := setupAdminService(t)
	votes, err := svc.ListVotes(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListVotes failed: %v", err)
	}
	if len(votes) != 0 {
		t.Errorf("expected no votes, got %d", len(votes))
	}
}
