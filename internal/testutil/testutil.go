package testutil

import (
	"context"
	"testing"

	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/repository"
)

// NewTestRepository creates a new in-memory repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// MustCreateUser inserts a user and returns it
func MustCreateUser(t *testing.T, repo repository.UserRepository, name, gameID string) models.User {
	t.Helper()

	id, err := repo.CreateUser(context.Background(), name, gameID)
	if err != nil {
		t.Fatalf("failed to create user %q: %v", name, err)
	}
	return models.User{ID: int(id), Name: name, GameID: gameID}
}

// MustCreateSite inserts a site and returns it with its id
func MustCreateSite(t *testing.T, repo repository.SiteRepository, site models.Site) models.Site {
	t.Helper()

	id, err := repo.CreateSite(context.Background(), site)
	if err != nil {
		t.Fatalf("failed to create site %q: %v", site.Name, err)
	}
	site.ID = int(id)
	return site
}

// MustCreateServer inserts a game server and returns its id
func MustCreateServer(t *testing.T, repo repository.ServerRepository, name string) int {
	t.Helper()

	id, err := repo.CreateServer(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to create server %q: %v", name, err)
	}
	return int(id)
}

// MustCreateReward inserts a reward and returns it with its id
func MustCreateReward(t *testing.T, repo repository.RewardRepository, reward models.Reward) models.Reward {
	t.Helper()

	id, err := repo.CreateReward(context.Background(), reward)
	if err != nil {
		t.Fatalf("failed to create reward %q: %v", reward.Name, err)
	}
	reward.ID = int(id)
	return reward
}
