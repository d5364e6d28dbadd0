package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/repository/mock"
	"github.com/abrezinsky/voterewards/internal/services"
	tu "github.com/abrezinsky/voterewards/internal/testutil"
)

func setupDispatcher(t *testing.T) (*services.CommandDispatcher, *mock.Repository, services.Grant, []int) {
	t.Helper()
	repo := tu.NewTestRepository(t)
	lobby := tu.MustCreateServer(t, repo, "Lobby")
	survival := tu.MustCreateServer(t, repo, "Survival")
	user := tu.MustCreateUser(t, repo, "Steve", "")
	site := tu.MustCreateSite(t, repo, models.Site{Name: "TopList", URL: "https://toplist.test/1", VoteDelay: 60, Enabled: true})
	reward := tu.MustCreateReward(t, repo, models.Reward{
		Name: "Gold", Chances: 1, Enabled: true,
		Commands: []string{"give {player} gold", "say {player} voted on {site} for {reward}"},
	})

	voteID, err := repo.CreateVote(context.Background(), site.ID, user.ID, &reward.ID, time.Now())
	if err != nil {
		t.Fatalf("CreateVote failed: %v", err)
	}

	mockRepo := mock.NewRepository(repo)
	grant := services.Grant{
		Vote:   models.Vote{ID: int(voteID), SiteID: site.ID, UserID: user.ID, RewardID: &reward.ID},
		Reward: reward,
		Site:   site,
		User:   user,
	}
	return services.NewCommandDispatcher(logger.Discard(), mockRepo), mockRepo, grant, []int{lobby, survival}
}

func TestDispatch_ChosenServer(t *testing.T) {
	d, _, grant, servers := setupDispatcher(t)
	ctx := context.Background()
	grant.ServerID = &servers[1]

	if err := d.Dispatch(ctx, grant); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	commands, err := d.PendingCommands(ctx, servers[1])
	if err != nil {
		t.Fatalf("PendingCommands failed: %v", err)
	}
	if len(commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(commands))
	}
	if commands[0].Command != "give Steve gold" {
		t.Errorf("unexpected command %q", commands[0].Command)
	}
	if commands[1].Command != "say Steve voted on TopList for Gold" {
		t.Errorf("unexpected command %q", commands[1].Command)
	}
	if commands[0].ID == commands[1].ID || commands[0].ID == "" {
		t.Errorf("expected distinct command ids, got %q and %q", commands[0].ID, commands[1].ID)
	}

	other, err := d.PendingCommands(ctx, servers[0])
	if err != nil {
		t.Fatalf("PendingCommands failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no commands for other server, got %d", len(other))
	}
}

func TestDispatch_Targets(t *testing.T) {
	tests := []struct {
		name          string
		rewardServers func(servers []int) []int
		wantLobby     int
		wantSurvival  int
	}{
		{"every server when the reward has none", func([]int) []int { return nil }, 2, 2},
		{"reward servers", func(s []int) []int { return []int{s[0]} }, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, grant, servers := setupDispatcher(t)
			ctx := context.Background()
			grant.Reward.Servers = tt.rewardServers(servers)

			if err := d.Dispatch(ctx, grant); err != nil {
				t.Fatalf("Dispatch failed: %v", err)
			}

			lobby, _ := d.PendingCommands(ctx, servers[0])
			survival, _ := d.PendingCommands(ctx, servers[1])
			if len(lobby) != tt.wantLobby || len(survival) != tt.wantSurvival {
				t.Errorf("expected %d/%d commands, got %d/%d", tt.wantLobby, tt.wantSurvival, len(lobby), len(survival))
			}
		})
	}
}

func TestDispatch_NoCommands(t *testing.T) {
	d, mockRepo, grant, _ := setupDispatcher(t)
	grant.Reward.Commands = nil
	mockRepo.EnqueueCommandsError = errors.New("should not be called")

	if err := d.Dispatch(context.Background(), grant); err != nil {
		t.Errorf("expected no-op, got %v", err)
	}
}

func TestDispatch_Errors(t *testing.T) {
	d, mockRepo, grant, _ := setupDispatcher(t)
	ctx := context.Background()

	mockRepo.ListServersError = errors.New("list failed")
	if err := d.Dispatch(ctx, grant); err == nil {
		t.Error("expected ListServers error, got nil")
	}

	mockRepo.ListServersError = nil
	mockRepo.EnqueueCommandsError = errors.New("enqueue failed")
	if err := d.Dispatch(ctx, grant); err == nil {
		t.Error("expected EnqueueCommands error, got nil")
	}
}

func TestMarkDispatched(t *testing.T) {
	d, _, grant, servers := setupDispatcher(t)
	ctx := context.Background()
	grant.ServerID = &servers[0]

	if err := d.Dispatch(ctx, grant); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	commands, err := d.PendingCommands(ctx, servers[0])
	if err != nil || len(commands) != 2 {
		t.Fatalf("expected 2 pending commands, got %d (%v)", len(commands), err)
	}

	if err := d.MarkDispatched(ctx, commands[0].ID); err != nil {
		t.Fatalf("MarkDispatched failed: %v", err)
	}
	if err := d.MarkDispatched(ctx, commands[0].ID); !errors.Is(err, services.ErrCommandNotFound) {
		t.Errorf("expected ErrCommandNotFound on second ack, got %v", err)
	}

	remaining, err := d.PendingCommands(ctx, servers[0])
	if err != nil {
		t.Fatalf("PendingCommands failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != commands[1].ID {
		t.Errorf("expected only the second command pending, got %+v", remaining)
	}
}
