package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/repository"
)

// Grant is everything a reward effect needs to know about an admitted vote
type Grant struct {
	Vote     models.Vote
	Reward   models.Reward
	Site     models.Site
	User     models.User
	ServerID *int
}

// RewardDispatcher carries out the effect of a granted reward
type RewardDispatcher interface {
	Dispatch(ctx context.Context, g Grant) error
}

// DispatcherRepository defines the repository methods needed by CommandDispatcher
type DispatcherRepository interface {
	repository.ServerRepository
	repository.CommandRepository
}

// CommandDispatcher queues a reward's commands for the game servers to run
type CommandDispatcher struct {
	log  logger.Logger
	repo DispatcherRepository
	now  func() time.Time
}

// NewCommandDispatcher creates a new CommandDispatcher
func NewCommandDispatcher(log logger.Logger, repo DispatcherRepository) *CommandDispatcher {
	return &CommandDispatcher{log: log, repo: repo, now: time.Now}
}

// Dispatch enqueues one command row per reward command and target server
func (d *CommandDispatcher) Dispatch(ctx context.Context, g Grant) error {
	if len(g.Reward.Commands) == 0 {
		return nil
	}

	targets, err := d.targets(ctx, g)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		d.log.Warn("No server to dispatch reward to", "reward", g.Reward.Name, "vote_id", g.Vote.ID)
		return nil
	}

	replacer := strings.NewReplacer(
		"{player}", g.User.Name,
		"{reward}", g.Reward.Name,
		"{site}", g.Site.Name,
	)

	now := d.now().UTC()
	commands := make([]models.RewardCommand, 0, len(targets)*len(g.Reward.Commands))
	for _, serverID := range targets {
		for _, cmd := range g.Reward.Commands {
			commands = append(commands, models.RewardCommand{
				ID:        uuid.NewString(),
				VoteID:    g.Vote.ID,
				ServerID:  serverID,
				Command:   replacer.Replace(cmd),
				CreatedAt: now,
			})
		}
	}

	if err := d.repo.EnqueueCommands(ctx, commands); err != nil {
		return err
	}

	d.log.Debug("Reward commands queued", "reward", g.Reward.Name, "vote_id", g.Vote.ID, "count", len(commands))
	return nil
}

// targets picks the chosen server, else the reward's servers, else every server
func (d *CommandDispatcher) targets(ctx context.Context, g Grant) ([]int, error) {
	if g.ServerID != nil {
		return []int{*g.ServerID}, nil
	}
	if len(g.Reward.Servers) > 0 {
		return g.Reward.Servers, nil
	}

	servers, err := d.repo.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, len(servers))
	for i, s := range servers {
		ids[i] = s.ID
	}
	return ids, nil
}

// PendingCommands returns the commands a game server has not picked up yet
func (d *CommandDispatcher) PendingCommands(ctx context.Context, serverID int) ([]models.RewardCommand, error) {
	return d.repo.PendingCommands(ctx, serverID)
}

// MarkDispatched acknowledges a command as run by its game server
func (d *CommandDispatcher) MarkDispatched(ctx context.Context, id string) error {
	err := d.repo.MarkCommandDispatched(ctx, id, d.now())
	if err == repository.ErrNotFound {
		return ErrCommandNotFound
	}
	return err
}
