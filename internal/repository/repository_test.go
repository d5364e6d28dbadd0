package repository

import (
	"context"
	stderrors "errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/abrezinsky/voterewards/internal/errors"
	"github.com/abrezinsky/voterewards/internal/models"
)

// newTestRepo creates a new in-memory repository for testing.
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

type fixture struct {
	siteID   int
	userID   int
	serverID int
}

func seed(t *testing.T, repo *Repository) fixture {
	t.Helper()
	ctx := context.Background()

	serverID, err := repo.CreateServer(ctx, "Survival")
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	userID, err := repo.CreateUser(ctx, "Steve", "uuid-steve")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	siteID, err := repo.CreateSite(ctx, models.Site{
		Name: "Example", URL: "https://example.org/vote", VoteDelay: 60, HasVerification: true, Enabled: true,
	})
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}
	return fixture{siteID: int(siteID), userID: int(userID), serverID: int(serverID)}
}

// ==================== Server & User Tests ====================

func TestServers_CreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	repo.CreateServer(ctx, "Survival")
	repo.CreateServer(ctx, "Creative")

	servers, err := repo.ListServers(ctx)
	if err != nil {
		t.Fatalf("ListServers failed: %v", err)
	}
	if len(servers) != 2 || servers[0].Name != "Survival" {
		t.Errorf("unexpected servers: %+v", servers)
	}

	if _, err := repo.CreateServer(ctx, "Survival"); !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
}

func TestGetUserByName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, _ := repo.CreateUser(ctx, "Steve", "uuid-1")

	user, err := repo.GetUserByName(ctx, "steve")
	if err != nil {
		t.Fatalf("GetUserByName failed: %v", err)
	}
	if int64(user.ID) != id || user.GameID != "uuid-1" {
		t.Errorf("unexpected user: %+v", user)
	}

	if _, err := repo.GetUserByName(ctx, "nobody"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ==================== Site Tests ====================

func TestSites_CRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateSite(ctx, models.Site{
		Name: "Example", URL: "https://example.org", VoteDelay: 90, VerificationKey: "k", HasVerification: true, Enabled: true,
	})
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}
	repo.CreateSite(ctx, models.Site{Name: "Disabled", URL: "https://off.org", Enabled: false})

	site, err := repo.GetSite(ctx, int(id))
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if site.VoteDelay != 90 || site.VerificationKey != "k" || !site.HasVerification || !site.Enabled {
		t.Errorf("unexpected site: %+v", site)
	}

	all, _ := repo.ListSites(ctx, false)
	enabled, _ := repo.ListSites(ctx, true)
	if len(all) != 2 || len(enabled) != 1 {
		t.Errorf("expected 2 sites and 1 enabled, got %d and %d", len(all), len(enabled))
	}

	site.Name = "Renamed"
	site.VerificationKey = ""
	if err := repo.UpdateSite(ctx, *site); err != nil {
		t.Fatalf("UpdateSite failed: %v", err)
	}
	site, _ = repo.GetSite(ctx, int(id))
	if site.Name != "Renamed" || site.VerificationKey != "" {
		t.Errorf("update not applied: %+v", site)
	}
}

func TestGetSite_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetSite(context.Background(), 999)
	if errors.KindOf(err) != errors.ErrNotFound {
		t.Errorf("expected not found kind, got %v", err)
	}
}

func TestUpdateSite_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.UpdateSite(context.Background(), models.Site{ID: 42, Name: "x", URL: "y"})
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ==================== Reward Tests ====================

func TestRewards_SiteRewardsOrderedAndLinked(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)
	otherSite, _ := repo.CreateSite(ctx, models.Site{Name: "Other", URL: "https://other.org", Enabled: true})

	low, _ := repo.CreateReward(ctx, models.Reward{Name: "Low", Chances: 10, Sites: []int{f.siteID}, Enabled: true})
	high, _ := repo.CreateReward(ctx, models.Reward{
		Name: "High", Chances: 75, Sites: []int{f.siteID}, Servers: []int{f.serverID},
		Commands: []string{"give {player} diamond"}, Enabled: true,
	})
	tie, _ := repo.CreateReward(ctx, models.Reward{Name: "Tie", Chances: 10, Sites: []int{f.siteID}, Enabled: true})
	repo.CreateReward(ctx, models.Reward{Name: "Off", Chances: 50, Sites: []int{f.siteID}, Enabled: false})
	repo.CreateReward(ctx, models.Reward{Name: "Elsewhere", Chances: 99, Sites: []int{int(otherSite)}, Enabled: true})

	rewards, err := repo.ListSiteRewards(ctx, f.siteID)
	if err != nil {
		t.Fatalf("ListSiteRewards failed: %v", err)
	}

	expected := []int64{high, low, tie}
	if len(rewards) != len(expected) {
		t.Fatalf("expected %d rewards, got %+v", len(expected), rewards)
	}
	for i, id := range expected {
		if int64(rewards[i].ID) != id {
			t.Errorf("position %d: expected reward %d, got %d", i, id, rewards[i].ID)
		}
	}

	if len(rewards[0].Servers) != 1 || rewards[0].Servers[0] != f.serverID {
		t.Errorf("expected server link, got %v", rewards[0].Servers)
	}
	if len(rewards[0].Commands) != 1 || rewards[0].Commands[0] != "give {player} diamond" {
		t.Errorf("expected commands, got %v", rewards[0].Commands)
	}
	if len(rewards[1].Servers) != 0 {
		t.Errorf("expected no server restriction, got %v", rewards[1].Servers)
	}

	all, _ := repo.ListRewards(ctx)
	if len(all) != 5 {
		t.Errorf("expected 5 rewards, got %d", len(all))
	}
}

func TestCreateReward_RollsBackOnBadLink(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateReward(ctx, models.Reward{Name: "Broken", Chances: 1, Sites: []int{999}}); err == nil {
		t.Fatal("expected foreign key error")
	}

	all, _ := repo.ListRewards(ctx)
	if len(all) != 0 {
		t.Errorf("expected rollback, found %d rewards", len(all))
	}
}

// ==================== Vote Tests ====================

func TestLastVoteSince(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.CreateVote(ctx, f.siteID, f.userID, nil, base)
	repo.CreateVote(ctx, f.siteID, f.userID, nil, base.Add(30*time.Minute))

	last, err := repo.LastVoteSince(ctx, f.siteID, f.userID, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LastVoteSince failed: %v", err)
	}
	if last == nil || !last.Equal(base.Add(30*time.Minute)) {
		t.Errorf("expected latest vote, got %v", last)
	}

	last, _ = repo.LastVoteSince(ctx, f.siteID, f.userID, base.Add(30*time.Minute))
	if last != nil {
		t.Errorf("expected no vote strictly after cutoff, got %v", last)
	}

	last, _ = repo.LastVoteSince(ctx, f.siteID+1, f.userID, time.Time{})
	if last != nil {
		t.Errorf("expected no vote on another site, got %v", last)
	}
}

func TestLastVoteSince_NonUTCCutoff(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)

	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	vote := time.Date(2024, 7, 1, 0, 30, 0, 0, time.UTC) // 01:30 BST
	repo.CreateVote(ctx, f.siteID, f.userID, nil, vote)

	cutoff := time.Date(2024, 7, 1, 1, 0, 0, 0, london) // 00:00 UTC
	last, _ := repo.LastVoteSince(ctx, f.siteID, f.userID, cutoff)
	if last == nil {
		t.Error("expected cutoff to be compared in UTC")
	}
}

func TestCreateVote_RewardNullable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)
	rewardID, _ := repo.CreateReward(ctx, models.Reward{Name: "Gem", Chances: 1, Sites: []int{f.siteID}, Enabled: true})
	rid := int(rewardID)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.CreateVote(ctx, f.siteID, f.userID, nil, at)
	repo.CreateVote(ctx, f.siteID, f.userID, &rid, at.Add(time.Minute))

	votes, err := repo.ListVotes(ctx, 10)
	if err != nil {
		t.Fatalf("ListVotes failed: %v", err)
	}
	if len(votes) != 2 {
		t.Fatalf("expected 2 votes, got %d", len(votes))
	}
	if votes[0].RewardID == nil || *votes[0].RewardID != rid || votes[0].RewardName != "Gem" {
		t.Errorf("expected newest vote with reward, got %+v", votes[0])
	}
	if votes[1].RewardID != nil {
		t.Errorf("expected vote without reward, got %+v", votes[1])
	}
	if votes[0].SiteName != "Example" || votes[0].UserName != "Steve" {
		t.Errorf("expected joined names, got %+v", votes[0])
	}
}

func TestLeaderboard(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)
	alexID, _ := repo.CreateUser(ctx, "Alex", "")
	bobID, _ := repo.CreateUser(ctx, "Bob", "")
	alex, bob := int(alexID), int(bobID)

	month := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	lastMonth := month.Add(-48 * time.Hour)

	for i := 0; i < 3; i++ {
		repo.CreateVote(ctx, f.siteID, alex, nil, month.Add(time.Duration(i)*time.Hour))
	}
	repo.CreateVote(ctx, f.siteID, f.userID, nil, month.Add(time.Hour))
	repo.CreateVote(ctx, f.siteID, f.userID, nil, month.Add(2*time.Hour))
	for i := 0; i < 5; i++ {
		repo.CreateVote(ctx, f.siteID, bob, nil, lastMonth.Add(time.Duration(i)*time.Hour))
	}

	top, err := repo.TopVoters(ctx, month, 10)
	if err != nil {
		t.Fatalf("TopVoters failed: %v", err)
	}
	if len(top) != 2 || top[0].Name != "Alex" || top[0].Votes != 3 || top[1].Name != "Steve" {
		t.Errorf("unexpected leaderboard: %+v", top)
	}

	if n, _ := repo.CountUserVotes(ctx, bob, time.Time{}); n != 5 {
		t.Errorf("expected 5 total votes for Bob, got %d", n)
	}
	if n, _ := repo.CountUserVotes(ctx, bob, month); n != 0 {
		t.Errorf("expected 0 monthly votes for Bob, got %d", n)
	}

	tests := []struct {
		user     int
		expected int
	}{
		{alex, 1},
		{f.userID, 2},
		{bob, 0},
	}
	for _, tt := range tests {
		pos, err := repo.UserPosition(ctx, tt.user, month)
		if err != nil {
			t.Fatalf("UserPosition failed: %v", err)
		}
		if pos != tt.expected {
			t.Errorf("user %d: expected position %d, got %d", tt.user, tt.expected, pos)
		}
	}
}

// ==================== Command Tests ====================

func TestCommands_Queue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)
	voteID, _ := repo.CreateVote(ctx, f.siteID, f.userID, nil, time.Now())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	err := repo.EnqueueCommands(ctx, []models.RewardCommand{
		{ID: "a", VoteID: int(voteID), ServerID: f.serverID, Command: "say one", CreatedAt: now},
		{ID: "b", VoteID: int(voteID), ServerID: f.serverID, Command: "say two", CreatedAt: now.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("EnqueueCommands failed: %v", err)
	}

	pending, err := repo.PendingCommands(ctx, f.serverID)
	if err != nil {
		t.Fatalf("PendingCommands failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "a" || !pending[0].CreatedAt.Equal(now) {
		t.Fatalf("unexpected pending commands: %+v", pending)
	}

	if err := repo.MarkCommandDispatched(ctx, "a", now); err != nil {
		t.Fatalf("MarkCommandDispatched failed: %v", err)
	}
	if err := repo.MarkCommandDispatched(ctx, "a", now); err != ErrNotFound {
		t.Errorf("expected ErrNotFound on second dispatch, got %v", err)
	}

	pending, _ = repo.PendingCommands(ctx, f.serverID)
	if len(pending) != 1 || pending[0].ID != "b" {
		t.Errorf("expected only b pending, got %+v", pending)
	}
}

func TestEnqueueCommands_RollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	f := seed(t, repo)
	voteID, _ := repo.CreateVote(ctx, f.siteID, f.userID, nil, time.Now())

	err := repo.EnqueueCommands(ctx, []models.RewardCommand{
		{ID: "a", VoteID: int(voteID), ServerID: f.serverID, Command: "ok", CreatedAt: time.Now()},
		{ID: "a", VoteID: int(voteID), ServerID: f.serverID, Command: "dup", CreatedAt: time.Now()},
	})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}

	pending, _ := repo.PendingCommands(ctx, f.serverID)
	if len(pending) != 0 {
		t.Errorf("expected rollback, got %d commands", len(pending))
	}
}

// ==================== Settings Tests ====================

func TestSettings(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if v, err := repo.GetSetting(ctx, "missing"); err != nil || v != "" {
		t.Errorf("expected empty value, got %q, %v", v, err)
	}

	repo.SetSetting(ctx, "server_token_secret", "one")
	repo.SetSetting(ctx, "server_token_secret", "two")

	if v, _ := repo.GetSetting(ctx, "server_token_secret"); v != "two" {
		t.Errorf("expected upsert, got %q", v)
	}
}

func TestPingAndClose(t *testing.T) {
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if repo.DB() == nil {
		t.Error("expected DB handle")
	}
	if err := repo.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := repo.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail after Close")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil) {
		t.Error("expected false for nil")
	}
	if IsUniqueViolation(stderrors.New("boom")) {
		t.Error("expected false for unrelated error")
	}
}
