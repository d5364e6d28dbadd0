package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/abrezinsky/voterewards/internal/errors"
	"github.com/abrezinsky/voterewards/internal/models"
)

// timeLayout stores instants as sortable UTC text
const timeLayout = "2006-01-02 15:04:05.000"

// Repository provides data access methods
type Repository struct {
	db *sql.DB
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, err
	}

	return repo, nil
}

// DB returns the underlying database connection (for transactions)
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS servers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE COLLATE NOCASE,
			game_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sites (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			vote_delay INTEGER NOT NULL DEFAULT 0,
			verification_key TEXT,
			has_verification BOOLEAN DEFAULT 1,
			is_enabled BOOLEAN DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS rewards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			chances REAL NOT NULL DEFAULT 0,
			commands TEXT,
			is_enabled BOOLEAN DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS reward_sites (
			reward_id INTEGER NOT NULL,
			site_id INTEGER NOT NULL,
			PRIMARY KEY (reward_id, site_id),
			FOREIGN KEY (reward_id) REFERENCES rewards(id) ON DELETE CASCADE,
			FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reward_servers (
			reward_id INTEGER NOT NULL,
			server_id INTEGER NOT NULL,
			PRIMARY KEY (reward_id, server_id),
			FOREIGN KEY (reward_id) REFERENCES rewards(id) ON DELETE CASCADE,
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS votes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			site_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			reward_id INTEGER,
			created_at TEXT NOT NULL,
			FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (reward_id) REFERENCES rewards(id) ON DELETE SET NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reward_commands (
			id TEXT PRIMARY KEY,
			vote_id INTEGER NOT NULL,
			server_id INTEGER NOT NULL,
			command TEXT NOT NULL,
			created_at TEXT NOT NULL,
			dispatched_at TEXT,
			FOREIGN KEY (vote_id) REFERENCES votes(id) ON DELETE CASCADE,
			FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_site_user ON votes(site_id, user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_created ON votes(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_user ON votes(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_pending ON reward_commands(server_id, dispatched_at)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

// ==================== Server Methods ====================

// ListServers returns all servers ordered by id
func (r *Repository) ListServers(ctx context.Context) ([]models.Server, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM servers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		var s models.Server
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// CreateServer creates a new server
func (r *Repository) CreateServer(ctx context.Context, name string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `INSERT INTO servers (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ==================== User Methods ====================

// GetUserByName retrieves a user by name (case-insensitive)
func (r *Repository) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var u models.User
	var gameID sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT id, name, game_id FROM users WHERE name = ?`, name).
		Scan(&u.ID, &u.Name, &gameID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.GameID = gameID.String
	return &u, nil
}

// CreateUser creates a new user
func (r *Repository) CreateUser(ctx context.Context, name, gameID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `INSERT INTO users (name, game_id) VALUES (?, ?)`, name, gameID)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ==================== Site Methods ====================

// ListSites returns sites ordered by id, optionally only the enabled ones
func (r *Repository) ListSites(ctx context.Context, enabledOnly bool) ([]models.Site, error) {
	query := `SELECT id, name, url, vote_delay, verification_key, has_verification, is_enabled FROM sites`
	if enabledOnly {
		query += ` WHERE is_enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sites := []models.Site{}
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}

// GetSite retrieves a site by id
func (r *Repository) GetSite(ctx context.Context, id int) (*models.Site, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, url, vote_delay, verification_key, has_verification, is_enabled
		FROM sites WHERE id = ?
	`, id)
	site, err := scanSite(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("site not found")
	}
	return site, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(s scanner) (*models.Site, error) {
	var site models.Site
	var key sql.NullString
	if err := s.Scan(&site.ID, &site.Name, &site.URL, &site.VoteDelay, &key,
		&site.HasVerification, &site.Enabled); err != nil {
		return nil, err
	}
	site.VerificationKey = key.String
	return &site, nil
}

// CreateSite creates a new site
func (r *Repository) CreateSite(ctx context.Context, site models.Site) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sites (name, url, vote_delay, verification_key, has_verification, is_enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`, site.Name, site.URL, site.VoteDelay, nullString(site.VerificationKey), site.HasVerification, site.Enabled)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateSite updates an existing site
func (r *Repository) UpdateSite(ctx context.Context, site models.Site) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sites SET name = ?, url = ?, vote_delay = ?, verification_key = ?, has_verification = ?, is_enabled = ?
		WHERE id = ?
	`, site.Name, site.URL, site.VoteDelay, nullString(site.VerificationKey), site.HasVerification, site.Enabled, site.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ==================== Reward Methods ====================

// ListRewards returns every reward with its sites and servers
func (r *Repository) ListRewards(ctx context.Context) ([]models.Reward, error) {
	return r.queryRewards(ctx, `
		SELECT id, name, chances, commands, is_enabled FROM rewards
		ORDER BY chances DESC, id ASC
	`)
}

// ListSiteRewards returns the enabled rewards of a site, ordered by
// descending chances then ascending id so weighted draws are reproducible
func (r *Repository) ListSiteRewards(ctx context.Context, siteID int) ([]models.Reward, error) {
	return r.queryRewards(ctx, `
		SELECT rw.id, rw.name, rw.chances, rw.commands, rw.is_enabled
		FROM rewards rw
		JOIN reward_sites rs ON rs.reward_id = rw.id
		WHERE rs.site_id = ? AND rw.is_enabled = 1
		ORDER BY rw.chances DESC, rw.id ASC
	`, siteID)
}

func (r *Repository) queryRewards(ctx context.Context, query string, args ...any) ([]models.Reward, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	rewards := []models.Reward{}
	for rows.Next() {
		var rw models.Reward
		var commandsJSON sql.NullString
		if err := rows.Scan(&rw.ID, &rw.Name, &rw.Chances, &commandsJSON, &rw.Enabled); err != nil {
			rows.Close()
			return nil, err
		}
		if commandsJSON.Valid && commandsJSON.String != "" {
			if err := json.Unmarshal([]byte(commandsJSON.String), &rw.Commands); err != nil {
				rows.Close()
				return nil, err
			}
		}
		rewards = append(rewards, rw)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Links are loaded after the cursor is closed; the pool holds a single connection.
	for i := range rewards {
		if rewards[i].Servers, err = r.linkedIDs(ctx, `SELECT server_id FROM reward_servers WHERE reward_id = ? ORDER BY server_id`, rewards[i].ID); err != nil {
			return nil, err
		}
		if rewards[i].Sites, err = r.linkedIDs(ctx, `SELECT site_id FROM reward_sites WHERE reward_id = ? ORDER BY site_id`, rewards[i].ID); err != nil {
			return nil, err
		}
	}
	return rewards, nil
}

func (r *Repository) linkedIDs(ctx context.Context, query string, id int) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var linked int
		if err := rows.Scan(&linked); err != nil {
			return nil, err
		}
		ids = append(ids, linked)
	}
	return ids, rows.Err()
}

// CreateReward creates a reward and links it to its sites and servers
func (r *Repository) CreateReward(ctx context.Context, reward models.Reward) (int64, error) {
	commandsJSON, err := json.Marshal(reward.Commands)
	if err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO rewards (name, chances, commands, is_enabled) VALUES (?, ?, ?, ?)
	`, reward.Name, reward.Chances, string(commandsJSON), reward.Enabled)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, siteID := range reward.Sites {
		if _, err := tx.ExecContext(ctx, `INSERT INTO reward_sites (reward_id, site_id) VALUES (?, ?)`, id, siteID); err != nil {
			return 0, err
		}
	}
	for _, serverID := range reward.Servers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO reward_servers (reward_id, server_id) VALUES (?, ?)`, id, serverID); err != nil {
			return 0, err
		}
	}

	return id, tx.Commit()
}

// ==================== Vote Methods ====================

// CreateVote records an admitted vote
func (r *Repository) CreateVote(ctx context.Context, siteID, userID int, rewardID *int, at time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO votes (site_id, user_id, reward_id, created_at) VALUES (?, ?, ?, ?)
	`, siteID, userID, rewardID, formatTime(at))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// LastVoteSince returns the latest vote time of a user on a site strictly after since, if any
func (r *Repository) LastVoteSince(ctx context.Context, siteID, userID int, since time.Time) (*time.Time, error) {
	var raw sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(created_at) FROM votes
		WHERE site_id = ? AND user_id = ? AND created_at > ?
	`, siteID, userID, formatTime(since)).Scan(&raw)
	if err != nil {
		return nil, err
	}
	if !raw.Valid {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountUserVotes returns the number of votes of a user since the given instant.
// A zero since counts every vote.
func (r *Repository) CountUserVotes(ctx context.Context, userID int, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM votes WHERE user_id = ? AND created_at >= ?
	`, userID, sinceArg(since)).Scan(&count)
	return count, err
}

// UserPosition returns the user's 1-based leaderboard rank since the given instant,
// or 0 when the user has no vote in that period
func (r *Repository) UserPosition(ctx context.Context, userID int, since time.Time) (int, error) {
	own, err := r.CountUserVotes(ctx, userID, since)
	if err != nil || own == 0 {
		return 0, err
	}

	var ahead int
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT user_id FROM votes WHERE created_at >= ?
			GROUP BY user_id HAVING COUNT(*) > ?
		)
	`, sinceArg(since), own).Scan(&ahead)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// TopVoters returns the users with the most votes since the given instant
func (r *Repository) TopVoters(ctx context.Context, since time.Time, limit int) ([]models.TopVoter, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.name, COUNT(v.id) AS total
		FROM votes v
		JOIN users u ON u.id = v.user_id
		WHERE v.created_at >= ?
		GROUP BY u.id, u.name
		ORDER BY total DESC, u.name ASC
		LIMIT ?
	`, sinceArg(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	voters := []models.TopVoter{}
	for rows.Next() {
		var tv models.TopVoter
		if err := rows.Scan(&tv.UserID, &tv.Name, &tv.Votes); err != nil {
			return nil, err
		}
		voters = append(voters, tv)
	}
	return voters, rows.Err()
}

func sinceArg(since time.Time) string {
	if since.IsZero() {
		return ""
	}
	return formatTime(since)
}

// VoteLogRow is a vote joined with its site, user and reward names
type VoteLogRow struct {
	ID         int       `json:"id"`
	SiteID     int       `json:"site_id"`
	SiteName   string    `json:"site_name"`
	UserID     int       `json:"user_id"`
	UserName   string    `json:"user_name"`
	RewardID   *int      `json:"reward_id"`
	RewardName string    `json:"reward_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListVotes returns the most recent votes first
func (r *Repository) ListVotes(ctx context.Context, limit int) ([]VoteLogRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.site_id, s.name, v.user_id, u.name, v.reward_id, rw.name, v.created_at
		FROM votes v
		JOIN sites s ON s.id = v.site_id
		JOIN users u ON u.id = v.user_id
		LEFT JOIN rewards rw ON rw.id = v.reward_id
		ORDER BY v.created_at DESC, v.id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := []VoteLogRow{}
	for rows.Next() {
		var row VoteLogRow
		var rewardID sql.NullInt64
		var rewardName sql.NullString
		var createdAt string
		if err := rows.Scan(&row.ID, &row.SiteID, &row.SiteName, &row.UserID, &row.UserName,
			&rewardID, &rewardName, &createdAt); err != nil {
			return nil, err
		}
		if rewardID.Valid {
			id := int(rewardID.Int64)
			row.RewardID = &id
			row.RewardName = rewardName.String
		}
		if row.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		votes = append(votes, row)
	}
	return votes, rows.Err()
}

// ==================== Reward Command Methods ====================

// EnqueueCommands stores reward commands waiting for their game servers
func (r *Repository) EnqueueCommands(ctx context.Context, commands []models.RewardCommand) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range commands {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reward_commands (id, vote_id, server_id, command, created_at) VALUES (?, ?, ?, ?, ?)
		`, c.ID, c.VoteID, c.ServerID, c.Command, formatTime(c.CreatedAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PendingCommands returns the undispatched commands of a server, oldest first
func (r *Repository) PendingCommands(ctx context.Context, serverID int) ([]models.RewardCommand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, vote_id, server_id, command, created_at FROM reward_commands
		WHERE server_id = ? AND dispatched_at IS NULL
		ORDER BY created_at, rowid
	`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commands := []models.RewardCommand{}
	for rows.Next() {
		var c models.RewardCommand
		var createdAt string
		if err := rows.Scan(&c.ID, &c.VoteID, &c.ServerID, &c.Command, &createdAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		commands = append(commands, c)
	}
	return commands, rows.Err()
}

// MarkCommandDispatched flags a pending command as delivered
func (r *Repository) MarkCommandDispatched(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reward_commands SET dispatched_at = ? WHERE id = ? AND dispatched_at IS NULL
	`, formatTime(at), id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ==================== Settings Methods ====================

// GetSetting retrieves a setting value, or "" when unset
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetSetting stores a setting value
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// IsUniqueViolation reports whether err comes from a UNIQUE constraint
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
