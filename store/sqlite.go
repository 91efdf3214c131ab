/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var ErrNotEnoughPlayers = errors.New("not enough eligible players for a new challenge")

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS players (
		player_id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_players_name ON players(full_name);

	CREATE TABLE IF NOT EXISTS teams (
		team_id TEXT PRIMARY KEY,
		team_name TEXT NOT NULL,
		colour1 TEXT NOT NULL DEFAULT '',
		colour2 TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS matches (
		match_id TEXT PRIMARY KEY,
		season_id TEXT NOT NULL,
		league_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS appearances (
		match_id TEXT NOT NULL,
		team_id TEXT NOT NULL,
		player_id TEXT NOT NULL,
		minutes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, player_id)
	);
	CREATE INDEX IF NOT EXISTS idx_appearances_player ON appearances(player_id);

	CREATE TABLE IF NOT EXISTS daily_selection (
		date TEXT PRIMARY KEY,
		player1_id TEXT NOT NULL REFERENCES players(player_id),
		player2_id TEXT NOT NULL REFERENCES players(player_id),
		optimal_distance INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		CHECK (player1_id != player2_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(query)) + "%"
}

// SearchPlayers returns players whose name contains query, ignoring case.
func (s *SQLiteStore) SearchPlayers(ctx context.Context, query string, limit int) ([]Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT player_id, full_name
		FROM players
		WHERE LOWER(full_name) LIKE ? ESCAPE '\'
		ORDER BY full_name, player_id
		LIMIT ?`,
		likePattern(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search players: %w", err)
	}
	defer rows.Close()

	players := []Player{}
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		players = append(players, p)
	}

	return players, rows.Err()
}

// Player returns a single player.
func (s *SQLiteStore) Player(ctx context.Context, id string) (*Player, error) {
	var p Player

	err := s.db.QueryRowContext(ctx, `SELECT player_id, full_name FROM players WHERE player_id = ?`, id).
		Scan(&p.ID, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan player row: %w", err)
	}

	return &p, nil
}

// Connection counts the matches both players featured in for the same team,
// and returns the team they shared most often.
func (s *SQLiteStore) Connection(ctx context.Context, player1, player2 string) (*Connection, error) {
	if player1 == "" || player2 == "" {
		return nil, errors.New("player ids cannot be empty")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) AS shared_matches, t.team_id, t.team_name, t.colour1, t.colour2
		FROM (
			SELECT match_id, team_id
			FROM appearances
			WHERE minutes > 0
			AND player_id IN (?, ?)
			GROUP BY match_id, team_id
			HAVING COUNT(DISTINCT player_id) = 2
		) shared
		JOIN teams t ON t.team_id = shared.team_id
		GROUP BY t.team_id, t.team_name, t.colour1, t.colour2
		ORDER BY shared_matches DESC, t.team_id
		LIMIT 1`,
		player1, player2,
	)

	c := Connection{
		Player1ID: player1,
		Player2ID: player2,
	}

	err := row.Scan(&c.SharedMatches, &c.Team.ID, &c.Team.Name, &c.Team.Colour1, &c.Team.Colour2)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan connection row: %w", err)
	}

	return &c, nil
}

// Career summarises a player's appearances per team.
func (s *SQLiteStore) Career(ctx context.Context, playerID string) ([]CareerSpan, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH player_seasons AS (
			SELECT m.season_id, t.team_name, COUNT(DISTINCT a.match_id) AS match_count
			FROM appearances a
			JOIN matches m ON m.match_id = a.match_id
			JOIN teams t ON t.team_id = a.team_id
			WHERE a.player_id = ?
			GROUP BY m.season_id, t.team_name
		), team_summary AS (
			SELECT team_name,
				MIN(season_id) AS start_season,
				MAX(season_id) AS end_season,
				SUM(match_count) AS total_matches
			FROM player_seasons
			GROUP BY team_name
		)
		SELECT team_name,
			substr(start_season, 1, 4) || '-' || substr(end_season, -4),
			total_matches
		FROM team_summary
		ORDER BY start_season, team_name`,
		playerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query career: %w", err)
	}
	defer rows.Close()

	career := []CareerSpan{}
	for rows.Next() {
		var c CareerSpan
		if err := rows.Scan(&c.Team, &c.Seasons, &c.Matches); err != nil {
			return nil, fmt.Errorf("scan career row: %w", err)
		}
		career = append(career, c)
	}

	return career, rows.Err()
}

// Challenge returns the challenge stored for date.
func (s *SQLiteStore) Challenge(ctx context.Context, date time.Time) (*Challenge, error) {
	return challengeFor(ctx, s.db, date)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func challengeFor(ctx context.Context, q queryer, date time.Time) (*Challenge, error) {
	row := q.QueryRowContext(ctx, `
		SELECT p1.player_id, p1.full_name, p2.player_id, p2.full_name
		FROM daily_selection d
		JOIN players p1 ON p1.player_id = d.player1_id
		JOIN players p2 ON p2.player_id = d.player2_id
		WHERE d.date = ?`,
		date.Format(dateLayout),
	)

	c := Challenge{Date: truncateDay(date)}

	err := row.Scan(&c.Player1.ID, &c.Player1.Name, &c.Player2.ID, &c.Player2.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan challenge row: %w", err)
	}

	return &c, nil
}

// CreateChallenge selects two random eligible players for date. If a
// challenge already exists for date it is returned unchanged.
func (s *SQLiteStore) CreateChallenge(ctx context.Context, date time.Time, minMatches int) (*Challenge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := challengeFor(ctx, tx, date)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		WITH used_players AS (
			SELECT player1_id AS player_id FROM daily_selection
			UNION
			SELECT player2_id AS player_id FROM daily_selection
		), possible_players AS (
			SELECT player_id
			FROM appearances
			WHERE minutes > 0
			AND player_id NOT IN (SELECT player_id FROM used_players)
			GROUP BY player_id
			HAVING COUNT(DISTINCT match_id) > ?
		)
		SELECT p.player_id, p.full_name
		FROM possible_players pp
		JOIN players p ON p.player_id = pp.player_id
		ORDER BY RANDOM()
		LIMIT 2`,
		minMatches,
	)
	if err != nil {
		return nil, fmt.Errorf("select challenge players: %w", err)
	}

	var picked []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		picked = append(picked, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select challenge players: %w", err)
	}

	if len(picked) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_selection (date, player1_id, player2_id, created_at)
		VALUES (?, ?, ?, ?)`,
		date.Format(dateLayout), picked[0].ID, picked[1].ID, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert challenge: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit challenge: %w", err)
	}

	return &Challenge{
		Date:    truncateDay(date),
		Player1: picked[0],
		Player2: picked[1],
	}, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) importRows(ctx context.Context, query string, n int, args func(i int) []any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare import: %w", err)
		}
		defer stmt.Close()

		for i := range n {
			if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
				return fmt.Errorf("import row %d: %w", i+1, err)
			}
		}

		return nil
	})
}

// ImportPlayers upserts players.
func (s *SQLiteStore) ImportPlayers(ctx context.Context, players []Player) error {
	return s.importRows(ctx, `
		INSERT INTO players (player_id, full_name) VALUES (?, ?)
		ON CONFLICT(player_id) DO UPDATE SET full_name = excluded.full_name`,
		len(players), func(i int) []any {
			return []any{players[i].ID, players[i].Name}
		})
}

// ImportTeams upserts teams and their colours.
func (s *SQLiteStore) ImportTeams(ctx context.Context, teams []Team) error {
	return s.importRows(ctx, `
		INSERT INTO teams (team_id, team_name, colour1, colour2) VALUES (?, ?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET
			team_name = excluded.team_name,
			colour1 = excluded.colour1,
			colour2 = excluded.colour2`,
		len(teams), func(i int) []any {
			t := teams[i]
			return []any{t.ID, t.Name, t.Colour1, t.Colour2}
		})
}

// ImportMatches upserts matches.
func (s *SQLiteStore) ImportMatches(ctx context.Context, matches []Match) error {
	return s.importRows(ctx, `
		INSERT INTO matches (match_id, season_id, league_id) VALUES (?, ?, ?)
		ON CONFLICT(match_id) DO UPDATE SET
			season_id = excluded.season_id,
			league_id = excluded.league_id`,
		len(matches), func(i int) []any {
			m := matches[i]
			return []any{m.ID, m.SeasonID, m.LeagueID}
		})
}

// ImportAppearances upserts appearances.
func (s *SQLiteStore) ImportAppearances(ctx context.Context, appearances []Appearance) error {
	return s.importRows(ctx, `
		INSERT INTO appearances (match_id, team_id, player_id, minutes) VALUES (?, ?, ?, ?)
		ON CONFLICT(match_id, player_id) DO UPDATE SET
			team_id = excluded.team_id,
			minutes = excluded.minutes`,
		len(appearances), func(i int) []any {
			a := appearances[i]
			return []any{a.MatchID, a.TeamID, a.PlayerID, a.Minutes}
		})
}
