/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store persists players, teams, match appearances and the daily
// challenge.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Player struct {
	ID   string
	Name string
}

type Team struct {
	ID      string
	Name    string
	Colour1 string
	Colour2 string
}

type Match struct {
	ID       string
	SeasonID string
	LeagueID string
}

// Appearance records a player featuring for a team in a match.
type Appearance struct {
	MatchID  string
	TeamID   string
	PlayerID string
	Minutes  int
}

// Connection is the team two players most often played for together.
type Connection struct {
	Player1ID     string
	Player2ID     string
	SharedMatches int
	Team          Team
}

type CareerSpan struct {
	Team    string
	Seasons string
	Matches int
}

// Challenge is the pair of players selected for a day.
type Challenge struct {
	Date    time.Time
	Player1 Player
	Player2 Player
}

// Repository defines the data the game server needs.
type Repository interface {
	// SearchPlayers returns up to limit players whose name contains query,
	// ignoring case.
	SearchPlayers(ctx context.Context, query string, limit int) ([]Player, error)

	// Player returns a single player, or ErrNotFound.
	Player(ctx context.Context, id string) (*Player, error)

	// Connection returns the strongest shared team between two players, or
	// nil if they never played together.
	Connection(ctx context.Context, player1, player2 string) (*Connection, error)

	// Career summarises the teams a player appeared for, oldest first.
	Career(ctx context.Context, playerID string) ([]CareerSpan, error)

	// Challenge returns the challenge for date, or ErrNotFound.
	Challenge(ctx context.Context, date time.Time) (*Challenge, error)

	// CreateChallenge picks two players never used before who each have more
	// than minMatches appearances and stores them as the challenge for date.
	CreateChallenge(ctx context.Context, date time.Time, minMatches int) (*Challenge, error)

	ImportPlayers(ctx context.Context, players []Player) error
	ImportTeams(ctx context.Context, teams []Team) error
	ImportMatches(ctx context.Context, matches []Match) error
	ImportAppearances(ctx context.Context, appearances []Appearance) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	Close() error
}
