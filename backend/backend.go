/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package backend decides which links between players are valid, and when a
// chain has reached the day's target.
package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Seednode/cnxns/api"
	"github.com/Seednode/cnxns/store"
	"github.com/patrickmn/go-cache"
)

const (
	searchLimit = 10
	dateLayout  = "2006-01-02"

	msgEmptyChain       = "Empty player chain"
	msgMissingPlayer    = "Missing player to add"
	msgAlreadyInChain   = "Player already in chain"
	msgNeverPlayed      = "Players have never played together"
	msgCheckFailed      = "Unable to check player connection"
	msgCompletionFailed = "Unable to check game completion"
	msgChallengeFailed  = "Unable to get challenge players"
	msgCannotRemove     = "Cannot remove starting player"
)

var ErrMissingPlayer = errors.New("missing player id")

type Options struct {
	// MinMatches is the number of appearances a player needs to exceed to be
	// picked for a daily challenge.
	MinMatches int
	CacheTTL   time.Duration
	Now        func() time.Time
	Logf       func(format string, args ...any)
}

// Backend answers the game's API calls from a store.Repository.
type Backend struct {
	repo       store.Repository
	cache      *cache.Cache
	minMatches int
	now        func() time.Time
	logf       func(format string, args ...any)
}

func New(repo store.Repository, opts Options) *Backend {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	return &Backend{
		repo:       repo,
		cache:      cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		minMatches: opts.MinMatches,
		now:        opts.Now,
		logf:       opts.Logf,
	}
}

// Ping verifies the store is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.repo.Ping(ctx)
}

func toTeam(t store.Team) api.Team {
	return api.Team{
		ID:           t.ID,
		Name:         t.Name,
		Colour1:      t.Colour1,
		Colour2:      t.Colour2,
		ColorCircles: ColorCircles(t.Colour1, t.Colour2),
	}
}

// Search returns up to ten players whose name contains query.
func (b *Backend) Search(ctx context.Context, query string) ([]api.Player, error) {
	query = strings.ToLower(strings.TrimSpace(query))

	key := "search:" + query
	if x, found := b.cache.Get(key); found {
		return x.([]api.Player), nil
	}

	players, err := b.repo.SearchPlayers(ctx, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search players: %w", err)
	}

	result := make([]api.Player, 0, len(players))
	for _, p := range players {
		result = append(result, api.Player{ID: p.ID, Name: p.Name})
	}

	b.cache.Set(key, result, cache.DefaultExpiration)

	return result, nil
}

// Challenge returns today's pair, selecting one if none exists yet.
func (b *Backend) Challenge(ctx context.Context) (*api.Challenge, error) {
	today := b.now()
	date := today.Format(dateLayout)

	key := "challenge:" + date
	if x, found := b.cache.Get(key); found {
		c := x.(api.Challenge)
		return &c, nil
	}

	c, err := b.repo.Challenge(ctx, today)
	if errors.Is(err, store.ErrNotFound) {
		c, err = b.repo.CreateChallenge(ctx, today, b.minMatches)
		if err == nil {
			b.logf("DAILY: Selected %s and %s for %s", c.Player1.ID, c.Player2.ID, date)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("challenge for %s: %w", date, err)
	}

	challenge := api.Challenge{
		Date:    date,
		Player1: api.Player{ID: c.Player1.ID, Name: c.Player1.Name},
		Player2: api.Player{ID: c.Player2.ID, Name: c.Player2.Name},
	}

	b.cache.Set(key, challenge, cache.DefaultExpiration)

	return &challenge, nil
}

// CheckConnection validates adding req.NewPlayerID to the end of req.Chain.
// Rejections are reported in the response rather than as errors.
func (b *Backend) CheckConnection(ctx context.Context, req api.ConnectionRequest) (*api.ConnectionResponse, error) {
	if len(req.Chain) == 0 {
		b.logf("ERROR: Empty player chain in connection request")
		return api.Failure(msgEmptyChain), nil
	}
	if req.NewPlayerID == "" {
		return api.Failure(msgMissingPlayer), nil
	}
	if slices.Contains(req.Chain, req.NewPlayerID) {
		return api.Failure(msgAlreadyInChain), nil
	}

	last := req.Chain[len(req.Chain)-1]

	conn, err := b.repo.Connection(ctx, last, req.NewPlayerID)
	if err != nil {
		b.logf("ERROR: Checking connection between %s and %s: %v", last, req.NewPlayerID, err)
		return api.Failure(msgCheckFailed), nil
	}
	if conn == nil {
		return api.Failure(msgNeverPlayed), nil
	}

	b.logf("CHECK: %d shared matches between %s and %s for %s", conn.SharedMatches, last, req.NewPlayerID, conn.Team.ID)

	challenge, err := b.Challenge(ctx)
	if err != nil {
		b.logf("ERROR: %v", err)
		return api.Failure(msgChallengeFailed), nil
	}

	final, err := b.repo.Connection(ctx, req.NewPlayerID, challenge.Player2.ID)
	if err != nil {
		b.logf("ERROR: Checking completion for %s: %v", req.NewPlayerID, err)
		return api.Failure(msgCompletionFailed), nil
	}

	updated := append(slices.Clone(req.Chain), req.NewPlayerID)
	team := toTeam(conn.Team)

	resp := &api.ConnectionResponse{
		Success:       true,
		SharedMatches: conn.SharedMatches,
		Team:          &team,
		UpdatedChain:  updated,
		IsComplete:    final != nil,
		ChainLength:   len(updated),
	}

	if final != nil {
		resp.FinalConnection = &api.FinalConnection{
			SharedMatches: final.SharedMatches,
			Team:          toTeam(final.Team),
		}
	}

	return resp, nil
}

// RemovePlayer drops the last entry of chain. The starting player can never
// be removed.
func (b *Backend) RemovePlayer(ctx context.Context, chain []string) (*api.ConnectionResponse, error) {
	if len(chain) <= 1 {
		return api.Failure(msgCannotRemove), nil
	}

	updated := slices.Clone(chain[:len(chain)-1])

	complete := false
	if challenge, err := b.Challenge(ctx); err == nil {
		conn, err := b.repo.Connection(ctx, updated[len(updated)-1], challenge.Player2.ID)
		complete = err == nil && conn != nil
	}

	return &api.ConnectionResponse{
		Success:      true,
		UpdatedChain: updated,
		IsComplete:   complete,
		ChainLength:  len(updated),
	}, nil
}

// Career lists the teams a player appeared for, oldest first.
func (b *Backend) Career(ctx context.Context, playerID string) ([]api.CareerEntry, error) {
	if playerID == "" {
		return nil, ErrMissingPlayer
	}

	spans, err := b.repo.Career(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("career for %s: %w", playerID, err)
	}

	career := make([]api.CareerEntry, 0, len(spans))
	for _, s := range spans {
		career = append(career, api.CareerEntry{
			Team:    s.Team,
			Seasons: s.Seasons,
			Matches: s.Matches,
		})
	}

	return career, nil
}
