/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind names a CSV file layout accepted by Import.
type Kind string

const (
	KindPlayers     Kind = "players"
	KindTeams       Kind = "teams"
	KindMatches     Kind = "matches"
	KindAppearances Kind = "appearances"
)

// Kinds lists the layouts in the order they should be imported.
var Kinds = []Kind{KindPlayers, KindTeams, KindMatches, KindAppearances}

// columns are the header names of each layout; a first row that matches
// them is skipped.
var columns = map[Kind][]string{
	KindPlayers:     {"player_id", "full_name"},
	KindTeams:       {"team_id", "team_name", "colour1", "colour2"},
	KindMatches:     {"match_id", "season_id", "league_id"},
	KindAppearances: {"match_id", "team_id", "player_id", "minutes"},
}

var ErrUnknownKind = errors.New("unknown import kind")

// Import reads CSV records of kind from r into repo, returning how many rows
// were written. All rows of one call are written in a single transaction.
func Import(ctx context.Context, repo Repository, kind Kind, r io.Reader) (int, error) {
	want, ok := columns[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	records, err := readRecords(r, want)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", kind, err)
	}

	switch kind {
	case KindPlayers:
		players := make([]Player, 0, len(records))
		for _, rec := range records {
			players = append(players, Player{ID: rec[0], Name: rec[1]})
		}
		err = repo.ImportPlayers(ctx, players)

	case KindTeams:
		teams := make([]Team, 0, len(records))
		for _, rec := range records {
			teams = append(teams, Team{
				ID:      rec[0],
				Name:    rec[1],
				Colour1: strings.ToLower(rec[2]),
				Colour2: strings.ToLower(rec[3]),
			})
		}
		err = repo.ImportTeams(ctx, teams)

	case KindMatches:
		matches := make([]Match, 0, len(records))
		for _, rec := range records {
			matches = append(matches, Match{ID: rec[0], SeasonID: rec[1], LeagueID: rec[2]})
		}
		err = repo.ImportMatches(ctx, matches)

	case KindAppearances:
		appearances := make([]Appearance, 0, len(records))
		for i, rec := range records {
			minutes, convErr := strconv.Atoi(rec[3])
			if convErr != nil {
				return 0, fmt.Errorf("read %s: record %d: invalid minutes %q", kind, i+1, rec[3])
			}
			appearances = append(appearances, Appearance{
				MatchID:  rec[0],
				TeamID:   rec[1],
				PlayerID: rec[2],
				Minutes:  minutes,
			})
		}
		err = repo.ImportAppearances(ctx, appearances)
	}

	if err != nil {
		return 0, err
	}

	return len(records), nil
}

func readRecords(r io.Reader, want []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var records [][]string
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if line == 1 && isHeader(rec, want) {
			continue
		}

		if len(rec) < len(want) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(want), len(rec))
		}

		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if rec[0] == "" {
			return nil, fmt.Errorf("line %d: empty %s", line, want[0])
		}

		records = append(records, rec[:len(want)])
	}

	return records, nil
}

func isHeader(rec, want []string) bool {
	if len(rec) < len(want) {
		return false
	}

	for i, name := range want {
		if !strings.EqualFold(strings.TrimSpace(rec[i]), name) {
			return false
		}
	}

	return true
}
