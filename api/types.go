/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package api holds the JSON wire types shared by the connections server and
// its clients, along with an HTTP client for the server's endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Player is a searchable footballer.
type Player struct {
	ID   string `json:"player_id"`
	Name string `json:"player_name"`
}

// Team describes the side two players shared, with its colours rendered as
// emoji circles.
type Team struct {
	ID           string `json:"team_id,omitempty"`
	Name         string `json:"team_name,omitempty"`
	Colour1      string `json:"colour1,omitempty"`
	Colour2      string `json:"colour2,omitempty"`
	ColorCircles string `json:"color_circles"`
}

// ConnectionRequest asks whether NewPlayerID connects to the last entry of
// Chain.
type ConnectionRequest struct {
	Chain       []string `json:"player_ids_chain"`
	NewPlayerID string   `json:"new_player_id"`
}

// ConnectionResponse answers both check-connection and remove-player calls.
type ConnectionResponse struct {
	Success         bool             `json:"success"`
	SharedMatches   int              `json:"shared_matches,omitempty"`
	Team            *Team            `json:"team,omitempty"`
	UpdatedChain    []string         `json:"updated_chain,omitempty"`
	IsComplete      bool             `json:"is_complete"`
	ChainLength     int              `json:"chain_length,omitempty"`
	Message         string           `json:"message,omitempty"`
	FinalConnection *FinalConnection `json:"final_connection,omitempty"`
}

// Failure builds an unsuccessful response carrying a user-facing message.
func Failure(message string) *ConnectionResponse {
	return &ConnectionResponse{
		Success: false,
		Message: message,
	}
}

// FinalConnection is the link between the last chain entry and the target.
// On the wire it is the pair [shared_matches, team].
type FinalConnection struct {
	SharedMatches int
	Team          Team
}

func (f FinalConnection) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.SharedMatches, f.Team})
}

func (f *FinalConnection) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("final_connection: expected 2 elements, got %d", len(raw))
	}

	if err := json.Unmarshal(raw[0], &f.SharedMatches); err != nil {
		return fmt.Errorf("final_connection: shared matches: %w", err)
	}

	if err := json.Unmarshal(raw[1], &f.Team); err != nil {
		return fmt.Errorf("final_connection: team: %w", err)
	}

	return nil
}

// CareerEntry is one team in a player's career. On the wire it is the triple
// [team, seasons, matches].
type CareerEntry struct {
	Team    string
	Seasons string
	Matches int
}

func (c CareerEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Team, c.Seasons, c.Matches})
}

func (c *CareerEntry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return errors.New("career entry: expected [team, seasons, matches]")
	}

	if err := json.Unmarshal(raw[0], &c.Team); err != nil {
		return fmt.Errorf("career entry: team: %w", err)
	}
	if err := json.Unmarshal(raw[1], &c.Seasons); err != nil {
		return fmt.Errorf("career entry: seasons: %w", err)
	}
	if err := json.Unmarshal(raw[2], &c.Matches); err != nil {
		return fmt.Errorf("career entry: matches: %w", err)
	}

	return nil
}

// Challenge is the pair of players to connect on a given day.
type Challenge struct {
	Date    string `json:"date"`
	Player1 Player `json:"player1"`
	Player2 Player `json:"player2"`
}
