/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chain

import (
	"fmt"
	"iter"

	"github.com/Seednode/cnxns/api"
)

// Status is the lifecycle stage of a session.
type Status int

const (
	InProgress Status = iota
	Completed
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "in_progress":
		*s = InProgress
	case "completed":
		*s = Completed
	default:
		return fmt.Errorf("unknown status %q", text)
	}

	return nil
}

// Connection is the metadata attached to a confirmed link.
type Connection struct {
	SharedMatches int    `json:"shared_matches"`
	Colors        string `json:"color_circles"`
}

// newConnection returns nil unless both fields carry something to show.
func newConnection(matches int, colors string) *Connection {
	if matches == 0 || colors == "" {
		return nil
	}

	return &Connection{
		SharedMatches: matches,
		Colors:        colors,
	}
}

func label(name string, c *Connection) string {
	if c == nil {
		return name
	}

	return fmt.Sprintf("%s (%d %s)", name, c.SharedMatches, c.Colors)
}

// Box is one of the two fixed player displays: the seed and the target.
type Box struct {
	PlayerID string      `json:"player_id"`
	Name     string      `json:"name"`
	Conn     *Connection `json:"connection,omitempty"`
}

func (b Box) Label() string {
	return label(b.Name, b.Conn)
}

// Row is one entry of the chain after the seed. The trailing row of an
// in-progress session is unlocked and holds whatever the user has typed.
type Row struct {
	PlayerID  string      `json:"player_id,omitempty"`
	Name      string      `json:"name"`
	Locked    bool        `json:"locked"`
	Conn      *Connection `json:"connection,omitempty"`
	Removable bool        `json:"removable"`
}

func (r Row) Label() string {
	return label(r.Name, r.Conn)
}

// State is a snapshot of a session, safe to hold onto after the session
// moves on.
type State struct {
	Seed   Box      `json:"seed"`
	Target Box      `json:"target"`
	Rows   []Row    `json:"rows"`
	Chain  []string `json:"chain"`
	Status Status   `json:"status"`
	Score  int      `json:"score"`
}

// Suggestions are the candidates returned for a search. The sequence may be
// ranged over any number of times.
type Suggestions struct {
	players []api.Player
}

func NewSuggestions(players []api.Player) Suggestions {
	return Suggestions{players: players}
}

func (s Suggestions) All() iter.Seq[api.Player] {
	return func(yield func(api.Player) bool) {
		for _, p := range s.players {
			if !yield(p) {
				return
			}
		}
	}
}

func (s Suggestions) Len() int {
	return len(s.players)
}
