/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package chain tracks a player's attempt to link the seed footballer to the
// target, one confirmed teammate at a time. Every change to the chain is
// approved by a Validator before it is applied.
package chain

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Seednode/cnxns/api"
)

const (
	DefaultSearchDelay    = 300 * time.Millisecond
	DefaultMinQueryLength = 2

	noConnectionMessage = "No shared matches!"
)

var (
	ErrCompleted    = errors.New("session is already complete")
	ErrSeedOnly     = errors.New("cannot remove the starting player")
	ErrNoConnection = errors.New("no shared matches")
	ErrRowLocked    = errors.New("row is not editable")
	ErrRejected     = errors.New("request rejected by server")
	ErrInconsistent = errors.New("server returned an inconsistent chain")
	ErrNilValidator = errors.New("validator must not be nil")
	ErrNilView      = errors.New("view must not be nil")
	ErrSamePlayer   = errors.New("seed and target must differ")
)

// Validator is the authority on which links are allowed.
type Validator interface {
	Search(ctx context.Context, query string) ([]api.Player, error)
	CheckConnection(ctx context.Context, req api.ConnectionRequest) (*api.ConnectionResponse, error)
	RemovePlayer(ctx context.Context, chain []string) (*api.ConnectionResponse, error)
}

// View renders a session. Methods may be called from any goroutine, but
// never while the session holds its lock.
type View interface {
	// Render receives the full state after every change.
	Render(State)
	// Suggest shows candidates below row; an empty list hides them.
	Suggest(row int, s Suggestions)
	// Alert shows a blocking notification.
	Alert(message string)
	// Reflow asks for the page layout to be recomputed.
	Reflow()
}

type Options struct {
	SearchDelay    time.Duration
	MinQueryLength int
	Logf           func(format string, args ...any)
}

// Session owns a chain and the rows displaying it.
type Session struct {
	validator Validator
	view      View
	debounce  *Debouncer
	minQuery  int
	logf      func(format string, args ...any)

	// ops serializes operations that wait on the validator.
	ops sync.Mutex

	mu        sync.Mutex
	seed      Box
	target    Box
	chain     []string
	rows      []Row
	status    Status
	score     int
	searchSeq uint64

	// confirming is set while Confirm waits on the validator; the open row
	// takes no input until the answer is in.
	confirming bool
}

// New starts a session whose chain holds only seed, with a single empty row.
func New(seed, target api.Player, validator Validator, view View, opts Options) (*Session, error) {
	switch {
	case validator == nil:
		return nil, ErrNilValidator
	case view == nil:
		return nil, ErrNilView
	case seed.ID == target.ID:
		return nil, ErrSamePlayer
	}

	if opts.SearchDelay <= 0 {
		opts.SearchDelay = DefaultSearchDelay
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = DefaultMinQueryLength
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}

	return &Session{
		validator: validator,
		view:      view,
		debounce:  NewDebouncer(opts.SearchDelay),
		minQuery:  opts.MinQueryLength,
		logf:      opts.Logf,
		seed:      Box{PlayerID: seed.ID, Name: seed.Name},
		target:    Box{PlayerID: target.ID, Name: target.Name},
		chain:     []string{seed.ID},
		rows:      []Row{{}},
		status:    InProgress,
	}, nil
}

// Start renders the initial state.
func (s *Session) Start() {
	s.view.Render(s.State())
	s.view.Reflow()
}

// Close drops any pending search.
func (s *Session) Close() {
	s.debounce.Cancel()
}

func (s *Session) Chain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.chain)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.score
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stateLocked()
}

// OpenRow returns the index of the editable row, or -1 once complete.
func (s *Session) OpenRow() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.openRowLocked()
}

func (s *Session) openRowLocked() int {
	if s.status != InProgress || len(s.rows) == 0 {
		return -1
	}

	last := len(s.rows) - 1
	if s.rows[last].Locked {
		return -1
	}

	return last
}

func (s *Session) stateLocked() State {
	rows := slices.Clone(s.rows)
	for i := range rows {
		rows[i].Removable = false
	}

	if s.status == InProgress && len(s.chain) > 1 {
		rows[len(s.chain)-2].Removable = true
	}

	return State{
		Seed:   s.seed,
		Target: s.target,
		Rows:   rows,
		Chain:  slices.Clone(s.chain),
		Status: s.status,
		Score:  s.score,
	}
}

func (s *Session) searchable(query string) bool {
	return utf8.RuneCountInString(query) >= s.minQuery
}

// Search looks up candidates immediately. Queries that are too short return
// no candidates without contacting the validator.
func (s *Session) Search(ctx context.Context, query string) (Suggestions, error) {
	query = strings.TrimSpace(query)
	if !s.searchable(query) {
		return Suggestions{}, nil
	}

	players, err := s.validator.Search(ctx, query)
	if err != nil {
		return Suggestions{}, err
	}

	return NewSuggestions(players), nil
}

// Input records text typed into row and schedules a debounced search.
func (s *Session) Input(ctx context.Context, row int, text string) error {
	s.mu.Lock()

	if s.status == Completed {
		s.mu.Unlock()
		return ErrCompleted
	}
	if row != s.openRowLocked() || s.confirming {
		s.mu.Unlock()
		return ErrRowLocked
	}

	s.rows[row].Name = text

	query := strings.TrimSpace(text)
	if !s.searchable(query) {
		s.debounce.Cancel()
		s.searchSeq++
		s.mu.Unlock()

		s.view.Suggest(row, Suggestions{})
		return nil
	}

	s.mu.Unlock()

	s.debounce.Trigger(func() {
		s.dispatchSearch(ctx, row, query)
	})

	return nil
}

func (s *Session) dispatchSearch(ctx context.Context, row int, query string) {
	s.mu.Lock()
	s.searchSeq++
	seq := s.searchSeq
	s.mu.Unlock()

	players, err := s.validator.Search(ctx, query)

	s.mu.Lock()
	stale := seq != s.searchSeq || row != s.openRowLocked()
	s.mu.Unlock()

	if stale {
		s.logf("SEARCH: Dropped stale results for %q", query)
		return
	}

	if err != nil {
		s.logf("ERROR: Search for %q failed: %v", query, err)
		s.view.Suggest(row, Suggestions{})
		return
	}

	s.view.Suggest(row, NewSuggestions(players))
}

// Confirm asks the validator whether candidate connects to the chain and,
// if so, locks it into row and opens a new row below it.
func (s *Session) Confirm(ctx context.Context, row int, candidate api.Player) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()

	if s.status == Completed {
		s.mu.Unlock()
		return ErrCompleted
	}
	if row != s.openRowLocked() {
		s.mu.Unlock()
		return ErrRowLocked
	}

	s.rows[row].Name = candidate.Name
	s.confirming = true
	s.debounce.Cancel()
	s.searchSeq++

	req := api.ConnectionRequest{
		Chain:       slices.Clone(s.chain),
		NewPlayerID: candidate.ID,
	}

	s.mu.Unlock()

	s.view.Suggest(row, Suggestions{})

	resp, err := s.validator.CheckConnection(ctx, req)
	if err != nil {
		s.logf("ERROR: Connection check for %s failed: %v", candidate.ID, err)
		s.view.Render(s.finishConfirm())
		return err
	}

	if !resp.Success {
		s.logf("CHAIN: %s rejected: %s", candidate.ID, resp.Message)
		s.view.Render(s.finishConfirm())
		s.view.Alert(noConnectionMessage)
		return ErrNoConnection
	}

	s.mu.Lock()

	s.confirming = false
	s.chain = append(s.chain, candidate.ID)

	locked := &s.rows[row]
	locked.PlayerID = candidate.ID
	locked.Name = candidate.Name
	locked.Locked = true
	if resp.Team != nil {
		locked.Conn = newConnection(resp.SharedMatches, resp.Team.ColorCircles)
	}

	s.rows = append(s.rows, Row{})

	if resp.IsComplete {
		s.completeLocked(resp.ChainLength, resp.FinalConnection)
	}

	state := s.stateLocked()

	s.mu.Unlock()

	s.logf("CHAIN: Locked in %s (%d players)", candidate.ID, len(state.Chain))

	s.view.Render(state)
	s.view.Reflow()

	return nil
}

// finishConfirm reopens the row after a failed confirmation and returns the
// state to render.
func (s *Session) finishConfirm() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.confirming = false

	return s.stateLocked()
}

// completeLocked ends the session. length is the final chain length reported
// by the validator.
func (s *Session) completeLocked(length int, final *api.FinalConnection) {
	if length <= 0 {
		length = len(s.chain)
	}

	s.status = Completed
	s.score = length - 1

	if final != nil {
		s.target.Conn = newConnection(final.SharedMatches, final.Team.ColorCircles)
	}

	if n := len(s.rows); n > 0 && !s.rows[n-1].Locked {
		s.rows = s.rows[:n-1]
	}

	s.debounce.Cancel()
	s.searchSeq++
}

// RemoveLast asks the validator to drop the newest chain entry, then reopens
// the row that held it.
func (s *Session) RemoveLast(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	s.mu.Lock()

	if s.status == Completed {
		s.mu.Unlock()
		return ErrCompleted
	}
	if len(s.chain) <= 1 {
		s.mu.Unlock()
		return ErrSeedOnly
	}

	current := slices.Clone(s.chain)

	s.mu.Unlock()

	resp, err := s.validator.RemovePlayer(ctx, current)
	if err != nil {
		s.logf("ERROR: Removing from chain failed: %v", err)
		return err
	}

	if !resp.Success {
		s.logf("CHAIN: Removal rejected: %s", resp.Message)
		return fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}

	updated := resp.UpdatedChain
	if len(updated) == 0 || len(updated) >= len(current) || !slices.Equal(updated, current[:len(updated)]) {
		s.logf("ERROR: Removal returned %v for chain %v", updated, current)
		return ErrInconsistent
	}

	s.mu.Lock()

	s.chain = slices.Clone(updated)

	open := len(s.chain) - 1
	s.rows = s.rows[:open+1]
	s.rows[open].PlayerID = ""
	s.rows[open].Locked = false
	s.rows[open].Conn = nil

	state := s.stateLocked()

	s.mu.Unlock()

	s.logf("CHAIN: Removed last player (%d players)", len(state.Chain))

	s.view.Render(state)
	s.view.Reflow()

	return nil
}
