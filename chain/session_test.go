/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package chain

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/cnxns/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	mu sync.Mutex

	searches []string
	checks   []api.ConnectionRequest
	removals [][]string

	search func(query string) ([]api.Player, error)
	check  func(req api.ConnectionRequest) (*api.ConnectionResponse, error)
	remove func(chain []string) (*api.ConnectionResponse, error)
}

func (f *fakeValidator) Search(_ context.Context, query string) ([]api.Player, error) {
	f.mu.Lock()
	f.searches = append(f.searches, query)
	f.mu.Unlock()

	if f.search == nil {
		return []api.Player{{ID: "x", Name: query}}, nil
	}
	return f.search(query)
}

func (f *fakeValidator) CheckConnection(_ context.Context, req api.ConnectionRequest) (*api.ConnectionResponse, error) {
	f.mu.Lock()
	f.checks = append(f.checks, api.ConnectionRequest{Chain: slices.Clone(req.Chain), NewPlayerID: req.NewPlayerID})
	f.mu.Unlock()

	return f.check(req)
}

func (f *fakeValidator) RemovePlayer(_ context.Context, chain []string) (*api.ConnectionResponse, error) {
	f.mu.Lock()
	f.removals = append(f.removals, slices.Clone(chain))
	f.mu.Unlock()

	if f.remove == nil {
		return &api.ConnectionResponse{Success: true, UpdatedChain: chain[:len(chain)-1]}, nil
	}
	return f.remove(chain)
}

func (f *fakeValidator) searchCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.searches)
}

type suggestion struct {
	row   int
	names []string
}

type recordingView struct {
	mu          sync.Mutex
	states      []State
	suggestions []suggestion
	alerts      []string
	reflows     int
}

func (v *recordingView) Render(s State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.states = append(v.states, s)
}

func (v *recordingView) Suggest(row int, s Suggestions) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var names []string
	for p := range s.All() {
		names = append(names, p.Name)
	}
	v.suggestions = append(v.suggestions, suggestion{row: row, names: names})
}

func (v *recordingView) Alert(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.alerts = append(v.alerts, message)
}

func (v *recordingView) Reflow() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.reflows++
}

func (v *recordingView) last() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.states[len(v.states)-1]
}

func (v *recordingView) lastSuggestion() (suggestion, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.suggestions) == 0 {
		return suggestion{}, false
	}
	return v.suggestions[len(v.suggestions)-1], true
}

var (
	seed   = api.Player{ID: "P1", Name: "Seed Player"}
	target = api.Player{ID: "T", Name: "Target Player"}
)

func accept(matches int, colors string) func(api.ConnectionRequest) (*api.ConnectionResponse, error) {
	return func(req api.ConnectionRequest) (*api.ConnectionResponse, error) {
		return &api.ConnectionResponse{
			Success:       true,
			SharedMatches: matches,
			Team:          &api.Team{ColorCircles: colors},
			UpdatedChain:  append(slices.Clone(req.Chain), req.NewPlayerID),
			ChainLength:   len(req.Chain) + 1,
		}, nil
	}
}

func newTestSession(t *testing.T, v *fakeValidator, opts Options) (*Session, *recordingView) {
	t.Helper()

	view := &recordingView{}
	s, err := New(seed, target, v, view, opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s, view
}

func TestNewSession(t *testing.T) {
	s, view := newTestSession(t, &fakeValidator{}, Options{})
	s.Start()

	assert.Equal(t, []string{"P1"}, s.Chain())
	assert.Equal(t, InProgress, s.Status())
	assert.Equal(t, 0, s.OpenRow())

	state := view.last()
	assert.Equal(t, "Seed Player", state.Seed.Label())
	assert.Equal(t, "Target Player", state.Target.Label())
	require.Len(t, state.Rows, 1)
	assert.False(t, state.Rows[0].Locked)
	assert.False(t, state.Rows[0].Removable)
	assert.Equal(t, 1, view.reflows)

	_, err := New(seed, seed, &fakeValidator{}, view, Options{})
	assert.ErrorIs(t, err, ErrSamePlayer)

	_, err = New(seed, target, nil, view, Options{})
	assert.ErrorIs(t, err, ErrNilValidator)
}

func TestConfirmAccepted(t *testing.T) {
	v := &fakeValidator{check: accept(3, "●●●")}
	s, view := newTestSession(t, v, Options{})

	err := s.Confirm(context.Background(), 0, api.Player{ID: "P2", Name: "Second"})
	require.NoError(t, err)

	require.Len(t, v.checks, 1)
	assert.Equal(t, []string{"P1"}, v.checks[0].Chain)
	assert.Equal(t, "P2", v.checks[0].NewPlayerID)

	assert.Equal(t, []string{"P1", "P2"}, s.Chain())
	assert.Equal(t, InProgress, s.Status())

	state := view.last()
	require.Len(t, state.Rows, 2)
	assert.True(t, state.Rows[0].Locked)
	assert.True(t, state.Rows[0].Removable)
	assert.Equal(t, "Second (3 ●●●)", state.Rows[0].Label())
	assert.Equal(t, "Second", state.Rows[0].Name)
	assert.False(t, state.Rows[1].Locked)
	assert.Empty(t, state.Rows[1].Name)
	assert.Equal(t, 1, s.OpenRow())
	assert.Empty(t, view.alerts)
	assert.Equal(t, 1, view.reflows)
}

func TestConfirmCompletes(t *testing.T) {
	v := &fakeValidator{check: accept(2, "🔴")}
	s, view := newTestSession(t, v, Options{})

	require.NoError(t, s.Confirm(context.Background(), 0, api.Player{ID: "P2", Name: "Second"}))

	v.check = func(req api.ConnectionRequest) (*api.ConnectionResponse, error) {
		return &api.ConnectionResponse{
			Success:         true,
			SharedMatches:   3,
			Team:            &api.Team{ColorCircles: "●●●"},
			IsComplete:      true,
			ChainLength:     3,
			FinalConnection: &api.FinalConnection{SharedMatches: 5, Team: api.Team{ColorCircles: "★"}},
		}, nil
	}

	require.NoError(t, s.Confirm(context.Background(), 1, api.Player{ID: "P3", Name: "Third"}))

	assert.Equal(t, Completed, s.Status())
	assert.Equal(t, 2, s.Score())
	assert.Equal(t, -1, s.OpenRow())

	state := view.last()
	assert.Equal(t, Completed, state.Status)
	assert.Equal(t, 2, state.Score)
	assert.Equal(t, "Target Player (5 ★)", state.Target.Label())
	require.Len(t, state.Rows, 2)
	for _, row := range state.Rows {
		assert.True(t, row.Locked)
		assert.False(t, row.Removable)
	}

	assert.ErrorIs(t, s.Confirm(context.Background(), 2, api.Player{ID: "P4"}), ErrCompleted)
	assert.ErrorIs(t, s.RemoveLast(context.Background()), ErrCompleted)
	assert.ErrorIs(t, s.Input(context.Background(), 2, "abc"), ErrCompleted)
	assert.Len(t, v.removals, 0)
}

func TestConfirmRejected(t *testing.T) {
	v := &fakeValidator{check: func(api.ConnectionRequest) (*api.ConnectionResponse, error) {
		return api.Failure("Players have never played together"), nil
	}}
	s, view := newTestSession(t, v, Options{})

	err := s.Confirm(context.Background(), 0, api.Player{ID: "P9", Name: "Stranger"})
	assert.ErrorIs(t, err, ErrNoConnection)

	assert.Equal(t, []string{"P1"}, s.Chain())
	assert.Equal(t, []string{"No shared matches!"}, view.alerts)
	assert.Equal(t, 0, s.OpenRow())

	state := view.last()
	require.Len(t, state.Rows, 1)
	assert.False(t, state.Rows[0].Locked)
	assert.Equal(t, "Stranger", state.Rows[0].Name)
}

func TestConfirmTransportFailure(t *testing.T) {
	v := &fakeValidator{check: func(api.ConnectionRequest) (*api.ConnectionResponse, error) {
		return nil, errors.New("connection refused")
	}}
	s, view := newTestSession(t, v, Options{})

	err := s.Confirm(context.Background(), 0, api.Player{ID: "P2", Name: "Second"})
	require.Error(t, err)

	assert.Equal(t, []string{"P1"}, s.Chain())
	assert.Empty(t, view.alerts)
	assert.Equal(t, 0, s.OpenRow())
}

func TestConfirmLockedRow(t *testing.T) {
	v := &fakeValidator{check: accept(1, "🔵")}
	s, _ := newTestSession(t, v, Options{})

	require.NoError(t, s.Confirm(context.Background(), 0, api.Player{ID: "P2"}))
	assert.ErrorIs(t, s.Confirm(context.Background(), 0, api.Player{ID: "P3"}), ErrRowLocked)
	assert.Len(t, v.checks, 1)
}

func TestInputRefusedWhileConfirming(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	v := &fakeValidator{check: func(req api.ConnectionRequest) (*api.ConnectionResponse, error) {
		close(started)
		<-release
		return accept(3, "●●●")(req)
	}}
	s, view := newTestSession(t, v, Options{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- s.Confirm(ctx, 0, api.Player{ID: "P2", Name: "Harry Kane"})
	}()

	<-started
	assert.ErrorIs(t, s.Input(ctx, 0, "zz typed"), ErrRowLocked)

	close(release)
	require.NoError(t, <-done)

	state := view.last()
	require.Len(t, state.Rows, 2)
	assert.Equal(t, "P2", state.Rows[0].PlayerID)
	assert.Equal(t, "Harry Kane (3 ●●●)", state.Rows[0].Label())
	assert.Empty(t, v.searchCalls())

	assert.NoError(t, s.Input(ctx, 1, "x"))
}

func TestInputAcceptedAfterRejectedConfirm(t *testing.T) {
	v := &fakeValidator{check: func(api.ConnectionRequest) (*api.ConnectionResponse, error) {
		return api.Failure("Players have never played together"), nil
	}}
	s, view := newTestSession(t, v, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, s.Confirm(ctx, 0, api.Player{ID: "P9", Name: "Stranger"}), ErrNoConnection)
	require.NoError(t, s.Input(ctx, 0, "S"))

	assert.Equal(t, "S", s.State().Rows[0].Name)
	assert.False(t, view.last().Rows[0].Locked)
}

func TestMetadataRequiresMatchesAndColours(t *testing.T) {
	v := &fakeValidator{check: accept(4, "")}
	s, view := newTestSession(t, v, Options{})

	require.NoError(t, s.Confirm(context.Background(), 0, api.Player{ID: "P2", Name: "Second"}))
	assert.Nil(t, view.last().Rows[0].Conn)
	assert.Equal(t, "Second", view.last().Rows[0].Label())
}

func TestRemoveLastSeedOnly(t *testing.T) {
	v := &fakeValidator{}
	s, view := newTestSession(t, v, Options{})

	assert.ErrorIs(t, s.RemoveLast(context.Background()), ErrSeedOnly)
	assert.Empty(t, v.removals)
	assert.Empty(t, view.states)
	assert.Equal(t, []string{"P1"}, s.Chain())
}

func TestRemoveLast(t *testing.T) {
	v := &fakeValidator{check: accept(3, "●●●")}
	s, view := newTestSession(t, v, Options{})

	ctx := context.Background()
	require.NoError(t, s.Confirm(ctx, 0, api.Player{ID: "P2", Name: "Second"}))
	require.NoError(t, s.Confirm(ctx, 1, api.Player{ID: "P3", Name: "Third"}))
	require.Equal(t, []string{"P1", "P2", "P3"}, s.Chain())

	v.remove = func(chain []string) (*api.ConnectionResponse, error) {
		return &api.ConnectionResponse{Success: true, UpdatedChain: []string{"P1", "P2"}}, nil
	}

	require.NoError(t, s.RemoveLast(ctx))
	assert.Equal(t, [][]string{{"P1", "P2", "P3"}}, v.removals)
	assert.Equal(t, []string{"P1", "P2"}, s.Chain())

	state := view.last()
	require.Len(t, state.Rows, 2)
	assert.True(t, state.Rows[0].Locked)
	assert.True(t, state.Rows[0].Removable)
	assert.False(t, state.Rows[1].Locked)
	assert.False(t, state.Rows[1].Removable)
	assert.Nil(t, state.Rows[1].Conn)
	assert.Equal(t, "Third", state.Rows[1].Label())
	assert.Equal(t, 1, s.OpenRow())
}

func TestConfirmThenRemoveRoundTrip(t *testing.T) {
	v := &fakeValidator{check: accept(3, "●●●")}
	s, view := newTestSession(t, v, Options{})

	ctx := context.Background()
	before := s.Chain()

	require.NoError(t, s.Confirm(ctx, 0, api.Player{ID: "P2", Name: "Second"}))
	require.NoError(t, s.RemoveLast(ctx))

	assert.Equal(t, before, s.Chain())

	state := view.last()
	require.Len(t, state.Rows, 1)
	assert.False(t, state.Rows[0].Locked)
	assert.False(t, state.Rows[0].Removable)
}

func TestRemoveLastRejectsBadChains(t *testing.T) {
	tests := []struct {
		name    string
		resp    *api.ConnectionResponse
		wantErr error
	}{
		{"rejected", api.Failure("Cannot remove starting player"), ErrRejected},
		{"empty", &api.ConnectionResponse{Success: true}, ErrInconsistent},
		{"unchanged", &api.ConnectionResponse{Success: true, UpdatedChain: []string{"P1", "P2"}}, ErrInconsistent},
		{"diverged", &api.ConnectionResponse{Success: true, UpdatedChain: []string{"PX"}}, ErrInconsistent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeValidator{check: accept(1, "⚪")}
			s, _ := newTestSession(t, v, Options{})

			require.NoError(t, s.Confirm(context.Background(), 0, api.Player{ID: "P2"}))

			v.remove = func([]string) (*api.ConnectionResponse, error) { return tt.resp, nil }

			assert.ErrorIs(t, s.RemoveLast(context.Background()), tt.wantErr)
			assert.Equal(t, []string{"P1", "P2"}, s.Chain())
		})
	}
}

func TestSearchShortQuery(t *testing.T) {
	v := &fakeValidator{}
	s, _ := newTestSession(t, v, Options{})

	for _, q := range []string{"", "a", "  b  ", "é"} {
		got, err := s.Search(context.Background(), q)
		require.NoError(t, err)
		assert.Zero(t, got.Len())
	}
	assert.Empty(t, v.searchCalls())

	got, err := s.Search(context.Background(), "ab")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())

	// The sequence can be ranged more than once.
	for range 2 {
		var names []string
		for p := range got.All() {
			names = append(names, p.Name)
		}
		assert.Equal(t, []string{"ab"}, names)
	}
}

func TestInputDebounce(t *testing.T) {
	v := &fakeValidator{}
	s, view := newTestSession(t, v, Options{SearchDelay: 50 * time.Millisecond})

	ctx := context.Background()
	for _, text := range []string{"ka", "kan", "kane"} {
		require.NoError(t, s.Input(ctx, 0, text))
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return len(v.searchCalls()) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"kane"}, v.searchCalls())

	sug, ok := view.lastSuggestion()
	require.True(t, ok)
	assert.Equal(t, 0, sug.row)
	assert.Equal(t, []string{"kane"}, sug.names)
	assert.Equal(t, "kane", s.State().Rows[0].Name)
}

func TestInputShortQueryNeverSearches(t *testing.T) {
	v := &fakeValidator{}
	s, view := newTestSession(t, v, Options{SearchDelay: 20 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, s.Input(ctx, 0, "ka"))
	require.NoError(t, s.Input(ctx, 0, "k"))
	require.NoError(t, s.Input(ctx, 0, ""))

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, v.searchCalls())

	sug, ok := view.lastSuggestion()
	require.True(t, ok)
	assert.Empty(t, sug.names)
}

func TestInputDropsStaleResults(t *testing.T) {
	release := make(chan struct{})
	v := &fakeValidator{search: func(query string) ([]api.Player, error) {
		if query == "slow" {
			<-release
		}
		return []api.Player{{ID: query, Name: query}}, nil
	}}
	s, view := newTestSession(t, v, Options{SearchDelay: 10 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, s.Input(ctx, 0, "slow"))
	assert.Eventually(t, func() bool { return len(v.searchCalls()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Input(ctx, 0, "fast"))
	assert.Eventually(t, func() bool {
		sug, ok := view.lastSuggestion()
		return ok && slices.Equal(sug.names, []string{"fast"})
	}, time.Second, 5*time.Millisecond)

	close(release)
	time.Sleep(30 * time.Millisecond)

	sug, _ := view.lastSuggestion()
	assert.Equal(t, []string{"fast"}, sug.names)
}

func TestInputSearchFailureHidesSuggestions(t *testing.T) {
	v := &fakeValidator{search: func(string) ([]api.Player, error) {
		return nil, errors.New("timeout")
	}}
	s, view := newTestSession(t, v, Options{SearchDelay: 10 * time.Millisecond})

	require.NoError(t, s.Input(context.Background(), 0, "kane"))

	assert.Eventually(t, func() bool {
		sug, ok := view.lastSuggestion()
		return ok && len(sug.names) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, view.alerts)
}

func TestInputLockedRow(t *testing.T) {
	v := &fakeValidator{check: accept(1, "🟢")}
	s, _ := newTestSession(t, v, Options{})

	require.NoError(t, s.Confirm(context.Background(), 0, api.Player{ID: "P2"}))
	assert.ErrorIs(t, s.Input(context.Background(), 0, "kane"), ErrRowLocked)
}

func TestChainNeverEmpty(t *testing.T) {
	v := &fakeValidator{check: accept(1, "🟡")}
	s, _ := newTestSession(t, v, Options{})

	ctx := context.Background()
	for i := range 3 {
		require.NoError(t, s.Confirm(ctx, i, api.Player{ID: string(rune('A' + i))}))
	}
	for range 5 {
		_ = s.RemoveLast(ctx)
		assert.GreaterOrEqual(t, len(s.Chain()), 1)
	}
	assert.Equal(t, []string{"P1"}, s.Chain())
	assert.Len(t, v.removals, 3)
}
