/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/cnxns/api"
	"github.com/Seednode/cnxns/chain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverMessage struct {
	Type    string        `json:"type"`
	State   chain.State   `json:"state"`
	Row     int           `json:"row"`
	Players []api.Player  `json:"players"`
	Message string        `json:"message"`
	Offsets chain.Offsets `json:"offsets"`
}

func dialSession(t *testing.T, e *testEnv) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + e.cfg.prefix + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readUntil returns the first message of type kind, skipping any others.
func readUntil(t *testing.T, conn *websocket.Conn, kind string) serverMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg serverMessage
		require.NoError(t, json.Unmarshal(data, &msg))

		if msg.Type == kind {
			return msg
		}
	}
}

func TestSessionStartsWithChallenge(t *testing.T) {
	e := newTestEnv(t, "")
	c := e.challenge(t)

	conn := dialSession(t, e)

	msg := readUntil(t, conn, "state")
	assert.Equal(t, c.Player1.ID, msg.State.Seed.PlayerID)
	assert.Equal(t, c.Player2.ID, msg.State.Target.PlayerID)
	assert.Equal(t, []string{c.Player1.ID}, msg.State.Chain)
	assert.Equal(t, chain.InProgress, msg.State.Status)
	require.Len(t, msg.State.Rows, 1)
	assert.False(t, msg.State.Rows[0].Locked)

	readUntil(t, conn, "reflow")
}

func TestSessionSearchAndComplete(t *testing.T) {
	e := newTestEnv(t, "")
	c := e.challenge(t)

	conn := dialSession(t, e)
	readUntil(t, conn, "state")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "input", Row: 0, Text: "so"}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "input", Row: 0, Text: "son"}))

	msg := readUntil(t, conn, "suggestions")
	assert.Equal(t, 0, msg.Row)
	assert.Equal(t, []api.Player{{ID: "son", Name: "Heung-min Son"}}, msg.Players)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "select", Row: 0, PlayerID: "son", PlayerName: "Heung-min Son"}))

	msg = readUntil(t, conn, "state")
	assert.Equal(t, chain.Completed, msg.State.Status)
	assert.Equal(t, 1, msg.State.Score)
	assert.Equal(t, []string{c.Player1.ID, "son"}, msg.State.Chain)
	require.Len(t, msg.State.Rows, 1)
	assert.True(t, msg.State.Rows[0].Locked)
	assert.False(t, msg.State.Rows[0].Removable)
	require.NotNil(t, msg.State.Target.Conn)
	assert.Equal(t, "⚪🔵", msg.State.Target.Conn.Colors)
}

func TestSessionRejectsStranger(t *testing.T) {
	e := newTestEnv(t, "")
	c := e.challenge(t)

	conn := dialSession(t, e)
	readUntil(t, conn, "state")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "select", Row: 0, PlayerID: "lonely", PlayerName: "Lonely Keeper"}))

	msg := readUntil(t, conn, "alert")
	assert.Equal(t, "No shared matches!", msg.Message)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "input", Row: 0, Text: ""}))
	msg = readUntil(t, conn, "suggestions")
	assert.Empty(t, msg.Players)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "select", Row: 0, PlayerID: "son", PlayerName: "Heung-min Son"}))
	msg = readUntil(t, conn, "state")
	for msg.State.Status != chain.Completed {
		msg = readUntil(t, conn, "state")
	}
	assert.Equal(t, []string{c.Player1.ID, "son"}, msg.State.Chain)
}

func TestSessionLayout(t *testing.T) {
	e := newTestEnv(t, "")

	conn := dialSession(t, e)
	readUntil(t, conn, "state")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "layout", Metrics: &chain.Metrics{
		GameTop:            100,
		GameHeight:         400,
		InstructionsTop:    50,
		InstructionsHeight: 300,
		ViewportHeight:     1000,
	}}))

	msg := readUntil(t, conn, "layout")
	assert.Equal(t, chain.Offsets{ImagesTop: 530, StripesTop: 650}, msg.Offsets)
}

func TestSessionManagerReapsIdle(t *testing.T) {
	e := newTestEnv(t, "")

	sm := newSessionManager(0)
	defer sm.closeAll()

	c := newClient(dialSession(t, e))
	sm.add(c)
	require.Equal(t, 1, sm.count())

	assert.Equal(t, 0, sm.reapIdle(time.Now().Add(-time.Minute)))
	assert.Equal(t, 1, sm.reapIdle(time.Now().Add(time.Minute)))
	assert.Equal(t, 0, sm.count())

	// Pushing to a reaped client is a no-op.
	c.push(SimpleMessage{Type: "reflow"})
}

// linkedPlayer returns a player who played with seed but never with the
// target, so confirming them leaves the chain open.
func linkedPlayer(t *testing.T, c *api.Challenge) api.Player {
	t.Helper()

	switch c.Player1.ID {
	case "kane":
		return api.Player{ID: "muller", Name: "Thomas Müller"}
	case "dier":
		return api.Player{ID: "lloris", Name: "Hugo Lloris"}
	}

	t.Fatalf("unexpected seed %q", c.Player1.ID)
	return api.Player{}
}

func TestSessionRemoveReopensRow(t *testing.T) {
	e := newTestEnv(t, "")
	c := e.challenge(t)
	linked := linkedPlayer(t, c)

	conn := dialSession(t, e)
	readUntil(t, conn, "state")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "select", Row: 0, PlayerID: linked.ID, PlayerName: linked.Name}))

	msg := readUntil(t, conn, "state")
	require.Equal(t, []string{c.Player1.ID, linked.ID}, msg.State.Chain)
	assert.Equal(t, chain.InProgress, msg.State.Status)
	require.Len(t, msg.State.Rows, 2)
	assert.True(t, msg.State.Rows[0].Removable)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "remove"}))

	msg = readUntil(t, conn, "state")
	assert.Equal(t, []string{c.Player1.ID}, msg.State.Chain)
	require.Len(t, msg.State.Rows, 1)
	assert.False(t, msg.State.Rows[0].Locked)
	assert.False(t, msg.State.Rows[0].Removable)
	assert.Empty(t, msg.State.Rows[0].PlayerID)
	assert.Nil(t, msg.State.Rows[0].Conn)
	assert.Equal(t, linked.Name, msg.State.Rows[0].Name)
}

// stubValidator accepts every link without completing, and answers removals
// and transport with the configured results.
type stubValidator struct {
	checkErr  error
	removeMsg string
}

func (v *stubValidator) Search(context.Context, string) ([]api.Player, error) {
	return []api.Player{{ID: "P2", Name: "Second Player"}}, nil
}

func (v *stubValidator) CheckConnection(_ context.Context, req api.ConnectionRequest) (*api.ConnectionResponse, error) {
	if v.checkErr != nil {
		return nil, v.checkErr
	}

	return &api.ConnectionResponse{
		Success:       true,
		SharedMatches: 2,
		Team:          &api.Team{ColorCircles: "🔴⚪"},
		UpdatedChain:  append(append([]string{}, req.Chain...), req.NewPlayerID),
		ChainLength:   len(req.Chain) + 1,
	}, nil
}

func (v *stubValidator) RemovePlayer(context.Context, []string) (*api.ConnectionResponse, error) {
	return api.Failure(v.removeMsg), nil
}

func newStubClient(t *testing.T, v chain.Validator) *Client {
	t.Helper()

	client := &Client{send: make(chan any, 16)}

	session, err := chain.New(api.Player{ID: "P1", Name: "Seed"}, api.Player{ID: "T", Name: "Target"}, v, wsView{client}, chain.Options{})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	client.session = session

	return client
}

func drain(c *Client) []any {
	var msgs []any
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestHandleRemoveRejected(t *testing.T) {
	client := newStubClient(t, &stubValidator{removeMsg: "Cannot remove starting player"})
	cfg := newTestConfig(t)
	ctx := context.Background()

	client.handle(ctx, cfg, ClientMessage{Type: "select", Row: 0, PlayerID: "P2", PlayerName: "Second Player"})
	drain(client)

	client.handle(ctx, cfg, ClientMessage{Type: "remove"})

	assert.Equal(t, []any{SimpleMessage{Type: "alert", Message: "Cannot remove starting player"}}, drain(client))
	assert.Equal(t, []string{"P1", "P2"}, client.session.Chain())
}

func TestHandleSelectTransportFailure(t *testing.T) {
	client := newStubClient(t, &stubValidator{checkErr: errors.New("connection refused")})
	cfg := newTestConfig(t)

	client.handle(context.Background(), cfg, ClientMessage{Type: "select", Row: 0, PlayerID: "P2", PlayerName: "Second Player"})

	for _, msg := range drain(client) {
		m, ok := msg.(SimpleMessage)
		assert.False(t, ok && m.Type == "alert", "unexpected alert %q", m.Message)
	}
	assert.Equal(t, []string{"P1"}, client.session.Chain())
	assert.Equal(t, 0, client.session.OpenRow())
}
