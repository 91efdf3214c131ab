/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Each browser connection to /ws gets its own chain session for the day's
// challenge. The page only forwards what the player types and clicks; the
// session decides what the page shows and pushes it back as JSON messages.

package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/cnxns/api"
	"github.com/Seednode/cnxns/backend"
	"github.com/Seednode/cnxns/chain"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from the page
type ClientMessage struct {
	Type       string         `json:"type"`                  // "input", "select", "remove", "layout"
	Row        int            `json:"row"`                   // input / select
	Text       string         `json:"text,omitempty"`        // input
	PlayerID   string         `json:"player_id,omitempty"`   // select
	PlayerName string         `json:"player_name,omitempty"` // select
	Metrics    *chain.Metrics `json:"metrics,omitempty"`     // layout
}

// StateMessage carries a full snapshot after every change.
type StateMessage struct {
	Type  string      `json:"type"` // "state"
	State chain.State `json:"state"`
}

// SuggestionsMessage lists candidates below a row; an empty list hides them.
type SuggestionsMessage struct {
	Type    string       `json:"type"` // "suggestions"
	Row     int          `json:"row"`
	Players []api.Player `json:"players"`
}

// SimpleMessage is for "alert" and "reflow" notifications.
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// LayoutMessage answers a "layout" request with computed offsets.
type LayoutMessage struct {
	Type    string        `json:"type"` // "layout"
	Offsets chain.Offsets `json:"offsets"`
}

type Client struct {
	conn    *websocket.Conn
	session *chain.Session

	mu         sync.Mutex
	send       chan any
	closed     bool
	lastActive time.Time
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:       conn,
		send:       make(chan any, 16),
		lastActive: time.Now(),
	}
}

// push queues msg for the write pump, dropping the client if it cannot keep
// up. Safe to call after the client is gone.
func (c *Client) push(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		c.closed = true
		close(c.send)
	}
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

func (c *Client) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastActive
}

func (c *Client) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()

	_ = c.conn.Close()
}

// wsView renders a session by pushing messages to its client.
type wsView struct {
	client *Client
}

func (v wsView) Render(s chain.State) {
	v.client.push(StateMessage{Type: "state", State: s})
}

func (v wsView) Suggest(row int, s chain.Suggestions) {
	players := make([]api.Player, 0, s.Len())
	for p := range s.All() {
		players = append(players, p)
	}

	v.client.push(SuggestionsMessage{Type: "suggestions", Row: row, Players: players})
}

func (v wsView) Alert(message string) {
	v.client.push(SimpleMessage{Type: "alert", Message: message})
}

func (v wsView) Reflow() {
	v.client.push(SimpleMessage{Type: "reflow"})
}

// SessionManager tracks live connections so idle ones can be reaped.
type SessionManager struct {
	mu          sync.Mutex
	clients     map[*Client]bool
	idleTimeout time.Duration
	done        chan struct{}
	once        sync.Once
}

func newSessionManager(idleTimeout time.Duration) *SessionManager {
	sm := &SessionManager{
		clients:     make(map[*Client]bool),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go sm.reaperLoop()
	}
	return sm
}

func (sm *SessionManager) add(c *Client) {
	sm.mu.Lock()
	sm.clients[c] = true
	sm.mu.Unlock()
}

func (sm *SessionManager) remove(c *Client) {
	sm.mu.Lock()
	delete(sm.clients, c)
	sm.mu.Unlock()
}

func (sm *SessionManager) count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return len(sm.clients)
}

// reapIdle disconnects clients idle since before cutoff and reports how many
// were dropped.
func (sm *SessionManager) reapIdle(cutoff time.Time) int {
	sm.mu.Lock()
	var idle []*Client
	for c := range sm.clients {
		if c.idleSince().Before(cutoff) {
			idle = append(idle, c)
			delete(sm.clients, c)
		}
	}
	sm.mu.Unlock()

	for _, c := range idle {
		c.close()
	}

	return len(idle)
}

// reaperLoop periodically removes sessions that have been idle longer than idleTimeout.
func (sm *SessionManager) reaperLoop() {
	ticker := time.NewTicker(sm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case <-ticker.C:
			sm.reapIdle(time.Now().Add(-sm.idleTimeout))
		}
	}
}

// closeAll disconnects every client and stops the reaper.
func (sm *SessionManager) closeAll() {
	sm.once.Do(func() { close(sm.done) })

	sm.reapIdle(time.Now().Add(time.Hour))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func serveWS(cfg *Config, b *backend.Backend, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		challenge, err := b.Challenge(r.Context())
		if err != nil {
			logf(cfg, "ERROR: Loading challenge for %s: %v", realIP(r), err)
			http.Error(w, "no challenge available", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrading connection from %s: %v", realIP(r), err)
			return
		}

		client := newClient(conn)

		session, err := chain.New(challenge.Player1, challenge.Player2, b, wsView{client}, chain.Options{
			SearchDelay: cfg.searchDelay,
			Logf:        sessionLogf(cfg),
		})
		if err != nil {
			logf(cfg, "ERROR: Starting session for %s: %v", realIP(r), err)
			_ = conn.Close()
			return
		}
		client.session = session

		sm.add(client)

		logf(cfg, "GAMES: Session started for %s (%s to %s)", realIP(r), challenge.Player1.ID, challenge.Player2.ID)

		session.Start()

		go client.writePump()
		client.readPump(r.Context(), cfg)

		session.Close()
		sm.remove(client)
		client.close()

		logf(cfg, "GAMES: Session ended for %s after %d players (%s)", realIP(r), len(session.Chain()), session.Status())
	}
}

func (c *Client) readPump(ctx context.Context, cfg *Config) {
	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.touch()

		c.handle(ctx, cfg, msg)
	}
}

func (c *Client) handle(ctx context.Context, cfg *Config, msg ClientMessage) {
	switch msg.Type {
	case "input":
		if err := c.session.Input(ctx, msg.Row, msg.Text); err != nil {
			logf(cfg, "GAMES: Ignored input for row %d: %v", msg.Row, err)
		}

	case "select":
		if msg.PlayerID == "" {
			return
		}

		err := c.session.Confirm(ctx, msg.Row, api.Player{ID: msg.PlayerID, Name: msg.PlayerName})
		if err != nil && !errors.Is(err, chain.ErrNoConnection) {
			logf(cfg, "GAMES: Ignored selection for row %d: %v", msg.Row, err)
		}

	case "remove":
		err := c.session.RemoveLast(ctx)
		switch {
		case err == nil:
		case errors.Is(err, chain.ErrRejected):
			c.push(SimpleMessage{Type: "alert", Message: strings.TrimPrefix(err.Error(), chain.ErrRejected.Error()+": ")})
		default:
			logf(cfg, "GAMES: Ignored removal: %v", err)
		}

	case "layout":
		if msg.Metrics == nil {
			return
		}

		c.push(LayoutMessage{Type: "layout", Offsets: chain.Reflow(*msg.Metrics)})

	default:
		// ignore unknown types
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// qrHandler generates a PNG QR code linking to the game page.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr") + "/"

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}
