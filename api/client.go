/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "cnxns-client/1.0"

// Client talks to a connections server.
type Client struct {
	BaseURL    string
	Prefix     string
	HTTPClient *http.Client
}

// NewClient creates a client for the server at baseURL, with every endpoint
// mounted below prefix.
func NewClient(baseURL, prefix string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Prefix:  strings.TrimSuffix(prefix, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Search returns the players whose names contain query.
func (c *Client) Search(ctx context.Context, query string) ([]Player, error) {
	var players []Player

	err := c.Request(ctx, http.MethodGet, "/api/search?q="+url.QueryEscape(query), nil, &players)
	if err != nil {
		return nil, fmt.Errorf("failed to search players: %w", err)
	}

	return players, nil
}

// CheckConnection asks whether req.NewPlayerID connects to the chain.
func (c *Client) CheckConnection(ctx context.Context, req ConnectionRequest) (*ConnectionResponse, error) {
	var response ConnectionResponse

	err := c.Request(ctx, http.MethodPost, "/api/check-connection", req, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to check connection: %w", err)
	}

	return &response, nil
}

// RemovePlayer asks the server to truncate chain by one entry.
func (c *Client) RemovePlayer(ctx context.Context, chain []string) (*ConnectionResponse, error) {
	var response ConnectionResponse

	err := c.Request(ctx, http.MethodPost, "/api/remove-player", chain, &response)
	if err != nil {
		return nil, fmt.Errorf("failed to remove player: %w", err)
	}

	return &response, nil
}

// Career returns the teams a player appeared for.
func (c *Client) Career(ctx context.Context, playerID string) ([]CareerEntry, error) {
	var career []CareerEntry

	err := c.Request(ctx, http.MethodGet, "/api/career?player_id="+url.QueryEscape(playerID), nil, &career)
	if err != nil {
		return nil, fmt.Errorf("failed to get career: %w", err)
	}

	return career, nil
}

// Challenge returns today's pair of players.
func (c *Client) Challenge(ctx context.Context) (*Challenge, error) {
	var challenge Challenge

	err := c.Request(ctx, http.MethodGet, "/api/challenge", nil, &challenge)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	return &challenge, nil
}

// Request performs an HTTP request and decodes the JSON response into result.
func (c *Client) Request(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL + c.Prefix + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return resp, nil
}
