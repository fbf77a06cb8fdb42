package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
)

// ErrNotConnected is returned when a command is sent without a live
// socket.
var ErrNotConnected = errors.New("client: not connected")

// ErrUnauthorized is returned when the server rejects the session token.
var ErrUnauthorized = errors.New("client: session rejected")

// pollLoop runs fn on the given interval. Poll failures are logged and
// retried; they only stop on context cancellation or a 401, which means
// the socket is about to be rejected too.
func (c *Client) pollLoop(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				if errors.Is(err, ErrUnauthorized) {
					return err
				}
				slog.Debug("poll failed", "error", err)
			}
		}
	}
}

func (c *Client) pollAgents(ctx context.Context) error {
	var agents []agent.Agent
	if err := c.getJSON(ctx, "/api/agents", &agents); err != nil {
		return err
	}
	c.replace(func(s *Snapshot) {
		s.Agents = agents
		s.UpdatedAt = time.Now()
	})
	return nil
}

func (c *Client) pollAlerts(ctx context.Context) error {
	var alerts []alert.Alert
	if err := c.getJSON(ctx, "/api/alerts", &alerts); err != nil {
		return err
	}
	c.replace(func(s *Snapshot) {
		s.Alerts = alerts
		s.UpdatedAt = time.Now()
	})
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
