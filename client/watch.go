package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/fasthttp/websocket"
)

type notice struct {
	Type string `json:"type"`
}

// WebSocketURL turns an API base URL into its /ws endpoint for token.
func WebSocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// Watch listens for invalidation notices on wsURL and refreshes c on each.
// It returns when ctx is done or the connection drops.
func Watch(ctx context.Context, wsURL string, c *Cache) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("notice stream closed: %w", err)
		}

		var n notice
		if err := json.Unmarshal(data, &n); err != nil || n.Type != "tasks_invalidated" {
			continue
		}
		// A failed refresh is reported through the cache's notifier.
		_ = c.Refresh(ctx)
	}
}
