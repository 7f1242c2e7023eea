package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bloomhouse/cartsync/pkg/logger"
	"github.com/gorilla/websocket"
)

const cartUpdatedEvent = "cart.updated"

type feedEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WatchCart subscribes to the server's cart feed and calls onChange with
// every pushed cart. It blocks until ctx is done (returning nil) or the
// connection fails.
func (c *Client) WatchCart(ctx context.Context, onChange func(*RemoteCart)) error {
	token := c.tokens.Token(ctx)
	if token == "" {
		return ErrNotAuthenticated
	}

	feedURL, err := c.feedURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	dialer := websocket.Dialer{HandshakeTimeout: c.httpClient.Timeout}

	conn, resp, err := dialer.DialContext(ctx, feedURL, header)
	if err != nil {
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: genericFailureMessage}
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer conn.Close()

	logger.Debug("Cart feed connected", nil)

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		var event feedEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			logger.Warn("Ignoring malformed cart feed message", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}
		if event.Type != cartUpdatedEvent {
			continue
		}

		var rc *RemoteCart
		if len(event.Data) > 0 {
			if err := json.Unmarshal(event.Data, &rc); err != nil {
				logger.Warn("Ignoring malformed cart in feed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
		}
		if rc == nil {
			logger.Warn("Ignoring cart feed event without a cart", nil)
			continue
		}
		onChange(rc)
	}
}

func (c *Client) feedURL() (string, error) {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/cart/ws", nil
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/cart/ws", nil
	}
	return "", errors.New("invalid config: base url must be http or https")
}
