package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloomhouse/cartsync/internal/events"
	"github.com/bloomhouse/cartsync/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

const TokenKey = "authToken"

// Credentials reads and writes the bearer token. The token may live in the
// persistent scope ("remember me") or in the session scope; persistent wins.
// Its presence is the only authentication signal the cart observes.
type Credentials struct {
	persistent Storage
	session    Storage
	bus        *events.Bus
}

func NewCredentials(persistent, session Storage, bus *events.Bus) *Credentials {
	return &Credentials{persistent: persistent, session: session, bus: bus}
}

// Token returns the stored token or "".
func (c *Credentials) Token(ctx context.Context) string {
	for _, s := range []Storage{c.persistent, c.session} {
		if s == nil {
			continue
		}
		token, err := s.Get(ctx, TokenKey)
		if err == nil && token != "" {
			return token
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			logger.Warn("Failed to read auth token", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return ""
}

// UserID returns the user the stored token was issued for, or "" when there
// is no token or it carries no user claim. The signature is not verified;
// the server does that.
func (c *Credentials) UserID(ctx context.Context) string {
	token := c.Token(ctx)
	if token == "" {
		return ""
	}
	id, err := UserIDFromToken(token)
	if err != nil {
		logger.Warn("Failed to read user from auth token", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	return id
}

// Set stores token in the persistent scope when remember is true, otherwise
// in the session scope, and announces the change.
func (c *Credentials) Set(ctx context.Context, token string, remember bool) error {
	target, other := c.session, c.persistent
	if remember {
		target, other = c.persistent, c.session
	}
	if target == nil {
		return fmt.Errorf("no storage for requested credential scope")
	}
	if err := target.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("failed to store auth token: %w", err)
	}
	if other != nil {
		if err := other.Delete(ctx, TokenKey); err != nil {
			logger.Warn("Failed to remove auth token from other scope", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	c.publish()
	return nil
}

// Clear removes the token from both scopes and announces the change.
func (c *Credentials) Clear(ctx context.Context) {
	for _, s := range []Storage{c.persistent, c.session} {
		if s == nil {
			continue
		}
		if err := s.Delete(ctx, TokenKey); err != nil {
			logger.Warn("Failed to remove auth token", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	c.publish()
}

func (c *Credentials) publish() {
	if c.bus != nil {
		c.bus.Publish(events.StorageChanged{Key: TokenKey})
	}
}

// UserIDFromToken extracts the user_id claim, falling back to sub.
func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("malformed auth token: %w", err)
	}
	if v, ok := claims["user_id"]; ok {
		switch id := v.(type) {
		case string:
			if id != "" {
				return id, nil
			}
		case float64:
			return fmt.Sprintf("%.0f", id), nil
		}
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	return sub, nil
}
