package auth

import (
	"context"
	"sync"

	"github.com/youngacademy/platform/internal/models"
)

// StateListener receives the signed-in identity, or nil after sign-out.
type StateListener func(*Identity)

// Client is the provider surface of one application instance. It remembers the
// signed-in identity and its tokens and notifies listeners of every change.
type Client struct {
	service   *Service
	sessionID string

	// emitMu orders state changes with their delivery, so listeners observe
	// transitions in the order they happened.
	emitMu sync.Mutex

	mu        sync.Mutex
	current   *Identity
	tokens    models.SessionTokens
	listeners map[uint64]StateListener
	nextID    uint64
}

// NewClient returns a signed-out Client for the given session id.
func NewClient(service *Service, sessionID string) *Client {
	return &Client{
		service:   service,
		sessionID: sessionID,
		listeners: make(map[uint64]StateListener),
	}
}

// SessionID identifies the client in issued tokens.
func (c *Client) SessionID() string {
	return c.sessionID
}

// SignUp creates an account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (Identity, error) {
	identity, tokens, err := c.service.SignUp(ctx, email, password, displayName, c.sessionID)
	if err != nil {
		return Identity{}, err
	}
	c.transition(&identity, tokens)
	return identity, nil
}

// SignIn authenticates with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (Identity, error) {
	identity, tokens, err := c.service.SignIn(ctx, email, password, c.sessionID)
	if err != nil {
		return Identity{}, err
	}
	c.transition(&identity, tokens)
	return identity, nil
}

// Restore resumes a session from a refresh token.
func (c *Client) Restore(ctx context.Context, refreshToken string) (Identity, error) {
	identity, tokens, err := c.service.Restore(ctx, refreshToken, c.sessionID)
	if err != nil {
		return Identity{}, err
	}
	c.transition(&identity, tokens)
	return identity, nil
}

// SignOut revokes the refresh token and clears the identity.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.tokens.RefreshToken
	c.mu.Unlock()

	c.service.SignOut(ctx, refresh)
	c.transition(nil, models.SessionTokens{})
	return nil
}

// Current returns the signed-in identity or nil.
func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	identity := *c.current
	return &identity
}

// Tokens returns the tokens of the current session.
func (c *Client) Tokens() models.SessionTokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// OnAuthStateChanged registers fn, calls it at once with the current state and
// then after every change. Listeners run synchronously and must not call the
// sign-in or sign-out methods of the same Client.
func (c *Client) OnAuthStateChanged(fn StateListener) (unsubscribe func()) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	fn(c.Current())

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) transition(identity *Identity, tokens models.SessionTokens) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	c.current = identity
	c.tokens = tokens
	listeners := make([]StateListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(c.Current())
	}
}
