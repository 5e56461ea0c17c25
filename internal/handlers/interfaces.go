package handlers

import (
	"context"

	"github.com/youngacademy/platform/internal/auth"
	"github.com/youngacademy/platform/internal/portal"
)

// InstanceRegistry creates and finds the application instances of clients.
type InstanceRegistry interface {
	Create(ctx context.Context) (*portal.Instance, error)
	Get(id string) (*portal.Instance, bool)
	Evict(id string)
}

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	Verify(accessToken string) (auth.Claims, error)
}
