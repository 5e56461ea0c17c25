// Package session holds the identity of the signed-in user for one application
// instance and keeps the user's profile document in step with the authentication
// provider.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/youngacademy/platform/internal/auth"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/records"
)

// DefaultBootstrapAdminEmail is the address that is always treated as an admin
// unless configured otherwise.
const DefaultBootstrapAdminEmail = "admin@young-academy.dev"

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("not signed in")

// Provider is the authentication surface the holder depends on.
type Provider interface {
	SignUp(ctx context.Context, email, password, displayName string) (auth.Identity, error)
	SignIn(ctx context.Context, email, password string) (auth.Identity, error)
	SignOut(ctx context.Context) error
	Restore(ctx context.Context, refreshToken string) (auth.Identity, error)
	OnAuthStateChanged(fn auth.StateListener) (unsubscribe func())
}

// Listener is notified with the held user after every change, nil when signed out.
type Listener func(*models.User)

// IsBootstrapAdmin reports whether email is the bootstrap-admin address.
func IsBootstrapAdmin(email, bootstrap string) bool {
	return email != "" && strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(bootstrap))
}

// Holder exposes the current user and the session actions of one application
// instance. It is passed explicitly to the views that need it.
type Holder struct {
	provider  Provider
	store     docstore.Store
	bootstrap string
	NowFunc   func() time.Time

	ctx         context.Context
	unsubscribe func()

	mu        sync.RWMutex
	user      *models.User
	ready     bool
	syncErr   error
	listeners map[uint64]Listener
	nextID    uint64
}

// NewHolder constructs a Holder. An empty bootstrap address falls back to
// DefaultBootstrapAdminEmail.
func NewHolder(provider Provider, store docstore.Store, bootstrapEmail string) *Holder {
	if bootstrapEmail == "" {
		bootstrapEmail = DefaultBootstrapAdminEmail
	}
	return &Holder{
		provider:  provider,
		store:     store,
		bootstrap: auth.NormalizeEmail(bootstrapEmail),
		listeners: make(map[uint64]Listener),
	}
}

// Start subscribes to the provider's state events. ctx bounds every profile read
// and write the holder performs on behalf of those events.
func (h *Holder) Start(ctx context.Context) {
	h.ctx = ctx
	h.unsubscribe = h.provider.OnAuthStateChanged(h.handle)
}

// Close stops listening to provider events.
func (h *Holder) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
}

// BootstrapEmail returns the configured bootstrap-admin address.
func (h *Holder) BootstrapEmail() string {
	return h.bootstrap
}

// SignUp creates an account and writes its initial profile document.
func (h *Holder) SignUp(ctx context.Context, email, password, displayName string) error {
	identity, err := h.provider.SignUp(ctx, email, password, displayName)
	if err != nil {
		return err
	}

	user := models.User{
		UID:         identity.UID,
		Email:       identity.Email,
		DisplayName: displayName,
		IsAdmin:     IsBootstrapAdmin(identity.Email, h.bootstrap),
		CreatedAt:   h.now(),
	}
	if err := h.writeProfile(ctx, user); err != nil {
		return err
	}
	return h.Err()
}

// SignIn authenticates with email and password.
func (h *Holder) SignIn(ctx context.Context, email, password string) error {
	if _, err := h.provider.SignIn(ctx, email, password); err != nil {
		return err
	}
	return h.Err()
}

// Restore resumes a session from a refresh token.
func (h *Holder) Restore(ctx context.Context, refreshToken string) error {
	if _, err := h.provider.Restore(ctx, refreshToken); err != nil {
		return err
	}
	return h.Err()
}

// Logout signs the user out.
func (h *Holder) Logout(ctx context.Context) error {
	return h.provider.SignOut(ctx)
}

// User returns a copy of the held user or nil.
func (h *Holder) User() *models.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return copyUser(h.user)
}

// IsAdmin reports whether the held user is an admin. It is false when signed out.
func (h *Holder) IsAdmin() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.user != nil && h.user.IsAdmin
}

// Ready reports whether the first provider event has been processed.
func (h *Holder) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Err returns the error of the last profile synchronisation, if it failed.
func (h *Holder) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.syncErr
}

// OnChange registers fn and calls it at once with the current user.
func (h *Holder) OnChange(fn Listener) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	user := copyUser(h.user)
	h.mu.Unlock()

	fn(user)

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *Holder) handle(identity *auth.Identity) {
	ctx := h.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if identity == nil {
		h.set(nil, nil)
		return
	}

	ctx = logging.With(ctx, slog.String("uid", identity.UID))
	user, err := h.loadProfile(ctx, *identity)
	if err != nil {
		logging.FromContext(ctx).Error("load user profile", slog.Any("error", err))
		h.set(nil, err)
		return
	}
	h.set(&user, nil)
}

func (h *Holder) loadProfile(ctx context.Context, identity auth.Identity) (models.User, error) {
	bootstrap := IsBootstrapAdmin(identity.Email, h.bootstrap)

	doc, err := h.store.Get(ctx, models.CollectionUsers, identity.UID)
	if errors.Is(err, docstore.ErrNotFound) {
		user := models.User{
			UID:         identity.UID,
			Email:       identity.Email,
			DisplayName: identity.DisplayName,
			IsAdmin:     bootstrap,
			CreatedAt:   h.now(),
		}
		if err := h.writeProfile(ctx, user); err != nil {
			return models.User{}, err
		}
		return user, nil
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user profile: %w", err)
	}

	stored, err := records.DecodeUser(doc)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		UID:          identity.UID,
		Email:        identity.Email,
		DisplayName:  identity.DisplayName,
		IsAdmin:      stored.IsAdmin || bootstrap,
		CreatedAt:    stored.CreatedAt,
		Subscription: stored.Subscription,
	}
	if user.DisplayName == "" {
		user.DisplayName = stored.DisplayName
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = h.now()
	}
	return user, nil
}

func (h *Holder) writeProfile(ctx context.Context, user models.User) error {
	data, err := records.Encode(user)
	if err != nil {
		return err
	}
	data[docstore.FieldCreatedAt] = user.CreatedAt
	if err := h.store.Set(ctx, models.CollectionUsers, user.UID, data); err != nil {
		return fmt.Errorf("write user profile: %w", err)
	}
	return nil
}

func (h *Holder) set(user *models.User, err error) {
	h.mu.Lock()
	h.user = user
	h.syncErr = err
	h.ready = true
	listeners := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(copyUser(user))
	}
}

func (h *Holder) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Subscription != nil {
		sub := *u.Subscription
		out.Subscription = &sub
	}
	return &out
}
