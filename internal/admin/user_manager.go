package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/live"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/records"
	"github.com/youngacademy/platform/internal/session"
)

// ErrProtectedAccount is returned when toggling the bootstrap admin.
var ErrProtectedAccount = errors.New("the bootstrap admin cannot be changed")

// UserManager lists users and flips their admin flag.
type UserManager struct {
	store     docstore.Store
	users     *live.Query[models.User]
	bootstrap string
}

// NewUserManager opens the live user list. ctx bounds its subscription.
func NewUserManager(ctx context.Context, store docstore.Store, bootstrapEmail string) (*UserManager, error) {
	m := &UserManager{
		store:     store,
		users:     live.New(store, records.DecodeUser),
		bootstrap: bootstrapEmail,
	}
	if err := m.users.Watch(ctx, models.CollectionUsers); err != nil {
		return nil, fmt.Errorf("watch users: %w", err)
	}
	return m, nil
}

// Close releases the user subscription.
func (m *UserManager) Close() {
	m.users.Close()
}

// UsersQuery exposes the live user list.
func (m *UserManager) UsersQuery() *live.Query[models.User] { return m.users }

// Users returns every user.
func (m *UserManager) Users(ctx context.Context) ([]models.User, error) {
	if err := m.users.WaitReady(ctx); err != nil {
		return nil, err
	}
	return m.users.Data(), nil
}

// CanToggle reports whether the admin flag of user may be changed.
func (m *UserManager) CanToggle(user models.User) bool {
	return !session.IsBootstrapAdmin(user.Email, m.bootstrap)
}

// ToggleAdmin stores isAdmin = !current for the user. Calling it twice with the
// same current value leaves the same state behind.
func (m *UserManager) ToggleAdmin(ctx context.Context, userID string, current bool) error {
	doc, err := m.store.Get(ctx, models.CollectionUsers, userID)
	if err != nil {
		return fmt.Errorf("toggle admin: %w", err)
	}
	if email, _ := doc.Data["email"].(string); session.IsBootstrapAdmin(email, m.bootstrap) {
		return ErrProtectedAccount
	}

	if err := m.store.Update(ctx, models.CollectionUsers, userID, map[string]any{"isAdmin": !current}); err != nil {
		return fmt.Errorf("toggle admin: %w", err)
	}
	logging.FromContext(ctx).Info("admin flag changed",
		slog.String("uid", userID),
		slog.Bool("is_admin", !current),
	)
	return nil
}
