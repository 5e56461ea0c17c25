// Package portal owns the application instances: one per browser or API client,
// each bundling the session holder with the live views built on it.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/youngacademy/platform/internal/admin"
	"github.com/youngacademy/platform/internal/auth"
	"github.com/youngacademy/platform/internal/catalog"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/live"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/session"
	"github.com/youngacademy/platform/internal/videos"
)

var (
	// ErrForbidden is returned for admin views requested by a non-admin.
	ErrForbidden = errors.New("admin access required")
	// ErrUnknownCollection is returned by Live for collections without a view.
	ErrUnknownCollection = errors.New("unknown collection")
)

// Deps are the process-wide collaborators every instance shares.
type Deps struct {
	Store          docstore.Store
	Auth           *auth.Service
	BootstrapEmail string
	Thumbnails     admin.ThumbnailStore
	Metadata       videos.Provider
}

// Instance is the state one client holds: its auth client, session holder,
// catalog view and, for admins, the admin views.
type Instance struct {
	ID      string
	Auth    *auth.Client
	Session *session.Holder
	Catalog *catalog.View

	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	editor      *admin.CourseEditor
	users       *admin.UserManager
	lastSeen    time.Time
	unsubscribe func()
}

func newInstance(parent context.Context, id string, deps Deps, now time.Time) (*Instance, error) {
	ctx, cancel := context.WithCancel(logging.WithClientID(parent, id))

	client := auth.NewClient(deps.Auth, id)
	holder := session.NewHolder(client, deps.Store, deps.BootstrapEmail)
	holder.Start(ctx)

	view, err := catalog.NewView(ctx, holder, deps.Store)
	if err != nil {
		holder.Close()
		cancel()
		return nil, err
	}

	inst := &Instance{
		ID:       id,
		Auth:     client,
		Session:  holder,
		Catalog:  view,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: now,
	}
	inst.unsubscribe = holder.OnChange(inst.dropAdminViews)
	return inst, nil
}

// Context is the instance's lifetime context. It ends when the instance closes.
func (i *Instance) Context() context.Context {
	return i.ctx
}

// CourseEditor returns the admin course editor, creating it on first use.
func (i *Instance) CourseEditor() (*admin.CourseEditor, error) {
	if !i.Session.IsAdmin() {
		return nil, ErrForbidden
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.editor == nil {
		var opts []admin.EditorOption
		if i.deps.Thumbnails != nil {
			opts = append(opts, admin.WithThumbnails(i.deps.Thumbnails))
		}
		if i.deps.Metadata != nil {
			opts = append(opts, admin.WithMetadata(i.deps.Metadata))
		}
		editor, err := admin.NewCourseEditor(i.ctx, i.deps.Store, opts...)
		if err != nil {
			return nil, err
		}
		i.editor = editor
	}
	return i.editor, nil
}

// UserManager returns the admin user manager, creating it on first use.
func (i *Instance) UserManager() (*admin.UserManager, error) {
	if !i.Session.IsAdmin() {
		return nil, ErrForbidden
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.users == nil {
		users, err := admin.NewUserManager(i.ctx, i.deps.Store, i.Session.BootstrapEmail())
		if err != nil {
			return nil, err
		}
		i.users = users
	}
	return i.users, nil
}

// Live returns the instance's live view of a collection.
func (i *Instance) Live(collection string) (live.Source, error) {
	switch collection {
	case models.CollectionCourses:
		return i.Catalog.CoursesQuery(), nil
	case models.CollectionPurchases:
		return i.Catalog.PurchasesQuery(), nil
	case models.CollectionProgress:
		return i.Catalog.ProgressQuery(), nil
	case models.CollectionUsers:
		users, err := i.UserManager()
		if err != nil {
			return nil, err
		}
		return users.UsersQuery(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
}

// Touch records activity so the instance is not evicted.
func (i *Instance) Touch(now time.Time) {
	i.mu.Lock()
	i.lastSeen = now
	i.mu.Unlock()
}

// LastSeen returns the time of the last recorded activity.
func (i *Instance) LastSeen() time.Time {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastSeen
}

// Close releases every subscription the instance holds.
func (i *Instance) Close() {
	if i.unsubscribe != nil {
		i.unsubscribe()
	}
	i.dropAdminViews(nil)
	i.Catalog.Close()
	i.Session.Close()
	i.cancel()
	logging.FromContext(i.ctx).Debug("application instance closed", slog.String("client_id", i.ID))
}

// dropAdminViews releases the admin views once the user is no longer an admin.
func (i *Instance) dropAdminViews(user *models.User) {
	if user != nil && user.IsAdmin {
		return
	}
	i.mu.Lock()
	editor, users := i.editor, i.users
	i.editor, i.users = nil, nil
	i.mu.Unlock()

	if editor != nil {
		editor.Close()
	}
	if users != nil {
		users.Close()
	}
}
