package auth

import (
	"context"
	"sync"
	"time"
)

// Account is a credential record held by the authentication provider. It is
// separate from the application profile in the users collection.
type Account struct {
	UID          string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Directory stores accounts. Create reports ErrEmailInUse for a taken address and
// the finders report ErrAccountNotFound.
type Directory interface {
	Create(ctx context.Context, account Account) error
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, uid string) (Account, error)
}

// MemoryDirectory is an in-process Directory.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

// NewMemoryDirectory returns an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
}

// Create stores a new account.
func (d *MemoryDirectory) Create(_ context.Context, account Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[account.Email]; exists {
		return ErrEmailInUse
	}
	d.byID[account.UID] = account
	d.byEmail[account.Email] = account.UID
	return nil
}

// FindByEmail looks an account up by its normalised address.
func (d *MemoryDirectory) FindByEmail(_ context.Context, email string) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	uid, ok := d.byEmail[email]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return d.byID[uid], nil
}

// FindByID looks an account up by uid.
func (d *MemoryDirectory) FindByID(_ context.Context, uid string) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	account, ok := d.byID[uid]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}
