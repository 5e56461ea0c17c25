// Package auth is the authentication provider: it owns credential accounts,
// password hashing and token issuance, and exposes a per-client Client that
// publishes authentication state changes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/youngacademy/platform/internal/models"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// Identity is the authenticated user as the provider knows it.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// Service signs users up and in against a Directory and issues tokens. It is
// shared by every client of the process.
type Service struct {
	accounts Directory
	tokens   *Manager

	// HashCost is the bcrypt cost used for new passwords.
	HashCost int
	NowFunc  func() time.Time
}

// NewService constructs a Service.
func NewService(accounts Directory, tokens *Manager) *Service {
	return &Service{accounts: accounts, tokens: tokens, HashCost: bcrypt.DefaultCost}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an account and signs it in for sessionID.
func (s *Service) SignUp(ctx context.Context, email, password, displayName, sessionID string) (Identity, models.SessionTokens, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return Identity{}, models.SessionTokens{}, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return Identity{}, models.SessionTokens{}, ErrWeakPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.HashCost)
	if err != nil {
		return Identity{}, models.SessionTokens{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := Account{
		UID:          uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return Identity{}, models.SessionTokens{}, err
	}

	return s.issue(ctx, account, sessionID)
}

// SignIn checks the credentials and signs the account in for sessionID.
func (s *Service) SignIn(ctx context.Context, email, password, sessionID string) (Identity, models.SessionTokens, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, models.SessionTokens{}, ErrInvalidCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Identity{}, models.SessionTokens{}, ErrInvalidCredentials
		}
		return Identity{}, models.SessionTokens{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Identity{}, models.SessionTokens{}, ErrInvalidCredentials
	}

	return s.issue(ctx, account, sessionID)
}

// Restore exchanges a refresh token for a new token pair bound to sessionID.
func (s *Service) Restore(ctx context.Context, refreshToken, sessionID string) (Identity, models.SessionTokens, error) {
	session, err := s.tokens.Redeem(ctx, refreshToken)
	if err != nil {
		return Identity{}, models.SessionTokens{}, err
	}

	account, err := s.accounts.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Identity{}, models.SessionTokens{}, ErrSessionNotFound
		}
		return Identity{}, models.SessionTokens{}, err
	}

	return s.issue(ctx, account, sessionID)
}

// SignOut revokes the refresh token.
func (s *Service) SignOut(ctx context.Context, refreshToken string) {
	s.tokens.Revoke(ctx, refreshToken)
}

// Verify validates an access token.
func (s *Service) Verify(accessToken string) (Claims, error) {
	return s.tokens.Verify(accessToken)
}

func (s *Service) issue(ctx context.Context, account Account, sessionID string) (Identity, models.SessionTokens, error) {
	tokens, err := s.tokens.Issue(ctx, account.UID, account.Email, sessionID)
	if err != nil {
		return Identity{}, models.SessionTokens{}, fmt.Errorf("issue session: %w", err)
	}
	return Identity{UID: account.UID, Email: account.Email, DisplayName: account.DisplayName}, tokens, nil
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
