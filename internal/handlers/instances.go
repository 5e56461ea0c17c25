package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/youngacademy/platform/internal/auth"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/portal"
	"github.com/youngacademy/platform/internal/session"
)

const (
	clientCookie  = "ya_client"
	refreshCookie = "ya_refresh"
)

// Instances finds the application instance a request belongs to. Bearer tokens
// name their instance in the sid claim. Browsers carry the instance id in a cookie.
// Instances are only created by sign-up, login, or a refresh cookie that restores
// a session, so anonymous traffic never holds server-side state.
type Instances struct {
	Registry      InstanceRegistry
	Tokens        TokenVerifier
	SecureCookies bool
}

// Lookup returns the request's instance, or nil when the caller has none. A
// browser whose instance is gone gets a fresh one only if its refresh cookie
// still restores a session.
func (s Instances) Lookup(w http.ResponseWriter, r *http.Request) (*portal.Instance, error) {
	if token, ok := bearerToken(r); ok {
		return s.fromToken(token)
	}

	if c, err := r.Cookie(clientCookie); err == nil && c.Value != "" {
		if inst, ok := s.Registry.Get(c.Value); ok {
			return inst, nil
		}
	}

	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		return nil, nil
	}

	ctx := r.Context()
	inst, err := s.Registry.Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := inst.Session.Restore(ctx, c.Value); err != nil || inst.Session.User() == nil {
		logging.FromContext(ctx).Warn("restore session from cookie", "client_id", inst.ID, "error", err)
		s.Registry.Evict(inst.ID)
		s.clearRefreshCookie(w)
		return nil, nil
	}
	s.setClientCookie(w, inst.ID)
	s.setRefreshCookie(w, inst)
	return inst, nil
}

// Resolve returns the request's instance, creating one when the caller has none.
// Only the sign-up and login endpoints call it; created reports a new instance
// so they can drop it again when the attempt fails.
func (s Instances) Resolve(w http.ResponseWriter, r *http.Request) (inst *portal.Instance, created bool, err error) {
	inst, err = s.Lookup(w, r)
	if err != nil || inst != nil {
		return inst, false, err
	}
	inst, err = s.Registry.Create(r.Context())
	if err != nil {
		return nil, false, err
	}
	s.setClientCookie(w, inst.ID)
	return inst, true, nil
}

// discard evicts an instance created for a failed sign-in attempt.
func (s Instances) discard(w http.ResponseWriter, inst *portal.Instance) {
	s.Registry.Evict(inst.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s Instances) fromToken(token string) (*portal.Instance, error) {
	if s.Tokens == nil {
		return nil, auth.ErrInvalidToken
	}
	claims, err := s.Tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	inst, ok := s.Registry.Get(claims.SessionID)
	if !ok {
		return nil, fmt.Errorf("client %s: %w", claims.SessionID, auth.ErrSessionNotFound)
	}
	// A token outlives a sign-out on its instance; only the current user's counts.
	if user := inst.Session.User(); user == nil || user.UID != claims.Subject {
		return nil, auth.ErrInvalidToken
	}
	return inst, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s Instances) setClientCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// setRefreshCookie stores the instance's current refresh token so the session can
// be restored after the instance is evicted.
func (s Instances) setRefreshCookie(w http.ResponseWriter, inst *portal.Instance) {
	tokens := inst.Auth.Tokens()
	if tokens.RefreshToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    tokens.RefreshToken,
		Path:     "/",
		Expires:  tokens.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s Instances) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// instanceHandler is a handler that runs against the caller's instance. inst is
// nil for anonymous callers on routes registered with optional.
type instanceHandler func(w http.ResponseWriter, r *http.Request, inst *portal.Instance)

// with runs h against the caller's instance and answers 401 when there is none.
func (s Instances) with(h instanceHandler) http.HandlerFunc {
	return s.handle(h, true)
}

// optional runs h with the caller's instance, or nil for anonymous callers.
func (s Instances) optional(h instanceHandler) http.HandlerFunc {
	return s.handle(h, false)
}

func (s Instances) handle(h instanceHandler, required bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst, err := s.Lookup(w, r)
		if err != nil {
			respondError(r.Context(), w, err)
			return
		}
		if inst == nil {
			if required {
				respondError(r.Context(), w, session.ErrNotAuthenticated)
				return
			}
			h(w, r, nil)
			return
		}
		ctx := logging.WithClientID(r.Context(), inst.ID)
		h(w, r.WithContext(ctx), inst)
	}
}
