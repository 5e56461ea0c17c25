package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/youngacademy/platform/internal/auth"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/portal"
	"github.com/youngacademy/platform/internal/records"
)

const (
	testAdminEmail = "admin@example.com"
	testPassword   = "secret1"
)

type testEnv struct {
	store    *docstore.MemoryStore
	service  *auth.Service
	registry *portal.Registry
	handler  http.Handler
}

type envOption func(*portal.Deps, *Dependencies)

func withLimiter(limiter RateLimiter) envOption {
	return func(_ *portal.Deps, deps *Dependencies) { deps.AuthLimiter = limiter }
}

func withPortal(fn func(*portal.Deps)) envOption {
	return func(p *portal.Deps, _ *Dependencies) { fn(p) }
}

func withHeartbeat(d time.Duration) envOption {
	return func(_ *portal.Deps, deps *Dependencies) { deps.Heartbeat = d }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := docstore.NewMemoryStore()
	tokens := auth.NewManager([]byte("test-secret"), time.Minute, time.Hour, auth.NewMemorySessionStore())
	service := auth.NewService(auth.NewMemoryDirectory(), tokens)
	service.HashCost = bcrypt.MinCost

	portalDeps := portal.Deps{Store: store, Auth: service, BootstrapEmail: testAdminEmail}
	deps := Dependencies{Tokens: service}
	for _, opt := range opts {
		opt(&portalDeps, &deps)
	}

	registry := portal.NewRegistry(portalDeps, time.Hour)
	deps.Instances = registry

	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)

	t.Cleanup(func() {
		registry.Close()
		store.Close()
	})

	return &testEnv{store: store, service: service, registry: registry, handler: mux}
}

// testClient keeps the cookies a browser would.
type testClient struct {
	env     *testEnv
	cookies map[string]*http.Cookie
	bearer  string
}

func (e *testEnv) client() *testClient {
	return &testClient{env: e, cookies: make(map[string]*http.Cookie)}
}

func (c *testClient) request(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	rec := httptest.NewRecorder()
	c.env.handler.ServeHTTP(rec, req)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

func (c *testClient) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.request(t, req)
}

func (c *testClient) signUp(t *testing.T, name, email string) sessionResponse {
	t.Helper()
	rec := c.do(t, http.MethodPost, "/api/v1/auth/signup", signUpRequest{
		Name:            name,
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		AgreeToTerms:    true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup %s: expected status %d got %d: %s", email, http.StatusCreated, rec.Code, rec.Body.String())
	}
	return decode[sessionResponse](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// eventually polls cond until it holds or two seconds pass. Live views update
// asynchronously after writes.
func eventually(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met: %s", msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func seedCourse(t *testing.T, store docstore.Store, course models.Course) string {
	t.Helper()
	data, err := records.Encode(course)
	if err != nil {
		t.Fatalf("encode course: %v", err)
	}
	delete(data, docstore.FieldCreatedAt)
	delete(data, docstore.FieldUpdatedAt)
	id, err := store.Add(context.Background(), models.CollectionCourses, data)
	if err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return id
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }
