package handlers

import (
	"net/http"
	"time"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Instances     InstanceRegistry
	Tokens        TokenVerifier
	AuthLimiter   RateLimiter
	SecureCookies bool
	Heartbeat     time.Duration
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	instances := Instances{Registry: deps.Instances, Tokens: deps.Tokens, SecureCookies: deps.SecureCookies}

	var counter InstanceCounter
	if c, ok := deps.Instances.(InstanceCounter); ok {
		counter = c
	}
	health := HealthHandler{Instances: counter}
	landing := LandingHandler{}
	auth := AuthHandler{Instances: instances, Limiter: deps.AuthLimiter}
	courses := CatalogHandler{}
	admin := AdminHandler{}
	live := LiveHandler{Heartbeat: deps.Heartbeat}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("GET /{$}", instances.optional(landing.Handle))

	mux.HandleFunc("POST /api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.HandleFunc("POST /api/v1/auth/logout", instances.optional(auth.Logout))
	mux.HandleFunc("GET /api/v1/auth/session", instances.optional(auth.Session))

	mux.HandleFunc("GET /api/v1/courses", instances.with(courses.List))
	mux.HandleFunc("GET /api/v1/courses/{id}", instances.with(courses.Player))
	mux.HandleFunc("POST /api/v1/courses/{id}/acquire", instances.with(courses.Acquire))
	mux.HandleFunc("POST /api/v1/courses/{id}/videos/{videoId}/complete", instances.with(courses.Complete))

	mux.HandleFunc("GET /api/v1/admin/courses", instances.with(admin.Courses))
	mux.HandleFunc("POST /api/v1/admin/courses", instances.with(admin.Create))
	mux.HandleFunc("PUT /api/v1/admin/courses/{id}", instances.with(admin.Update))
	mux.HandleFunc("DELETE /api/v1/admin/courses/{id}", instances.with(admin.Delete))
	mux.HandleFunc("POST /api/v1/admin/courses/thumbnail", instances.with(admin.Thumbnail))
	mux.HandleFunc("POST /api/v1/admin/videos/lookup", instances.with(admin.LookupVideo))
	mux.HandleFunc("GET /api/v1/admin/users", instances.with(admin.Users))
	mux.HandleFunc("POST /api/v1/admin/users/{id}/admin", instances.with(admin.ToggleAdmin))

	mux.HandleFunc("GET /api/v1/live/{collection}", instances.with(live.Stream))
}
