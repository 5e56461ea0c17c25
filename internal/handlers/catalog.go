package handlers

import (
	"net/http"

	"github.com/youngacademy/platform/internal/catalog"
	"github.com/youngacademy/platform/internal/portal"
)

// CatalogHandler serves the learner's course list and player.
type CatalogHandler struct{}

// List handles GET /api/v1/courses.
func (CatalogHandler) List(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	cards, err := inst.Catalog.Courses(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]catalog.Card{"courses": cards})
}

// Player handles GET /api/v1/courses/{id}; ?video= selects the playing video.
func (CatalogHandler) Player(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	player, err := inst.Catalog.Player(ctx, r.PathValue("id"), r.URL.Query().Get("video"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, player)
}

// Acquire handles POST /api/v1/courses/{id}/acquire.
func (CatalogHandler) Acquire(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	id, err := inst.Catalog.Acquire(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"purchaseId": id})
}

// Complete handles POST /api/v1/courses/{id}/videos/{videoId}/complete.
func (CatalogHandler) Complete(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	id, err := inst.Catalog.MarkVideoCompleted(ctx, r.PathValue("id"), r.PathValue("videoId"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"progressId": id})
}
