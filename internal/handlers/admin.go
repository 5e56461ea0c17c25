package handlers

import (
	"net/http"
	"strconv"

	"github.com/youngacademy/platform/internal/admin"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/portal"
)

const maxThumbnailBytes = 5 << 20

// AdminHandler exposes the course editor and the user manager of an admin's
// instance.
type AdminHandler struct{}

type courseRequest struct {
	admin.CourseFields
	Videos []models.CourseVideo `json:"videos"`
}

type lookupRequest struct {
	URL string `json:"url"`
}

type lookupResponse struct {
	Title           string `json:"title"`
	DurationSeconds int    `json:"durationSeconds"`
	DurationMinutes int    `json:"durationMinutes"`
	Thumbnail       string `json:"thumbnail,omitempty"`
}

type toggleRequest struct {
	IsAdmin bool `json:"isAdmin"`
}

type userEntry struct {
	models.User
	CanToggle bool `json:"canToggle"`
}

// Courses handles GET /api/v1/admin/courses.
func (AdminHandler) Courses(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	editor, err := inst.CourseEditor()
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	list, err := editor.Courses(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]models.Course{"courses": list})
}

// Create handles POST /api/v1/admin/courses.
func (h AdminHandler) Create(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	h.save(w, r, inst, "")
}

// Update handles PUT /api/v1/admin/courses/{id}. The submitted video list
// replaces the stored one.
func (h AdminHandler) Update(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	h.save(w, r, inst, r.PathValue("id"))
}

func (AdminHandler) save(w http.ResponseWriter, r *http.Request, inst *portal.Instance, courseID string) {
	ctx := r.Context()
	editor, err := inst.CourseEditor()
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var req courseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if courseID == "" {
		editor.New()
	} else if err := editor.EditByID(ctx, courseID); err != nil {
		respondError(ctx, w, err)
		return
	}
	editor.SetFields(req.CourseFields)
	editor.SetVideos(req.Videos)
	form := editor.Form()

	id, err := editor.Save(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if courseID == "" {
		status = http.StatusCreated
	}
	respondJSON(ctx, w, status, map[string]any{"id": id, "duration": form.Duration()})
}

// Delete handles DELETE /api/v1/admin/courses/{id}?confirm=true.
func (AdminHandler) Delete(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	editor, err := inst.CourseEditor()
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := editor.Delete(ctx, r.PathValue("id"), confirmed); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Thumbnail handles POST /api/v1/admin/courses/thumbnail with a multipart "file".
func (AdminHandler) Thumbnail(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	editor, err := inst.CourseEditor()
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxThumbnailBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	url, err := editor.UploadThumbnail(ctx, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]string{"thumbnailUrl": url})
}

// LookupVideo handles POST /api/v1/admin/videos/lookup.
func (AdminHandler) LookupVideo(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	editor, err := inst.CourseEditor()
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var req lookupRequest
	if err := decodeJSON(r, &req); err != nil || req.URL == "" {
		respondMessage(ctx, w, http.StatusBadRequest, "url is required")
		return
	}

	meta, err := editor.LookupVideo(ctx, req.URL)
	if err != nil {
		if ctx.Err() == nil && statusFor(err) == http.StatusInternalServerError {
			respondMessage(ctx, w, http.StatusBadGateway, "video metadata lookup failed")
			return
		}
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, lookupResponse{
		Title:           meta.Title,
		DurationSeconds: meta.DurationSeconds,
		DurationMinutes: meta.DurationMinutes(),
		Thumbnail:       meta.Thumbnail,
	})
}

// Users handles GET /api/v1/admin/users.
func (AdminHandler) Users(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	manager, err := inst.UserManager()
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	list, err := manager.Users(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	entries := make([]userEntry, 0, len(list))
	for _, u := range list {
		entries = append(entries, userEntry{User: u, CanToggle: manager.CanToggle(u)})
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]userEntry{"users": entries})
}

// ToggleAdmin handles POST /api/v1/admin/users/{id}/admin. The body carries the
// flag the caller currently sees; the stored flag becomes its negation.
func (AdminHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request, inst *portal.Instance) {
	ctx := r.Context()
	manager, err := inst.UserManager()
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := manager.ToggleAdmin(ctx, r.PathValue("id"), req.IsAdmin); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"isAdmin": !req.IsAdmin})
}
