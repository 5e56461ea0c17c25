package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/youngacademy/platform/internal/admin"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/models"
	"github.com/youngacademy/platform/internal/portal"
	"github.com/youngacademy/platform/internal/records"
	"github.com/youngacademy/platform/internal/videos"
)

type fakeThumbnails struct {
	filename    string
	contentType string
	body        string
}

func (f *fakeThumbnails) UploadThumbnail(_ context.Context, filename, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.filename, f.contentType, f.body = filename, contentType, string(data)
	return "https://cdn.example.com/thumbnails/" + filename, nil
}

func signedInAdmin(t *testing.T, env *testEnv) *testClient {
	t.Helper()
	client := env.client()
	if resp := client.signUp(t, "Admin", testAdminEmail); !resp.IsAdmin {
		t.Fatal("expected bootstrap admin")
	}
	return client
}

func courseBody(title string, videos ...models.CourseVideo) courseRequest {
	return courseRequest{
		CourseFields: admin.CourseFields{
			Title:        title,
			Description:  "Beschreibung",
			TierRequired: models.TierPro,
			Level:        models.LevelIntermediate,
			Instructor:   "Jana",
		},
		Videos: videos,
	}
}

func TestAdminHandlerRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	client := env.client()
	client.signUp(t, "", "learner@example.com")

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/admin/courses"},
		{http.MethodPost, "/api/v1/admin/courses"},
		{http.MethodDelete, "/api/v1/admin/courses/x?confirm=true"},
		{http.MethodGet, "/api/v1/admin/users"},
		{http.MethodPost, "/api/v1/admin/videos/lookup"},
	}
	for _, p := range paths {
		if rec := client.do(t, p.method, p.path, nil); rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected status %d got %d", p.method, p.path, http.StatusForbidden, rec.Code)
		}
	}

	if rec := env.client().do(t, http.MethodGet, "/api/v1/admin/courses", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("signed-out callers must be rejected with %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAdminHandlerCourseLifecycle(t *testing.T) {
	env := newTestEnv(t)
	client := signedInAdmin(t, env)
	ctx := context.Background()

	rec := client.do(t, http.MethodPost, "/api/v1/admin/courses", courseBody("REST APIs",
		models.CourseVideo{Title: "Intro", YouTubeURL: "https://youtu.be/a", Duration: 10},
		models.CourseVideo{Title: "Routing", YouTubeURL: "https://youtu.be/b", Duration: 25},
	))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	created := decode[map[string]any](t, rec)
	id, _ := created["id"].(string)
	if id == "" || created["duration"] != float64(35) {
		t.Fatalf("unexpected create response %+v", created)
	}

	doc, err := env.store.Get(ctx, models.CollectionCourses, id)
	if err != nil {
		t.Fatalf("expected stored course: %v", err)
	}
	stored, err := records.DecodeCourse(doc)
	if err != nil {
		t.Fatalf("decode course: %v", err)
	}
	if stored.Duration != 35 || len(stored.Videos) != 2 || stored.Videos[0].ID == "" || stored.Videos[1].Order != 2 {
		t.Fatalf("unexpected stored course %+v", stored)
	}

	eventually(t, "admin list shows course", func() bool {
		list := decode[map[string][]models.Course](t, client.do(t, http.MethodGet, "/api/v1/admin/courses", nil))
		return len(list["courses"]) == 1 && list["courses"][0].ID == id
	})

	keep := stored.Videos[1]
	keep.Duration = 30
	rec = client.do(t, http.MethodPut, "/api/v1/admin/courses/"+id, courseBody("REST APIs mit Go", keep))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	doc, _ = env.store.Get(ctx, models.CollectionCourses, id)
	updated, _ := records.DecodeCourse(doc)
	if updated.Title != "REST APIs mit Go" || updated.Duration != 30 {
		t.Fatalf("unexpected updated course %+v", updated)
	}
	if len(updated.Videos) != 1 || updated.Videos[0].ID != keep.ID || updated.Videos[0].Order != 1 {
		t.Fatalf("expected remaining video to keep its id, got %+v", updated.Videos)
	}
	if !updated.CreatedAt.Equal(stored.CreatedAt) {
		t.Fatal("update must keep the creation time")
	}

	if rec := client.do(t, http.MethodDelete, "/api/v1/admin/courses/"+id, nil); rec.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected status %d got %d", http.StatusPreconditionRequired, rec.Code)
	}
	if _, err := env.store.Get(ctx, models.CollectionCourses, id); err != nil {
		t.Fatal("unconfirmed delete must keep the course")
	}

	if rec := client.do(t, http.MethodDelete, "/api/v1/admin/courses/"+id+"?confirm=true", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d got %d", http.StatusNoContent, rec.Code)
	}
	if _, err := env.store.Get(ctx, models.CollectionCourses, id); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected course to be deleted, got %v", err)
	}
}

func TestAdminHandlerCourseValidation(t *testing.T) {
	env := newTestEnv(t)
	client := signedInAdmin(t, env)

	rec := client.do(t, http.MethodPost, "/api/v1/admin/courses", courseBody(""))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d got %d", http.StatusUnprocessableEntity, rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if len(resp.Fields) == 0 {
		t.Fatal("expected field errors")
	}

	body := courseBody("Negativ")
	body.Price = -1
	if rec := client.do(t, http.MethodPost, "/api/v1/admin/courses", body); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	if rec := client.do(t, http.MethodPut, "/api/v1/admin/courses/missing", courseBody("Neu")); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}

func TestAdminHandlerUsers(t *testing.T) {
	env := newTestEnv(t)
	learner := env.client().signUp(t, "Learner", "learner@example.com")
	client := signedInAdmin(t, env)

	type usersResponse struct {
		Users []userEntry `json:"users"`
	}
	var list usersResponse
	eventually(t, "both users listed", func() bool {
		list = decode[usersResponse](t, client.do(t, http.MethodGet, "/api/v1/admin/users", nil))
		return len(list.Users) == 2
	})
	for _, u := range list.Users {
		want := u.Email != testAdminEmail
		if u.CanToggle != want {
			t.Fatalf("user %s: expected canToggle %v", u.Email, want)
		}
	}

	rec := client.do(t, http.MethodPost, "/api/v1/admin/users/"+learner.User.UID+"/admin", toggleRequest{IsAdmin: false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if resp := decode[map[string]bool](t, rec); !resp["isAdmin"] {
		t.Fatal("expected learner to become admin")
	}
	doc, err := env.store.Get(context.Background(), models.CollectionUsers, learner.User.UID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if doc.Data["isAdmin"] != true {
		t.Fatalf("expected stored admin flag, got %v", doc.Data["isAdmin"])
	}

	var adminUID string
	for _, u := range list.Users {
		if u.Email == testAdminEmail {
			adminUID = u.UID
		}
	}
	if rec := client.do(t, http.MethodPost, "/api/v1/admin/users/"+adminUID+"/admin", toggleRequest{IsAdmin: true}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected bootstrap admin to be protected, got %d", rec.Code)
	}
	if rec := client.do(t, http.MethodPost, "/api/v1/admin/users/missing/admin", toggleRequest{}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}

func TestAdminHandlerLookupVideo(t *testing.T) {
	provider := videos.ProviderFunc(func(_ context.Context, url string) (videos.Metadata, error) {
		switch url {
		case "https://youtu.be/ok":
			return videos.Metadata{Title: "Intro", DurationSeconds: 150, Thumbnail: "https://img/1.jpg"}, nil
		case "ftp://nope":
			return videos.Metadata{}, videos.ErrUnsupportedURL
		}
		return videos.Metadata{}, errors.New("yt-dlp exited with status 1")
	})
	env := newTestEnv(t, withPortal(func(d *portal.Deps) { d.Metadata = provider }))
	client := signedInAdmin(t, env)

	rec := client.do(t, http.MethodPost, "/api/v1/admin/videos/lookup", lookupRequest{URL: "https://youtu.be/ok"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	resp := decode[lookupResponse](t, rec)
	if resp.Title != "Intro" || resp.DurationSeconds != 150 || resp.DurationMinutes != 3 {
		t.Fatalf("unexpected lookup response %+v", resp)
	}

	tests := []struct {
		url    string
		status int
	}{
		{url: "", status: http.StatusBadRequest},
		{url: "ftp://nope", status: http.StatusBadRequest},
		{url: "https://youtu.be/broken", status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		if rec := client.do(t, http.MethodPost, "/api/v1/admin/videos/lookup", lookupRequest{URL: tt.url}); rec.Code != tt.status {
			t.Fatalf("url %q: expected status %d got %d", tt.url, tt.status, rec.Code)
		}
	}
}

func TestAdminHandlerLookupVideoWithoutProvider(t *testing.T) {
	env := newTestEnv(t)
	client := signedInAdmin(t, env)

	rec := client.do(t, http.MethodPost, "/api/v1/admin/videos/lookup", lookupRequest{URL: "https://youtu.be/ok"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d got %d", http.StatusServiceUnavailable, rec.Code)
	}
}

func thumbnailRequest(t *testing.T, field, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="cover.png"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/courses/thumbnail", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAdminHandlerThumbnail(t *testing.T) {
	thumbs := &fakeThumbnails{}
	env := newTestEnv(t, withPortal(func(d *portal.Deps) { d.Thumbnails = thumbs }))
	client := signedInAdmin(t, env)

	rec := client.request(t, thumbnailRequest(t, "file", "image/png"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if resp := decode[map[string]string](t, rec); resp["thumbnailUrl"] != "https://cdn.example.com/thumbnails/cover.png" {
		t.Fatalf("unexpected thumbnail url %q", resp["thumbnailUrl"])
	}
	if thumbs.contentType != "image/png" || thumbs.body != "png-bytes" {
		t.Fatalf("unexpected upload %+v", thumbs)
	}

	if rec := client.request(t, thumbnailRequest(t, "image", "image/png")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestAdminHandlerThumbnailDisabled(t *testing.T) {
	env := newTestEnv(t)
	client := signedInAdmin(t, env)

	if rec := client.request(t, thumbnailRequest(t, "file", "image/png")); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d got %d", http.StatusServiceUnavailable, rec.Code)
	}
}
