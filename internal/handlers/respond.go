package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/youngacademy/platform/internal/admin"
	"github.com/youngacademy/platform/internal/auth"
	"github.com/youngacademy/platform/internal/catalog"
	"github.com/youngacademy/platform/internal/docstore"
	"github.com/youngacademy/platform/internal/logging"
	"github.com/youngacademy/platform/internal/portal"
	"github.com/youngacademy/platform/internal/records"
	"github.com/youngacademy/platform/internal/session"
	"github.com/youngacademy/platform/internal/storage"
	"github.com/youngacademy/platform/internal/videos"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error  string               `json:"error"`
	Fields []records.FieldError `json:"fields,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, errorResponse{Error: message})
}

// respondError maps domain errors onto status codes. Messages of known errors are
// passed through so clients can show them as they are.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	var verr *records.ValidationError
	if errors.As(err, &verr) {
		respondJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Fields: verr.Fields})
		return
	}

	status := statusFor(err)
	message := err.Error()
	for _, target := range userFacing {
		if errors.Is(err, target) {
			message = target.Error()
			break
		}
	}
	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error("unhandled error", "error", err)
		message = "internal server error"
	}
	respondMessage(ctx, w, status, message)
}

// userFacing errors reach clients with their own message, without wrapping context.
var userFacing = []error{
	auth.ErrInvalidCredentials,
	auth.ErrEmailInUse,
	auth.ErrWeakPassword,
	auth.ErrInvalidEmail,
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrRefreshTokenExpired),
		errors.Is(err, session.ErrNotAuthenticated),
		errors.Is(err, catalog.ErrLoginRequired):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrEmailInUse):
		return http.StatusConflict
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, admin.ErrVideoIndex),
		errors.Is(err, videos.ErrUnsupportedURL):
		return http.StatusBadRequest
	case errors.Is(err, portal.ErrForbidden),
		errors.Is(err, admin.ErrProtectedAccount),
		errors.Is(err, catalog.ErrNotPurchased),
		errors.Is(err, docstore.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrCourseNotFound),
		errors.Is(err, catalog.ErrVideoNotFound),
		errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, portal.ErrUnknownCollection):
		return http.StatusNotFound
	case errors.Is(err, admin.ErrConfirmationRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, storage.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, admin.ErrUploadsDisabled),
		errors.Is(err, videos.ErrProviderUnavailable),
		errors.Is(err, portal.ErrRegistryClosed),
		errors.Is(err, docstore.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst as is.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
