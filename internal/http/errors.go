package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/apperr"
)

const internalErrorMessage = "internal server error"

// problem classifies err into a status, a public message and per-field details.
// Store failures are logged and reported; their text never reaches the client.
func (s *Server) problem(ctx context.Context, err error, message string) (int, string, []error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidationFailed:
		verr, _ := apperr.AsValidation(err)
		details := make([]error, 0, len(verr.Violations))
		for _, v := range verr.Violations {
			details = append(details, &huma.ErrorDetail{
				Message:  v.Message,
				Location: "body." + v.Field,
			})
		}
		return stdhttp.StatusUnprocessableEntity, "validation failed", details
	case apperr.KindUnauthenticated:
		return stdhttp.StatusUnauthorized, "authentication required", nil
	case apperr.KindForbidden:
		return stdhttp.StatusForbidden, "you are not allowed to perform this action", nil
	case apperr.KindNotFound:
		return stdhttp.StatusNotFound, "resource not found", nil
	case apperr.KindConflict:
		return stdhttp.StatusConflict, "resource already exists", nil
	case apperr.KindUnsupportedMediaType:
		return stdhttp.StatusUnsupportedMediaType, "only jpeg, png, gif and webp images are accepted", nil
	case apperr.KindPayloadTooLarge:
		return stdhttp.StatusRequestEntityTooLarge, "upload exceeds the size limit", nil
	default:
		s.recordError(ctx, err, message, nil)
		return stdhttp.StatusInternalServerError, internalErrorMessage, nil
	}
}

// fail converts a service error into the problem response returned by a handler.
func (s *Server) fail(ctx context.Context, err error, message string) error {
	status, msg, details := s.problem(ctx, err, message)
	return huma.NewError(status, msg, details...)
}

// writeProblem renders err directly, for middleware that short-circuits a request.
func (s *Server) writeProblem(ctx huma.Context, err error, message string) {
	status, msg, details := s.problem(ctx.Context(), err, message)
	if writeErr := huma.WriteErr(s.api, ctx, status, msg, details...); writeErr != nil && s.logger != nil {
		s.logger.WithError(writeErr).WithField("request_id", RequestIDFromContext(ctx.Context())).
			Error("writing problem response failed")
	}
}

func (s *Server) recordError(ctx context.Context, err error, message string, fields logrus.Fields) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if fields != nil {
			entry = entry.WithFields(fields)
		}
		if requestID := RequestIDFromContext(ctx); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		entry.Error(message)
	}

	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	if s.sentry != nil {
		s.sentry.CaptureException(err)
	}
}
