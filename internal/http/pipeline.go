package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"

	"blogpress/app/internal/apperr"
	"blogpress/app/internal/auth"
)

// Authenticator resolves the Authorization header into the calling identity.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (auth.Identity, error)
}

// Stage is one step of a per-route pipeline. It may enrich the request context or
// stop the request with an error; later stages and the handler never run after a
// failure.
type Stage func(ctx huma.Context) (huma.Context, error)

// pipeline composes stages into route middleware. The first failing stage writes the
// mapped problem response.
func (s *Server) pipeline(stages ...Stage) huma.Middlewares {
	return huma.Middlewares{
		func(ctx huma.Context, next func(huma.Context)) {
			current := ctx
			for _, stage := range stages {
				updated, err := stage(current)
				if err != nil {
					s.writeProblem(current, err, "running request pipeline")
					return
				}
				current = updated
			}
			next(current)
		},
	}
}

// authenticate attaches the caller identity to the request context.
func (s *Server) authenticate() Stage {
	return func(ctx huma.Context) (huma.Context, error) {
		identity, err := s.authenticator.Authenticate(ctx.Context(), ctx.Header("Authorization"))
		if err != nil {
			return ctx, err
		}

		goCtx := auth.WithIdentity(ctx.Context(), identity)
		if hub := sentry.GetHubFromContext(goCtx); hub != nil {
			hub.Scope().SetUser(sentry.User{
				ID:       strconv.FormatUint(uint64(identity.UserID), 10),
				Username: identity.Username,
			})
		}

		return huma.WithContext(ctx, goCtx), nil
	}
}

// requirePermission rejects callers whose role does not grant p. Ownership checks
// need the stored record and stay in the service.
func requirePermission(p auth.Permission) Stage {
	return func(ctx huma.Context) (huma.Context, error) {
		identity, ok := auth.IdentityFrom(ctx.Context())
		if !ok {
			return ctx, eris.Wrap(apperr.ErrUnauthenticated, "no identity on request")
		}
		if !identity.Role.Allows(p) {
			return ctx, eris.Wrapf(apperr.ErrForbidden, "role %s lacks %s", identity.Role, p)
		}
		return ctx, nil
	}
}

// limitBody caps the request body at max bytes. Declared lengths over the cap are
// rejected before anything is read; multipart bodies of unknown length are parsed
// here so that overrunning the cap maps to PayloadTooLarge. Huma reuses the parsed
// form.
func limitBody(max int64) Stage {
	return func(ctx huma.Context) (huma.Context, error) {
		req, w := humago.Unwrap(ctx)
		if req == nil || max <= 0 {
			return ctx, nil
		}
		if req.ContentLength > max {
			return ctx, eris.Wrapf(apperr.ErrPayloadTooLarge, "declared body of %d bytes", req.ContentLength)
		}
		req.Body = stdhttp.MaxBytesReader(w, req.Body, max)

		if err := req.ParseMultipartForm(humago.MultipartMaxMemory); err != nil {
			var tooLarge *stdhttp.MaxBytesError
			if errors.As(err, &tooLarge) {
				return ctx, eris.Wrapf(apperr.ErrPayloadTooLarge, "body exceeds %d bytes", tooLarge.Limit)
			}
			return ctx, apperr.Invalid("form", "must be a readable multipart form")
		}
		return ctx, nil
	}
}

func identityFrom(ctx context.Context) (auth.Identity, error) {
	identity, ok := auth.IdentityFrom(ctx)
	if !ok {
		return auth.Identity{}, eris.Wrap(apperr.ErrUnauthenticated, "no identity on request")
	}
	return identity, nil
}
