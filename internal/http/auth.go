package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"

	"blogpress/app/internal/user"
)

type credentialsBody struct {
	Email    string `json:"email,omitempty" doc:"Account email"`
	Password string `json:"password,omitempty" doc:"Account password"`
}

type loginInput struct {
	Body credentialsBody
}

type registerInput struct {
	Body struct {
		Username string `json:"username,omitempty"`
		Email    string `json:"email,omitempty"`
		Password string `json:"password,omitempty"`
	}
}

type sessionResponse struct {
	Body *user.Session
}

type profileResponse struct {
	Body *user.Summary
}

type roleResponse struct {
	Body user.RoleRedirect
}

type profileInput struct {
	Body struct {
		Username  *string `json:"username,omitempty"`
		AvatarURL *string `json:"avatar_url,omitempty"`
		Bio       *string `json:"bio,omitempty"`
	}
}

type passwordInput struct {
	Body struct {
		CurrentPassword string `json:"current_password,omitempty"`
		NewPassword     string `json:"new_password,omitempty"`
	}
}

type messageResponse struct {
	Body messageBody
}

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "register",
		Method:        stdhttp.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account and sign in",
		Tags:          []string{"auth"},
		DefaultStatus: stdhttp.StatusCreated,
	}, s.registerHandler)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      stdhttp.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a bearer token",
		Tags:        []string{"auth"},
	}, s.loginHandler)

	huma.Register(s.api, huma.Operation{
		OperationID: "check-role",
		Method:      stdhttp.MethodGet,
		Path:        "/auth/check-role",
		Summary:     "Report the caller's role and landing page",
		Tags:        []string{"auth"},
		Middlewares: s.pipeline(s.authenticate()),
	}, s.checkRoleHandler)

	huma.Register(s.api, huma.Operation{
		OperationID: "me",
		Method:      stdhttp.MethodGet,
		Path:        "/auth/me",
		Summary:     "Fetch the caller's profile",
		Tags:        []string{"auth"},
		Middlewares: s.pipeline(s.authenticate()),
	}, s.meHandler)

	huma.Register(s.api, huma.Operation{
		OperationID: "update-profile",
		Method:      stdhttp.MethodPut,
		Path:        "/auth/profile",
		Summary:     "Update the caller's profile",
		Tags:        []string{"auth"},
		Middlewares: s.pipeline(s.authenticate()),
	}, s.updateProfileHandler)

	huma.Register(s.api, huma.Operation{
		OperationID: "change-password",
		Method:      stdhttp.MethodPut,
		Path:        "/auth/password",
		Summary:     "Change the caller's password",
		Tags:        []string{"auth"},
		Middlewares: s.pipeline(s.authenticate()),
	}, s.changePasswordHandler)
}

func (s *Server) registerHandler(ctx context.Context, input *registerInput) (*sessionResponse, error) {
	session, err := s.users.Register(ctx, map[string]any{
		"username": input.Body.Username,
		"email":    input.Body.Email,
		"password": input.Body.Password,
	})
	if err != nil {
		return nil, s.fail(ctx, err, "registering account")
	}
	return &sessionResponse{Body: session}, nil
}

func (s *Server) loginHandler(ctx context.Context, input *loginInput) (*sessionResponse, error) {
	session, err := s.users.Login(ctx, map[string]any{
		"email":    input.Body.Email,
		"password": input.Body.Password,
	})
	if err != nil {
		return nil, s.fail(ctx, err, "signing in")
	}
	return &sessionResponse{Body: session}, nil
}

func (s *Server) checkRoleHandler(ctx context.Context, _ *struct{}) (*roleResponse, error) {
	identity, err := identityFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "checking role")
	}
	return &roleResponse{Body: s.users.CheckRole(identity)}, nil
}

func (s *Server) meHandler(ctx context.Context, _ *struct{}) (*profileResponse, error) {
	identity, err := identityFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "loading profile")
	}
	profile, err := s.users.Profile(ctx, identity.UserID)
	if err != nil {
		return nil, s.fail(ctx, err, "loading profile")
	}
	return &profileResponse{Body: profile}, nil
}

func (s *Server) updateProfileHandler(ctx context.Context, input *profileInput) (*profileResponse, error) {
	identity, err := identityFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "updating profile")
	}

	fields := map[string]any{}
	if input.Body.Username != nil {
		fields["username"] = *input.Body.Username
	}
	if input.Body.AvatarURL != nil {
		fields["avatar_url"] = *input.Body.AvatarURL
	}
	if input.Body.Bio != nil {
		fields["bio"] = *input.Body.Bio
	}

	profile, err := s.users.UpdateProfile(ctx, identity.UserID, fields)
	if err != nil {
		return nil, s.fail(ctx, err, "updating profile")
	}
	return &profileResponse{Body: profile}, nil
}

func (s *Server) changePasswordHandler(ctx context.Context, input *passwordInput) (*messageResponse, error) {
	identity, err := identityFrom(ctx)
	if err != nil {
		return nil, s.fail(ctx, err, "changing password")
	}

	err = s.users.ChangePassword(ctx, identity.UserID, map[string]any{
		"current_password": input.Body.CurrentPassword,
		"new_password":     input.Body.NewPassword,
	})
	if err != nil {
		return nil, s.fail(ctx, err, "changing password")
	}
	return &messageResponse{Body: messageBody{Message: "password updated"}}, nil
}
