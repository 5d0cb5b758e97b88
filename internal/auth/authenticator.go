package auth

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"blogpress/app/internal/apperr"
)

// UserLookup resolves a token subject to the stored identity. It returns nil, nil when no
// such user exists.
type UserLookup interface {
	LookupIdentity(ctx context.Context, userID uint) (*Identity, error)
}

// Authenticator turns an Authorization header into a verified Identity.
type Authenticator struct {
	tokens *TokenManager
	users  UserLookup
}

// NewAuthenticator wires the authenticator with its dependencies.
func NewAuthenticator(tokens *TokenManager, users UserLookup) (*Authenticator, error) {
	if tokens == nil {
		return nil, eris.New("token manager is required")
	}
	if users == nil {
		return nil, eris.New("user lookup is required")
	}
	return &Authenticator{tokens: tokens, users: users}, nil
}

// Authenticate verifies the bearer credential in header and resolves its subject.
// The returned identity reflects the stored user record, not the token claims.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Identity, error) {
	token, err := bearerToken(header)
	if err != nil {
		return Identity{}, err
	}

	claims, err := a.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}

	userID, err := claims.UserID()
	if err != nil {
		return Identity{}, err
	}

	identity, err := a.users.LookupIdentity(ctx, userID)
	if err != nil {
		return Identity{}, eris.Wrapf(err, "resolving token subject %d", userID)
	}
	if identity == nil {
		return Identity{}, eris.Wrapf(apperr.ErrUnauthenticated, "token subject %d has no user record", userID)
	}

	return *identity, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", eris.Wrap(apperr.ErrUnauthenticated, "authorization header is missing")
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", eris.Wrap(apperr.ErrUnauthenticated, "authorization scheme must be Bearer")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", eris.Wrap(apperr.ErrUnauthenticated, "bearer token is empty")
	}
	return token, nil
}
