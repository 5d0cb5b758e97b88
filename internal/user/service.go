package user

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"blogpress/app/internal/apperr"
	"blogpress/app/internal/auth"
	"blogpress/app/internal/validate"
)

// Service defines account operations.
type Service interface {
	auth.UserLookup

	Login(ctx context.Context, fields map[string]any) (*Session, error)
	Register(ctx context.Context, fields map[string]any) (*Session, error)
	Profile(ctx context.Context, id uint) (*Summary, error)
	UpdateProfile(ctx context.Context, id uint, fields map[string]any) (*Summary, error)
	ChangePassword(ctx context.Context, id uint, fields map[string]any) error
	CheckRole(identity auth.Identity) RoleRedirect
	EnsureAdmin(ctx context.Context, email, username, password string) error
}

// TokenIssuer signs bearer tokens for identities.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, time.Time, error)
}

// Checker validates payloads against named rule sets.
type Checker interface {
	Check(set string, fields map[string]any) (map[string]any, error)
}

// ServiceOptions wires the user service.
type ServiceOptions struct {
	Repository Repository
	Validator  Checker
	Tokens     TokenIssuer
	Logger     *logrus.Logger
	SentryHub  *sentry.Hub
}

type service struct {
	repo      Repository
	validator Checker
	tokens    TokenIssuer
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// NewService validates opts and returns the user service.
func NewService(opts ServiceOptions) (Service, error) {
	if opts.Repository == nil {
		return nil, eris.New("user repository is required")
	}
	if opts.Validator == nil {
		return nil, eris.New("validator is required")
	}
	if opts.Tokens == nil {
		return nil, eris.New("token issuer is required")
	}

	return &service{
		repo:      opts.Repository,
		validator: opts.Validator,
		tokens:    opts.Tokens,
		logger:    opts.Logger,
		sentryHub: opts.SentryHub,
	}, nil
}

func (s *service) Login(ctx context.Context, fields map[string]any) (*Session, error) {
	clean, err := s.validator.Check(validate.Login, fields)
	if err != nil {
		return nil, err
	}

	email := stringField(clean, "email")
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.recordError(logrus.Fields{"email": email}, err, "looking up account")
		return nil, eris.Wrap(err, "looking up account")
	}
	if account == nil {
		return nil, eris.Wrapf(apperr.ErrNotFound, "no account for %s", email)
	}

	if !auth.CheckPassword(account.PasswordHash, stringField(clean, "password")) {
		return nil, eris.Wrapf(apperr.ErrUnauthenticated, "wrong password for user %d", account.ID)
	}

	return s.session(account)
}

func (s *service) Register(ctx context.Context, fields map[string]any) (*Session, error) {
	clean, err := s.validator.Check(validate.Register, fields)
	if err != nil {
		return nil, err
	}

	username := stringField(clean, "username")
	email := stringField(clean, "email")

	taken, err := s.repo.Exists(ctx, email, username)
	if err != nil {
		s.recordError(logrus.Fields{"email": email}, err, "checking registration")
		return nil, eris.Wrap(err, "checking registration")
	}
	if taken {
		return nil, eris.Wrap(apperr.ErrConflict, "username or email already registered")
	}

	hash, err := auth.HashPassword(stringField(clean, "password"))
	if err != nil {
		s.recordError(nil, err, "hashing password")
		return nil, err
	}

	account := &User{Username: username, Email: email, PasswordHash: hash, Role: auth.RoleUser}
	if err := s.repo.Create(ctx, account); err != nil {
		if apperr.KindOf(err) != apperr.KindConflict {
			s.recordError(logrus.Fields{"email": email}, err, "registering account")
		}
		return nil, eris.Wrap(err, "registering account")
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"component": "user", "user_id": account.ID}).Info("registered account")
	}

	return s.session(account)
}

func (s *service) Profile(ctx context.Context, id uint) (*Summary, error) {
	account, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := account.Summarise()
	return &summary, nil
}

func (s *service) UpdateProfile(ctx context.Context, id uint, fields map[string]any) (*Summary, error) {
	clean, err := s.validator.Check(validate.ProfileUpdate, fields)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProfile(ctx, id, clean); err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindConflict:
		default:
			s.recordError(logrus.Fields{"user_id": id}, err, "updating profile")
		}
		return nil, eris.Wrap(err, "updating profile")
	}

	return s.Profile(ctx, id)
}

func (s *service) ChangePassword(ctx context.Context, id uint, fields map[string]any) error {
	clean, err := s.validator.Check(validate.PasswordChange, fields)
	if err != nil {
		return err
	}

	account, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if !auth.CheckPassword(account.PasswordHash, stringField(clean, "current_password")) {
		return eris.Wrapf(apperr.ErrForbidden, "current password mismatch for user %d", id)
	}

	hash, err := auth.HashPassword(stringField(clean, "new_password"))
	if err != nil {
		s.recordError(nil, err, "hashing password")
		return err
	}

	if err := s.repo.UpdatePasswordHash(ctx, id, hash); err != nil {
		s.recordError(logrus.Fields{"user_id": id}, err, "changing password")
		return eris.Wrap(err, "changing password")
	}

	return nil
}

func (s *service) CheckRole(identity auth.Identity) RoleRedirect {
	return RoleRedirect{Role: identity.Role, RedirectURL: identity.Role.HomePath()}
}

// EnsureAdmin creates the bootstrap administrator, or promotes the existing account with
// that email. An empty email disables seeding.
func (s *service) EnsureAdmin(ctx context.Context, email, username, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	fields := logrus.Fields{"component": "user.seed", "email": email}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return eris.Wrap(err, "looking up admin account")
	}
	if existing != nil {
		if existing.Role == auth.RoleAdmin {
			return nil
		}
		if err := s.repo.UpdateRole(ctx, existing.ID, auth.RoleAdmin); err != nil {
			return eris.Wrap(err, "promoting admin account")
		}
		if s.logger != nil {
			s.logger.WithFields(fields).Info("promoted existing account to admin")
		}
		return nil
	}

	clean, err := s.validator.Check(validate.Register, map[string]any{
		"username": username,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return eris.Wrap(err, "validating admin seed")
	}

	hash, err := auth.HashPassword(stringField(clean, "password"))
	if err != nil {
		return err
	}

	account := &User{
		Username:     stringField(clean, "username"),
		Email:        stringField(clean, "email"),
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return eris.Wrap(err, "creating admin account")
	}

	if s.logger != nil {
		s.logger.WithFields(fields).Info("created admin account")
	}
	return nil
}

// LookupIdentity resolves a token subject. Unknown ids yield nil, nil.
func (s *service) LookupIdentity(ctx context.Context, userID uint) (*auth.Identity, error) {
	account, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		s.recordError(logrus.Fields{"user_id": userID}, err, "resolving identity")
		return nil, eris.Wrap(err, "resolving identity")
	}
	if account == nil {
		return nil, nil
	}

	identity := account.Identity()
	return &identity, nil
}

func (s *service) session(account *User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(account.Identity())
	if err != nil {
		s.recordError(logrus.Fields{"user_id": account.ID}, err, "issuing token")
		return nil, eris.Wrap(err, "issuing token")
	}

	return &Session{Token: token, ExpiresAt: expiresAt, User: account.Summarise()}, nil
}

func (s *service) load(ctx context.Context, id uint) (*User, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.recordError(logrus.Fields{"user_id": id}, err, "retrieving account")
		return nil, eris.Wrapf(err, "retrieving account %d", id)
	}
	if account == nil {
		return nil, eris.Wrapf(apperr.ErrNotFound, "user %d", id)
	}
	return account, nil
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}

func stringField(fields map[string]any, key string) string {
	value, _ := fields[key].(string)
	return value
}
