package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"blogpress/app/internal/apperr"
	"blogpress/app/internal/auth"
)

// Repository defines persistence operations for accounts.
type Repository interface {
	GetByID(ctx context.Context, id uint) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
	UpdateProfile(ctx context.Context, id uint, fields map[string]any) error
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
	UpdateRole(ctx context.Context, id uint, role auth.Role) error
	Exists(ctx context.Context, email, username string) (bool, error)
}

// GormRepository persists accounts using a Gorm database connection.
type GormRepository struct {
	db      *gorm.DB
	logger  *logrus.Logger
	timeout time.Duration
}

const defaultStoreTimeout = 5 * time.Second

// NewRepository constructs a Gorm-backed repository. Every call is bounded by timeout.
func NewRepository(db *gorm.DB, logger *logrus.Logger, timeout time.Duration) (*GormRepository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	return &GormRepository{db: db, logger: logger, timeout: timeout}, nil
}

var _ Repository = (*GormRepository)(nil)

// profileColumns are the only columns UpdateProfile writes.
var profileColumns = map[string]bool{
	"username":   true,
	"avatar_url": true,
	"bio":        true,
}

// GetByID returns the account with id or nil when not found.
func (r *GormRepository) GetByID(ctx context.Context, id uint) (*User, error) {
	return r.first(ctx, logrus.Fields{"user_id": id}, "id = ?", id)
}

// GetByEmail returns the account registered with email or nil when not found.
func (r *GormRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return nil, eris.New("email is required")
	}
	return r.first(ctx, logrus.Fields{"email": trimmed}, "email = ?", trimmed)
}

func (r *GormRepository) first(ctx context.Context, fields logrus.Fields, query string, arg any) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var user User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(fields, err, "fetching user")
		return nil, eris.Wrap(err, "fetching user")
	}

	return &user, nil
}

// Create inserts user. Duplicate email or username is a conflict.
func (r *GormRepository) Create(ctx context.Context, user *User) error {
	if user == nil {
		return eris.New("user is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicate(err) {
			return eris.Wrapf(apperr.ErrConflict, "user %q or %q already exists", user.Username, user.Email)
		}
		r.logError(logrus.Fields{"email": user.Email}, err, "inserting user")
		return eris.Wrapf(err, "inserting user: %s", user.Email)
	}

	return nil
}

// UpdateProfile writes the supplied profile columns for the account with id.
func (r *GormRepository) UpdateProfile(ctx context.Context, id uint, fields map[string]any) error {
	set := make(map[string]any, len(fields))
	for column, value := range fields {
		if !profileColumns[column] {
			return eris.Errorf("column %q is not a profile field", column)
		}
		set[column] = value
	}
	if len(set) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(set)
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return eris.Wrap(apperr.ErrConflict, "username already taken")
		}
		r.logError(logrus.Fields{"user_id": id}, result.Error, "updating profile")
		return eris.Wrapf(result.Error, "updating profile: %d", id)
	}
	if result.RowsAffected == 0 {
		return eris.Wrapf(apperr.ErrNotFound, "user %d", id)
	}

	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *GormRepository) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	return r.updateColumn(ctx, id, "password_hash", hash)
}

// UpdateRole replaces the stored role.
func (r *GormRepository) UpdateRole(ctx context.Context, id uint, role auth.Role) error {
	return r.updateColumn(ctx, id, "role", role)
}

func (r *GormRepository) updateColumn(ctx context.Context, id uint, column string, value any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		r.logError(logrus.Fields{"user_id": id, "column": column}, result.Error, "updating user")
		return eris.Wrapf(result.Error, "updating user %s: %d", column, id)
	}
	if result.RowsAffected == 0 {
		return eris.Wrapf(apperr.ErrNotFound, "user %d", id)
	}

	return nil
}

// Exists reports whether email or username is already registered.
func (r *GormRepository) Exists(ctx context.Context, email, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.WithContext(ctx).
		Model(&User{}).
		Where("email = ? OR username = ?", strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(username)).
		Count(&count).Error
	if err != nil {
		r.logError(logrus.Fields{"email": email}, err, "checking user existence")
		return false, eris.Wrap(err, "checking user existence")
	}

	return count > 0, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (r *GormRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
