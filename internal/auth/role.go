package auth

import (
	"strings"

	"github.com/rotisserie/eris"

	"blogpress/app/internal/apperr"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a stored role name onto a Role.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", eris.Errorf("unknown role: %q", value)
	}
}

// HomePath is where a client should send a freshly signed-in account.
func (r Role) HomePath() string {
	if r == RoleAdmin {
		return "/admin"
	}
	return "/"
}

// Permission names a guarded mutation.
type Permission int

const (
	PermUpdateArticle Permission = iota + 1
	PermDeleteArticle
	PermManageCategories
)

func (p Permission) String() string {
	switch p {
	case PermUpdateArticle:
		return "article:update"
	case PermDeleteArticle:
		return "article:delete"
	case PermManageCategories:
		return "category:manage"
	default:
		return "unknown"
	}
}

// ownerPermissions are granted to whoever owns the target resource.
var ownerPermissions = map[Permission]bool{
	PermUpdateArticle: true,
	PermDeleteArticle: true,
}

// rolePermissions are granted regardless of ownership.
var rolePermissions = map[Role]map[Permission]bool{
	RoleAdmin: {
		PermUpdateArticle:    true,
		PermDeleteArticle:    true,
		PermManageCategories: true,
	},
	RoleUser: {},
}

// Allows reports whether the role alone grants p.
func (r Role) Allows(p Permission) bool {
	return rolePermissions[r][p]
}

// Authorize permits actor to exercise p on a resource owned by ownerID.
// Pass ownerID 0 for resources without an owner.
func Authorize(actor Identity, ownerID uint, p Permission) error {
	if actor.Role.Allows(p) {
		return nil
	}
	if ownerID != 0 && actor.UserID == ownerID && ownerPermissions[p] {
		return nil
	}
	return eris.Wrapf(apperr.ErrForbidden, "user %d may not %s", actor.UserID, p)
}
