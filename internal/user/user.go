package user

import (
	"time"

	"blogpress/app/internal/auth"
)

// User is the persisted account row.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"size:32;uniqueIndex:idx_users_username;not null"`
	Email        string    `gorm:"size:254;uniqueIndex:idx_users_email;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	Role         auth.Role `gorm:"size:16;not null;default:user"`
	AvatarURL    string    `gorm:"size:2048"`
	Bio          string    `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName defines the table name for the User model.
func (User) TableName() string {
	return "users"
}

// Identity projects the account onto the authenticated caller type.
func (u User) Identity() auth.Identity {
	return auth.Identity{UserID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// Summary is the public view of an account. It never carries the password hash.
type Summary struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Bio       string    `json:"bio,omitempty"`
}

// Summarise returns the public view of u.
func (u User) Summarise() Summary {
	return Summary{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
	}
}

// Session is returned by a successful sign-in.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Summary   `json:"user"`
}

// RoleRedirect tells a client where to send a signed-in account.
type RoleRedirect struct {
	Role        auth.Role `json:"role"`
	RedirectURL string    `json:"redirectUrl"`
}
