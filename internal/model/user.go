// Package model defines the data structures used throughout the application.
package model

import (
	"slices"
	"time"
)

// Provider names an external identity service.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// DefaultAvatar is the preset assigned to accounts that never picked one.
const DefaultAvatar = "avatarDefault.png"

// PresetAvatars lists the avatar assets bundled with the client.
var PresetAvatars = []string{
	DefaultAvatar,
	"avatar2.png",
	"avatar3.png",
	"avatar4.png",
	"avatar5.png",
}

// IsPresetAvatar reports whether name is one of the bundled avatar assets.
func IsPresetAvatar(name string) bool {
	return slices.Contains(PresetAvatars, name)
}

// User represents an account on the platform.
//
// An account is created either by email/password registration or by the
// first successful provider login. Each provider linkage is a separate,
// optional field so one email can be reached through several providers.
//
// WHY EMPTY STRINGS INSTEAD OF *string?
// PasswordHash, GoogleID, FacebookID and Username are all optional. The
// repository stores "" as SQL NULL (so UNIQUE constraints still allow many
// unset rows) and reads NULL back as "". Callers only ever test for "".
type User struct {
	ID                    string    `json:"id"`
	Email                 string    `json:"email"`
	PasswordHash          string    `json:"-"` // bcrypt hash; empty for provider-only accounts
	GoogleID              string    `json:"-"`
	FacebookID            string    `json:"-"`
	Username              string    `json:"username"`
	FirstName             string    `json:"first_name"`
	LastName              string    `json:"last_name"`
	AvatarURL             string    `json:"avatar_url"` // preset name or stored upload URL
	ProfileSetupCompleted bool      `json:"profile_setup_completed"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// ProviderID returns the linkage id for p, or "" if the account is not linked.
func (u *User) ProviderID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderFacebook:
		return u.FacebookID
	}
	return ""
}

// SetProviderID records the linkage id for p. Unknown providers are ignored.
func (u *User) SetProviderID(p Provider, id string) {
	switch p {
	case ProviderGoogle:
		u.GoogleID = id
	case ProviderFacebook:
		u.FacebookID = id
	}
}

// Snapshot returns the subset of the user that is safe to embed in a token.
func (u *User) Snapshot() Snapshot {
	return Snapshot{
		ID:                    u.ID,
		Email:                 u.Email,
		Username:              u.Username,
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		AvatarURL:             u.AvatarURL,
		ProfileSetupCompleted: u.ProfileSetupCompleted,
	}
}

// Snapshot is the user identity carried inside a session token.
// It never includes the password hash or provider linkage ids.
type Snapshot struct {
	ID                    string `json:"id"`
	Email                 string `json:"email"`
	Username              string `json:"username"`
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	AvatarURL             string `json:"avatar_url"`
	ProfileSetupCompleted bool   `json:"profile_setup_completed"`
}
