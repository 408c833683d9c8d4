// Package repository declares the storage contracts used by the service layer.
//
// Services depend on these interfaces, never on a concrete database, so
// tests can hand in an in-memory fake and production can pick SQLite or
// PostgreSQL (see repository/sqldb).
package repository

import (
	"context"

	"github.com/sakif/petadopt/internal/model"
)

// UserRepository persists User records.
//
// Error contract:
//   - missing rows    → apperror.ErrNotFound
//   - unique violated → apperror.Conflict with Field set to the column's
//     logical name ("email", "username", "google_id", "facebook_id")
//   - anything else   → a wrapped driver error
type UserRepository interface {
	// Create inserts user, filling ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByProviderID(ctx context.Context, provider model.Provider, providerID string) (*model.User, error)
	// LinkProvider attaches providerID to an existing user row.
	LinkProvider(ctx context.Context, userID string, provider model.Provider, providerID string) error
	// UsernameTaken reports whether a user other than exceptID holds username.
	UsernameTaken(ctx context.Context, username, exceptID string) (bool, error)
	// CompleteProfile sets username and avatar, marks profile setup done,
	// and returns the updated row.
	CompleteProfile(ctx context.Context, userID, username, avatarURL string) (*model.User, error)
}

// ProviderColumn maps a provider to its linkage column. The boolean is false
// for unsupported providers; callers must never build SQL from raw input.
func ProviderColumn(p model.Provider) (string, bool) {
	switch p {
	case model.ProviderGoogle:
		return "google_id", true
	case model.ProviderFacebook:
		return "facebook_id", true
	}
	return "", false
}
